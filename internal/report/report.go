// Package report renders prediction batches as plain-text reports and as
// render-ready tables for interactive consumers.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ukydev/cmms-risk/internal/predictor"
)

// Options controls report layout.
type Options struct {
	// TopN is the number of rows in the ranked table; 0 means 20.
	TopN int
	// Now stamps the header; zero means the batch generation time.
	Now time.Time
}

var (
	rule = strings.Repeat("=", 80)
	line = strings.Repeat("-", 80)
)

// Summary counts results per bucket.
type Summary struct {
	Total  int                      `json:"total"`
	Counts map[predictor.Bucket]int `json:"counts"`
}

// Summarize counts results per bucket.
func Summarize(results []predictor.Result) Summary {
	return Summary{Total: len(results), Counts: predictor.CountBuckets(results)}
}

// Percent returns the share of b in the summary, 0 when empty.
func (s Summary) Percent(b predictor.Bucket) float64 {
	if s.Total == 0 {
		return 0
	}
	return 100 * float64(s.Counts[b]) / float64(s.Total)
}

// Generate renders batch as a text report: header, bucket summary, ranked
// top-N table and the critical equipment details, in that order.
func Generate(batch predictor.Batch, opts Options) string {
	topN := opts.TopN
	if topN <= 0 {
		topN = 20
	}
	stamp := opts.Now
	if stamp.IsZero() {
		stamp = batch.GeneratedAt
	}

	var b strings.Builder
	w := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	w(rule)
	w("EQUIPMENT FAILURE RISK REPORT")
	w("Generated: %s", stamp.Format("2006-01-02 15:04:05"))
	w(rule)
	w("")

	sum := Summarize(batch.Results)
	w("RISK SUMMARY")
	w(line)
	w("Total equipment analyzed: %d", sum.Total)
	w("Critical risk (>0.7):    %d (%.1f%%)", sum.Counts[predictor.BucketCritical], sum.Percent(predictor.BucketCritical))
	w("High risk (0.4-0.7):     %d (%.1f%%)", sum.Counts[predictor.BucketHigh], sum.Percent(predictor.BucketHigh))
	w("Medium risk (0.2-0.4):   %d (%.1f%%)", sum.Counts[predictor.BucketMedium], sum.Percent(predictor.BucketMedium))
	w("Low risk (<0.2):         %d (%.1f%%)", sum.Counts[predictor.BucketLow], sum.Percent(predictor.BucketLow))
	if len(batch.Skipped) > 0 {
		w("Skipped (data errors):   %d", len(batch.Skipped))
	}
	w("")

	w("TOP %d HIGHEST RISK EQUIPMENT", topN)
	w(line)
	w("%-15s %-30s %-15s %-8s %-10s", "BFM #", "Description", "Location", "Prob", "Risk")
	w(line)
	for i, r := range batch.Results {
		if i == topN {
			break
		}
		w("%-15s %-30s %-15s %-8.3f %-10s", r.EquipmentNo, truncate(r.Description, 28), r.Location, r.Probability, r.Bucket)
	}
	w("")

	critical := BucketFilter(predictor.BucketCritical)
	header := false
	for _, r := range batch.Results {
		if !critical(r) {
			continue
		}
		if !header {
			w("CRITICAL EQUIPMENT REQUIRING IMMEDIATE ATTENTION")
			w(line)
			header = true
		}
		w("• %s - %s", r.EquipmentNo, r.Description)
		w("  Location: %s", r.Location)
		w("  Failure Probability: %.1f%%", r.Probability*100)
		w("  Recommendation: %s", r.Recommendation)
		w("")
	}
	return b.String()
}

// WriteFile writes text to a temp file next to path and renames it into place,
// so a failed write never leaves a partial report at path.
func WriteFile(path, text string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	f, err := os.CreateTemp(dir, ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = f.WriteString(text); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	if err = os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
