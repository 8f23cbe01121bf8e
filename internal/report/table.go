package report

import (
	"fmt"
	"strings"

	"github.com/ukydev/cmms-risk/internal/predictor"
)

// Style tags a row for bucket-colored rendering.
type Style string

const (
	StyleCritical Style = "critical"
	StyleHigh     Style = "high"
	StyleMedium   Style = "medium"
	StyleLow      Style = "low"
)

// StyleFor returns the style tag of b.
func StyleFor(b predictor.Bucket) Style {
	switch b {
	case predictor.BucketCritical:
		return StyleCritical
	case predictor.BucketHigh:
		return StyleHigh
	case predictor.BucketMedium:
		return StyleMedium
	default:
		return StyleLow
	}
}

// Row is one display row. Cells line up with Table.Columns.
type Row struct {
	EquipmentNo string   `json:"equipment_no"`
	Cells       []string `json:"cells"`
	Style       Style    `json:"style"`
}

// Table is a render-ready view of prediction results.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// TableColumns are the headers of every Table.
var TableColumns = []string{"BFM #", "Description", "Location", "Failure Probability", "Risk Level", "Recommendation"}

// Filter selects results for display.
type Filter func(predictor.Result) bool

// BucketFilter keeps results in any of buckets; no buckets keeps everything.
func BucketFilter(buckets ...predictor.Bucket) Filter {
	if len(buckets) == 0 {
		return func(predictor.Result) bool { return true }
	}
	set := make(map[predictor.Bucket]bool, len(buckets))
	for _, b := range buckets {
		set[b] = true
	}
	return func(r predictor.Result) bool { return set[r.Bucket] }
}

// SearchFilter keeps results whose equipment number, description or location
// contains term, ignoring case.
func SearchFilter(term string) Filter {
	term = strings.ToLower(strings.TrimSpace(term))
	return func(r predictor.Result) bool {
		if term == "" {
			return true
		}
		for _, s := range []string{r.EquipmentNo, r.Description, r.Location} {
			if strings.Contains(strings.ToLower(s), term) {
				return true
			}
		}
		return false
	}
}

// BuildTable turns results into display rows, keeping only rows every filter
// accepts. Row order follows results.
func BuildTable(results []predictor.Result, filters ...Filter) Table {
	t := Table{Columns: TableColumns, Rows: []Row{}}
	for _, r := range results {
		if !accept(r, filters) {
			continue
		}
		t.Rows = append(t.Rows, Row{
			EquipmentNo: r.EquipmentNo,
			Cells: []string{
				r.EquipmentNo,
				r.Description,
				r.Location,
				fmt.Sprintf("%.1f%%", r.Probability*100),
				string(r.Bucket),
				r.Recommendation,
			},
			Style: StyleFor(r.Bucket),
		})
	}
	return t
}

// Select returns the results every filter accepts, in order.
func Select(results []predictor.Result, filters ...Filter) []predictor.Result {
	out := make([]predictor.Result, 0, len(results))
	for _, r := range results {
		if accept(r, filters) {
			out = append(out, r)
		}
	}
	return out
}

func accept(r predictor.Result, filters []Filter) bool {
	for _, f := range filters {
		if !f(r) {
			return false
		}
	}
	return true
}
