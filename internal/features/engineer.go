package features

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/cmms-risk/internal/models"
	"github.com/ukydev/cmms-risk/internal/telemetry"
)

const (
	// HistoryWindowDays is the trailing window every history feature is computed over.
	HistoryWindowDays = 180
	// NoHistoryDays is the "days since" sentinel used when no event exists in the window.
	NoHistoryDays = 9999
	// PMOverdueDays is the days-since-last-PM value above which a PM counts as overdue.
	PMOverdueDays = 45
)

// ErrMalformedRecord marks a per-equipment data defect. Batch extraction skips
// equipment failing with it; any other error aborts the batch.
var ErrMalformedRecord = errors.New("malformed maintenance record")

// Source is the read-only view of the maintenance datastore. Ranges are inclusive.
type Source interface {
	ActiveEquipment(ctx context.Context) ([]models.Equipment, error)
	PMCompletions(ctx context.Context, equipmentNo string, from, to time.Time) ([]models.PMCompletion, error)
	CorrectiveEvents(ctx context.Context, equipmentNo string, from, to time.Time) ([]models.CorrectiveEvent, error)
	PartsRequests(ctx context.Context, equipmentNo string, from, to time.Time) ([]models.PartsRequest, error)
}

// Snapshot is the raw feature state of one equipment as of one date.
// Encoded columns and interaction terms are derived from it by Row.
type Snapshot struct {
	EquipmentNo string
	Description string
	Location    string
	AsOf        time.Time

	MonthlyPMFlag    float64
	SixMonthPMFlag   float64
	AnnualPMFlag     float64
	EquipmentAgeDays float64

	PMCount6mo       float64
	AvgPMHours       float64
	DaysSinceLastPM  float64
	PMComplianceRate float64
	PMOverdue        float64

	FailureCount6mo      float64
	DaysSinceLastFailure float64
	AvgRepairHours       float64
	TotalRepairHours6mo  float64
	AvgFailureSeverity   float64
	FailureRatePerMonth  float64

	PartsConsumption6mo float64
}

// Engineer computes snapshots from the datastore. It holds no mutable state, so
// one Engineer serves concurrent extractions.
type Engineer struct {
	src     Source
	log     logrus.FieldLogger
	metrics *telemetry.Metrics
	workers int
}

// Option configures an Engineer.
type Option func(*Engineer)

// WithLogger sets the logger used for progress and skip events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engineer) { e.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engineer) { e.metrics = m }
}

// WithWorkers sets how many equipment are extracted concurrently. Values below 1
// mean sequential extraction.
func WithWorkers(n int) Option {
	return func(e *Engineer) { e.workers = n }
}

// NewEngineer creates an Engineer reading from src.
func NewEngineer(src Source, opts ...Option) *Engineer {
	e := &Engineer{
		src:     src,
		log:     logrus.StandardLogger(),
		metrics: telemetry.New(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// Source returns the datastore the engineer reads from.
func (e *Engineer) Source() Source {
	return e.src
}

// Extract computes the snapshot of eq as of asOf.
func (e *Engineer) Extract(ctx context.Context, eq models.Equipment, asOf time.Time) (Snapshot, error) {
	s := Snapshot{
		EquipmentNo:    eq.EquipmentNo,
		Description:    eq.Description,
		Location:       eq.Location,
		AsOf:           asOf,
		MonthlyPMFlag:  flag(eq.MonthlyPM),
		SixMonthPMFlag: flag(eq.SixMonthPM),
		AnnualPMFlag:   flag(eq.AnnualPM),
	}

	created, known, err := ParseCreatedDate(eq.CreatedDate)
	if err != nil {
		return Snapshot{}, fmt.Errorf("equipment %s: %w", eq.EquipmentNo, err)
	}
	if known {
		// Equipment sampled before it was registered has no age yet.
		s.EquipmentAgeDays = float64(max(daysBetween(created, asOf), 0))
	}

	asOfDay := day(asOf)
	from := asOfDay.AddDate(0, 0, -HistoryWindowDays)
	to := endOfDay(asOfDay)

	pms, err := e.src.PMCompletions(ctx, eq.EquipmentNo, from, to)
	if err != nil {
		return Snapshot{}, fmt.Errorf("pm completions for %s: %w", eq.EquipmentNo, err)
	}
	if err := e.pmFeatures(&s, pms, from, asOfDay); err != nil {
		return Snapshot{}, err
	}

	cms, err := e.src.CorrectiveEvents(ctx, eq.EquipmentNo, from, to)
	if err != nil {
		return Snapshot{}, fmt.Errorf("corrective events for %s: %w", eq.EquipmentNo, err)
	}
	if err := e.failureFeatures(&s, cms, from, asOfDay); err != nil {
		return Snapshot{}, err
	}

	parts, err := e.src.PartsRequests(ctx, eq.EquipmentNo, from, to)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parts requests for %s: %w", eq.EquipmentNo, err)
	}
	for _, p := range parts {
		if inWindow(p.RequestedDate, from, asOfDay) {
			s.PartsConsumption6mo++
		}
	}

	return s, nil
}

func (e *Engineer) pmFeatures(s *Snapshot, pms []models.PMCompletion, from, asOfDay time.Time) error {
	var count, hours float64
	var last time.Time
	for _, pm := range pms {
		if pm.CompletionDate.IsZero() {
			return fmt.Errorf("%w: equipment %s has a PM completion without a date", ErrMalformedRecord, s.EquipmentNo)
		}
		if !inWindow(pm.CompletionDate, from, asOfDay) {
			continue
		}
		count++
		hours += pm.Hours()
		if pm.CompletionDate.After(last) {
			last = pm.CompletionDate
		}
	}

	s.PMCount6mo = count
	if count > 0 {
		s.AvgPMHours = hours / count
	}
	s.DaysSinceLastPM = NoHistoryDays
	if !last.IsZero() {
		s.DaysSinceLastPM = float64(daysBetween(last, asOfDay))
	}

	s.PMComplianceRate = ComplianceRate(count, s.MonthlyPMFlag, s.SixMonthPMFlag, s.AnnualPMFlag)
	if s.DaysSinceLastPM > PMOverdueDays {
		s.PMOverdue = 1
	}
	return nil
}

func (e *Engineer) failureFeatures(s *Snapshot, cms []models.CorrectiveEvent, from, asOfDay time.Time) error {
	var count, hours, severity float64
	var last time.Time
	for _, cm := range cms {
		if cm.ReportedDate.IsZero() {
			return fmt.Errorf("%w: equipment %s has a corrective event without a reported date", ErrMalformedRecord, s.EquipmentNo)
		}
		if !cm.Closed() || !inWindow(cm.ReportedDate, from, asOfDay) {
			continue
		}
		count++
		hours += cm.LaborHours
		severity += cm.Severity()
		if cm.ReportedDate.After(last) {
			last = cm.ReportedDate
		}
	}

	s.FailureCount6mo = count
	s.TotalRepairHours6mo = hours
	if count > 0 {
		s.AvgRepairHours = hours / count
		s.AvgFailureSeverity = severity / count
	}
	s.DaysSinceLastFailure = NoHistoryDays
	if !last.IsZero() {
		s.DaysSinceLastFailure = float64(daysBetween(last, asOfDay))
	}
	s.FailureRatePerMonth = count / 6.0
	return nil
}

// Label reports 1 when any corrective event for equipmentNo was reported strictly
// after asOf and on or before asOf+windowDays, else 0. Event status is ignored.
func (e *Engineer) Label(ctx context.Context, equipmentNo string, asOf time.Time, windowDays int) (int, error) {
	asOfDay := day(asOf)
	first := asOfDay.AddDate(0, 0, 1)
	lastDay := asOfDay.AddDate(0, 0, windowDays)

	events, err := e.src.CorrectiveEvents(ctx, equipmentNo, first, endOfDay(lastDay))
	if err != nil {
		return 0, fmt.Errorf("label for %s: %w", equipmentNo, err)
	}
	for _, ev := range events {
		d := day(ev.ReportedDate)
		if d.After(asOfDay) && !d.After(lastDay) {
			return 1, nil
		}
	}
	return 0, nil
}

// ComplianceRate returns min(1, actual/expected) where expected is the number of
// PMs the flags call for over the history window; 0 when no PM flag is set.
func ComplianceRate(actual, monthly, sixMonth, annual float64) float64 {
	expected := (HistoryWindowDays/30.0)*monthly +
		(HistoryWindowDays/180.0)*sixMonth +
		(HistoryWindowDays/365.0)*annual
	if expected <= 0 {
		return 0
	}
	return min(actual/expected, 1.0)
}

// Postgres renders timestamp and timestamptz as text with optional fractional
// seconds and an hour-only or hour:minute offset.
var createdDateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"01/02/2006",
}

// ParseCreatedDate parses a CMMS created_date value. An empty value is reported as
// unknown; an unparseable one as ErrMalformedRecord.
func ParseCreatedDate(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range createdDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: unparseable created_date %q", ErrMalformedRecord, raw)
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// day truncates t to midnight UTC.
func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func endOfDay(d time.Time) time.Time {
	return day(d).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// daysBetween counts whole calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(day(b).Sub(day(a)).Hours() / 24)
}

func inWindow(t, from, asOfDay time.Time) bool {
	d := day(t)
	return !d.Before(from) && !d.After(asOfDay)
}
