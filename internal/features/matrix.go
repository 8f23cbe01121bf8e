package features

import (
	"math"
	"slices"
	"sort"
)

// Columns is the ordered feature schema handed to the classifier. A trained
// artifact stores this list and refuses to score rows built with any other.
var Columns = []string{
	"pm_count_6mo",
	"days_since_last_pm",
	"pm_compliance_rate",
	"avg_pm_hours",
	"pm_overdue",
	"failure_count_6mo",
	"days_since_last_failure",
	"failure_rate_per_month",
	"avg_repair_hours",
	"total_repair_hours_6mo",
	"avg_failure_severity",
	"equipment_age_days",
	"monthly_pm_flag",
	"six_month_pm_flag",
	"annual_pm_flag",
	"location_encoded",
	"parts_consumption_6mo",
	"pm_compliance_x_failure_rate",
	"days_since_pm_x_failure_count",
}

// ColumnNames returns a copy of Columns.
func ColumnNames() []string {
	return slices.Clone(Columns)
}

// Vocabulary returns the sorted distinct locations of snaps.
func Vocabulary(snaps []Snapshot) []string {
	seen := make(map[string]struct{}, len(snaps))
	var out []string
	for _, s := range snaps {
		if _, ok := seen[s.Location]; ok {
			continue
		}
		seen[s.Location] = struct{}{}
		out = append(out, s.Location)
	}
	sort.Strings(out)
	return out
}

// Encoder maps locations to stable integer codes.
type Encoder struct {
	codes map[string]int
}

// NewEncoder builds an encoder over vocab; codes follow vocab order.
func NewEncoder(vocab []string) Encoder {
	codes := make(map[string]int, len(vocab))
	for i, loc := range vocab {
		codes[loc] = i
	}
	return Encoder{codes: codes}
}

// Code returns the code for loc, or -1 when loc was not in the vocabulary.
func (enc Encoder) Code(loc string) float64 {
	if c, ok := enc.codes[loc]; ok {
		return float64(c)
	}
	return -1
}

// Row converts s into a vector ordered as Columns, with defaults and clipping applied.
func (enc Encoder) Row(s Snapshot) []float64 {
	daysPM := clip(orDefault(s.DaysSinceLastPM, NoHistoryDays), 0, NoHistoryDays)
	daysFailure := clip(orDefault(s.DaysSinceLastFailure, NoHistoryDays), 0, NoHistoryDays)
	compliance := clip(orDefault(s.PMComplianceRate, 0), 0, 1)
	failureRate := orDefault(s.FailureRatePerMonth, 0)
	failureCount := orDefault(s.FailureCount6mo, 0)

	return []float64{
		orDefault(s.PMCount6mo, 0),
		daysPM,
		compliance,
		orDefault(s.AvgPMHours, 0),
		orDefault(s.PMOverdue, 0),
		failureCount,
		daysFailure,
		failureRate,
		orDefault(s.AvgRepairHours, 0),
		orDefault(s.TotalRepairHours6mo, 0),
		orDefault(s.AvgFailureSeverity, 0),
		orDefault(s.EquipmentAgeDays, 0),
		orDefault(s.MonthlyPMFlag, 0),
		orDefault(s.SixMonthPMFlag, 0),
		orDefault(s.AnnualPMFlag, 0),
		enc.Code(s.Location),
		orDefault(s.PartsConsumption6mo, 0),
		compliance * failureRate,
		(daysPM / 100) * failureCount,
	}
}

// Matrix converts snaps into rows ordered as Columns.
func (enc Encoder) Matrix(snaps []Snapshot) [][]float64 {
	rows := make([][]float64, len(snaps))
	for i, s := range snaps {
		rows[i] = enc.Row(s)
	}
	return rows
}

func orDefault(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
