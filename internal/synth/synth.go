// Package synth generates plausible CMMS maintenance history for demos and
// tests. Failure hazard grows with time since the last PM, so the generated
// history carries a learnable signal.
package synth

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ukydev/cmms-risk/internal/models"
)

// Sink receives generated records.
type Sink interface {
	InsertEquipment(ctx context.Context, eq ...models.Equipment) error
	InsertPMCompletions(ctx context.Context, pms ...models.PMCompletion) error
	InsertCorrectiveEvents(ctx context.Context, cms ...models.CorrectiveEvent) error
	InsertPartsRequests(ctx context.Context, parts ...models.PartsRequest) error
}

// Options controls generation.
type Options struct {
	Equipment int
	// Days of history ending at Now.
	Days int
	Now  time.Time
	Seed int64
}

// DefaultOptions generates 18 months of history for 150 equipment.
func DefaultOptions() Options {
	return Options{Equipment: 150, Days: 540, Now: time.Now().UTC(), Seed: 42}
}

// History is one generated data set.
type History struct {
	Equipment  []models.Equipment
	PMs        []models.PMCompletion
	Corrective []models.CorrectiveEvent
	Parts      []models.PartsRequest
}

var (
	locations    = []string{"Main Plant", "Building A", "Building B", "Warehouse", "Utility Yard", "Lab Wing"}
	descriptions = []string{"Air Handling Unit", "Chiller", "Boiler", "Cooling Tower", "Exhaust Fan", "Circulation Pump", "Air Compressor", "Conveyor Drive", "Generator", "Fire Pump"}
	technicians  = []string{"J. Alvarez", "M. Chen", "R. Okafor", "S. Patel", "T. Nguyen"}
	partNumbers  = []string{"BELT-A42", "FLT-2020", "BRG-6205", "MTR-5HP", "SEAL-KIT", "CAP-45UF"}
)

// Generate builds a history from opts. The same options always yield the same
// history.
func Generate(opts Options) History {
	rng := rand.New(rand.NewSource(opts.Seed))
	start := day(opts.Now).AddDate(0, 0, -opts.Days)
	var h History
	cm := 0

	for i := 0; i < opts.Equipment; i++ {
		eq := models.Equipment{
			EquipmentNo: fmt.Sprintf("BFM-%05d", 10000+i),
			Description: fmt.Sprintf("%s #%d", descriptions[rng.Intn(len(descriptions))], 1+rng.Intn(9)),
			Location:    locations[rng.Intn(len(locations))],
			Status:      status(rng),
			MonthlyPM:   rng.Float64() < 0.6,
			SixMonthPM:  rng.Float64() < 0.3,
			AnnualPM:    rng.Float64() < 0.5,
			CreatedDate: start.AddDate(0, 0, -rng.Intn(3000)).Format("2006-01-02"),
		}
		h.Equipment = append(h.Equipment, eq)

		discipline := 0.3 + 0.7*rng.Float64()
		hazard := 0.002 + 0.012*rng.Float64()
		lastPM := start.AddDate(0, 0, -rng.Intn(60))

		for d := 0; d < opts.Days; d++ {
			date := start.AddDate(0, 0, d).Add(time.Duration(7+rng.Intn(10)) * time.Hour)
			for _, sched := range []struct {
				on     bool
				every  int
				pmType string
			}{
				{eq.MonthlyPM, 30, "Monthly"},
				{eq.SixMonthPM, 182, "Six Month"},
				{eq.AnnualPM, 365, "Annual"},
			} {
				if sched.on && d%sched.every == i%sched.every && rng.Float64() < discipline {
					h.PMs = append(h.PMs, models.PMCompletion{
						EquipmentNo:    eq.EquipmentNo,
						PMType:         sched.pmType,
						CompletionDate: date,
						LaborHours:     float64(rng.Intn(4)),
						LaborMinutes:   float64(15 * rng.Intn(4)),
						Technician:     technicians[rng.Intn(len(technicians))],
					})
					lastPM = date
				}
			}

			since := date.Sub(lastPM).Hours() / 24
			if rng.Float64() >= hazard*(1+min(since, 365)/60) {
				continue
			}
			cm++
			event := models.CorrectiveEvent{
				CMNumber:     fmt.Sprintf("CM-%06d", cm),
				EquipmentNo:  eq.EquipmentNo,
				Description:  "Unplanned repair: " + eq.Description,
				Priority:     priority(rng),
				Status:       models.CMStatusClosed,
				ReportedDate: date,
				LaborHours:   1 + float64(rng.Intn(8)),
			}
			if opts.Days-d < 14 && rng.Float64() < 0.5 {
				event.Status = models.CMStatusOpen
			}
			h.Corrective = append(h.Corrective, event)
			if rng.Float64() < 0.5 {
				h.Parts = append(h.Parts, models.PartsRequest{
					EquipmentNo:   eq.EquipmentNo,
					CMNumber:      event.CMNumber,
					PartNumber:    partNumbers[rng.Intn(len(partNumbers))],
					Quantity:      1 + rng.Intn(3),
					RequestedDate: date,
				})
			}
		}
	}
	return h
}

// Load writes h into sink.
func Load(ctx context.Context, sink Sink, h History) error {
	if err := sink.InsertEquipment(ctx, h.Equipment...); err != nil {
		return fmt.Errorf("insert equipment: %w", err)
	}
	if err := sink.InsertPMCompletions(ctx, h.PMs...); err != nil {
		return fmt.Errorf("insert pm completions: %w", err)
	}
	if err := sink.InsertCorrectiveEvents(ctx, h.Corrective...); err != nil {
		return fmt.Errorf("insert corrective events: %w", err)
	}
	if err := sink.InsertPartsRequests(ctx, h.Parts...); err != nil {
		return fmt.Errorf("insert parts requests: %w", err)
	}
	return nil
}

func status(rng *rand.Rand) string {
	switch r := rng.Float64(); {
	case r < 0.85:
		return models.StatusActive
	case r < 0.95:
		return models.StatusRunToFailure
	default:
		return models.StatusDeactivated
	}
}

func priority(rng *rand.Rand) string {
	switch r := rng.Float64(); {
	case r < 0.1:
		return models.PriorityP1
	case r < 0.35:
		return models.PriorityP2
	case r < 0.75:
		return models.PriorityP3
	default:
		return models.PriorityP4
	}
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
