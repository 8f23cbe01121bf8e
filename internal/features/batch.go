package features

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ukydev/cmms-risk/internal/models"
	"golang.org/x/sync/errgroup"
)

// Skipped records equipment left out of a batch because of a data defect.
type Skipped struct {
	EquipmentNo string `json:"equipment_no"`
	Reason      string `json:"reason"`
}

// BatchResult holds the snapshots of one batch in input order, plus the equipment
// that had to be skipped.
type BatchResult struct {
	Snapshots []Snapshot
	Skipped   []Skipped
	// Err combines every skip reason; nil when nothing was skipped.
	Err error
}

// ExtractBatch extracts snapshots for all of equipment as of asOf. Equipment with
// malformed records are skipped and reported; datastore errors abort the batch.
func (e *Engineer) ExtractBatch(ctx context.Context, equipment []models.Equipment, asOf time.Time) (BatchResult, error) {
	start := time.Now()
	defer func() { e.metrics.ExtractionTime.UpdateSince(start) }()

	type slot struct {
		snap Snapshot
		err  error
	}
	slots := make([]slot, len(equipment))

	err := forEach(ctx, e.workers, len(equipment), func(ctx context.Context, i int) error {
		snap, err := e.Extract(ctx, equipment[i], asOf)
		if errors.Is(err, ErrMalformedRecord) {
			slots[i].err = err
			return nil
		}
		if err != nil {
			return err
		}
		slots[i].snap = snap
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	var merr *multierror.Error
	for i, s := range slots {
		if s.err != nil {
			no := equipment[i].EquipmentNo
			res.Skipped = append(res.Skipped, Skipped{EquipmentNo: no, Reason: s.err.Error()})
			merr = multierror.Append(merr, s.err)
			e.log.WithError(s.err).WithField("equipment_no", no).Warn("Skipping equipment")
			continue
		}
		res.Snapshots = append(res.Snapshots, s.snap)
	}
	res.Err = merr.ErrorOrNil()

	e.metrics.SnapshotsExtracted.Inc(int64(len(res.Snapshots)))
	e.metrics.EquipmentSkipped.Inc(int64(len(res.Skipped)))
	return res, nil
}

// Current extracts snapshots for every eligible equipment as of now.
func (e *Engineer) Current(ctx context.Context, now time.Time) (BatchResult, error) {
	equipment, err := e.src.ActiveEquipment(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	return e.ExtractBatch(ctx, eligible(equipment), now)
}

func eligible(equipment []models.Equipment) []models.Equipment {
	out := make([]models.Equipment, 0, len(equipment))
	for _, eq := range equipment {
		if eq.EligibleForPrediction() {
			out = append(out, eq)
		}
	}
	return out
}

// forEach runs fn for every index in [0, n) on at most workers goroutines.
// Each call owns index i exclusively; the first error cancels the rest.
func forEach(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i)
		})
	}
	return g.Wait()
}
