// Package postgres reads CMMS maintenance history from the relational CMMS
// tables.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/ukydev/cmms-risk/internal/models"
)

// Queryer sends SQL with result rows.
//
// this is a subset of pgxpool.Pool, pgxpool.Conn and pgx.Tx.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Store reads equipment and maintenance history.
type Store struct {
	q Queryer
}

// New wraps q.
func New(q Queryer) *Store {
	return &Store{q: q}
}

// Connect opens a pool to url and returns a Store over it. Close the pool
// when done.
func Connect(ctx context.Context, url string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(pool), pool, nil
}

const equipmentQuery = `
SELECT bfm_equipment_no,
       COALESCE(description, ''),
       COALESCE(location, ''),
       status,
       COALESCE(monthly_pm, false),
       COALESCE(six_month_pm, false),
       COALESCE(annual_pm, false),
       COALESCE(created_date::text, '')
FROM equipment
WHERE status = ANY($1)
ORDER BY bfm_equipment_no`

// ActiveEquipment lists equipment eligible for prediction ordered by number.
func (s *Store) ActiveEquipment(ctx context.Context) ([]models.Equipment, error) {
	out, err := query(ctx, s.q, equipmentQuery, []interface{}{models.EligibleStatuses()}, func(r pgx.Rows) (models.Equipment, error) {
		var e models.Equipment
		err := r.Scan(&e.EquipmentNo, &e.Description, &e.Location, &e.Status,
			&e.MonthlyPM, &e.SixMonthPM, &e.AnnualPM, &e.CreatedDate)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("query equipment: %w", err)
	}
	return out, nil
}

const pmQuery = `
SELECT COALESCE(pm_type, ''),
       completion_date::timestamp,
       COALESCE(labor_hours, 0)::float8,
       COALESCE(labor_minutes, 0)::float8
FROM pm_completions
WHERE bfm_equipment_no = $1
  AND completion_date::timestamp BETWEEN $2 AND $3
ORDER BY completion_date`

// PMCompletions returns PMs completed in [from, to].
func (s *Store) PMCompletions(ctx context.Context, equipmentNo string, from, to time.Time) ([]models.PMCompletion, error) {
	out, err := query(ctx, s.q, pmQuery, []interface{}{equipmentNo, from, to}, func(r pgx.Rows) (models.PMCompletion, error) {
		pm := models.PMCompletion{EquipmentNo: equipmentNo}
		err := r.Scan(&pm.PMType, &pm.CompletionDate, &pm.LaborHours, &pm.LaborMinutes)
		return pm, err
	})
	if err != nil {
		return nil, fmt.Errorf("query pm completions for %s: %w", equipmentNo, err)
	}
	return out, nil
}

const correctiveQuery = `
SELECT cm_number,
       COALESCE(description, ''),
       COALESCE(priority, ''),
       COALESCE(status, ''),
       reported_date::timestamp,
       COALESCE(labor_hours, 0)::float8
FROM corrective_maintenance
WHERE bfm_equipment_no = $1
  AND reported_date::timestamp BETWEEN $2 AND $3
ORDER BY reported_date`

// CorrectiveEvents returns corrective work orders reported in [from, to].
func (s *Store) CorrectiveEvents(ctx context.Context, equipmentNo string, from, to time.Time) ([]models.CorrectiveEvent, error) {
	out, err := query(ctx, s.q, correctiveQuery, []interface{}{equipmentNo, from, to}, func(r pgx.Rows) (models.CorrectiveEvent, error) {
		cm := models.CorrectiveEvent{EquipmentNo: equipmentNo}
		err := r.Scan(&cm.CMNumber, &cm.Description, &cm.Priority, &cm.Status, &cm.ReportedDate, &cm.LaborHours)
		return cm, err
	})
	if err != nil {
		return nil, fmt.Errorf("query corrective events for %s: %w", equipmentNo, err)
	}
	return out, nil
}

const partsQuery = `
SELECT COALESCE(cm_number, ''),
       COALESCE(part_number, ''),
       COALESCE(quantity, 0)::int,
       requested_date::timestamp
FROM cm_parts_requests
WHERE bfm_equipment_no = $1
  AND requested_date::timestamp BETWEEN $2 AND $3
ORDER BY requested_date`

// PartsRequests returns parts requests raised in [from, to].
func (s *Store) PartsRequests(ctx context.Context, equipmentNo string, from, to time.Time) ([]models.PartsRequest, error) {
	out, err := query(ctx, s.q, partsQuery, []interface{}{equipmentNo, from, to}, func(r pgx.Rows) (models.PartsRequest, error) {
		p := models.PartsRequest{EquipmentNo: equipmentNo}
		err := r.Scan(&p.CMNumber, &p.PartNumber, &p.Quantity, &p.RequestedDate)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("query parts requests for %s: %w", equipmentNo, err)
	}
	return out, nil
}

func query[T any](ctx context.Context, q Queryer, sql string, args []interface{}, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
