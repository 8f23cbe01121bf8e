// Package memstore is an in-memory maintenance datastore used by tests and the
// offline demo.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/cmms-risk/internal/db"
	"github.com/ukydev/cmms-risk/internal/models"
)

// ErrUserNotFound is returned when no user matches a lookup.
var ErrUserNotFound = db.ErrUserNotFound

// Store keeps equipment and maintenance history in memory. Reads are safe for
// concurrent use with each other and with writes.
type Store struct {
	mu         sync.RWMutex
	equipment  map[string]models.Equipment
	pms        map[string][]models.PMCompletion
	corrective map[string][]models.CorrectiveEvent
	parts      map[string][]models.PartsRequest
	users      map[string]models.User
}

// New returns an empty store.
func New() *Store {
	return &Store{
		equipment:  make(map[string]models.Equipment),
		pms:        make(map[string][]models.PMCompletion),
		corrective: make(map[string][]models.CorrectiveEvent),
		parts:      make(map[string][]models.PartsRequest),
		users:      make(map[string]models.User),
	}
}

func (s *Store) InsertEquipment(_ context.Context, eq ...models.Equipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range eq {
		s.equipment[e.EquipmentNo] = e
	}
	return nil
}

func (s *Store) InsertPMCompletions(_ context.Context, pms ...models.PMCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pm := range pms {
		s.pms[pm.EquipmentNo] = append(s.pms[pm.EquipmentNo], pm)
	}
	return nil
}

func (s *Store) InsertCorrectiveEvents(_ context.Context, cms ...models.CorrectiveEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cm := range cms {
		s.corrective[cm.EquipmentNo] = append(s.corrective[cm.EquipmentNo], cm)
	}
	return nil
}

func (s *Store) InsertPartsRequests(_ context.Context, parts ...models.PartsRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range parts {
		s.parts[p.EquipmentNo] = append(s.parts[p.EquipmentNo], p)
	}
	return nil
}

// ActiveEquipment returns equipment whose status is eligible for prediction,
// ordered by equipment number.
func (s *Store) ActiveEquipment(_ context.Context) ([]models.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Equipment
	for _, eq := range s.equipment {
		if eq.EligibleForPrediction() {
			out = append(out, eq)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EquipmentNo < out[j].EquipmentNo })
	return out, nil
}

func (s *Store) PMCompletions(_ context.Context, equipmentNo string, from, to time.Time) ([]models.PMCompletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PMCompletion
	for _, pm := range s.pms[equipmentNo] {
		// Undated rows are returned so the caller can reject them.
		if pm.CompletionDate.IsZero() || between(pm.CompletionDate, from, to) {
			out = append(out, pm)
		}
	}
	return out, nil
}

func (s *Store) CorrectiveEvents(_ context.Context, equipmentNo string, from, to time.Time) ([]models.CorrectiveEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CorrectiveEvent
	for _, cm := range s.corrective[equipmentNo] {
		if cm.ReportedDate.IsZero() || between(cm.ReportedDate, from, to) {
			out = append(out, cm)
		}
	}
	return out, nil
}

func (s *Store) PartsRequests(_ context.Context, equipmentNo string, from, to time.Time) ([]models.PartsRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PartsRequest
	for _, p := range s.parts[equipmentNo] {
		if between(p.RequestedDate, from, to) {
			out = append(out, p)
		}
	}
	return out, nil
}

// InsertUser stores u keyed by username.
func (s *Store) InsertUser(_ context.Context, u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = u
	return nil
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) UpdateLastLogin(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, u := range s.users {
		if u.ID.Hex() == id {
			now := time.Now()
			u.LastLogin = &now
			s.users[name] = u
			return nil
		}
	}
	return ErrUserNotFound
}

func between(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}
