package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// LocationRepo validates location references against the district/taluka/village master data.
type LocationRepo interface {
	// Validate returns ErrNotFound unless the taluka belongs to the district and,
	// when villageID is set, the village belongs to the taluka.
	Validate(ctx context.Context, districtID, talukaID int64, villageID *int64) error
}

type locationRepo struct {
	db *sql.DB
}

func NewLocationRepo(db *sql.DB) LocationRepo {
	return &locationRepo{db: db}
}

func (r *locationRepo) Validate(ctx context.Context, districtID, talukaID int64, villageID *int64) error {
	var one int
	var err error
	if villageID == nil {
		err = r.db.QueryRowContext(ctx, `
			SELECT 1 FROM talukas t
			JOIN districts d ON d.id = t.district_id
			WHERE t.id = $2 AND d.id = $1
		`, districtID, talukaID).Scan(&one)
	} else {
		err = r.db.QueryRowContext(ctx, `
			SELECT 1 FROM villages v
			JOIN talukas t ON t.id = v.taluka_id
			JOIN districts d ON d.id = t.district_id
			WHERE v.id = $3 AND t.id = $2 AND d.id = $1
		`, districtID, talukaID, *villageID).Scan(&one)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("validate location: %w", err)
	}
	return nil
}

// MemoryLocationRepo holds a small location hierarchy in memory.
type MemoryLocationRepo struct {
	mu        sync.RWMutex
	districts map[int64]bool
	talukas   map[int64]int64 // taluka -> district
	villages  map[int64]int64 // village -> taluka
}

func NewMemoryLocationRepo() *MemoryLocationRepo {
	return &MemoryLocationRepo{
		districts: make(map[int64]bool),
		talukas:   make(map[int64]int64),
		villages:  make(map[int64]int64),
	}
}

// AddVillage registers a district > taluka > village chain. A zero villageID adds only
// the district and taluka.
func (r *MemoryLocationRepo) AddVillage(districtID, talukaID, villageID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.districts[districtID] = true
	r.talukas[talukaID] = districtID
	if villageID != 0 {
		r.villages[villageID] = talukaID
	}
}

func (r *MemoryLocationRepo) Validate(_ context.Context, districtID, talukaID int64, villageID *int64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.districts[districtID] {
		return ErrNotFound
	}
	if d, ok := r.talukas[talukaID]; !ok || d != districtID {
		return ErrNotFound
	}
	if villageID != nil {
		if t, ok := r.villages[*villageID]; !ok || t != talukaID {
			return ErrNotFound
		}
	}
	return nil
}
