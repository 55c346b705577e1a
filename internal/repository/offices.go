package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mr1hm/go-perimeter-risk/internal/models"
)

// Offices implements OfficeRepository on top of a Store. Every write loads
// the collection, replaces one record and saves the whole list back.
// The mutex serializes writers within this process only; separate processes
// sharing a store still race with last-write-wins semantics.
type Offices struct {
	store Store
	mu    sync.Mutex
	now   func() time.Time
}

func NewOffices(store Store) *Offices {
	return &Offices{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *Offices) Get(ctx context.Context, id string) (*models.Office, error) {
	offices, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(offices, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	o := offices[i].Clone()
	return &o, nil
}

func (r *Offices) List(ctx context.Context) ([]models.Office, error) {
	offices, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Office, len(offices))
	for i, o := range offices {
		out[i] = o.Clone()
	}
	return out, nil
}

func (r *Offices) Upsert(ctx context.Context, o *models.Office) error {
	next := o.Clone()
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOffice, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	offices, err := r.store.Load(ctx)
	if err != nil {
		return err
	}

	now := r.now()
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now

	if i := indexOf(offices, next.ID); i >= 0 {
		next.CreatedAt = offices[i].CreatedAt
		offices[i] = next
	} else {
		offices = append(offices, next)
	}

	if err := r.store.Save(ctx, offices); err != nil {
		return err
	}
	*o = next.Clone()
	return nil
}

func (r *Offices) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	offices, err := r.store.Load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(offices, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	offices = append(offices[:i], offices[i+1:]...)
	return r.store.Save(ctx, offices)
}

// UpdateDetails edits the descriptive fields. POIs and verdict are kept.
func (r *Offices) UpdateDetails(ctx context.Context, id string, d models.OfficeDetails) (*models.Office, error) {
	return r.mutate(ctx, id, func(o *models.Office) error {
		d.Apply(o)
		return nil
	})
}

// UpdateLocation moves the office center. POIs and verdict are kept.
func (r *Offices) UpdateLocation(ctx context.Context, id string, lat, lng float64) (*models.Office, error) {
	return r.mutate(ctx, id, func(o *models.Office) error {
		o.Latitude = lat
		o.Longitude = lng
		return nil
	})
}

// AppendPOI adds a POI and resets the verdict, since its inputs changed.
func (r *Offices) AppendPOI(ctx context.Context, id string, poi models.POI) (*models.Office, error) {
	if err := poi.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPOI, err)
	}
	return r.mutate(ctx, id, func(o *models.Office) error {
		for _, p := range o.POIs {
			if p.ID == poi.ID {
				return fmt.Errorf("%w: duplicate poi id %s", ErrInvalidPOI, poi.ID)
			}
		}
		o.POIs = append(o.POIs, poi)
		resetVerdict(o)
		return nil
	})
}

// ReplacePOIs swaps the whole POI list and resets the verdict.
func (r *Offices) ReplacePOIs(ctx context.Context, id string, pois []models.POI) (*models.Office, error) {
	for _, p := range pois {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPOI, err)
		}
	}
	return r.mutate(ctx, id, func(o *models.Office) error {
		o.POIs = append([]models.POI{}, pois...)
		resetVerdict(o)
		return nil
	})
}

// AttachVerdict replaces all four verdict fields as a unit.
func (r *Offices) AttachVerdict(ctx context.Context, id string, v models.RiskVerdict) (*models.Office, error) {
	return r.mutate(ctx, id, func(o *models.Office) error {
		next := v.Clone()
		o.Verdict = &next
		return nil
	})
}

// ReplaceControls swaps the controls list of an existing verdict.
func (r *Offices) ReplaceControls(ctx context.Context, id string, controls []string) (*models.Office, error) {
	return r.mutate(ctx, id, func(o *models.Office) error {
		if o.Verdict == nil {
			return fmt.Errorf("%w: %s", ErrNoVerdict, id)
		}
		next := o.Verdict.Clone()
		next.Controls = append([]string{}, controls...)
		o.Verdict = &next
		return nil
	})
}

func (r *Offices) mutate(ctx context.Context, id string, fn func(o *models.Office) error) (*models.Office, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offices, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(offices, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := offices[i].Clone()
	if err := fn(&next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOffice, err)
	}
	next.UpdatedAt = r.now()
	offices[i] = next

	if err := r.store.Save(ctx, offices); err != nil {
		return nil, err
	}
	out := next.Clone()
	return &out, nil
}

func resetVerdict(o *models.Office) {
	if o.Verdict == nil {
		return
	}
	v := models.UnevaluatedVerdict()
	o.Verdict = &v
}

func indexOf(offices []models.Office, id string) int {
	for i := range offices {
		if offices[i].ID == id {
			return i
		}
	}
	return -1
}
