package repository

import (
	"context"
	"errors"

	"github.com/mr1hm/go-perimeter-risk/internal/models"
)

// CollectionKey is the top-level key the office collection is stored under.
const CollectionKey = "oficinas"

var (
	ErrNotFound      = errors.New("office not found")
	ErrInvalidOffice = errors.New("invalid office")
	ErrInvalidPOI    = errors.New("invalid poi")
	ErrNoVerdict     = errors.New("office has no verdict")
)

// Store persists the whole office collection as one document. Save always
// rewrites the full list; there are no incremental updates.
type Store interface {
	Load(ctx context.Context) ([]models.Office, error)
	Save(ctx context.Context, offices []models.Office) error
	Close() error
}

// OfficeRepository owns every read and write of offices. Each mutating call
// replaces the affected record as a whole.
type OfficeRepository interface {
	Get(ctx context.Context, id string) (*models.Office, error)
	List(ctx context.Context) ([]models.Office, error)
	Upsert(ctx context.Context, o *models.Office) error
	Delete(ctx context.Context, id string) error

	UpdateDetails(ctx context.Context, id string, d models.OfficeDetails) (*models.Office, error)
	UpdateLocation(ctx context.Context, id string, lat, lng float64) (*models.Office, error)
	AppendPOI(ctx context.Context, id string, poi models.POI) (*models.Office, error)
	ReplacePOIs(ctx context.Context, id string, pois []models.POI) (*models.Office, error)
	AttachVerdict(ctx context.Context, id string, v models.RiskVerdict) (*models.Office, error)
	ReplaceControls(ctx context.Context, id string, controls []string) (*models.Office, error)
}
