package catalog

import (
	"time"

	"github.com/starford/comicshelf/internal/models"
)

// MetadataStore is the store contract the reconciler and library depend on.
// Consumers should depend on this interface rather than *DB so tests can
// substitute failing or recording stores.
type MetadataStore interface {
	models.MetadataSink
	Insert(c *models.Comic) error
	Upsert(c *models.Comic) error
	ApplyReconciliation(upserts []*models.Comic, removals []models.Identifier) error
	Get(id models.Identifier) (*models.Metadata, error)
	GetComic(id models.Identifier) (*models.Comic, error)
	DatesAdded(ids []models.Identifier) (map[models.Identifier]time.Time, error)
	AllActive() ([]*models.Comic, error)
	SoftDelete(id models.Identifier) error
	SetTags(id models.Identifier, tags models.TagSet) error
	Tags(id models.Identifier) (models.TagSet, error)
	AllTags() ([]TagCount, error)
	GetProgress(id models.Identifier) (int, error)
	SetProgress(id models.Identifier, progress int) error
	Version() int64
	Close() error
}

// Verify *DB satisfies MetadataStore at compile time.
var _ MetadataStore = (*DB)(nil)
