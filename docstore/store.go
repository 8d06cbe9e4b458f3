package docstore

import "golang.org/x/xerrors"

var (
	// ErrNotFound is returned when a document lookup fails.
	ErrNotFound = xerrors.New("document not found")

	// ErrExists is returned when inserting a document whose internal id
	// is already present.
	ErrExists = xerrors.New("document already exists")

	// ErrUnknownProperty is returned when a property lookup fails.
	ErrUnknownProperty = xerrors.New("property not present on document")
)

// Document is the raw property set stored for one internal document id.
type Document struct {
	// ID is the internal document id assigned by the identity manager.
	ID uint64
	// Properties maps declared property names to their raw values.
	Properties map[string]string
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	cp := &Document{ID: d.ID, Properties: make(map[string]string, len(d.Properties))}
	for k, v := range d.Properties {
		cp.Properties[k] = v
	}
	return cp
}

// Store is implemented by document store collaborators keyed by internal
// document id. Implementations must serialize their own internal mutations;
// the ingestion pipeline only ever mutates from a single goroutine.
type Store interface {
	// Get returns the document for id or ErrNotFound. Deleted documents
	// are still returned so update paths can read prior values.
	Get(id uint64) (*Document, error)
	// GetProperty returns one property value for id, or ErrNotFound /
	// ErrUnknownProperty.
	GetProperty(id uint64, name string) (string, error)
	// Insert stores a new document under doc.ID, failing with ErrExists
	// when the id is already live. Inserting over a removed id replaces
	// the tombstoned slot.
	Insert(doc *Document) error
	// UpdatePartial overwrites just the given properties of a stored
	// document.
	UpdatePartial(id uint64, props map[string]string) error
	// Remove marks the document deleted. It returns false without error
	// when the document was already removed or never existed, so deletes
	// stay idempotent.
	Remove(id uint64) (bool, error)
	// IsDeleted reports whether id refers to a removed document. Unknown
	// ids yield ErrNotFound.
	IsDeleted(id uint64) (bool, error)
	// MaxID returns the highest internal id the store has ever held, or
	// zero for an empty store.
	MaxID() (uint64, error)
	// Documents returns an iterator over the live (non-deleted) documents
	// in the store.
	Documents() (Iterator, error)
}

// Iterator is implemented by objects that iterate the documents of a store.
type Iterator interface {
	// Next advances the iterator. It returns false when no more documents
	// are available or an error occurred.
	Next() bool
	// Document returns the current document. The returned value is only
	// valid until the next call to Next.
	Document() *Document
	// Error returns the last error encountered by the iterator.
	Error() error
	// Close releases any resources associated with the iterator.
	Close() error
}
