package ingest

// CacheInvalidator is notified after a document mutation has been committed
// to both the document store and the index engine, so downstream caches can
// drop stale entries. Hooks run after the storage mutation completes, never
// before.
type CacheInvalidator interface {
	// InvalidateDocument drops cached state derived from the document.
	InvalidateDocument(docID uint64) error
	// InvalidateAll drops all cached state for the collection.
	InvalidateAll() error
}

// nopInvalidator is used when no cache invalidator is configured.
type nopInvalidator struct{}

func (nopInvalidator) InvalidateDocument(uint64) error { return nil }
func (nopInvalidator) InvalidateAll() error            { return nil }
