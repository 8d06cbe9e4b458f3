package postgres

import (
	"database/sql"
	"encoding/json"

	"Doc_Indexer/docstore"

	"github.com/lib/pq"
	"golang.org/x/xerrors"
)

var (
	getDocumentQuery = `SELECT properties FROM documents WHERE id=$1`

	insertDocumentQuery = `INSERT INTO documents (id, deleted, properties) VALUES ($1, FALSE, $2)`

	reviveDocumentQuery = `UPDATE documents SET deleted=FALSE, properties=$2 WHERE id=$1 AND deleted`

	updatePartialQuery = `UPDATE documents SET properties = properties || $2::jsonb WHERE id=$1`

	removeDocumentQuery = `UPDATE documents SET deleted=TRUE WHERE id=$1 AND NOT deleted`

	isDeletedQuery = `SELECT deleted FROM documents WHERE id=$1`

	maxIDQuery = `SELECT COALESCE(MAX(id), 0) FROM documents`

	documentsQuery = `SELECT id, properties FROM documents WHERE NOT deleted ORDER BY id`
)

// PostgresStore is a document store backed by a PostgreSQL- or
// CockroachDB-compatible database. Property sets are stored as jsonb so the
// schema can evolve without migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to the store instance indicated by dsn.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, xerrors.Errorf("open document store: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close terminates the connection to the backing database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Get implements docstore.Store.
func (s *PostgresStore) Get(id uint64) (*docstore.Document, error) {
	var raw []byte
	if err := s.db.QueryRow(getDocumentQuery, int64(id)).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, xerrors.Errorf("get document %d: %w", id, docstore.ErrNotFound)
		}
		return nil, xerrors.Errorf("get document %d: %w", id, err)
	}
	doc := &docstore.Document{ID: id}
	if err := json.Unmarshal(raw, &doc.Properties); err != nil {
		return nil, xerrors.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

// GetProperty implements docstore.Store.
func (s *PostgresStore) GetProperty(id uint64, name string) (string, error) {
	doc, err := s.Get(id)
	if err != nil {
		return "", err
	}
	v, ok := doc.Properties[name]
	if !ok {
		return "", xerrors.Errorf("get property %q of %d: %w", name, id, docstore.ErrUnknownProperty)
	}
	return v, nil
}

// Insert implements docstore.Store.
func (s *PostgresStore) Insert(doc *docstore.Document) error {
	raw, err := json.Marshal(doc.Properties)
	if err != nil {
		return xerrors.Errorf("insert document %d: %w", doc.ID, err)
	}
	if _, err = s.db.Exec(insertDocumentQuery, int64(doc.ID), raw); err != nil {
		if !isUniqueViolationError(err) {
			return xerrors.Errorf("insert document %d: %w", doc.ID, err)
		}
		// The id is present; replacing it is only legal for a
		// tombstoned slot.
		res, err := s.db.Exec(reviveDocumentQuery, int64(doc.ID), raw)
		if err != nil {
			return xerrors.Errorf("insert document %d: %w", doc.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return xerrors.Errorf("insert document %d: %w", doc.ID, docstore.ErrExists)
		}
	}
	return nil
}

// UpdatePartial implements docstore.Store.
func (s *PostgresStore) UpdatePartial(id uint64, props map[string]string) error {
	raw, err := json.Marshal(props)
	if err != nil {
		return xerrors.Errorf("partial update of document %d: %w", id, err)
	}
	res, err := s.db.Exec(updatePartialQuery, int64(id), raw)
	if err != nil {
		return xerrors.Errorf("partial update of document %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return xerrors.Errorf("partial update of document %d: %w", id, docstore.ErrNotFound)
	}
	return nil
}

// Remove implements docstore.Store.
func (s *PostgresStore) Remove(id uint64) (bool, error) {
	res, err := s.db.Exec(removeDocumentQuery, int64(id))
	if err != nil {
		return false, xerrors.Errorf("remove document %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, xerrors.Errorf("remove document %d: %w", id, err)
	}
	return n > 0, nil
}

// IsDeleted implements docstore.Store.
func (s *PostgresStore) IsDeleted(id uint64) (bool, error) {
	var deleted bool
	if err := s.db.QueryRow(isDeletedQuery, int64(id)).Scan(&deleted); err != nil {
		if err == sql.ErrNoRows {
			return false, xerrors.Errorf("is deleted %d: %w", id, docstore.ErrNotFound)
		}
		return false, xerrors.Errorf("is deleted %d: %w", id, err)
	}
	return deleted, nil
}

// MaxID implements docstore.Store.
func (s *PostgresStore) MaxID() (uint64, error) {
	var max int64
	if err := s.db.QueryRow(maxIDQuery).Scan(&max); err != nil {
		return 0, xerrors.Errorf("max id: %w", err)
	}
	return uint64(max), nil
}

// Documents implements docstore.Store.
func (s *PostgresStore) Documents() (docstore.Iterator, error) {
	rows, err := s.db.Query(documentsQuery)
	if err != nil {
		return nil, xerrors.Errorf("documents: %w", err)
	}
	return &documentIterator{rows: rows}, nil
}

// documentIterator is a docstore.Iterator backed by a SQL result set.
type documentIterator struct {
	rows    *sql.Rows
	lastErr error
	cur     *docstore.Document
}

func (it *documentIterator) Next() bool {
	if it.lastErr != nil || !it.rows.Next() {
		return false
	}
	var (
		id  int64
		raw []byte
	)
	if it.lastErr = it.rows.Scan(&id, &raw); it.lastErr != nil {
		return false
	}
	doc := &docstore.Document{ID: uint64(id)}
	if it.lastErr = json.Unmarshal(raw, &doc.Properties); it.lastErr != nil {
		return false
	}
	it.cur = doc
	return true
}

func (it *documentIterator) Document() *docstore.Document { return it.cur }

func (it *documentIterator) Error() error {
	if it.lastErr != nil {
		return xerrors.Errorf("document iterator: %w", it.lastErr)
	}
	return it.rows.Err()
}

func (it *documentIterator) Close() error {
	return it.rows.Close()
}

func isUniqueViolationError(err error) bool {
	pqErr, valid := err.(*pq.Error)
	if !valid {
		return false
	}
	return pqErr.Code.Name() == "unique_violation"
}
