package postgres

import (
	"os"
	"testing"

	"Doc_Indexer/docstore"

	gc "gopkg.in/check.v1"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(PostgresStoreTestSuite))

// PostgresStoreTestSuite runs the shared docstore suite against a real
// database instance. The DSN is read from DOCSTORE_DSN; the suite is skipped
// when the variable is not set.
type PostgresStoreTestSuite struct {
	docstore.SuiteBase

	store *PostgresStore
}

func (s *PostgresStoreTestSuite) SetUpSuite(c *gc.C) {
	dsn := os.Getenv("DOCSTORE_DSN")
	if dsn == "" {
		c.Skip("Missing DOCSTORE_DSN envvar; skipping document store tests")
		return
	}
	store, err := NewPostgresStore(dsn)
	c.Assert(err, gc.IsNil)
	s.store = store

	_, err = store.db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		id BIGINT PRIMARY KEY,
		deleted BOOL NOT NULL DEFAULT FALSE,
		properties JSONB NOT NULL
	)`)
	c.Assert(err, gc.IsNil)
}

func (s *PostgresStoreTestSuite) SetUpTest(c *gc.C) {
	if s.store == nil {
		c.Skip("Missing DOCSTORE_DSN envvar; skipping document store tests")
		return
	}
	_, err := s.store.db.Exec(`TRUNCATE documents`)
	c.Assert(err, gc.IsNil)
	s.SetStore(s.store)
}

func (s *PostgresStoreTestSuite) TearDownSuite(c *gc.C) {
	if s.store != nil {
		c.Assert(s.store.Close(), gc.IsNil)
	}
}
