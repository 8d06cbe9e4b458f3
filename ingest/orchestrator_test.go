package ingest

import (
	"time"

	"Doc_Indexer/docstore"
	"Doc_Indexer/indexengine"

	gc "gopkg.in/check.v1"
	"golang.org/x/xerrors"
)

var _ = gc.Suite(new(OrchestratorTestSuite))

type OrchestratorTestSuite struct {
	p  *pipeline
	ts time.Time
}

func (s *OrchestratorTestSuite) SetUpTest(c *gc.C) {
	s.p = newPipeline(c)
	s.ts = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func (s *OrchestratorTestSuite) TestInsertAssignsMonotonicIDs(c *gc.C) {
	id1 := s.p.insert(c, record("DOCID", "doc-1", "Title", "first title", "Category", "books"))
	id2 := s.p.insert(c, record("DOCID", "doc-2", "Title", "second title", "Category", "tools"))
	c.Assert(id2 > id1, gc.Equals, true)

	doc, err := s.p.store.Get(id1)
	c.Assert(err, gc.IsNil)
	c.Assert(doc.Properties["Category"], gc.Equals, "books")
	c.Assert(doc.Properties["DOCID"], gc.Equals, "doc-1")
	// The timestamp is always stored, canonicalized.
	c.Assert(doc.Properties["DATE"], gc.Equals, "20260801120000")

	_, ok := s.p.engine.Document(id1)
	c.Assert(ok, gc.Equals, true)
}

func (s *OrchestratorTestSuite) TestInsertDuplicateKeyRejected(c *gc.C) {
	s.p.insert(c, record("DOCID", "doc-1", "Title", "first title"))

	_, err := s.p.orch.Insert(record("DOCID", "doc-1", "Title", "again"), s.ts, s.p.arena)
	c.Assert(xerrors.Is(err, ErrDuplicateKey), gc.Equals, true)
}

func (s *OrchestratorTestSuite) TestReinsertAfterDeleteGetsFreshID(c *gc.C) {
	id1 := s.p.insert(c, record("DOCID", "doc-1", "Title", "first title"))
	_, err := s.p.orch.Delete(record("DOCID", "doc-1"))
	c.Assert(err, gc.IsNil)

	id2 := s.p.insert(c, record("DOCID", "doc-1", "Title", "second life"))
	c.Assert(id2 > id1, gc.Equals, true)

	resolved, ok := s.p.ids.Resolve("doc-1")
	c.Assert(ok, gc.Equals, true)
	c.Assert(resolved, gc.Equals, id2)
}

func (s *OrchestratorTestSuite) TestInsertWithoutKeyRejected(c *gc.C) {
	_, err := s.p.orch.Insert(record("Title", "no key"), s.ts, s.p.arena)
	c.Assert(xerrors.Is(err, ErrMissingKey), gc.Equals, true)
}

func (s *OrchestratorTestSuite) TestNoOpUpdateTouchesNothing(c *gc.C) {
	s.p.insert(c, record("DOCID", "doc-1", "Title", "same title", "Category", "books"))
	inserts0, updates0, removes0 := s.p.engine.Calls()

	cls, err := s.p.orch.Update(record("DOCID", "doc-1", "Category", "books"), s.ts, s.p.arena)
	c.Assert(err, gc.IsNil)
	c.Assert(cls, gc.Equals, ClassNoOp)

	inserts, updates, removes := s.p.engine.Calls()
	c.Assert(inserts, gc.Equals, inserts0)
	c.Assert(updates, gc.Equals, updates0)
	c.Assert(removes, gc.Equals, removes0)
}

func (s *OrchestratorTestSuite) TestPartialUpdateDiffsExactlyTheChangedProperty(c *gc.C) {
	id := s.p.insert(c, record("DOCID", "doc-1", "Title", "same title", "Category", "books", "Price", "10"))

	cls, err := s.p.orch.Update(record("DOCID", "doc-1", "Category", "tools", "Price", "10"), s.ts, s.p.arena)
	c.Assert(err, gc.IsNil)
	c.Assert(cls, gc.Equals, ClassPartial)

	old, updated := s.p.engine.LastDiff()
	c.Assert(old, gc.HasLen, 1)
	c.Assert(updated, gc.HasLen, 1)
	c.Assert(old[0].Name, gc.Equals, "Category")
	c.Assert(old[0].Str, gc.Equals, "books")
	c.Assert(updated[0].Name, gc.Equals, "Category")
	c.Assert(updated[0].Str, gc.Equals, "tools")

	v, err := s.p.store.GetProperty(id, "Category")
	c.Assert(err, gc.IsNil)
	c.Assert(v, gc.Equals, "tools")

	// One update call, no reinsertion.
	inserts, updates, _ := s.p.engine.Calls()
	c.Assert(inserts, gc.Equals, 1)
	c.Assert(updates, gc.Equals, 1)
}

func (s *OrchestratorTestSuite) TestFullUpdateKeepsTheSameID(c *gc.C) {
	id := s.p.insert(c, record("DOCID", "doc-1", "Title", "old words", "Category", "books"))

	cls, err := s.p.orch.Update(record("DOCID", "doc-1", "Title", "new words", "Category", "books"), s.ts, s.p.arena)
	c.Assert(err, gc.IsNil)
	c.Assert(cls, gc.Equals, ClassRequiresFull)

	resolved, ok := s.p.ids.Resolve("doc-1")
	c.Assert(ok, gc.Equals, true)
	c.Assert(resolved, gc.Equals, id)

	// A nil old side signals full replacement to the engine.
	old, updated := s.p.engine.LastDiff()
	c.Assert(old, gc.IsNil)
	c.Assert(len(updated) > 0, gc.Equals, true)

	deleted, err := s.p.store.IsDeleted(id)
	c.Assert(err, gc.IsNil)
	c.Assert(deleted, gc.Equals, false)
	v, err := s.p.store.GetProperty(id, "Title")
	c.Assert(err, gc.IsNil)
	c.Assert(v, gc.Equals, "new words")
}

func (s *OrchestratorTestSuite) TestUpdateUnknownKeyRejected(c *gc.C) {
	_, err := s.p.orch.Update(record("DOCID", "ghost", "Category", "books"), s.ts, s.p.arena)
	c.Assert(err, gc.NotNil)

	inserts, updates, removes := s.p.engine.Calls()
	c.Assert(inserts+updates+removes, gc.Equals, 0)
}

func (s *OrchestratorTestSuite) TestDeleteIsIdempotent(c *gc.C) {
	id := s.p.insert(c, record("DOCID", "doc-1", "Title", "short lived"))

	_, err := s.p.orch.Delete(record("DOCID", "doc-1"))
	c.Assert(err, gc.IsNil)
	deleted, err := s.p.store.IsDeleted(id)
	c.Assert(err, gc.IsNil)
	c.Assert(deleted, gc.Equals, true)
	_, ok := s.p.engine.Document(id)
	c.Assert(ok, gc.Equals, false)

	_, _, removes := s.p.engine.Calls()

	// A second delete is logged success and must not touch the engine.
	_, err = s.p.orch.Delete(record("DOCID", "doc-1"))
	c.Assert(err, gc.IsNil)
	_, _, removesAfter := s.p.engine.Calls()
	c.Assert(removesAfter, gc.Equals, removes)
}

func (s *OrchestratorTestSuite) TestEngineFailureRollsBackStoreInsert(c *gc.C) {
	failing := &failingEngine{Engine: s.p.engine, failInsert: true}
	orch, err := NewOrchestrator(OrchestratorConfig{
		Schema:   s.p.sch,
		Store:    s.p.store,
		Engine:   failing,
		Identity: s.p.ids,
		Analyzer: s.p.orch.cfg.Analyzer,
	})
	c.Assert(err, gc.IsNil)

	id, err := orch.Insert(record("DOCID", "doc-1", "Title", "doomed"), s.ts, s.p.arena)
	c.Assert(err, gc.NotNil)
	c.Assert(id, gc.Equals, uint64(0))

	// The store commit was compensated: no live document remains.
	resolved, ok := s.p.ids.Resolve("doc-1")
	c.Assert(ok, gc.Equals, true)
	deleted, err := s.p.store.IsDeleted(resolved)
	c.Assert(err, gc.IsNil)
	c.Assert(deleted, gc.Equals, true)
}

func (s *OrchestratorTestSuite) TestEngineFailureRollsBackPartialUpdate(c *gc.C) {
	id := s.p.insert(c, record("DOCID", "doc-1", "Title", "same title", "Category", "books"))

	failing := &failingEngine{Engine: s.p.engine, failUpdate: true}
	orch, err := NewOrchestrator(OrchestratorConfig{
		Schema:   s.p.sch,
		Store:    s.p.store,
		Engine:   failing,
		Identity: s.p.ids,
		Analyzer: s.p.orch.cfg.Analyzer,
	})
	c.Assert(err, gc.IsNil)

	_, err = orch.Update(record("DOCID", "doc-1", "Category", "tools"), s.ts, s.p.arena)
	c.Assert(err, gc.NotNil)

	v, err := s.p.store.GetProperty(id, "Category")
	c.Assert(err, gc.IsNil)
	c.Assert(v, gc.Equals, "books")
}

func (s *OrchestratorTestSuite) TestStaleIDRejectedBeforeAnyMutation(c *gc.C) {
	id := s.p.insert(c, record("DOCID", "doc-1", "Title", "first title"))

	// A store whose watermark is ahead of the identity manager rejects
	// freshly bound ids as stale.
	err := s.p.store.Insert(&docstore.Document{ID: id + 5, Properties: map[string]string{"DOCID": "squatter"}})
	c.Assert(err, gc.IsNil)

	inserts0, _, _ := s.p.engine.Calls()
	_, err = s.p.orch.Insert(record("DOCID", "doc-2", "Title", "second"), s.ts, s.p.arena)
	c.Assert(xerrors.Is(err, ErrStaleID), gc.Equals, true)
	inserts, _, _ := s.p.engine.Calls()
	c.Assert(inserts, gc.Equals, inserts0)
}

func (s *OrchestratorTestSuite) TestStoreFailureSkipsEngine(c *gc.C) {
	failing := &failingStore{Store: s.p.store, failInsert: true}
	orch, err := NewOrchestrator(OrchestratorConfig{
		Schema:   s.p.sch,
		Store:    failing,
		Engine:   s.p.engine,
		Identity: s.p.ids,
		Analyzer: s.p.orch.cfg.Analyzer,
	})
	c.Assert(err, gc.IsNil)

	_, err = orch.Insert(record("DOCID", "doc-1", "Title", "first title"), s.ts, s.p.arena)
	c.Assert(err, gc.NotNil)

	inserts, updates, removes := s.p.engine.Calls()
	c.Assert(inserts+updates+removes, gc.Equals, 0)
}

// failingEngine wraps an engine and fails selected operations.
type failingEngine struct {
	indexengine.Engine
	failInsert bool
	failUpdate bool
}

func (e *failingEngine) Insert(docID uint64, ins []indexengine.Instruction) error {
	if e.failInsert {
		return xerrors.New("engine unavailable")
	}
	return e.Engine.Insert(docID, ins)
}

func (e *failingEngine) Update(docID uint64, old, updated []indexengine.Instruction) error {
	if e.failUpdate {
		return xerrors.New("engine unavailable")
	}
	return e.Engine.Update(docID, old, updated)
}

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	docstore.Store
	failInsert bool
}

func (s *failingStore) Insert(doc *docstore.Document) error {
	if s.failInsert {
		return xerrors.New("store unavailable")
	}
	return s.Store.Insert(doc)
}
