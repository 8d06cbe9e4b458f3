package ingest

import (
	"time"

	"Doc_Indexer/analyzer"
	"Doc_Indexer/changerecord"
	memstore "Doc_Indexer/docstore/memory"
	"Doc_Indexer/identity"
	memengine "Doc_Indexer/indexengine/memory"
	"Doc_Indexer/schema"
	"Doc_Indexer/transform"

	gc "gopkg.in/check.v1"
	"golang.org/x/xerrors"
)

var _ = gc.Suite(new(ClassifierTestSuite))

// pipeline bundles a fully wired in-memory ingestion stack for tests.
type pipeline struct {
	sch    *schema.Schema
	store  *memstore.InMemoryStore
	engine *memengine.InMemoryEngine
	ids    *identity.InMemoryManager
	orch   *Orchestrator
	arena  *transform.TermArena
}

func newPipeline(c *gc.C) *pipeline {
	sch, err := schema.New([]schema.Property{
		{Name: "DOCID", Type: schema.TypeString},
		{Name: "DATE", Type: schema.TypeString, IsIndex: true, IsFilter: true},
		{Name: "Title", Type: schema.TypeString, IsIndex: true, IsAnalyzed: true, AnalyzerID: "la"},
		{Name: "Category", Type: schema.TypeString, IsIndex: true, IsFilter: true},
		{Name: "Price", Type: schema.TypeInt, IsIndex: true, IsFilter: true},
		{Name: "Comment", Type: schema.TypeString},
	})
	c.Assert(err, gc.IsNil)

	p := &pipeline{
		sch:    sch,
		store:  memstore.NewInMemoryStore(),
		engine: memengine.NewInMemoryEngine(),
		ids:    identity.NewInMemoryManager(),
		arena:  transform.NewTermArena(sch.NumProperties()),
	}
	p.orch, err = NewOrchestrator(OrchestratorConfig{
		Schema:   sch,
		Store:    p.store,
		Engine:   p.engine,
		Identity: p.ids,
		Analyzer: analyzer.NewSimple(),
	})
	c.Assert(err, gc.IsNil)
	return p
}

// insert ingests one document and returns its assigned id.
func (p *pipeline) insert(c *gc.C, rec *changerecord.Record) uint64 {
	id, err := p.orch.Insert(rec, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), p.arena)
	c.Assert(err, gc.IsNil)
	return id
}

func record(pairs ...string) *changerecord.Record {
	rec := new(changerecord.Record)
	for i := 0; i+1 < len(pairs); i += 2 {
		rec.Properties = append(rec.Properties, changerecord.Property{Name: pairs[i], Value: pairs[i+1]})
	}
	return rec
}

type ClassifierTestSuite struct {
	p  *pipeline
	cl *Classifier
}

func (s *ClassifierTestSuite) SetUpTest(c *gc.C) {
	s.p = newPipeline(c)
	s.cl = NewClassifier(s.p.sch, s.p.store, s.p.ids, nil)
	s.p.insert(c, record(
		"DOCID", "doc-1",
		"Title", "blue mountain coffee",
		"Category", "books",
		"Price", "10",
		"Comment", "display only",
	))
}

func (s *ClassifierTestSuite) TestUnknownKeyIsRejected(c *gc.C) {
	cls, err := s.cl.Classify(record("DOCID", "no-such-doc", "Category", "tools"))
	c.Assert(xerrors.Is(err, identity.ErrUnknownKey), gc.Equals, true)
	c.Assert(cls.Class, gc.Equals, ClassReject)
}

func (s *ClassifierTestSuite) TestDeletedDocumentIsRejected(c *gc.C) {
	id, ok := s.p.ids.Resolve("doc-1")
	c.Assert(ok, gc.Equals, true)
	_, err := s.p.store.Remove(id)
	c.Assert(err, gc.IsNil)

	cls, err := s.cl.Classify(record("DOCID", "doc-1", "Category", "tools"))
	c.Assert(err, gc.NotNil)
	c.Assert(cls.Class, gc.Equals, ClassReject)
}

func (s *ClassifierTestSuite) TestIdenticalRecordIsNoOp(c *gc.C) {
	cls, err := s.cl.Classify(record(
		"DOCID", "doc-1",
		"Category", "books",
		"Price", "10",
	))
	c.Assert(err, gc.IsNil)
	c.Assert(cls.Class, gc.Equals, ClassNoOp)
	c.Assert(cls.Changed, gc.HasLen, 0)
}

func (s *ClassifierTestSuite) TestChangedFilterPropertyIsPartial(c *gc.C) {
	cls, err := s.cl.Classify(record(
		"DOCID", "doc-1",
		"Category", "tools",
		"Price", "10",
	))
	c.Assert(err, gc.IsNil)
	c.Assert(cls.Class, gc.Equals, ClassPartial)
	c.Assert(cls.Changed, gc.DeepEquals, map[string]string{"Category": "tools"})
	c.Assert(cls.FilterProps, gc.DeepEquals, []string{"Category"})
}

func (s *ClassifierTestSuite) TestChangedUnindexedPropertyIsPartial(c *gc.C) {
	cls, err := s.cl.Classify(record("DOCID", "doc-1", "Comment", "changed note"))
	c.Assert(err, gc.IsNil)
	c.Assert(cls.Class, gc.Equals, ClassPartial)
	c.Assert(cls.Changed, gc.DeepEquals, map[string]string{"Comment": "changed note"})
	// Unindexed properties are rewritten in the store only.
	c.Assert(cls.FilterProps, gc.HasLen, 0)
}

func (s *ClassifierTestSuite) TestChangedAnalyzedPropertyRequiresFull(c *gc.C) {
	cls, err := s.cl.Classify(record("DOCID", "doc-1", "Title", "different title"))
	c.Assert(err, gc.IsNil)
	c.Assert(cls.Class, gc.Equals, ClassRequiresFull)
}

func (s *ClassifierTestSuite) TestScanShortCircuitsOnFirstFullTrigger(c *gc.C) {
	// Title precedes Category in record order, so the scan stops at Title
	// and never inspects Category.
	cls, err := s.cl.Classify(record(
		"DOCID", "doc-1",
		"Title", "different title",
		"Category", "tools",
	))
	c.Assert(err, gc.IsNil)
	c.Assert(cls.Class, gc.Equals, ClassRequiresFull)
	c.Assert(cls.Changed, gc.HasLen, 0)
}

func (s *ClassifierTestSuite) TestTimestampComparedCanonically(c *gc.C) {
	// The stored DATE is canonical "20260801120000"; an equivalent value
	// in another accepted layout must not register as a change.
	cls, err := s.cl.Classify(record("DOCID", "doc-1", "DATE", "2026-08-01 12:00:00"))
	c.Assert(err, gc.IsNil)
	c.Assert(cls.Class, gc.Equals, ClassNoOp)
}

func (s *ClassifierTestSuite) TestUnknownPropertyIsSkipped(c *gc.C) {
	cls, err := s.cl.Classify(record("DOCID", "doc-1", "Bogus", "value"))
	c.Assert(err, gc.IsNil)
	c.Assert(cls.Class, gc.Equals, ClassNoOp)
}
