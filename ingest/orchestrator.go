package ingest

import (
	"io/ioutil"
	"time"

	"Doc_Indexer/analyzer"
	"Doc_Indexer/changerecord"
	"Doc_Indexer/docstore"
	"Doc_Indexer/identity"
	"Doc_Indexer/indexengine"
	"Doc_Indexer/schema"
	"Doc_Indexer/transform"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

var (
	// ErrMissingKey is returned for records without a document key
	// property.
	ErrMissingKey = xerrors.New("change record carries no document key")

	// ErrDuplicateKey is returned when inserting a key already bound to a
	// live document.
	ErrDuplicateKey = xerrors.New("document key already bound to a live document")

	// ErrStaleID is returned when an insert resolves to an id at or below
	// the generation's current maximum.
	ErrStaleID = xerrors.New("resolved id is not above the current maximum")
)

// OrchestratorConfig encapsulates the collaborators of the document
// lifecycle orchestrator.
type OrchestratorConfig struct {
	// The property schema of the collection.
	Schema *schema.Schema
	// The document store holding raw property sets.
	Store docstore.Store
	// The index engine receiving property instructions.
	Engine indexengine.Engine
	// The identity manager mapping external keys to internal ids.
	Identity identity.Manager
	// The analyzer used for term extraction.
	Analyzer analyzer.Analyzer
	// CollectionID tags index-engine removals.
	CollectionID uint32
	// An optional hook notified after committed mutations.
	Invalidator CacheInvalidator
	// A clock instance for fallback record timestamps. Defaults to the
	// wall clock.
	Clock clock.Clock
	// The logger to use. If not specified, a no-op logger is used instead.
	Logger *logrus.Entry
}

func (cfg *OrchestratorConfig) Validate() error {
	var err error
	if cfg.Schema == nil {
		err = multierror.Append(err, xerrors.Errorf("schema has not been provided"))
	}
	if cfg.Store == nil {
		err = multierror.Append(err, xerrors.Errorf("document store has not been provided"))
	}
	if cfg.Engine == nil {
		err = multierror.Append(err, xerrors.Errorf("index engine has not been provided"))
	}
	if cfg.Identity == nil {
		err = multierror.Append(err, xerrors.Errorf("identity manager has not been provided"))
	}
	if cfg.Analyzer == nil {
		err = multierror.Append(err, xerrors.Errorf("analyzer has not been provided"))
	}
	if cfg.Invalidator == nil {
		cfg.Invalidator = nopInvalidator{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Orchestrator applies classified change records to the document store and
// index engine pair. It never leaves a record half-applied across both: the
// store commits first, and an engine failure rolls the store back.
type Orchestrator struct {
	cfg         OrchestratorConfig
	transformer *transform.Transformer
	classifier  *Classifier
}

// NewOrchestrator creates a new orchestrator instance with the specified
// config.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("orchestrator: config validation failed: %w", err)
	}
	return &Orchestrator{
		cfg:         cfg,
		transformer: transform.NewTransformer(cfg.Schema, cfg.Analyzer, cfg.Logger),
		classifier:  NewClassifier(cfg.Schema, cfg.Store, cfg.Identity, cfg.Logger),
	}, nil
}

// ResolveKey returns the internal id currently bound to an external key.
func (o *Orchestrator) ResolveKey(key string) (uint64, bool) {
	return o.cfg.Identity.Resolve(key)
}

// Insert applies an insert record: it resolves or allocates the internal id,
// writes the document store, then submits the instructions to the index
// engine. fallbackTS supplies the record timestamp when the record carries
// none.
func (o *Orchestrator) Insert(rec *changerecord.Record, fallbackTS time.Time, arena *transform.TermArena) (uint64, error) {
	key, ok := rec.Get(schema.KeyPropertyName)
	if !ok || key == "" {
		return 0, xerrors.Errorf("insert: %w", ErrMissingKey)
	}
	id, err := o.insertID(key)
	if err != nil {
		return 0, err
	}

	doc, ts := o.buildDocument(id, rec, fallbackTS)
	instructions, err := o.transformer.Transform(id, doc, ts, arena)
	if err != nil {
		return 0, xerrors.Errorf("insert %q: %w", key, err)
	}
	if err = o.cfg.Store.Insert(doc); err != nil {
		// No engine call has been made; the record is simply dropped.
		return 0, xerrors.Errorf("insert %q: %w", key, err)
	}
	if err = o.cfg.Engine.Insert(id, instructions); err != nil {
		if _, rerr := o.cfg.Store.Remove(id); rerr != nil {
			o.cfg.Logger.WithField("doc_id", id).WithError(rerr).Warn("unable to roll back store insert after engine failure")
		}
		return 0, xerrors.Errorf("insert %q: %w", key, err)
	}
	o.invalidate(id)
	return id, nil
}

// Update classifies and applies an update record, returning the class that
// was applied. ClassNoOp means neither collaborator was touched.
func (o *Orchestrator) Update(rec *changerecord.Record, fallbackTS time.Time, arena *transform.TermArena) (Class, error) {
	cls, err := o.classifier.Classify(rec)
	if err != nil {
		return cls.Class, err
	}
	switch cls.Class {
	case ClassNoOp:
		return cls.Class, nil
	case ClassPartial:
		return cls.Class, o.partialUpdate(cls, arena)
	default:
		return cls.Class, o.fullUpdate(cls.DocID, rec, fallbackTS, arena)
	}
}

// Delete resolves the record's key and removes the document.
func (o *Orchestrator) Delete(rec *changerecord.Record) (uint64, error) {
	key, ok := rec.Get(schema.KeyPropertyName)
	if !ok || key == "" {
		return 0, xerrors.Errorf("delete: %w", ErrMissingKey)
	}
	id, ok := o.cfg.Identity.Resolve(key)
	if !ok {
		return 0, xerrors.Errorf("delete %q: %w", key, identity.ErrUnknownKey)
	}
	return id, o.DeleteByID(id)
}

// DeleteByID removes a document by internal id. Deleting an already-removed
// or unknown document is logged and treated as success so deletes stay
// idempotent.
func (o *Orchestrator) DeleteByID(id uint64) error {
	removed, err := o.cfg.Store.Remove(id)
	if err != nil {
		return xerrors.Errorf("delete %d: %w", id, err)
	}
	if !removed {
		o.cfg.Logger.WithField("doc_id", id).Info("document already removed; skipping")
		return nil
	}
	if err = o.cfg.Engine.Remove(o.cfg.CollectionID, id); err != nil {
		return xerrors.Errorf("delete %d: %w", id, err)
	}
	o.invalidate(id)
	return nil
}

// insertID resolves or allocates the internal id for an inserted key. A key
// bound to a live document is a duplicate; a key bound to a deleted document
// is remapped to a fresh id. Either way the id handed out must exceed the
// store's current maximum.
func (o *Orchestrator) insertID(key string) (uint64, error) {
	maxID, err := o.cfg.Store.MaxID()
	if err != nil {
		return 0, xerrors.Errorf("insert %q: %w", key, err)
	}

	id, bound := o.cfg.Identity.Resolve(key)
	if bound {
		deleted, err := o.cfg.Store.IsDeleted(id)
		if err != nil && !xerrors.Is(err, docstore.ErrNotFound) {
			return 0, xerrors.Errorf("insert %q: %w", key, err)
		}
		if err == nil && !deleted {
			return 0, xerrors.Errorf("insert %q (id %d): %w", key, id, ErrDuplicateKey)
		}
		if _, id, err = o.cfg.Identity.Rebind(key); err != nil {
			return 0, xerrors.Errorf("insert %q: %w", key, err)
		}
	} else if id, err = o.cfg.Identity.Bind(key); err != nil {
		return 0, xerrors.Errorf("insert %q: %w", key, err)
	}

	if id <= maxID {
		return 0, xerrors.Errorf("insert %q (id %d, max %d): %w", key, id, maxID, ErrStaleID)
	}
	return id, nil
}

// buildDocument converts a change record into the raw property set stored
// for the document, canonicalizing the timestamp property and dropping
// properties the schema does not declare. It returns the record timestamp
// alongside.
func (o *Orchestrator) buildDocument(id uint64, rec *changerecord.Record, fallbackTS time.Time) (*docstore.Document, time.Time) {
	doc := &docstore.Document{ID: id, Properties: make(map[string]string, len(rec.Properties))}
	ts := fallbackTS
	for _, p := range rec.Properties {
		if schema.IsKey(p.Name) {
			doc.Properties[schema.KeyPropertyName] = p.Value
			continue
		}
		prop, ok := o.cfg.Schema.Lookup(p.Name)
		if !ok {
			o.cfg.Logger.WithFields(logrus.Fields{
				"doc_id":   id,
				"property": p.Name,
			}).Warn("skipping property not declared in the schema")
			continue
		}
		value := p.Value
		if schema.IsTimestamp(prop.Name) {
			parsed, err := schema.ParseTimestamp(p.Value)
			if err != nil {
				o.cfg.Logger.WithFields(logrus.Fields{
					"doc_id": id,
					"value":  p.Value,
				}).Warn("replacing unparsable record timestamp")
				parsed = fallbackTS
			}
			ts = parsed
			value = schema.FormatTimestamp(parsed)
		}
		doc.Properties[prop.Name] = value
	}
	if _, ok := doc.Properties[schema.TimestampPropertyName]; !ok {
		doc.Properties[schema.TimestampPropertyName] = schema.FormatTimestamp(fallbackTS)
	}
	return doc, ts
}

// partialUpdate rewrites just the changed properties, pushing an old/new
// instruction diff for the filterable ones to the engine.
func (o *Orchestrator) partialUpdate(cls Classification, arena *transform.TermArena) error {
	id := cls.DocID

	// Previous values back the engine diff and the rollback on failure.
	prev := make(map[string]string, len(cls.Changed))
	for name := range cls.Changed {
		v, err := o.cfg.Store.GetProperty(id, name)
		if err != nil {
			if xerrors.Is(err, docstore.ErrUnknownProperty) {
				continue
			}
			return xerrors.Errorf("partial update of %d: %w", id, err)
		}
		prev[name] = v
	}

	// Non-nil empty old slice: a nil one means full replacement.
	oldInstructions := make([]indexengine.Instruction, 0, len(cls.FilterProps))
	newInstructions := make([]indexengine.Instruction, 0, len(cls.FilterProps))
	for _, name := range cls.FilterProps {
		prop, _ := o.cfg.Schema.Lookup(name)
		if schema.IsTimestamp(name) {
			if v, ok := prev[name]; ok {
				oldInstructions = append(oldInstructions, o.transformer.TimestampInstruction(prop, v, o.cfg.Clock.Now()))
			}
			newInstructions = append(newInstructions, o.transformer.TimestampInstruction(prop, cls.Changed[name], o.cfg.Clock.Now()))
			continue
		}
		if v, ok := prev[name]; ok {
			ins, err := o.transformer.TransformProperty(id, prop, v, arena)
			if err != nil {
				return xerrors.Errorf("partial update of %d: %w", id, err)
			}
			oldInstructions = append(oldInstructions, ins...)
		}
		ins, err := o.transformer.TransformProperty(id, prop, cls.Changed[name], arena)
		if err != nil {
			return xerrors.Errorf("partial update of %d: %w", id, err)
		}
		newInstructions = append(newInstructions, ins...)
	}

	if err := o.cfg.Store.UpdatePartial(id, cls.Changed); err != nil {
		return xerrors.Errorf("partial update of %d: %w", id, err)
	}
	if err := o.cfg.Engine.Update(id, oldInstructions, newInstructions); err != nil {
		if rerr := o.cfg.Store.UpdatePartial(id, prev); rerr != nil {
			o.cfg.Logger.WithField("doc_id", id).WithError(rerr).Warn("unable to roll back partial update after engine failure")
		}
		return xerrors.Errorf("partial update of %d: %w", id, err)
	}
	o.invalidate(id)
	return nil
}

// fullUpdate replaces the whole document under its existing id.
func (o *Orchestrator) fullUpdate(id uint64, rec *changerecord.Record, fallbackTS time.Time, arena *transform.TermArena) error {
	oldDoc, err := o.cfg.Store.Get(id)
	if err != nil {
		return xerrors.Errorf("full update of %d: %w", id, err)
	}
	doc, ts := o.buildDocument(id, rec, fallbackTS)
	instructions, err := o.transformer.Transform(id, doc, ts, arena)
	if err != nil {
		return xerrors.Errorf("full update of %d: %w", id, err)
	}

	if _, err = o.cfg.Store.Remove(id); err != nil {
		return xerrors.Errorf("full update of %d: %w", id, err)
	}
	if err = o.cfg.Store.Insert(doc); err != nil {
		if rerr := o.cfg.Store.Insert(oldDoc); rerr != nil {
			o.cfg.Logger.WithField("doc_id", id).WithError(rerr).Warn("unable to restore document after failed full update")
		}
		return xerrors.Errorf("full update of %d: %w", id, err)
	}
	if err = o.cfg.Engine.Update(id, nil, instructions); err != nil {
		if _, rerr := o.cfg.Store.Remove(id); rerr == nil {
			rerr = o.cfg.Store.Insert(oldDoc)
			if rerr != nil {
				o.cfg.Logger.WithField("doc_id", id).WithError(rerr).Warn("unable to restore document after engine failure")
			}
		}
		return xerrors.Errorf("full update of %d: %w", id, err)
	}
	o.invalidate(id)
	return nil
}

func (o *Orchestrator) invalidate(id uint64) {
	if err := o.cfg.Invalidator.InvalidateDocument(id); err != nil {
		o.cfg.Logger.WithField("doc_id", id).WithError(err).Warn("cache invalidation hook failed")
	}
}
