package ingest

import (
	"io/ioutil"

	"Doc_Indexer/changerecord"
	"Doc_Indexer/docstore"
	"Doc_Indexer/identity"
	"Doc_Indexer/schema"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	// ClassReject marks updates whose key does not resolve to a live
	// document.
	ClassReject Class = iota
	// ClassNoOp marks updates identical to the stored document.
	ClassNoOp
	// ClassPartial marks updates applicable as a narrow property rewrite.
	ClassPartial
	// ClassRequiresFull marks updates that need a full document
	// replacement.
	ClassRequiresFull
)

// Class is the outcome of classifying an update change record.
type Class uint8

func (c Class) String() string {
	switch c {
	case ClassReject:
		return "reject"
	case ClassNoOp:
		return "no-op"
	case ClassPartial:
		return "partial"
	case ClassRequiresFull:
		return "full"
	default:
		return "unknown"
	}
}

// Classification carries the decision for one update record together with
// the data the partial-update path needs.
type Classification struct {
	Class Class
	// DocID is the resolved internal id; zero when Class is ClassReject.
	DocID uint64
	// Changed maps every differing property name to its canonical new
	// value, for the document-store rewrite.
	Changed map[string]string
	// FilterProps lists, in record order, the changed filterable
	// non-analyzed property names that the index-engine diff must cover.
	FilterProps []string
}

// Classifier decides whether an update record can be applied as a cheap
// partial property rewrite or needs a full document replacement. The scan is
// greedy and order-sensitive: the first property that forces a full update
// ends it, so later properties are never compared.
type Classifier struct {
	schema *schema.Schema
	store  docstore.Store
	ids    identity.Manager
	logger *logrus.Entry
}

// NewClassifier creates a Classifier over the given collaborators.
func NewClassifier(sch *schema.Schema, store docstore.Store, ids identity.Manager, logger *logrus.Entry) *Classifier {
	if logger == nil {
		logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return &Classifier{schema: sch, store: store, ids: ids, logger: logger}
}

// Classify inspects an update record against the stored document.
func (cl *Classifier) Classify(rec *changerecord.Record) (Classification, error) {
	key, ok := rec.Get(schema.KeyPropertyName)
	if !ok || key == "" {
		return Classification{Class: ClassReject}, xerrors.Errorf("classify update: %w", ErrMissingKey)
	}
	id, ok := cl.ids.Resolve(key)
	if !ok {
		return Classification{Class: ClassReject}, xerrors.Errorf("classify update of %q: %w", key, identity.ErrUnknownKey)
	}
	deleted, err := cl.store.IsDeleted(id)
	if err != nil {
		return Classification{Class: ClassReject}, xerrors.Errorf("classify update of %q: %w", key, err)
	}
	if deleted {
		return Classification{Class: ClassReject}, xerrors.Errorf("classify update of %q: document %d is deleted: %w", key, id, identity.ErrUnknownKey)
	}

	out := Classification{DocID: id, Changed: make(map[string]string)}
	changed := false
	for _, p := range rec.Properties {
		if schema.IsKey(p.Name) {
			continue
		}
		prop, ok := cl.schema.Lookup(p.Name)
		if !ok {
			cl.logger.WithFields(logrus.Fields{
				"doc_id":   id,
				"property": p.Name,
			}).Warn("skipping property not declared in the schema")
			continue
		}

		canonical := p.Value
		if schema.IsTimestamp(prop.Name) {
			if c, err := schema.CanonicalTimestamp(p.Value); err == nil {
				canonical = c
			}
		}
		stored, err := cl.store.GetProperty(id, prop.Name)
		if err != nil && !xerrors.Is(err, docstore.ErrUnknownProperty) {
			return Classification{Class: ClassReject}, xerrors.Errorf("classify update of %q: %w", key, err)
		}
		if canonical == stored {
			continue
		}

		switch {
		case prop.IsFilter && !prop.IsAnalyzed:
			out.Changed[prop.Name] = canonical
			out.FilterProps = append(out.FilterProps, prop.Name)
			changed = true
		case !prop.IsIndex:
			// Still rewritten in the document store, but no index
			// structure depends on it.
			out.Changed[prop.Name] = canonical
			changed = true
		default:
			// Re-tokenization or posting rewrites are needed, so
			// the whole document is replaced.
			out.Class = ClassRequiresFull
			return out, nil
		}
	}

	if !changed {
		out.Class = ClassNoOp
		return out, nil
	}
	out.Class = ClassPartial
	return out, nil
}
