package indexengine

import "Doc_Indexer/analyzer"

const (
	// ValueTerms marks instructions that carry only a forward-index term
	// stream.
	ValueTerms ValueKind = iota
	// ValueString marks single stored string values.
	ValueString
	// ValueStringList marks multi-valued stored strings.
	ValueStringList
	// ValueInt marks single integer filter values.
	ValueInt
	// ValueIntList marks multi-valued integer filter values.
	ValueIntList
	// ValueFloat marks single float filter values.
	ValueFloat
	// ValueFloatList marks multi-valued float filter values.
	ValueFloatList
)

// ValueKind identifies the payload shape of an Instruction.
type ValueKind uint8

// TermStream is the per-document term-position sequence produced for one
// analyzed property. Streams are pooled in a term arena and reused across
// records, so consumers must not retain them past the engine call.
type TermStream struct {
	DocID uint64
	Terms []analyzer.Term
}

// Instruction is one index-ready unit handed to the engine: a property id,
// a single or multi value, and an optional forward-index term stream.
type Instruction struct {
	PropertyID    uint32
	Name          string
	IsIndex       bool
	IsAnalyzed    bool
	IsFilter      bool
	IsMultiValue  bool
	IsStoreLength bool

	Kind      ValueKind
	Str       string
	StrList   []string
	Int       int64
	IntList   []int64
	Float     float64
	FloatList []float64

	// Terms is non-nil for analyzed properties. When Kind is not
	// ValueTerms the instruction additionally stores the filter value(s).
	Terms *TermStream
}

// Engine is implemented by index engine collaborators that accept
// index-ready property instructions keyed by internal document id.
type Engine interface {
	// Insert indexes a new document.
	Insert(docID uint64, instructions []Instruction) error
	// Update applies an old->new instruction diff. A nil old slice means
	// a full replacement of the document.
	Update(docID uint64, old, updated []Instruction) error
	// Remove drops a document from the engine.
	Remove(collectionID uint32, docID uint64) error
	// NumDocs returns the number of documents the engine holds.
	NumDocs() (uint64, error)
}
