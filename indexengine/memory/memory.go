package memory

import (
	"sync"

	"Doc_Indexer/indexengine"

	"golang.org/x/xerrors"
)

// ErrUnknownDocument is returned when updating or removing a document the
// engine does not hold.
var ErrUnknownDocument = xerrors.New("document not present in index")

// InMemoryEngine is an index engine that keeps the instruction set of every
// document in memory. It doubles as the assertion target for pipeline tests:
// call counts and the last diff are exposed through accessors.
type InMemoryEngine struct {
	mu   sync.RWMutex
	docs map[uint64]map[uint32]indexengine.Instruction

	insertCalls int
	updateCalls int
	removeCalls int
	lastOld     []indexengine.Instruction
	lastNew     []indexengine.Instruction
}

// NewInMemoryEngine creates an empty in-memory index engine.
func NewInMemoryEngine() *InMemoryEngine {
	return &InMemoryEngine{docs: make(map[uint64]map[uint32]indexengine.Instruction)}
}

// Insert implements indexengine.Engine.
func (e *InMemoryEngine) Insert(docID uint64, instructions []indexengine.Instruction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.insertCalls++
	props := make(map[uint32]indexengine.Instruction, len(instructions))
	for _, in := range instructions {
		props[in.PropertyID] = cloneInstruction(in)
	}
	e.docs[docID] = props
	return nil
}

// Update implements indexengine.Engine. A nil old slice replaces the whole
// document; otherwise only the properties named by the diff are rewritten.
func (e *InMemoryEngine) Update(docID uint64, old, updated []indexengine.Instruction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.updateCalls++
	e.lastOld = cloneInstructions(old)
	e.lastNew = cloneInstructions(updated)

	if old == nil {
		props := make(map[uint32]indexengine.Instruction, len(updated))
		for _, in := range updated {
			props[in.PropertyID] = cloneInstruction(in)
		}
		e.docs[docID] = props
		return nil
	}

	props, ok := e.docs[docID]
	if !ok {
		return xerrors.Errorf("update document %d: %w", docID, ErrUnknownDocument)
	}
	for _, in := range updated {
		props[in.PropertyID] = cloneInstruction(in)
	}
	return nil
}

// Remove implements indexengine.Engine.
func (e *InMemoryEngine) Remove(_ uint32, docID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.removeCalls++
	if _, ok := e.docs[docID]; !ok {
		return xerrors.Errorf("remove document %d: %w", docID, ErrUnknownDocument)
	}
	delete(e.docs, docID)
	return nil
}

// NumDocs implements indexengine.Engine.
func (e *InMemoryEngine) NumDocs() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.docs)), nil
}

// Document returns the indexed instruction set for docID keyed by property
// id.
func (e *InMemoryEngine) Document(docID uint64) (map[uint32]indexengine.Instruction, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	props, ok := e.docs[docID]
	if !ok {
		return nil, false
	}
	out := make(map[uint32]indexengine.Instruction, len(props))
	for id, in := range props {
		out[id] = in
	}
	return out, true
}

// Calls returns the number of insert, update and remove calls seen so far.
func (e *InMemoryEngine) Calls() (inserts, updates, removes int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.insertCalls, e.updateCalls, e.removeCalls
}

// LastDiff returns the old/new instruction pair of the most recent Update
// call.
func (e *InMemoryEngine) LastDiff() (old, updated []indexengine.Instruction) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastOld, e.lastNew
}

func cloneInstruction(in indexengine.Instruction) indexengine.Instruction {
	cp := in
	cp.StrList = append([]string(nil), in.StrList...)
	cp.IntList = append([]int64(nil), in.IntList...)
	cp.FloatList = append([]float64(nil), in.FloatList...)
	if in.Terms != nil {
		stream := &indexengine.TermStream{DocID: in.Terms.DocID}
		stream.Terms = append(stream.Terms, in.Terms.Terms...)
		cp.Terms = stream
	}
	return cp
}

func cloneInstructions(ins []indexengine.Instruction) []indexengine.Instruction {
	if ins == nil {
		return nil
	}
	out := make([]indexengine.Instruction, len(ins))
	for i, in := range ins {
		out[i] = cloneInstruction(in)
	}
	return out
}
