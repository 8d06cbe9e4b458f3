package transform

import "Doc_Indexer/indexengine"

// TermArena pools one term stream per property id so that term extraction
// does not reallocate for every record. The batch controller owns one arena
// per run and lends it to the transformer per record; streams handed to the
// index engine are only valid until the next record is transformed.
type TermArena struct {
	streams []*indexengine.TermStream
}

// NewTermArena creates an arena sized for property ids in [1, numProperties].
func NewTermArena(numProperties int) *TermArena {
	return &TermArena{streams: make([]*indexengine.TermStream, numProperties+1)}
}

// StreamFor returns the reusable stream for propertyID, reset and bound to
// docID.
func (a *TermArena) StreamFor(propertyID uint32, docID uint64) *indexengine.TermStream {
	if int(propertyID) >= len(a.streams) {
		grown := make([]*indexengine.TermStream, propertyID+1)
		copy(grown, a.streams)
		a.streams = grown
	}
	stream := a.streams[propertyID]
	if stream == nil {
		stream = new(indexengine.TermStream)
		a.streams[propertyID] = stream
	}
	stream.DocID = docID
	stream.Terms = stream.Terms[:0]
	return stream
}
