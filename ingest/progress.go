package ingest

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// Progress is a point-in-time snapshot of a running (or idle) batch. It is
// safe to request concurrently with batch processing.
type Progress struct {
	// Running indicates whether a batch is currently in flight.
	Running bool
	// FileIndex and FileCount locate the file being processed within the
	// batch; FileName and FileSize describe it.
	FileIndex int
	FileCount int
	FileName  string
	FileSize  int64
	// FileOffset is the byte offset consumed within the current file.
	FileOffset int64
	// TotalBytes and ProcessedBytes cover the whole batch.
	TotalBytes     int64
	ProcessedBytes int64
	// InsertedDocs, UpdatedDocs and DeletedDocs count applied records
	// since the batch began.
	InsertedDocs uint64
	UpdatedDocs  uint64
	DeletedDocs  uint64
	// Elapsed is the time spent so far; Remaining is the byte-rate based
	// estimate of the time left, zero when no estimate is possible.
	Elapsed   time.Duration
	Remaining time.Duration
}

// progressTracker maintains the mutable progress state of the controller.
// Writes happen from the single batch goroutine; reads may come from
// anywhere.
type progressTracker struct {
	mu  sync.RWMutex
	clk clock.Clock

	running   bool
	startedAt time.Time

	fileIndex  int
	fileCount  int
	fileName   string
	fileSize   int64
	fileOffset int64

	totalBytes     int64
	processedBytes int64

	insertedDocs uint64
	updatedDocs  uint64
	deletedDocs  uint64
}

func newProgressTracker(clk clock.Clock) *progressTracker {
	return &progressTracker{clk: clk}
}

func (p *progressTracker) begin(fileCount int, totalBytes int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	p.running = true
	p.startedAt = p.clk.Now()
	p.fileCount = fileCount
	p.totalBytes = totalBytes
}

func (p *progressTracker) beginFile(index int, name string, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fileIndex = index
	p.fileName = name
	p.fileSize = size
	p.fileOffset = 0
}

func (p *progressTracker) endFile() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processedBytes += p.fileSize - p.fileOffset
	p.fileOffset = p.fileSize
}

// observeOffset advances the byte position within the current file.
func (p *progressTracker) observeOffset(offset int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if offset > p.fileOffset {
		p.processedBytes += offset - p.fileOffset
		p.fileOffset = offset
	}
}

func (p *progressTracker) countInsert() {
	p.mu.Lock()
	p.insertedDocs++
	p.mu.Unlock()
}

func (p *progressTracker) countUpdate() {
	p.mu.Lock()
	p.updatedDocs++
	p.mu.Unlock()
}

func (p *progressTracker) countDelete() {
	p.mu.Lock()
	p.deletedDocs++
	p.mu.Unlock()
}

// end resets the tracker to idle, dropping per-batch state.
func (p *progressTracker) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

// reset zeroes everything but the mutex and clock. Callers hold the lock.
func (p *progressTracker) reset() {
	p.running = false
	p.startedAt = time.Time{}
	p.fileIndex = 0
	p.fileCount = 0
	p.fileName = ""
	p.fileSize = 0
	p.fileOffset = 0
	p.totalBytes = 0
	p.processedBytes = 0
	p.insertedDocs = 0
	p.updatedDocs = 0
	p.deletedDocs = 0
}

func (p *progressTracker) snapshot() Progress {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := Progress{
		Running:        p.running,
		FileIndex:      p.fileIndex,
		FileCount:      p.fileCount,
		FileName:       p.fileName,
		FileSize:       p.fileSize,
		FileOffset:     p.fileOffset,
		TotalBytes:     p.totalBytes,
		ProcessedBytes: p.processedBytes,
		InsertedDocs:   p.insertedDocs,
		UpdatedDocs:    p.updatedDocs,
		DeletedDocs:    p.deletedDocs,
	}
	if !p.running {
		return out
	}
	out.Elapsed = p.clk.Now().Sub(p.startedAt)
	if p.processedBytes > 0 && out.Elapsed > 0 && p.totalBytes > p.processedBytes {
		rate := float64(p.processedBytes) / float64(out.Elapsed)
		out.Remaining = time.Duration(float64(p.totalBytes-p.processedBytes) / rate)
	}
	return out
}
