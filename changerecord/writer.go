package changerecord

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	"github.com/juju/clock"
	"golang.org/x/xerrors"
)

// DefaultFlushLimit is the number of buffered records after which a Writer
// flushes to disk.
const DefaultFlushLimit = 500

// Writer journals change records into a properly named change-record file so
// that out-of-band document operations can be replayed by a later batch.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	bw      *bufio.Writer
	name    string
	pending int
	limit   int
}

var writerSeq struct {
	mu  sync.Mutex
	seq int
}

// NewWriter creates a change-record file for the given operation kind inside
// dir. The file name encodes clk.Now() and a process-wide sequence number.
// The sequence restarts at zero with the process, so a name may already be
// taken by a journal from a previous run; such slots are skipped rather than
// appended to.
func NewWriter(dir string, kind OpKind, clk clock.Clock) (*Writer, error) {
	now := clk.Now()
	// The file name carries the sequence modulo 100, so 100 attempts cover
	// every slot for this timestamp.
	for attempt := 0; attempt < 100; attempt++ {
		writerSeq.mu.Lock()
		seq := writerSeq.seq
		writerSeq.seq++
		writerSeq.mu.Unlock()

		name := FormatFileName(seq, now, kind)
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return nil, xerrors.Errorf("create change-record file: %w", err)
		}
		return &Writer{f: f, bw: bufio.NewWriter(f), name: name, limit: DefaultFlushLimit}, nil
	}
	return nil, xerrors.Errorf("create change-record file: no free sequence slot in %s", dir)
}

// Name returns the base name of the file being written.
func (w *Writer) Name() string { return w.name }

// SetFlushLimit overrides the record count after which writes are flushed.
func (w *Writer) SetFlushLimit(limit int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if limit > 0 {
		w.limit = limit
	}
}

// Write appends one record to the file.
func (w *Writer) Write(rec *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range rec.Properties {
		if _, err := w.bw.WriteString("<" + p.Name + ">" + p.Value + "\n"); err != nil {
			return xerrors.Errorf("write change record: %w", err)
		}
	}
	w.pending++
	if w.pending >= w.limit {
		w.pending = 0
		if err := w.bw.Flush(); err != nil {
			return xerrors.Errorf("flush change records: %w", err)
		}
	}
	return nil
}

// Flush forces buffered records to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.bw.Flush(); err != nil {
		return xerrors.Errorf("flush change records: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.bw.Flush(); err != nil {
		_ = w.f.Close()
		return xerrors.Errorf("flush change records: %w", err)
	}
	return w.f.Close()
}
