package changerecord

import (
	"bufio"
	"io"
	"os"
	"strings"

	"Doc_Indexer/schema"

	"golang.org/x/xerrors"
)

// Reader produces the ordered sequence of records contained in one
// change-record file.
type Reader interface {
	// Next advances to the next record. It returns false when the file is
	// exhausted or a read error occurred.
	Next() bool
	// Record returns the current record. The returned value is only valid
	// until the next call to Next.
	Record() *Record
	// Offset returns the byte offset consumed so far, for progress
	// accounting.
	Offset() int64
	// Error returns the last error encountered by the reader.
	Error() error
	// Close releases the underlying file.
	Close() error
}

// OpenFunc opens a Reader for a change-record file. It allows callers to
// plug in alternative on-disk formats.
type OpenFunc func(path string) (Reader, error)

// Open opens path with the built-in line-oriented format: each property is a
// "<Name>value" line, each "<DOCID>" line starts a new record and
// continuation lines are folded into the preceding property value.
func Open(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open change-record file: %w", err)
	}
	return &fileReader{f: f, br: bufio.NewReader(f)}, nil
}

type fileReader struct {
	f   *os.File
	br  *bufio.Reader
	cur Record
	// pending holds a key line that belongs to the next record.
	pending string
	offset  int64
	eof     bool
	lastErr error
}

func (r *fileReader) Next() bool {
	if r.lastErr != nil || r.eof && r.pending == "" {
		return false
	}
	r.cur.Properties = r.cur.Properties[:0]

	if r.pending != "" {
		r.appendLine(r.pending)
		r.pending = ""
	}

	for {
		line, err := r.br.ReadString('\n')
		r.offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			if isKeyLine(line) && len(r.cur.Properties) > 0 {
				r.pending = line
				return true
			}
			r.appendLine(line)
		}
		if err != nil {
			if err != io.EOF {
				r.lastErr = xerrors.Errorf("read change-record file: %w", err)
			}
			r.eof = true
			return len(r.cur.Properties) > 0 && r.lastErr == nil
		}
	}
}

func (r *fileReader) appendLine(line string) {
	if name, value, ok := splitPropertyLine(line); ok {
		r.cur.Properties = append(r.cur.Properties, Property{Name: name, Value: value})
		return
	}
	// Continuation of a multi-line value.
	if n := len(r.cur.Properties); n > 0 {
		r.cur.Properties[n-1].Value += "\n" + line
	}
}

func (r *fileReader) Record() *Record { return &r.cur }

func (r *fileReader) Offset() int64 { return r.offset }

func (r *fileReader) Error() error { return r.lastErr }

func (r *fileReader) Close() error { return r.f.Close() }

func isKeyLine(line string) bool {
	name, _, ok := splitPropertyLine(line)
	return ok && schema.IsKey(name)
}

func splitPropertyLine(line string) (name, value string, ok bool) {
	if len(line) < 2 || line[0] != '<' {
		return "", "", false
	}
	end := strings.IndexByte(line, '>')
	if end <= 1 {
		return "", "", false
	}
	return line[1:end], line[end+1:], true
}
