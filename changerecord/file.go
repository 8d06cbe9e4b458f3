package changerecord

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Change-record files are named B-<seq>-<YYYYMMDDhhmm>-<ssuuu>-<K>-C.rec
// where K is the operation code (I, U or D). The embedded timestamp doubles
// as the default record timestamp for documents without a DATE property and
// makes the lexical file order the chronological one.
var fileNameRe = regexp.MustCompile(`^B-(\d{2})-(\d{12})-(\d{2})(\d{3})-([IUD])-C\.rec$`)

// ErrBadFileName is returned for files that do not follow the change-record
// naming convention.
var ErrBadFileName = xerrors.New("not a change-record file name")

// ErrNoDirectory is returned when the working directory does not exist or is
// not a directory.
var ErrNoDirectory = xerrors.New("change-record directory does not exist")

// File identifies one change-record file selected for ingestion.
type File struct {
	// Path is the absolute or caller-relative location of the file.
	Path string
	// Name is the base file name.
	Name string
	// Kind is the operation declared by the file name.
	Kind OpKind
	// Size is the file size in bytes.
	Size int64
	// Timestamp is the creation time encoded in the file name.
	Timestamp time.Time
}

// ParseFileName validates name against the change-record convention and
// extracts the declared operation kind and embedded timestamp.
func ParseFileName(name string) (kind OpKind, ts time.Time, err error) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, time.Time{}, xerrors.Errorf("parse file name %q: %w", name, ErrBadFileName)
	}
	switch m[5][0] {
	case 'I':
		kind = OpInsert
	case 'U':
		kind = OpUpdate
	case 'D':
		kind = OpDelete
	}
	ts, err = time.Parse("20060102150405", m[2]+m[3])
	if err != nil {
		return 0, time.Time{}, xerrors.Errorf("parse file name %q: %w", name, ErrBadFileName)
	}
	millis, _ := time.ParseDuration(m[4] + "ms")
	return kind, ts.Add(millis), nil
}

// FormatFileName renders a change-record file name for the given sequence
// number, creation time and operation kind.
func FormatFileName(seq int, at time.Time, kind OpKind) string {
	return "B-" +
		padInt(seq%100, 2) + "-" +
		at.Format("200601021504") + "-" +
		padInt(at.Second(), 2) + padInt(at.Nanosecond()/1e6, 3) + "-" +
		string(kind.Code()) + "-C.rec"
}

func padInt(v, width int) string {
	digits := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits)
}

// ScanDir enumerates the change-record files in dir in their deterministic
// processing order. Files with invalid names are skipped with a warning.
// A missing directory is reported as ErrNoDirectory so callers can abort
// the batch before touching any record.
func ScanDir(dir string, logger *logrus.Entry) ([]File, error) {
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return nil, xerrors.Errorf("scan %q: %w", dir, ErrNoDirectory)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, xerrors.Errorf("scan %q: %w", dir, err)
	}

	var files []File
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		kind, ts, err := ParseFileName(entry.Name())
		if err != nil {
			logger.WithField("file", entry.Name()).Warn("skipping file with invalid change-record name")
			continue
		}
		info, err := entry.Info()
		if err != nil {
			logger.WithField("file", entry.Name()).WithError(err).Warn("skipping unreadable file")
			continue
		}
		files = append(files, File{
			Path:      filepath.Join(dir, entry.Name()),
			Name:      entry.Name(),
			Kind:      kind,
			Size:      info.Size(),
			Timestamp: ts,
		})
	}

	// The encoded timestamp makes the lexical order chronological; a
	// stable sort keeps the enumeration order for (unexpected) ties.
	sort.SliceStable(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
