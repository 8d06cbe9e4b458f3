package rotation

import (
	"bufio"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// BackupDirName is the subdirectory of the active ingestion directory that
// processed change-record files are moved into.
const BackupDirName = "backup"

// processedLogName is the recovery log kept inside a generation directory:
// one fully applied change-record file name per line, append-only.
const processedLogName = "processed.log"

// Generation is one rotation slot of the on-disk index data being built or
// served, identified by its directory.
type Generation struct {
	dir string
}

// NewGeneration wraps the generation rooted at dir.
func NewGeneration(dir string) *Generation {
	return &Generation{dir: dir}
}

// Dir returns the generation's directory path.
func (g *Generation) Dir() string { return g.dir }

// Name returns the generation's identifying directory name.
func (g *Generation) Name() string { return filepath.Base(g.dir) }

// LogPath returns the location of the generation's recovery log.
func (g *Generation) LogPath() string { return filepath.Join(g.dir, processedLogName) }

// AppendProcessed appends the name of a fully applied change-record file to
// the recovery log.
func (g *Generation) AppendProcessed(fileName string) error {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return xerrors.Errorf("append to recovery log: %w", err)
	}
	f, err := os.OpenFile(g.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Errorf("append to recovery log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(fileName + "\n"); err != nil {
		return xerrors.Errorf("append to recovery log: %w", err)
	}
	return nil
}

// ProcessedFiles reads the recovery log in full. A missing log yields an
// empty set.
func (g *Generation) ProcessedFiles() (map[string]bool, error) {
	f, err := os.Open(g.LogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, xerrors.Errorf("read recovery log: %w", err)
	}
	defer f.Close()

	processed := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if name := sc.Text(); name != "" {
			processed[name] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Errorf("read recovery log: %w", err)
	}
	return processed, nil
}
