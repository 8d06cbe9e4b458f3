package rotation

import (
	"io"
	"io/fs"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// DefaultSnapshotThreshold is the number of processed bytes after which a
// generation snapshot is taken.
const DefaultSnapshotThreshold = 200 << 20

// Rotator manages the current and next index generation slots: it decides
// when the current generation must be snapshotted into the next slot and
// repairs the working directory after an interrupted ingestion run.
type Rotator struct {
	mu          sync.Mutex
	current     *Generation
	next        *Generation
	threshold   int64
	accumulated int64
	logger      *logrus.Entry
}

// NewRotator creates a Rotator over the given generation directories.
// nextDir may equal currentDir, in which case snapshots and recovery are
// disabled. A threshold <= 0 selects DefaultSnapshotThreshold.
func NewRotator(currentDir, nextDir string, threshold int64, logger *logrus.Entry) *Rotator {
	if threshold <= 0 {
		threshold = DefaultSnapshotThreshold
	}
	if logger == nil {
		logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return &Rotator{
		current:   NewGeneration(currentDir),
		next:      NewGeneration(nextDir),
		threshold: threshold,
		logger:    logger,
	}
}

// Current returns the generation currently being built.
func (r *Rotator) Current() *Generation { return r.current }

// MarkProcessed records a fully applied change-record file in the current
// generation's recovery log.
func (r *Rotator) MarkProcessed(fileName string) error {
	return r.current.AppendProcessed(fileName)
}

// RequiresSnapshot accumulates the bytes processed by a run and reports
// whether the policy threshold has been crossed. A snapshot is only required
// when a distinct next-generation slot exists.
func (r *Rotator) RequiresSnapshot(bytesThisRun int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accumulated += bytesThisRun
	if !r.hasDistinctNext() {
		return false
	}
	return r.accumulated > r.threshold
}

// Snapshot copies the current generation into the next slot and resets the
// accumulated byte count. Copy failures are not retried; the caller must
// treat them as fatal for this snapshot attempt only.
func (r *Rotator) Snapshot() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasDistinctNext() {
		return nil
	}
	r.logger.WithFields(logrus.Fields{
		"from": r.current.Name(),
		"to":   r.next.Name(),
	}).Info("snapshotting index generation")

	if err := copyDir(r.current.Dir(), r.next.Dir()); err != nil {
		return xerrors.Errorf("snapshot generation: %w", err)
	}
	r.accumulated = 0
	return nil
}

// Recover reconciles an interrupted ingestion run: every file sitting in the
// backup area of activeDir that the current generation's recovery log does
// not list was moved aside without being reflected in the on-disk index, so
// it is restored into activeDir for reprocessing. Running recovery twice is
// harmless.
func (r *Rotator) Recover(activeDir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasDistinctNext() {
		return nil
	}
	processed, err := r.current.ProcessedFiles()
	if err != nil {
		return xerrors.Errorf("recover interrupted batch: %w", err)
	}

	// A missing or empty recovery log means nothing was applied to this
	// generation yet, so every backed-up file must come back.
	backupDir := filepath.Join(activeDir, BackupDirName)
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("recover interrupted batch: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() || processed[entry.Name()] {
			continue
		}
		src := filepath.Join(backupDir, entry.Name())
		dst := filepath.Join(activeDir, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			r.logger.WithField("file", entry.Name()).WithError(err).Warn("unable to restore backed-up change-record file")
			continue
		}
		r.logger.WithField("file", entry.Name()).Info("restored change-record file for reprocessing")
	}
	return nil
}

func (r *Rotator) hasDistinctNext() bool {
	return r.next != nil && r.current.Name() != r.next.Name()
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
