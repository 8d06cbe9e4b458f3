package ingest

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"Doc_Indexer/changerecord"
	"Doc_Indexer/docstore"
	"Doc_Indexer/rotation"
	"Doc_Indexer/schema"
	"Doc_Indexer/transform"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Record counts between progress log lines. Bulk inserts are chatty enough
// that they report an order of magnitude less often than updates, deletes
// and rebuilds.
const (
	progressInterval       = 1000
	insertProgressInterval = 10000
)

func progressIntervalFor(kind changerecord.OpKind) uint64 {
	if kind == changerecord.OpInsert {
		return insertProgressInterval
	}
	return progressInterval
}

var (
	// ErrNoChangeFiles is returned when the working directory holds no
	// valid change-record files.
	ErrNoChangeFiles = xerrors.New("no change-record files to process")

	// ErrBatchInProgress is returned when a batch is started while
	// another one is running.
	ErrBatchInProgress = xerrors.New("an ingestion batch is already in progress")
)

// Summary reports the outcome of a batch.
type Summary struct {
	RecordsApplied uint64
	RecordsFailed  uint64
	FilesProcessed int
}

// ControllerConfig encapsulates the settings for configuring the batch
// ingestion controller.
type ControllerConfig struct {
	// The orchestrator applying individual records.
	Orchestrator *Orchestrator
	// An optional rotator driving snapshot and recovery of the index
	// generation. When nil, batches run without rotation support.
	Rotator *rotation.Rotator
	// OpenFile opens a change-record file for reading. Defaults to the
	// built-in line-oriented format.
	OpenFile changerecord.OpenFunc
	// SourceProperty, when set, names the property whose values are
	// tallied per file (records applied per source).
	SourceProperty string
	// A clock instance for progress accounting. Default wall-clock will
	// be used.
	Clock clock.Clock
	// The logger to use. If not specified, a no-op logger is used instead.
	Logger *logrus.Entry
}

func (cfg *ControllerConfig) Validate() error {
	var err error
	if cfg.Orchestrator == nil {
		err = multierror.Append(err, xerrors.Errorf("orchestrator has not been provided"))
	}
	if cfg.OpenFile == nil {
		cfg.OpenFile = changerecord.Open
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Controller drives whole ingestion batches: it scans and orders the
// change-record files of a working directory, applies them record by record
// through the orchestrator, moves processed files to the backup area and
// appends them to the recovery log. At most one batch runs at a time.
type Controller struct {
	cfg      ControllerConfig
	runMu    sync.Mutex
	progress *progressTracker
}

// NewController creates a new batch ingestion controller instance with the
// specified config.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("ingestion controller: config validation failed: %w", err)
	}
	return &Controller{cfg: cfg, progress: newProgressTracker(cfg.Clock)}, nil
}

// Progress returns a consistent snapshot of the running batch's progress. It
// is safe to call concurrently with RunBatch.
func (c *Controller) Progress() Progress {
	return c.progress.snapshot()
}

// RunBatch ingests every change-record file found in dir. Individual record
// failures are logged and skipped; only a missing directory or an empty file
// set fail the batch as a whole. Cancellation is honored between records and
// between files.
func (c *Controller) RunBatch(ctx context.Context, dir string) (Summary, error) {
	if !c.runMu.TryLock() {
		return Summary{}, xerrors.Errorf("run batch: %w", ErrBatchInProgress)
	}
	defer c.runMu.Unlock()

	logger := c.cfg.Logger.WithField("batch_id", uuid.New().String())

	if c.cfg.Rotator != nil {
		if err := c.cfg.Rotator.Recover(dir); err != nil {
			return Summary{}, xerrors.Errorf("run batch: %w", err)
		}
	}

	files, err := changerecord.ScanDir(dir, logger)
	if err != nil {
		return Summary{}, xerrors.Errorf("run batch: %w", err)
	}
	if len(files) == 0 {
		return Summary{}, xerrors.Errorf("run batch: %w", ErrNoChangeFiles)
	}

	var totalBytes int64
	for _, f := range files {
		totalBytes += f.Size
	}
	c.progress.begin(len(files), totalBytes)
	defer c.progress.end()

	logger.WithFields(logrus.Fields{
		"file_count":  len(files),
		"total_bytes": totalBytes,
	}).Info("starting ingestion batch")

	var sum Summary
	var bytesThisRun int64
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return sum, xerrors.Errorf("run batch: %w", err)
		}
		c.progress.beginFile(i, f.Name, f.Size)

		applied, failed, err := c.processFile(ctx, f, logger)
		sum.RecordsApplied += applied
		sum.RecordsFailed += failed
		if err != nil {
			if ctx.Err() != nil {
				return sum, xerrors.Errorf("run batch: %w", ctx.Err())
			}
			// File-scoped failure: the file stays in place for the
			// next run.
			logger.WithField("file", f.Name).WithError(err).Error("aborting change-record file")
			sum.RecordsFailed++
			continue
		}

		c.progress.endFile()
		c.finalizeFile(dir, f, logger)
		sum.FilesProcessed++
		bytesThisRun += f.Size
	}

	if c.cfg.Rotator != nil && c.cfg.Rotator.RequiresSnapshot(bytesThisRun) {
		if err := c.cfg.Rotator.Snapshot(); err != nil {
			// Fatal for this snapshot attempt only.
			logger.WithError(err).Error("generation snapshot failed")
		}
	}

	logger.WithFields(logrus.Fields{
		"records_applied": sum.RecordsApplied,
		"records_failed":  sum.RecordsFailed,
		"files_processed": sum.FilesProcessed,
	}).Info("completed ingestion batch")
	return sum, nil
}

// ApplyRecord applies a single out-of-band change record. It shares the
// batch mutual exclusion so journaled single-document operations never
// interleave with a running batch.
func (c *Controller) ApplyRecord(kind changerecord.OpKind, rec *changerecord.Record) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	arena := transform.NewTermArena(c.cfg.Orchestrator.cfg.Schema.NumProperties())
	now := c.cfg.Clock.Now()
	switch kind {
	case changerecord.OpInsert:
		_, err := c.cfg.Orchestrator.Insert(rec, now, arena)
		return err
	case changerecord.OpUpdate:
		_, err := c.cfg.Orchestrator.Update(rec, now, arena)
		return err
	case changerecord.OpDelete:
		_, err := c.cfg.Orchestrator.Delete(rec)
		return err
	default:
		return xerrors.Errorf("apply record: unknown operation kind %d", kind)
	}
}

// Rebuild re-ingests every live document of src under freshly allocated ids.
// The controller's own collaborators must belong to the new, empty
// generation.
func (c *Controller) Rebuild(ctx context.Context, src DocumentSource) (Summary, error) {
	if !c.runMu.TryLock() {
		return Summary{}, xerrors.Errorf("rebuild: %w", ErrBatchInProgress)
	}
	defer c.runMu.Unlock()

	it, err := src.Documents()
	if err != nil {
		return Summary{}, xerrors.Errorf("rebuild: %w", err)
	}
	defer func() { _ = it.Close() }()

	logger := c.cfg.Logger.WithField("batch_id", uuid.New().String())
	logger.Info("starting collection rebuild")

	arena := transform.NewTermArena(c.cfg.Orchestrator.cfg.Schema.NumProperties())
	var sum Summary
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return sum, xerrors.Errorf("rebuild: %w", err)
		}
		doc := it.Document()
		rec := new(changerecord.Record)
		for name, value := range doc.Properties {
			rec.Set(name, value)
		}
		if _, err := c.cfg.Orchestrator.Insert(rec, c.cfg.Clock.Now(), arena); err != nil {
			logger.WithField("doc_id", doc.ID).WithError(err).Warn("skipping document during rebuild")
			sum.RecordsFailed++
			continue
		}
		sum.RecordsApplied++
		if sum.RecordsApplied%progressInterval == 0 {
			logger.WithField("records_applied", sum.RecordsApplied).Info("rebuild progress")
		}
	}
	if err := it.Error(); err != nil {
		return sum, xerrors.Errorf("rebuild: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"records_applied": sum.RecordsApplied,
		"records_failed":  sum.RecordsFailed,
	}).Info("completed collection rebuild")
	return sum, nil
}

// DocumentSource enumerates the live documents of an existing store for
// Rebuild.
type DocumentSource interface {
	Documents() (docstore.Iterator, error)
}

// processFile applies one change-record file. The returned error aborts the
// file, not the batch.
func (c *Controller) processFile(ctx context.Context, f changerecord.File, logger *logrus.Entry) (applied, failed uint64, err error) {
	logger = logger.WithFields(logrus.Fields{
		"file": f.Name,
		"kind": f.Kind.String(),
	})

	if f.Kind == changerecord.OpDelete {
		maxID, err := c.cfg.Orchestrator.cfg.Store.MaxID()
		if err != nil {
			return 0, 0, err
		}
		if maxID == 0 {
			return 0, 0, xerrors.Errorf("delete file against an empty collection")
		}
		return c.processDeleteFile(ctx, f, logger)
	}

	r, err := c.cfg.OpenFile(f.Path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = r.Close() }()

	arena := transform.NewTermArena(c.cfg.Orchestrator.cfg.Schema.NumProperties())
	sources := make(map[string]uint64)
	interval := progressIntervalFor(f.Kind)
	var count uint64
	for r.Next() {
		if cerr := ctx.Err(); cerr != nil {
			return applied, failed, cerr
		}
		rec := r.Record()

		var recErr error
		switch f.Kind {
		case changerecord.OpInsert:
			_, recErr = c.cfg.Orchestrator.Insert(rec, f.Timestamp, arena)
			if recErr == nil {
				c.progress.countInsert()
			}
		case changerecord.OpUpdate:
			_, recErr = c.cfg.Orchestrator.Update(rec, f.Timestamp, arena)
			if recErr == nil {
				c.progress.countUpdate()
			}
		}
		if recErr != nil {
			failed++
			logger.WithError(recErr).Warn("skipping change record")
		} else {
			applied++
			c.countSource(rec, sources)
		}

		c.progress.observeOffset(r.Offset())
		count++
		if count%interval == 0 {
			c.logProgress(logger)
		}
	}
	if err := r.Error(); err != nil {
		return applied, failed, err
	}

	c.logSources(logger, sources)
	return applied, failed, nil
}

// processDeleteFile collects and resolves every key in the file, then
// removes the documents in ascending id order.
func (c *Controller) processDeleteFile(ctx context.Context, f changerecord.File, logger *logrus.Entry) (applied, failed uint64, err error) {
	r, err := c.cfg.OpenFile(f.Path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = r.Close() }()

	var ids []uint64
	for r.Next() {
		key, ok := r.Record().Get(schema.KeyPropertyName)
		if !ok || key == "" {
			failed++
			logger.Warn("skipping delete record without a document key")
			continue
		}
		id, ok := c.cfg.Orchestrator.ResolveKey(key)
		if !ok {
			failed++
			logger.WithField("key", key).Warn("skipping delete of unknown document key")
			continue
		}
		ids = append(ids, id)
		c.progress.observeOffset(r.Offset())
	}
	if err := r.Error(); err != nil {
		return 0, failed, err
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		if cerr := ctx.Err(); cerr != nil {
			return applied, failed, cerr
		}
		if derr := c.cfg.Orchestrator.DeleteByID(id); derr != nil {
			failed++
			logger.WithField("doc_id", id).WithError(derr).Warn("skipping delete record")
			continue
		}
		applied++
		c.progress.countDelete()
		if uint64(i+1)%progressInterval == 0 {
			c.logProgress(logger)
		}
	}
	return applied, failed, nil
}

// finalizeFile moves a fully processed file into the backup area and
// appends it to the recovery log. A failed move is logged only.
func (c *Controller) finalizeFile(dir string, f changerecord.File, logger *logrus.Entry) {
	backupDir := filepath.Join(dir, rotation.BackupDirName)
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		logger.WithField("file", f.Name).WithError(err).Error("unable to create backup area")
		return
	}
	if err := os.Rename(f.Path, filepath.Join(backupDir, f.Name)); err != nil {
		logger.WithField("file", f.Name).WithError(err).Error("unable to move processed file to backup area")
		return
	}
	if c.cfg.Rotator != nil {
		if err := c.cfg.Rotator.MarkProcessed(f.Name); err != nil {
			logger.WithField("file", f.Name).WithError(err).Error("unable to append to recovery log")
		}
	}
}

func (c *Controller) countSource(rec *changerecord.Record, sources map[string]uint64) {
	if c.cfg.SourceProperty == "" {
		return
	}
	if v, ok := rec.Get(c.cfg.SourceProperty); ok && v != "" {
		sources[v]++
	}
}

func (c *Controller) logSources(logger *logrus.Entry, sources map[string]uint64) {
	if c.cfg.SourceProperty == "" || len(sources) == 0 {
		return
	}
	fields := make(logrus.Fields, len(sources))
	for source, n := range sources {
		fields[source] = n
	}
	logger.WithFields(fields).Info("records applied per source")
}

func (c *Controller) logProgress(logger *logrus.Entry) {
	p := c.progress.snapshot()
	logger.WithFields(logrus.Fields{
		"file_index":      p.FileIndex,
		"file_count":      p.FileCount,
		"processed_bytes": p.ProcessedBytes,
		"total_bytes":     p.TotalBytes,
		"elapsed":         p.Elapsed.String(),
		"remaining":       p.Remaining.String(),
	}).Info("ingestion progress")
}
