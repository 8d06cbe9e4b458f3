package ingestor

import (
	"context"
	"io/ioutil"
	"sync"
	"time"

	"Doc_Indexer/changerecord"
	"Doc_Indexer/ingest"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// IngestAPI defines the set of API methods for driving ingestion batches and
// single-record operations.
type IngestAPI interface {
	RunBatch(ctx context.Context, dir string) (ingest.Summary, error)
	ApplyRecord(kind changerecord.OpKind, rec *changerecord.Record) error
}

// EngineAPI defines the set of API methods for querying the index engine.
type EngineAPI interface {
	NumDocs() (uint64, error)
}

// MinerAPI defines the set of API methods for triggering incremental mining
// passes over the indexed collection.
type MinerAPI interface {
	Mine(ctx context.Context) error
}

// Config encapsulates the settings for configuring the ingestion service.
type Config struct {
	// An API for running ingestion batches and applying single records.
	IngestAPI IngestAPI
	// An API for querying the index engine.
	EngineAPI EngineAPI
	// An optional API for incremental mining; nil disables the trigger.
	MinerAPI MinerAPI
	// WorkDir is the active ingestion directory scanned every pass.
	WorkDir string
	// JournalDir receives the change-record files journaling
	// single-document operations. It must be distinct from WorkDir so
	// journaled records are not applied a second time by a batch.
	JournalDir string
	// The time between subsequent ingestion passes.
	UpdateInterval time.Duration
	// MiningDocInterval triggers a mining pass whenever the document
	// count is a multiple of it. Zero disables the trigger.
	MiningDocInterval uint64
	// A clock instance for generating time-related events. Default
	// wall-clock will be used.
	Clock clock.Clock
	// The logger to use. If not specified, a no-op logger is used instead.
	Logger *logrus.Entry
}

func (cfg *Config) Validate() error {
	var err error
	if cfg.IngestAPI == nil {
		err = multierror.Append(err, xerrors.Errorf("ingest API has not been provided"))
	}
	if cfg.EngineAPI == nil {
		err = multierror.Append(err, xerrors.Errorf("engine API has not been provided"))
	}
	if cfg.WorkDir == "" {
		err = multierror.Append(err, xerrors.Errorf("work directory has not been provided"))
	}
	if cfg.JournalDir == "" || cfg.JournalDir == cfg.WorkDir {
		err = multierror.Append(err, xerrors.Errorf("journal directory must be provided and distinct from the work directory"))
	}
	if cfg.UpdateInterval == 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for update interval"))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Service implements the periodic ingestion component of the indexing
// application. Besides driving batches it exposes single-document
// create/update/delete operations that are journaled to change-record files
// before being applied.
type Service struct {
	cfg Config

	mu      sync.Mutex
	writers map[changerecord.OpKind]*changerecord.Writer
}

// NewService creates a new ingestion service instance with the specified
// config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("ingestor service: config validation failed: %w", err)
	}
	return &Service{
		cfg:     cfg,
		writers: make(map[changerecord.OpKind]*changerecord.Writer),
	}, nil
}

// Name implements service.Service.
func (svc *Service) Name() string { return "ingestor" }

// Run implements service.Service.
func (svc *Service) Run(ctx context.Context) error {
	svc.cfg.Logger.WithField("update_interval", svc.cfg.UpdateInterval.String()).Info("starting service")
	defer svc.cfg.Logger.Info("stopped service")
	defer svc.closeWriters()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-svc.cfg.Clock.After(svc.cfg.UpdateInterval):
			sum, err := svc.cfg.IngestAPI.RunBatch(ctx, svc.cfg.WorkDir)
			if err != nil {
				if xerrors.Is(err, ingest.ErrNoChangeFiles) {
					continue
				}
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			svc.cfg.Logger.WithFields(logrus.Fields{
				"records_applied": sum.RecordsApplied,
				"records_failed":  sum.RecordsFailed,
				"files_processed": sum.FilesProcessed,
			}).Info("completed ingestion pass")
			svc.maybeMine(ctx)
		}
	}
}

// CreateDocument journals and applies a single insert record.
func (svc *Service) CreateDocument(rec *changerecord.Record) error {
	return svc.apply(changerecord.OpInsert, rec)
}

// UpdateDocument journals and applies a single update record.
func (svc *Service) UpdateDocument(rec *changerecord.Record) error {
	return svc.apply(changerecord.OpUpdate, rec)
}

// RemoveDocument journals and applies a single delete record.
func (svc *Service) RemoveDocument(rec *changerecord.Record) error {
	return svc.apply(changerecord.OpDelete, rec)
}

func (svc *Service) apply(kind changerecord.OpKind, rec *changerecord.Record) error {
	if err := svc.journal(kind, rec); err != nil {
		return err
	}
	if err := svc.cfg.IngestAPI.ApplyRecord(kind, rec); err != nil {
		return xerrors.Errorf("%s document: %w", kind, err)
	}
	return nil
}

// journal appends the record to the per-kind change-record file so the
// operation can be audited and replayed.
func (svc *Service) journal(kind changerecord.OpKind, rec *changerecord.Record) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	w, ok := svc.writers[kind]
	if !ok {
		var err error
		if w, err = changerecord.NewWriter(svc.cfg.JournalDir, kind, svc.cfg.Clock); err != nil {
			return xerrors.Errorf("%s document: %w", kind, err)
		}
		svc.writers[kind] = w
	}
	if err := w.Write(rec); err != nil {
		return xerrors.Errorf("%s document: %w", kind, err)
	}
	return nil
}

func (svc *Service) closeWriters() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for kind, w := range svc.writers {
		if err := w.Close(); err != nil {
			svc.cfg.Logger.WithField("kind", kind.String()).WithError(err).Warn("unable to close journal file")
		}
		delete(svc.writers, kind)
	}
}

// maybeMine fires the incremental mining hook when the document count
// crosses a configured multiple.
func (svc *Service) maybeMine(ctx context.Context) {
	if svc.cfg.MinerAPI == nil || svc.cfg.MiningDocInterval == 0 {
		return
	}
	numDocs, err := svc.cfg.EngineAPI.NumDocs()
	if err != nil {
		svc.cfg.Logger.WithError(err).Warn("unable to query document count")
		return
	}
	if numDocs == 0 || numDocs%svc.cfg.MiningDocInterval != 0 {
		return
	}
	svc.cfg.Logger.WithField("num_docs", numDocs).Info("triggering incremental mining pass")
	if err := svc.cfg.MinerAPI.Mine(ctx); err != nil {
		svc.cfg.Logger.WithError(err).Warn("incremental mining pass failed")
	}
}
