package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/denialdesk/reclaim/internal/audit"
	"github.com/denialdesk/reclaim/internal/core/config"
	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/health"
	redisclient "github.com/denialdesk/reclaim/internal/infra/redis"
	"github.com/denialdesk/reclaim/internal/infra/storage"
	"github.com/denialdesk/reclaim/internal/infra/storage/memory"
	"github.com/denialdesk/reclaim/internal/infra/storage/postgres"
	"github.com/denialdesk/reclaim/internal/infra/submit"
	"github.com/denialdesk/reclaim/internal/pipeline/classify"
	"github.com/denialdesk/reclaim/internal/pipeline/correct"
	"github.com/denialdesk/reclaim/internal/pipeline/normalize"
	"github.com/denialdesk/reclaim/internal/pipeline/scheduler"
	"github.com/denialdesk/reclaim/internal/pipeline/sla"
	"github.com/denialdesk/reclaim/internal/readmodel"
)

// App is the assembled recovery pipeline: storage, queues, worker pools,
// SLA tracker, and the operator HTTP server.
type App struct {
	cfg config.AppConfig

	db          *postgres.DB
	redisClient *redisclient.Client

	normalizer *normalize.Normalizer
	sched      *scheduler.Scheduler
	tracker    *sla.Tracker
	reads      *readmodel.Service
	auditLog   *audit.Log
	submitter  submit.Submitter

	healthServer *health.Server

	log *slog.Logger
}

// New wires up the application from configuration. Database and Redis are
// both optional: with no database URL the pipeline runs on in-memory
// storage, and with no Redis URL the queues are process-local heaps.
func New(ctx context.Context, cfg config.AppConfig) (*App, error) {
	// 1. Storage
	var (
		records     storage.RejectionRepository
		attempts    storage.AttemptRepository
		transitions storage.TransitionRepository
		db          *postgres.DB
		pinger      health.StoragePinger
	)

	if cfg.Database.URL != "" {
		var err error
		// The database often comes up after us in compose setups; wait for it.
		err = retry.Do(ctx, retry.WithMaxRetries(5, retry.NewExponential(time.Second)), func(ctx context.Context) error {
			var dbErr error
			db, dbErr = postgres.NewDB(ctx, cfg.Database)
			if dbErr != nil {
				slog.Warn("Database not ready, retrying", "error", dbErr)
				return retry.RetryableError(dbErr)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		records = postgres.NewRejectionRepo(db)
		attempts = postgres.NewAttemptRepo(db)
		transitions = postgres.NewTransitionRepo(db)
		pinger = db
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		records = memory.NewRejectionRepo(store)
		attempts = memory.NewAttemptRepo(store)
		transitions = memory.NewTransitionRepo(store)
		slog.Info("Using memory storage")
	}

	auditLog := audit.NewLog(transitions)

	// 2. Rule tables
	rules, err := classify.LoadRules(cfg.Rules.ClassificationPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load classification rules: %w", err)
	}
	strategies, err := correct.LoadStrategies(cfg.Rules.StrategyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load correction strategies: %w", err)
	}

	// 3. Queues: Redis if configured, process-local heaps otherwise
	var redisClient *redisclient.Client
	var dedupe scheduler.DedupeCache
	queues := make(map[string]scheduler.Queue)

	if cfg.Redis.URL != "" {
		err := retry.Do(ctx, retry.WithMaxRetries(5, retry.NewExponential(time.Second)), func(ctx context.Context) error {
			var rErr error
			redisClient, rErr = redisclient.NewClient(cfg.Redis)
			if rErr != nil {
				slog.Warn("Redis not ready, retrying", "error", rErr)
				return retry.RetryableError(rErr)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		for _, qc := range cfg.Pipeline.QueueClasses {
			queues[qc.Name] = scheduler.NewRedisQueue(redisClient, qc.Name)
		}
		dedupe = redisClient
		slog.Info("Using Redis queues")
	} else {
		for _, qc := range cfg.Pipeline.QueueClasses {
			queues[qc.Name] = scheduler.NewMemoryQueue()
		}
		slog.Info("Using memory queues")
	}

	// 4. Submitter
	submitter, err := newSubmitter(ctx, cfg.Submission)
	if err != nil {
		return nil, err
	}

	// 5. Scheduler
	sched := scheduler.New(cfg.Pipeline, scheduler.Deps{
		Records:    records,
		Attempts:   attempts,
		AuditLog:   auditLog,
		Classifier: classify.New(rules),
		Engine:     correct.NewEngine(strategies, cfg.Pipeline.ConfidenceThreshold),
		Submitter:  submitter,
		Queues:     queues,
		Dedupe:     dedupe,
	})

	// 6. SLA tracker; escalations are logged and counted, paging is wired
	// at the sink.
	tracker := sla.NewTracker(cfg.Pipeline.SLABands, records, nil, time.Minute)

	// 7. Read model + health server
	normalizer := normalize.New(cfg.Pipeline.DefaultSLAWindow)
	ingest := func(ctx context.Context, rows []domain.RawRow) normalize.Result {
		res := normalizer.Normalize(rows)
		sched.Admit(ctx, res.Records)
		return res
	}
	reads := readmodel.New(records, attempts, auditLog, cfg.Pipeline.SLABands)
	monitor := health.NewMonitor(records, queues, cfg.Pipeline.QueueClasses, pinger)
	healthServer := health.NewServer(monitor, reads, sched, ingest, cfg.Server.Port)

	return &App{
		cfg:          cfg,
		db:           db,
		redisClient:  redisClient,
		normalizer:   normalizer,
		sched:        sched,
		tracker:      tracker,
		reads:        reads,
		auditLog:     auditLog,
		submitter:    submitter,
		healthServer: healthServer,
		log:          slog.Default(),
	}, nil
}

func newSubmitter(ctx context.Context, cfg config.SubmissionConfig) (submit.Submitter, error) {
	switch cfg.Transport {
	case "grpc":
		return submit.NewGRPCSubmitter(ctx, cfg.URL, nil, cfg.SoftTimeout, cfg.HardTimeout)
	case "http", "":
		return submit.NewHTTPSubmitter(cfg.URL, cfg.SoftTimeout, cfg.HardTimeout), nil
	default:
		return nil, fmt.Errorf("unknown submission transport %q", cfg.Transport)
	}
}

// Start launches the background components and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	if err := a.sched.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover queue state: %w", err)
	}

	a.sched.Start(ctx)
	a.tracker.Start(ctx)

	a.log.Info("Pipeline started", "port", a.cfg.Server.Port)
	return nil
}

// Stop shuts the application down in dependency order: stop intake, drain
// workers, then close infrastructure.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping pipeline...")

	a.tracker.Stop()
	a.sched.Stop()

	if err := a.healthServer.Stop(ctx); err != nil {
		a.log.Warn("Failed to stop health server", "error", err)
	}
	if err := a.submitter.Close(); err != nil {
		a.log.Warn("Failed to close submitter", "error", err)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	a.log.Info("Pipeline stopped")
	return nil
}

// Ingest normalizes a batch of raw export rows and admits the valid ones
// into the pipeline. Malformed rows are reported back, not fatal.
func (a *App) Ingest(ctx context.Context, rows []domain.RawRow) normalize.Result {
	res := a.normalizer.Normalize(rows)
	a.sched.Admit(ctx, res.Records)
	return res
}

// Status replays the transition log for one claim.
func (a *App) Status(ctx context.Context, claimID string) (*readmodel.ClaimDetail, error) {
	return a.reads.Detail(ctx, claimID)
}
