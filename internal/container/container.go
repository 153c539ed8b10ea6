package container

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"pagoda/harvester/internal/capture"
	"pagoda/harvester/internal/config"
	"pagoda/harvester/internal/domain"
	"pagoda/harvester/internal/driver"
	"pagoda/harvester/internal/extract"
	"pagoda/harvester/internal/popup"
	"pagoda/harvester/internal/replay"
	"pagoda/harvester/internal/repository"
	"pagoda/harvester/internal/retry"
	"pagoda/harvester/internal/search"
	"pagoda/harvester/internal/service"
	"pagoda/harvester/internal/state"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config       *config.Config
	Session      *driver.AgentSession
	Orchestrator *service.Orchestrator

	repo      repository.CatalogRepository
	recordsCh chan domain.ProductRecord

	db    *pgxpool.Pool
	redis *redis.Client
}

// trafficReader adapts the capture reader to the orchestrator's interface.
type trafficReader struct {
	reader *capture.Reader
}

func (r trafficReader) ReadMatching(pattern domain.APIPattern, since time.Time) (service.ExchangeSeq, error) {
	return r.reader.ReadMatching(pattern, since)
}

// New creates a new container with all dependencies initialized. Failing to
// create the agent session is fatal; everything optional degrades to nil.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	session, err := driver.NewAgentSession(ctx, cfg.Agent)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent session: %w", err)
	}
	container.Session = session

	exec := retry.NewExecutor(retry.PolicyFromConfig(cfg.Retry))
	resolver := popup.NewResolver(session, exec, popup.DefaultSignatures(), cfg.Search.MaxPopupRounds)
	settle := time.Duration(cfg.Search.SettleDelayMS) * time.Millisecond
	searcher := search.NewDriver(session, exec, resolver, settle)

	deps := service.Deps{
		Searcher:  searcher,
		Reader:    trafficReader{reader: capture.NewReader(cfg.Capture.TracePath)},
		Extractor: extract.NewExtractor(),
		Docs:      repository.NewDocumentWriter(cfg.Output.CatalogPath, cfg.Output.SummaryPath),
		Pattern: domain.APIPattern{
			URLFragment: cfg.Capture.URLFragment,
			Method:      cfg.Capture.Method,
		},
		Warmup:   domain.SearchTerm(cfg.Search.WarmupKeyword),
		Keywords: toTerms(cfg.Search.Keywords),
		Settle:   settle,
	}

	if cfg.Replay.Enabled {
		deps.Replayer = replay.NewReplayer(cfg.Replay.MaxRequestsPerSecond)
	}

	if cfg.Database.Enabled {
		db, err := pgxpool.New(ctx,
			fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
				cfg.Database.Host,
				cfg.Database.Port,
				cfg.Database.User,
				cfg.Database.Password,
				cfg.Database.Name,
			))
		if err != nil {
			session.Close(ctx)
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		container.db = db
		container.repo = repository.NewCatalogRepository(db)
		container.recordsCh = make(chan domain.ProductRecord, 256)
		deps.RecordSink = container.recordsCh
		log.Info("Postgres catalog sink enabled")
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			session.Close(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		container.redis = rdb
		deps.State = state.NewRedisStateManager(rdb, cfg.Redis.RunID)
		log.Info("Redis run-progress state enabled")
	}

	container.Orchestrator = service.NewOrchestrator(deps)
	return container, nil
}

// Run executes the orchestrator, with the postgres sink draining merged
// records concurrently when enabled.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summary, err := c.Orchestrator.Run(ctx)
		logSummary(summary)
		return err
	})

	if c.repo != nil {
		g.Go(func() error {
			for rec := range c.recordsCh {
				if err := c.repo.SaveRecord(context.WithoutCancel(ctx), rec); err != nil {
					log.Errorf("Failed to upsert product %s: %v", rec.ProductID, err)
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() {
	log.Info("Shutting down...")

	if c.Session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.Session.Close(ctx); err != nil {
			log.Warnf("Failed to close agent session: %v", err)
		}
		cancel()
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}

	log.Info("Shutdown complete")
}

func logSummary(summary domain.RunSummary) {
	for _, kw := range summary.Keywords {
		switch kw.Status {
		case domain.KeywordFailed:
			log.Warnf("  %s: failed (%s)", kw.Term, kw.ErrorKind)
		case domain.KeywordSkipped:
			log.Infof("  %s: skipped", kw.Term)
		default:
			log.Infof("  %s: %d records", kw.Term, kw.Records)
		}
	}
	log.Infof("Catalog: %d products, %d new, %d updated",
		summary.TotalMerged, summary.NewRecords, summary.UpdatedRecords)
}

func toTerms(keywords []string) []domain.SearchTerm {
	out := make([]domain.SearchTerm, 0, len(keywords))
	for _, kw := range keywords {
		out = append(out, domain.SearchTerm(kw))
	}
	return out
}
