package service

import (
	"context"
	"time"

	"pagoda/harvester/internal/domain"
	"pagoda/harvester/internal/extract"
	"pagoda/harvester/internal/state"

	log "github.com/sirupsen/logrus"
)

// Searcher submits one keyword search through the app UI.
type Searcher interface {
	RunSearch(ctx context.Context, term domain.SearchTerm) (domain.SearchOutcome, error)
}

// ExchangeSeq is a lazy sequence of captured exchanges.
type ExchangeSeq interface {
	Next() bool
	Exchange() domain.Exchange
	Err() error
	Close() error
}

// TrafficReader yields the capture-trace exchanges matching a pattern within
// a time window.
type TrafficReader interface {
	ReadMatching(pattern domain.APIPattern, since time.Time) (ExchangeSeq, error)
}

// Extractor turns one exchange into product records.
type Extractor interface {
	Extract(ex domain.Exchange) extract.Result
}

// KeywordReplayer re-issues a captured search request with a new keyword.
type KeywordReplayer interface {
	Replay(ctx context.Context, seed domain.Exchange, term domain.SearchTerm) (domain.Exchange, error)
}

// DocumentSink persists the catalog and run summary at run end.
type DocumentSink interface {
	WriteCatalog(catalog *domain.Catalog) error
	WriteSummary(summary domain.RunSummary) error
}

// Deps wires an Orchestrator. Replayer, State and RecordSink are optional.
type Deps struct {
	Searcher  Searcher
	Reader    TrafficReader
	Extractor Extractor
	Docs      DocumentSink
	Pattern   domain.APIPattern
	Warmup    domain.SearchTerm
	Keywords  []domain.SearchTerm
	Settle    time.Duration

	Replayer   KeywordReplayer
	State      state.RunStateManager
	RecordSink chan<- domain.ProductRecord
}

// Orchestrator drives the full run: warm-up keyword first to prime the API
// seed, then every configured keyword, strictly sequentially. A failing
// keyword is logged and recorded, never allowed to abort the run.
type Orchestrator struct {
	deps    Deps
	catalog *domain.Catalog
}

func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:    deps,
		catalog: domain.NewCatalog(),
	}
}

func (o *Orchestrator) Catalog() *domain.Catalog {
	return o.catalog
}

type mergeStats struct {
	inserted int
	updated  int
}

// Run processes every keyword and persists the catalog and summary on every
// exit path. Only persistence failure is reported as a run-level error once
// keywords have started; everything below is downgraded per keyword.
func (o *Orchestrator) Run(ctx context.Context) (summary domain.RunSummary, err error) {
	summary.StartedAt = time.Now()
	stats := &mergeStats{}
	var seed *domain.Exchange

	defer func() {
		if o.deps.RecordSink != nil {
			close(o.deps.RecordSink)
		}
		summary.FinishedAt = time.Now()
		summary.TotalMerged = o.catalog.Len()
		summary.NewRecords = stats.inserted
		summary.UpdatedRecords = stats.updated
		if perr := o.persist(summary); perr != nil {
			log.Errorf("Failed to persist run output: %v", perr)
			if err == nil {
				err = perr
			}
		}
	}()

	for _, term := range o.keywordOrder() {
		if ctx.Err() != nil {
			log.Warnf("Stop requested, skipping %q and remaining keywords", term)
			summary.Keywords = append(summary.Keywords, domain.KeywordResult{
				Term:   term,
				Status: domain.KeywordSkipped,
			})
			continue
		}

		if o.alreadyCompleted(ctx, term) {
			log.Infof("Keyword %q already completed in a previous run, skipping", term)
			summary.Keywords = append(summary.Keywords, domain.KeywordResult{
				Term:   term,
				Status: domain.KeywordSkipped,
			})
			continue
		}

		entry := o.runKeyword(ctx, term, &seed, stats)
		summary.Keywords = append(summary.Keywords, entry)

		if entry.Status == domain.KeywordSucceeded && o.deps.State != nil {
			if serr := o.deps.State.MarkCompleted(ctx, term); serr != nil {
				log.Warnf("Failed to record progress for %q: %v", term, serr)
			}
		}
	}

	log.Infof("Run complete: %d unique products (%d new, %d updated)",
		o.catalog.Len(), stats.inserted, stats.updated)
	return summary, nil
}

// keywordOrder puts the warm-up keyword first and drops duplicates of it from
// the configured list.
func (o *Orchestrator) keywordOrder() []domain.SearchTerm {
	terms := make([]domain.SearchTerm, 0, len(o.deps.Keywords)+1)
	if o.deps.Warmup != "" {
		terms = append(terms, o.deps.Warmup)
	}
	for _, t := range o.deps.Keywords {
		if t == o.deps.Warmup {
			continue
		}
		terms = append(terms, t)
	}
	return terms
}

func (o *Orchestrator) alreadyCompleted(ctx context.Context, term domain.SearchTerm) bool {
	if o.deps.State == nil {
		return false
	}
	done, err := o.deps.State.IsCompleted(ctx, term)
	if err != nil {
		log.Warnf("Progress check for %q failed, running it anyway: %v", term, err)
		return false
	}
	return done
}

// runKeyword does one keyword end to end. The first matched exchange of the
// run is kept as the replay seed; once a seed exists and a replayer is wired,
// later keywords skip the UI entirely.
func (o *Orchestrator) runKeyword(ctx context.Context, term domain.SearchTerm, seed **domain.Exchange, stats *mergeStats) domain.KeywordResult {
	entry := domain.KeywordResult{Term: term, Status: domain.KeywordSucceeded}

	if o.deps.Replayer != nil && *seed != nil {
		ex, err := o.deps.Replayer.Replay(ctx, **seed, term)
		if err != nil {
			return o.failKeyword(entry, err)
		}
		entry.Records = o.mergeExchange(ex, stats)
		log.Infof("Keyword %q replayed: %d records", term, entry.Records)
		return entry
	}

	since := time.Now()
	if _, err := o.deps.Searcher.RunSearch(ctx, term); err != nil {
		return o.failKeyword(entry, err)
	}
	o.waitSettle(ctx)

	seq, err := o.deps.Reader.ReadMatching(o.deps.Pattern, since)
	if err != nil {
		return o.failKeyword(entry, err)
	}
	defer seq.Close()

	for seq.Next() {
		ex := seq.Exchange()
		if *seed == nil && ex.RequestBody != "" {
			cp := ex
			*seed = &cp
			log.Infof("Captured replay seed from %s", ex.URL)
		}
		entry.Records += o.mergeExchange(ex, stats)
	}
	if serr := seq.Err(); serr != nil {
		return o.failKeyword(entry, serr)
	}

	log.Infof("Keyword %q done: %d records", term, entry.Records)
	return entry
}

func (o *Orchestrator) mergeExchange(ex domain.Exchange, stats *mergeStats) int {
	res := o.deps.Extractor.Extract(ex)
	for _, rec := range res.Records {
		outcome := o.catalog.Merge(rec)
		for _, c := range outcome.Conflicts {
			log.Warnf("Field conflict on product %s: %s", rec.ProductID, c)
		}
		switch outcome.Result {
		case domain.MergeInserted:
			stats.inserted++
		case domain.MergeUpdated:
			stats.updated++
		default:
			continue
		}
		if o.deps.RecordSink != nil {
			merged, _ := o.catalog.Get(rec.ProductID)
			o.deps.RecordSink <- merged
		}
	}
	return len(res.Records)
}

func (o *Orchestrator) failKeyword(entry domain.KeywordResult, err error) domain.KeywordResult {
	entry.Status = domain.KeywordFailed
	if kind, ok := domain.KindOf(err); ok {
		entry.ErrorKind = string(kind)
	} else {
		entry.ErrorKind = "internal"
	}
	log.Errorf("Keyword %q failed (%s): %v", entry.Term, entry.ErrorKind, err)
	return entry
}

func (o *Orchestrator) persist(summary domain.RunSummary) error {
	if err := o.deps.Docs.WriteCatalog(o.catalog); err != nil {
		return err
	}
	return o.deps.Docs.WriteSummary(summary)
}

func (o *Orchestrator) waitSettle(ctx context.Context) {
	if o.deps.Settle <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(o.deps.Settle):
	}
}
