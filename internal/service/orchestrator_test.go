package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pagoda/harvester/internal/domain"
	"pagoda/harvester/internal/extract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	calls []domain.SearchTerm
	errs  map[domain.SearchTerm]error
}

func (f *fakeSearcher) RunSearch(_ context.Context, term domain.SearchTerm) (domain.SearchOutcome, error) {
	f.calls = append(f.calls, term)
	if err := f.errs[term]; err != nil {
		return domain.SearchOutcome{Term: term, SubmittedAt: time.Now()}, err
	}
	return domain.SearchOutcome{Term: term, SubmittedAt: time.Now(), Success: true}, nil
}

type sliceSeq struct {
	exchanges []domain.Exchange
	pos       int
	err       error
	closed    bool
}

func (s *sliceSeq) Next() bool {
	if s.pos >= len(s.exchanges) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceSeq) Exchange() domain.Exchange { return s.exchanges[s.pos-1] }
func (s *sliceSeq) Err() error                { return s.err }
func (s *sliceSeq) Close() error              { s.closed = true; return nil }

// fakeReader hands out one prepared sequence per ReadMatching call, in order.
type fakeReader struct {
	batches [][]domain.Exchange
	calls   int
	seqs    []*sliceSeq
}

func (f *fakeReader) ReadMatching(domain.APIPattern, time.Time) (ExchangeSeq, error) {
	var batch []domain.Exchange
	if f.calls < len(f.batches) {
		batch = f.batches[f.calls]
	}
	f.calls++
	seq := &sliceSeq{exchanges: batch}
	f.seqs = append(f.seqs, seq)
	return seq, nil
}

type fakeDocs struct {
	catalog *domain.Catalog
	summary *domain.RunSummary
}

func (f *fakeDocs) WriteCatalog(c *domain.Catalog) error { f.catalog = c; return nil }
func (f *fakeDocs) WriteSummary(s domain.RunSummary) error {
	f.summary = &s
	return nil
}

type fakeReplayer struct {
	calls    []domain.SearchTerm
	seeds    []domain.Exchange
	response domain.Exchange
	err      error
}

func (f *fakeReplayer) Replay(_ context.Context, seed domain.Exchange, term domain.SearchTerm) (domain.Exchange, error) {
	f.calls = append(f.calls, term)
	f.seeds = append(f.seeds, seed)
	return f.response, f.err
}

type fakeState struct {
	completed map[domain.SearchTerm]bool
	marked    []domain.SearchTerm
}

func (f *fakeState) IsCompleted(_ context.Context, term domain.SearchTerm) (bool, error) {
	return f.completed[term], nil
}

func (f *fakeState) MarkCompleted(_ context.Context, term domain.SearchTerm) error {
	f.marked = append(f.marked, term)
	return nil
}

func searchBody(entries ...string) string {
	body := `{"data":{"b2c":{"onSaleList":[`
	for i, e := range entries {
		if i > 0 {
			body += ","
		}
		body += e
	}
	return body + `]}}}`
}

func goodsEntry(id string, price interface{}) string {
	return fmt.Sprintf(`{"goodsId":%q,"goodsName":"水果%s","memberPrice":%v}`, id, id, price)
}

func captured(body string) domain.Exchange {
	return domain.Exchange{
		Method:       "POST",
		URL:          "https://api.pagoda.com.cn/goods/searchGoods",
		RequestBody:  `{"keywords":"苹果","page":1}`,
		Status:       200,
		ResponseBody: body,
		Timestamp:    time.Now(),
	}
}

func newDeps(searcher *fakeSearcher, reader *fakeReader, docs *fakeDocs) Deps {
	return Deps{
		Searcher:  searcher,
		Reader:    reader,
		Extractor: extract.NewExtractor(),
		Docs:      docs,
		Pattern:   domain.APIPattern{URLFragment: "searchGoods"},
		Warmup:    "苹果",
	}
}

func TestRunMergesAcrossExchanges(t *testing.T) {
	// Three captured exchanges: six entries with one bad price, an empty
	// listing, and two entries one of which repeats an earlier id. Seven
	// valid entries collapse to six unique products.
	batch := []domain.Exchange{
		captured(searchBody(
			goodsEntry("g1", 1290),
			goodsEntry("g2", 990),
			goodsEntry("g3", 1590),
			goodsEntry("g4", 2090),
			goodsEntry("g5", 790),
			goodsEntry("g6", `"面议"`),
		)),
		captured(searchBody()),
		captured(searchBody(
			goodsEntry("g1", 1290),
			goodsEntry("g7", 450),
		)),
	}

	searcher := &fakeSearcher{}
	reader := &fakeReader{batches: [][]domain.Exchange{batch}}
	docs := &fakeDocs{}
	orc := NewOrchestrator(newDeps(searcher, reader, docs))

	summary, err := orc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, orc.Catalog().Len())
	assert.Equal(t, 6, summary.TotalMerged)
	assert.Equal(t, 6, summary.NewRecords)
	assert.Equal(t, 0, summary.UpdatedRecords)

	require.Len(t, summary.Keywords, 1)
	assert.Equal(t, domain.KeywordSucceeded, summary.Keywords[0].Status)
	assert.Equal(t, 7, summary.Keywords[0].Records)

	require.Len(t, reader.seqs, 1)
	assert.True(t, reader.seqs[0].closed)
}

func TestRunContinuesAfterKeywordFailure(t *testing.T) {
	navErr := &domain.NavigationError{Target: "search input", Reason: errors.New("not found")}
	searcher := &fakeSearcher{errs: map[domain.SearchTerm]error{"香蕉": navErr}}
	reader := &fakeReader{batches: [][]domain.Exchange{
		{captured(searchBody(goodsEntry("g1", 1290)))},
		{captured(searchBody(goodsEntry("g2", 990)))},
	}}
	docs := &fakeDocs{}

	deps := newDeps(searcher, reader, docs)
	deps.Keywords = []domain.SearchTerm{"香蕉", "橙子"}
	orc := NewOrchestrator(deps)

	summary, err := orc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Keywords, 3)
	assert.Equal(t, domain.KeywordSucceeded, summary.Keywords[0].Status)
	assert.Equal(t, domain.KeywordFailed, summary.Keywords[1].Status)
	assert.Equal(t, string(domain.KindNavigation), summary.Keywords[1].ErrorKind)
	assert.Equal(t, domain.KeywordSucceeded, summary.Keywords[2].Status)

	assert.Equal(t, []domain.SearchTerm{"苹果", "香蕉", "橙子"}, searcher.calls)
	assert.Equal(t, 2, orc.Catalog().Len())
}

func TestRunReplaysAfterSeedCaptured(t *testing.T) {
	searcher := &fakeSearcher{}
	reader := &fakeReader{batches: [][]domain.Exchange{
		{captured(searchBody(goodsEntry("g1", 1290)))},
	}}
	replayer := &fakeReplayer{
		response: captured(searchBody(goodsEntry("g2", 990))),
	}
	docs := &fakeDocs{}

	deps := newDeps(searcher, reader, docs)
	deps.Keywords = []domain.SearchTerm{"香蕉", "橙子"}
	deps.Replayer = replayer
	orc := NewOrchestrator(deps)

	summary, err := orc.Run(context.Background())
	require.NoError(t, err)

	// Only the warm-up keyword drives the UI; the rest replay the seed.
	assert.Equal(t, []domain.SearchTerm{"苹果"}, searcher.calls)
	assert.Equal(t, []domain.SearchTerm{"香蕉", "橙子"}, replayer.calls)
	require.Len(t, replayer.seeds, 2)
	assert.Equal(t, `{"keywords":"苹果","page":1}`, replayer.seeds[0].RequestBody)

	require.Len(t, summary.Keywords, 3)
	for _, kw := range summary.Keywords {
		assert.Equal(t, domain.KeywordSucceeded, kw.Status, "keyword %q", kw.Term)
	}
	assert.Equal(t, 2, orc.Catalog().Len())
}

func TestRunSkipsCompletedKeywords(t *testing.T) {
	searcher := &fakeSearcher{}
	reader := &fakeReader{batches: [][]domain.Exchange{
		{captured(searchBody(goodsEntry("g1", 1290)))},
		{captured(searchBody(goodsEntry("g2", 990)))},
	}}
	docs := &fakeDocs{}

	deps := newDeps(searcher, reader, docs)
	deps.Keywords = []domain.SearchTerm{"香蕉", "橙子"}
	deps.State = &fakeState{completed: map[domain.SearchTerm]bool{"香蕉": true}}
	orc := NewOrchestrator(deps)

	summary, err := orc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.SearchTerm{"苹果", "橙子"}, searcher.calls)
	require.Len(t, summary.Keywords, 3)
	assert.Equal(t, domain.KeywordSkipped, summary.Keywords[1].Status)

	st := deps.State.(*fakeState)
	assert.Equal(t, []domain.SearchTerm{"苹果", "橙子"}, st.marked)
}

func TestRunPersistsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	searcher := &fakeSearcher{}
	docs := &fakeDocs{}
	deps := newDeps(searcher, &fakeReader{}, docs)
	deps.Keywords = []domain.SearchTerm{"香蕉"}
	orc := NewOrchestrator(deps)

	summary, err := orc.Run(ctx)
	require.NoError(t, err)

	assert.Empty(t, searcher.calls)
	require.Len(t, summary.Keywords, 2)
	for _, kw := range summary.Keywords {
		assert.Equal(t, domain.KeywordSkipped, kw.Status)
	}

	require.NotNil(t, docs.catalog)
	require.NotNil(t, docs.summary)
	assert.False(t, docs.summary.FinishedAt.IsZero())
}

func TestRunDrainsRecordSink(t *testing.T) {
	searcher := &fakeSearcher{}
	reader := &fakeReader{batches: [][]domain.Exchange{
		{captured(searchBody(goodsEntry("g1", 1290), goodsEntry("g2", 990)))},
	}}
	docs := &fakeDocs{}

	sink := make(chan domain.ProductRecord, 16)
	deps := newDeps(searcher, reader, docs)
	deps.RecordSink = sink
	orc := NewOrchestrator(deps)

	_, err := orc.Run(context.Background())
	require.NoError(t, err)

	var got []string
	for rec := range sink {
		got = append(got, rec.ProductID)
	}
	assert.Equal(t, []string{"g1", "g2"}, got)
}

func TestKeywordOrderDeduplicatesWarmup(t *testing.T) {
	orc := NewOrchestrator(Deps{
		Warmup:   "苹果",
		Keywords: []domain.SearchTerm{"香蕉", "苹果", "橙子"},
	})
	assert.Equal(t, []domain.SearchTerm{"苹果", "香蕉", "橙子"}, orc.keywordOrder())
}
