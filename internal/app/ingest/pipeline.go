// Package ingest keeps the per-list item cache in step with the list sources.
//
// A run walks the catalogue in order: fetch, score every rank against the
// new list length, then replace the cached set in one transaction. A list
// that fails keeps its previous cache and never stops the others. Runs never
// overlap: a trigger that arrives mid-run gets ErrRunInProgress.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/fishy/internal/adapters/repository"
	"github.com/okian/fishy/internal/adapters/sources"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/pkg/logger"
	"github.com/okian/fishy/pkg/metrics"
)

// Triggers label what started a run.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerGuild    = "guild"
)

// ListResult is the outcome for one list.
type ListResult struct {
	ListID   string
	Items    int  // items written; 0 when the previous cache was kept
	Kept     bool // previous cache left in place
	Err      error
	Duration time.Duration
}

// Report summarizes a run.
type Report struct {
	Trigger  string
	Started  time.Time
	Finished time.Time
	Lists    []ListResult
}

// Failed counts lists that kept their previous cache.
func (r Report) Failed() int {
	n := 0
	for _, l := range r.Lists {
		if l.Kept {
			n++
		}
	}
	return n
}

// Pipeline refreshes cached lists.
type Pipeline struct {
	catalog    *catalog.Catalog
	cache      repository.CacheStore
	factory    SourceFactory
	sourceOpts []sources.Option
	log        logger.Logger
	now        func() time.Time

	running atomic.Bool

	mu      sync.Mutex
	adapter map[string]sources.Source
	last    Report
}

// NewPipeline returns a pipeline over every list in cat.
func NewPipeline(cat *catalog.Catalog, cache repository.CacheStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		catalog: cat,
		cache:   cache,
		now:     time.Now,
		adapter: make(map[string]sources.Source),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.factory == nil {
		p.factory = func(l catalog.List) (sources.Source, error) {
			return sources.New(l, p.sourceOpts...)
		}
	}
	if p.log == nil {
		p.log = logger.Get().Named("ingest")
	}
	return p
}

// RefreshAll refreshes every list in catalogue order.
func (p *Pipeline) RefreshAll(ctx context.Context) (Report, error) {
	return p.Run(ctx, TriggerManual)
}

// Run is RefreshAll with an explicit trigger label.
func (p *Pipeline) Run(ctx context.Context, trigger string) (Report, error) {
	return p.exclusive(ctx, trigger, p.catalog.All())
}

// RefreshList refreshes one list.
func (p *Pipeline) RefreshList(ctx context.Context, listID string) (ListResult, error) {
	l, err := p.catalog.Get(listID)
	if err != nil {
		return ListResult{}, err
	}
	rep, err := p.exclusive(ctx, TriggerManual, []catalog.List{l})
	if err != nil {
		return ListResult{}, err
	}
	return rep.Lists[0], nil
}

// Running reports whether a run is in progress.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// LastReport returns the most recent completed run.
func (p *Pipeline) LastReport() Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Pipeline) exclusive(ctx context.Context, trigger string, lists []catalog.List) (Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		metrics.RecordIngestionRun(trigger, "coalesced")
		return Report{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	rep := Report{Trigger: trigger, Started: p.now()}
	for _, l := range lists {
		if ctx.Err() != nil {
			rep.Lists = append(rep.Lists, ListResult{ListID: l.ID, Kept: true, Err: ctx.Err()})
			continue
		}
		rep.Lists = append(rep.Lists, p.refresh(ctx, l))
	}
	rep.Finished = p.now()

	result := "ok"
	if rep.Failed() > 0 {
		result = "partial"
	}
	metrics.RecordIngestionRun(trigger, result)
	p.log.Info(ctx, "ingestion run finished",
		logger.String("trigger", trigger),
		logger.Int("lists", len(rep.Lists)),
		logger.Int("failed", rep.Failed()),
		logger.Duration("took", rep.Finished.Sub(rep.Started)),
	)

	p.mu.Lock()
	p.last = rep
	p.mu.Unlock()
	return rep, ctx.Err()
}

func (p *Pipeline) refresh(ctx context.Context, l catalog.List) ListResult {
	start := p.now()
	res := ListResult{ListID: l.ID}
	log := p.log.With(logger.String("list_id", l.ID))

	items, err := p.fetch(ctx, l)
	if err == nil && len(items) == 0 {
		err = ErrEmptySource
	}
	if err == nil {
		cached := Score(l, items)
		if err = p.cache.ReplaceItems(ctx, l.ID, cached); err == nil {
			res.Items = len(cached)
		}
	}
	res.Duration = p.now().Sub(start)

	if err != nil {
		res.Kept = true
		res.Err = err
		metrics.RecordListRefreshFailure(l.ID, FailureReason(err))
		log.Warn(ctx, "list refresh failed; keeping previous cache", logger.Error(err))
		return res
	}
	metrics.RecordListRefresh(l.ID, res.Items, res.Duration)
	log.Debug(ctx, "list refreshed", logger.Int("items", res.Items), logger.Duration("took", res.Duration))
	return res
}

func (p *Pipeline) fetch(ctx context.Context, l catalog.List) ([]model.RankedItem, error) {
	p.mu.Lock()
	src, ok := p.adapter[l.ID]
	p.mu.Unlock()
	if !ok {
		var err error
		if src, err = p.factory(l); err != nil {
			return nil, fmt.Errorf("build source: %w", err)
		}
		p.mu.Lock()
		p.adapter[l.ID] = src
		p.mu.Unlock()
	}
	return src.FetchOrderedItems(ctx)
}

// Score orders items by source rank and assigns contiguous ranks 1..N with
// points from the list formula evaluated against N.
func Score(l catalog.List, items []model.RankedItem) []model.CachedItem {
	sorted := make([]model.RankedItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	n := len(sorted)
	out := make([]model.CachedItem, n)
	for i, it := range sorted {
		rank := i + 1
		out[i] = model.CachedItem{
			ListID:   l.ID,
			Name:     it.Name,
			Filename: it.Filename,
			Rank:     rank,
			Points:   l.Score(rank, n),
		}
	}
	return out
}

// FailureReason is a low cardinality label for a list refresh failure.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptySource):
		return "empty"
	case errors.Is(err, sources.ErrManifestInvalid):
		return "manifest"
	case errors.Is(err, sources.ErrSourceUnavailable):
		return "source"
	case errors.Is(err, repository.ErrStorage):
		return "storage"
	default:
		return "other"
	}
}
