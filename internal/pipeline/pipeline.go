// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the disclosure pipeline: for each researcher, search
// the literature, normalize the results, classify each publication, and flag
// the analysis against the watchlist.
//
// A failure for one researcher or one publication is recorded as a skip and
// never stops the run. Output order follows the roster, then each
// researcher's search results, regardless of completion order.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/disclosure-engine/internal/flagging"
	"github.com/pdiddy/disclosure-engine/internal/metrics"
	"github.com/pdiddy/disclosure-engine/internal/normalize"
	"github.com/pdiddy/disclosure-engine/internal/search"
	"github.com/pdiddy/disclosure-engine/pkg/types"
)

const (
	defaultConcurrency         = 2
	defaultClassifyConcurrency = 4
)

// Classifier produces an affiliation analysis for one publication.
// *classify.Classifier satisfies it.
type Classifier interface {
	Classify(ctx context.Context, pub types.Publication) (types.AffiliationAnalysis, error)
}

// Cache stores analyses across runs, keyed by publication key and model.
// *ledger.DB satisfies it.
type Cache interface {
	Lookup(ctx context.Context, key, model string) (types.AffiliationAnalysis, bool, error)
	Store(ctx context.Context, key, model string, a types.AffiliationAnalysis) error
}

// Orchestrator wires the pipeline stages together. Provider, Classifier and
// Engine are required; Cache, Metrics and Log are optional.
type Orchestrator struct {
	Provider   search.Provider
	Classifier Classifier
	Engine     flagging.Engine
	Cache      Cache
	Metrics    *metrics.Metrics
	Log        *zap.Logger

	// Search supplies the affiliation filter, result limit, sort order and
	// publication types for every researcher query.
	Search types.SearchConfig

	// Model identifies the classifier model in cache keys.
	Model string

	// Concurrency bounds researchers processed at once (default 2).
	Concurrency int
	// ClassifyConcurrency bounds classifier calls per researcher (default 4).
	ClassifyConcurrency int

	// SearchTimeout and ClassifyTimeout bound each call; zero means no
	// timeout beyond the run context.
	SearchTimeout   time.Duration
	ClassifyTimeout time.Duration
}

// Stats summarizes a run.
type Stats struct {
	Researchers  int           `json:"researchers"`
	Publications int           `json:"publications"`
	Rows         int           `json:"rows"`
	Flagged      int           `json:"flagged"`
	Skipped      int           `json:"skipped"`
	Cached       int           `json:"cached"`
	Duration     time.Duration `json:"duration"`
}

// Result holds the rows and skips of a run. Both slices are non-nil.
type Result struct {
	Records []types.OutputRecord
	Skipped []types.Skip
	Stats   Stats
}

// researcherSlot and publicationSlot are written by exactly one task each.
type researcherSlot struct {
	skip         *types.Skip
	publications []publicationSlot
}

type publicationSlot struct {
	record *types.OutputRecord
	skip   *types.Skip
	cached bool
}

// Run processes researchers and returns every produced row and skip. When
// ctx is canceled, work not yet started is recorded as skipped with the
// context error, and Run returns the partial result together with ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, researchers []types.Researcher) (Result, error) {
	if o.Provider == nil {
		return Result{}, errors.New("pipeline: no search provider configured")
	}
	if o.Classifier == nil {
		return Result{}, errors.New("pipeline: no classifier configured")
	}

	start := time.Now()
	log := o.logger()
	log.Info("run started",
		zap.Int("researchers", len(researchers)),
		zap.String("provider", o.Provider.Name()),
		zap.String("model", o.Model))

	slots := make([]researcherSlot, len(researchers))
	var g errgroup.Group
	g.SetLimit(positive(o.Concurrency, defaultConcurrency))
	for i, r := range researchers {
		g.Go(func() error {
			slots[i] = o.processResearcher(ctx, r)
			return nil
		})
	}
	_ = g.Wait()

	result := collect(slots)
	result.Stats.Researchers = len(researchers)
	result.Stats.Duration = time.Since(start)
	o.Metrics.SetRunDuration(result.Stats.Duration)

	log.Info("run finished",
		zap.Int("rows", result.Stats.Rows),
		zap.Int("flagged", result.Stats.Flagged),
		zap.Int("skipped", result.Stats.Skipped),
		zap.Int("cached", result.Stats.Cached),
		zap.Duration("duration", result.Stats.Duration))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (o *Orchestrator) processResearcher(ctx context.Context, r types.Researcher) researcherSlot {
	name := r.FullName()
	log := o.logger().With(zap.String("researcher", name))

	if err := ctx.Err(); err != nil {
		return researcherSlot{skip: o.skip(types.StageSearch, name, types.Publication{}, err)}
	}

	pubs, err := o.search(ctx, r)
	if err != nil {
		log.Warn("search failed, skipping researcher",
			zap.String("stage", string(types.StageSearch)),
			zap.Error(err))
		return researcherSlot{skip: o.skip(types.StageSearch, name, types.Publication{}, err)}
	}
	log.Debug("search complete", zap.Int("publications", len(pubs)))

	results := make([]publicationSlot, len(pubs))
	var g errgroup.Group
	g.SetLimit(positive(o.ClassifyConcurrency, defaultClassifyConcurrency))
	for j, pub := range pubs {
		g.Go(func() error {
			results[j] = o.processPublication(ctx, log, r, pub)
			return nil
		})
	}
	_ = g.Wait()

	return researcherSlot{publications: results}
}

func (o *Orchestrator) search(ctx context.Context, r types.Researcher) ([]types.Publication, error) {
	q := search.QueryFromConfig(r, o.Search)

	sctx, cancel := withTimeout(ctx, o.SearchTimeout)
	defer cancel()

	start := time.Now()
	raws, err := o.Provider.Search(sctx, q)
	o.Metrics.ObserveSearch(o.Provider.Name(), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	o.Metrics.AddPublications(len(raws))
	return normalize.All(raws), nil
}

func (o *Orchestrator) processPublication(ctx context.Context, log *zap.Logger, r types.Researcher, pub types.Publication) publicationSlot {
	name := r.FullName()
	if err := ctx.Err(); err != nil {
		return publicationSlot{skip: o.skip(types.StageClassify, name, pub, err)}
	}

	analysis, cached, err := o.analyze(ctx, log, pub)
	if err != nil {
		log.Warn("classification failed, skipping publication",
			zap.String("stage", string(types.StageClassify)),
			zap.String("title", pub.Title),
			zap.String("identifier", pub.Identifier()),
			zap.Error(err))
		return publicationSlot{skip: o.skip(types.StageClassify, name, pub, err)}
	}

	rec, _ := o.Engine.Flag(r, pub, &analysis)
	o.Metrics.IncrementRow(rec.Flagged)
	if rec.Flagged {
		log.Info("publication flagged",
			zap.String("title", pub.Title),
			zap.String("identifier", pub.Identifier()),
			zap.String("countries", rec.FlaggedCountries))
	}
	return publicationSlot{record: &rec, cached: cached}
}

// analyze returns the cached analysis for pub when one exists, otherwise
// classifies pub and caches the result. Failures are never cached.
func (o *Orchestrator) analyze(ctx context.Context, log *zap.Logger, pub types.Publication) (types.AffiliationAnalysis, bool, error) {
	useCache := o.Cache != nil && cacheable(pub)
	key := pub.Key()

	if useCache {
		a, ok, err := o.Cache.Lookup(ctx, key, o.Model)
		switch {
		case err != nil:
			log.Warn("analysis cache lookup failed", zap.String("key", key), zap.Error(err))
		case ok:
			o.Metrics.IncrementCached()
			return a, true, nil
		}
	}

	cctx, cancel := withTimeout(ctx, o.ClassifyTimeout)
	defer cancel()

	start := time.Now()
	a, err := o.Classifier.Classify(cctx, pub)
	o.Metrics.ObserveClassify(time.Since(start), err)
	if err != nil {
		return types.AffiliationAnalysis{}, false, err
	}

	if useCache {
		// A finished analysis is worth keeping even if the run is canceled.
		if err := o.Cache.Store(context.WithoutCancel(ctx), key, o.Model, a); err != nil {
			log.Warn("analysis cache store failed", zap.String("key", key), zap.Error(err))
		}
	}
	return a, false, nil
}

func (o *Orchestrator) skip(stage types.SkipStage, researcher string, pub types.Publication, err error) *types.Skip {
	o.Metrics.IncrementSkip(string(stage))
	return &types.Skip{
		Stage:      stage,
		Researcher: researcher,
		Title:      pub.Title,
		Identifier: pub.Identifier(),
		Reason:     err.Error(),
	}
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}

// collect flattens slots in roster order.
func collect(slots []researcherSlot) Result {
	res := Result{
		Records: []types.OutputRecord{},
		Skipped: []types.Skip{},
	}
	for _, rs := range slots {
		if rs.skip != nil {
			res.Skipped = append(res.Skipped, *rs.skip)
			continue
		}
		res.Stats.Publications += len(rs.publications)
		for _, ps := range rs.publications {
			if ps.skip != nil {
				res.Skipped = append(res.Skipped, *ps.skip)
				continue
			}
			res.Records = append(res.Records, *ps.record)
			if ps.record.Flagged {
				res.Stats.Flagged++
			}
			if ps.cached {
				res.Stats.Cached++
			}
		}
	}
	res.Stats.Rows = len(res.Records)
	res.Stats.Skipped = len(res.Skipped)
	return res
}

// cacheable reports whether pub has an identity stable enough to cache on.
func cacheable(pub types.Publication) bool {
	return pub.Identifier() != "" || pub.Title != ""
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func positive(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}
