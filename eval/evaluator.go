// Copyright 2024 recsys-cotraining Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package eval measures the ranking quality of a recommender over a held-out
// test matrix. Three strategies trade cost for completeness: sequential and
// parallel full-catalog evaluation and random-candidate-sampled recall.
package eval

import (
	"context"
	"runtime"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/mindis/recsys-cotraining/base"
	"github.com/mindis/recsys-cotraining/base/log"
	"github.com/mindis/recsys-cotraining/common/parallel"
	"github.com/mindis/recsys-cotraining/metrics"
	"github.com/mindis/recsys-cotraining/model"
	"github.com/mindis/recsys-cotraining/sparse"
)

// Strategy selects how an evaluation pass walks the user base.
type Strategy string

const (
	// Sequential evaluates users one at a time on the calling goroutine.
	Sequential Strategy = "sequential"
	// Parallel fans one task per user out to a worker pool scoped to the
	// call. Metrics are reduced by summation, so the result matches the
	// sequential strategy up to float ordering.
	Parallel Strategy = "parallel"
	// Random evaluates recall only, against sampled candidate items instead
	// of the full catalog.
	Random Strategy = "random"
)

// Metric keys of a Result.
const (
	AUC       = "AUC"
	Precision = "precision"
	Recall    = "recall"
	MAP       = "map"
	NDCG      = "NDCG"
	MRR       = "MRR"
)

// Result maps each of the six metric names to its average over evaluated
// users.
type Result map[string]float32

func zeroResult() Result {
	return Result{AUC: 0, Precision: 0, Recall: 0, MAP: 0, NDCG: 0, MRR: 0}
}

// Config tunes one evaluation pass.
type Config struct {
	At                int
	MinRatingsPerUser int
	ExcludeSeen       bool
	FilterTopPop      bool
	Strategy          Strategy
	FastValidation    bool
	NumRandomItems    int
	Jobs              int
	BatchSize         int
	RandomState       int64
}

// NewConfig creates the default evaluation configuration: sequential
// top-10 evaluation with seen items excluded.
func NewConfig() *Config {
	return &Config{
		At:                10,
		MinRatingsPerUser: 1,
		ExcludeSeen:       true,
		Strategy:          Sequential,
		NumRandomItems:    100,
		Jobs:              runtime.NumCPU(),
		BatchSize:         1000,
	}
}

// Evaluator owns the training matrix and the fast-validation cache shared
// across repeated evaluation calls.
type Evaluator struct {
	train *sparse.CSRMatrix
	cache *Cache
}

// NewEvaluator creates an evaluator over a training matrix.
func NewEvaluator(train *sparse.CSRMatrix) *Evaluator {
	return &Evaluator{
		train: train,
		cache: new(Cache),
	}
}

// Cache exposes the fast-validation cache.
func (e *Evaluator) Cache() *Cache {
	return e.cache
}

// accumulator is one partial metric sum. Summation is commutative, so
// partials from concurrent workers combine into the same totals regardless
// of completion order.
type accumulator struct {
	auc, precision, recall, mapScore, ndcg, mrr float32
	count                                       int
}

func (a *accumulator) add(b accumulator) {
	a.auc += b.auc
	a.precision += b.precision
	a.recall += b.recall
	a.mapScore += b.mapScore
	a.ndcg += b.ndcg
	a.mrr += b.mrr
	a.count += b.count
}

func (a *accumulator) result() Result {
	if a.count == 0 {
		log.Logger().Warn("no user has relevant test items, all metrics are zero")
		return zeroResult()
	}
	n := float32(a.count)
	return Result{
		AUC:       a.auc / n,
		Precision: a.precision / n,
		Recall:    a.recall / n,
		MAP:       a.mapScore / n,
		NDCG:      a.ndcg / n,
		MRR:       a.mrr / n,
	}
}

// evaluableUsers lists the users with at least MinRatingsPerUser held-out
// ratings.
func (e *Evaluator) evaluableUsers(config *Config) []int32 {
	threshold := base.Max(1, config.MinRatingsPerUser)
	users := make([]int32, 0, len(e.cache.entries))
	for u := range e.cache.entries {
		if len(e.cache.entries[u].testItems) >= threshold {
			users = append(users, int32(u))
		}
	}
	return users
}

// scoreRanking computes all six metrics for one user's ranking against the
// cached held-out items.
func scoreRanking(ranking []int32, entry *userEntry, at int) accumulator {
	relevantSet := mapset.NewSet(entry.testItems...)
	isRelevant := make([]bool, len(ranking))
	for k, item := range ranking {
		isRelevant[k] = relevantSet.Contains(item)
	}
	relevance := make(map[int32]float32, len(entry.testItems))
	for k, item := range entry.testItems {
		relevance[item] = entry.testRatings[k]
	}
	return accumulator{
		auc:       metrics.ROCAUC(isRelevant),
		precision: metrics.Precision(isRelevant),
		recall:    metrics.Recall(isRelevant, len(entry.testItems)),
		mapScore:  metrics.MAP(isRelevant, len(entry.testItems)),
		ndcg:      metrics.NDCG(ranking, relevance, at),
		mrr:       metrics.RR(isRelevant),
		count:     1,
	}
}

// evaluateUser ranks items for one user through the single-user
// recommendation path.
func (e *Evaluator) evaluateUser(rec model.Recommender, user int32, config *Config) (accumulator, error) {
	ranking, err := rec.Recommend(user, config.At, config.ExcludeSeen, config.FilterTopPop)
	if err != nil {
		return accumulator{}, errors.Trace(err)
	}
	return scoreRanking(ranking, &e.cache.entries[user], config.At), nil
}

// Evaluate runs one evaluation pass with the configured strategy.
func (e *Evaluator) Evaluate(ctx context.Context, rec model.Recommender, test *sparse.CSRMatrix, config *Config) (Result, error) {
	if config == nil {
		config = NewConfig()
	}
	if test.Rows() != e.train.Rows() || test.Cols() != e.train.Cols() {
		return nil, errors.Errorf("eval: test matrix is %dx%d, train is %dx%d",
			test.Rows(), test.Cols(), e.train.Rows(), e.train.Cols())
	}
	e.cache.ensure(e.train, test, config.FastValidation)
	users := e.evaluableUsers(config)
	if len(users) == 0 {
		log.Logger().Warn("no evaluable user", zap.Int("min_ratings_per_user", config.MinRatingsPerUser))
		return zeroResult(), nil
	}
	switch config.Strategy {
	case Sequential, "":
		return e.evaluateSequential(ctx, rec, users, config)
	case Parallel:
		return e.evaluateParallel(ctx, rec, users, config)
	case Random:
		return e.evaluateRandom(ctx, rec, test, users, config)
	default:
		return nil, errors.Errorf("eval: unknown strategy %q", config.Strategy)
	}
}

func (e *Evaluator) evaluateSequential(ctx context.Context, rec model.Recommender, users []int32, config *Config) (Result, error) {
	var total accumulator
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		partial, err := e.evaluateUser(rec, user, config)
		if err != nil {
			return nil, errors.Trace(err)
		}
		total.add(partial)
	}
	return total.result(), nil
}

// evaluateParallel fans one task per user out to a pool of Jobs workers.
// Each worker accumulates into its own partial sum; the pool lives for this
// call only.
func (e *Evaluator) evaluateParallel(ctx context.Context, rec model.Recommender, users []int32, config *Config) (Result, error) {
	nWorkers := base.Max(1, config.Jobs)
	partials := make([]accumulator, nWorkers)
	err := parallel.Parallel(ctx, len(users), nWorkers, func(workerId, jobId int) error {
		partial, err := e.evaluateUser(rec, users[jobId], config)
		if err != nil {
			return errors.Trace(err)
		}
		partials[workerId].add(partial)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	var total accumulator
	for i := range partials {
		total.add(partials[i])
	}
	return total.result(), nil
}

// evaluateRandom estimates recall without ranking the full catalog: each
// held-out item competes against NumRandomItems sampled unknown items
// inside a top-100 candidate list. The other five metrics stay zero.
func (e *Evaluator) evaluateRandom(ctx context.Context, rec model.Recommender, test *sparse.CSRMatrix, users []int32, config *Config) (Result, error) {
	const candidateListSize = 100
	rng := base.NewRandomGenerator(config.RandomState)
	hits := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		entry := &e.cache.entries[user]
		candidates, err := rec.Recommend(user, candidateListSize, false, false)
		if err != nil {
			return nil, errors.Trace(err)
		}
		known := mapset.NewSet(entry.trainItems...)
		known.Append(entry.testItems...)
		for _, heldOut := range entry.testItems {
			allowed := mapset.NewSet(rng.SampleInt32(0, int32(e.train.Cols()), config.NumRandomItems, known)...)
			allowed.Add(heldOut)
			// the candidate list restricted to the sampled items is scored
			// whole, there is no top-At cutoff here
			for _, item := range candidates {
				if !allowed.Contains(item) {
					continue
				}
				if item == heldOut {
					hits++
					break
				}
			}
		}
	}
	result := zeroResult()
	if test.NNZ() > 0 {
		result[Recall] = float32(hits) / float32(test.NNZ())
	} else {
		log.Logger().Warn("empty test matrix in random-sampled evaluation")
	}
	return result, nil
}

// EvaluateBatch evaluates users in chunks of at most BatchSize through the
// batch recommendation path, densifying one chunk's training profiles at a
// time to bound peak memory. Top-popular filtering has no batch equivalent
// and is rejected.
func (e *Evaluator) EvaluateBatch(ctx context.Context, rec model.Recommender, test *sparse.CSRMatrix, config *Config) (Result, error) {
	if config == nil {
		config = NewConfig()
	}
	if config.FilterTopPop {
		return nil, errors.Errorf("eval: top popular filtering is not supported in batched evaluation")
	}
	if config.BatchSize < 1 {
		return nil, errors.Errorf("eval: batch size must be positive, got %d", config.BatchSize)
	}
	if test.Rows() != e.train.Rows() || test.Cols() != e.train.Cols() {
		return nil, errors.Errorf("eval: test matrix is %dx%d, train is %dx%d",
			test.Rows(), test.Cols(), e.train.Rows(), e.train.Cols())
	}
	e.cache.ensure(e.train, test, config.FastValidation)
	users := e.evaluableUsers(config)
	if len(users) == 0 {
		log.Logger().Warn("no evaluable user", zap.Int("min_ratings_per_user", config.MinRatingsPerUser))
		return zeroResult(), nil
	}
	var total accumulator
	nChunks := (len(users) + config.BatchSize - 1) / config.BatchSize
	for _, chunk := range parallel.Split(users, nChunks) {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		var block [][]float32
		if config.ExcludeSeen {
			block = base.NewMatrix32(len(chunk), e.train.Cols())
			for idx, user := range chunk {
				entry := &e.cache.entries[user]
				for k, item := range entry.trainItems {
					block[idx][item] = entry.trainValues[k]
				}
			}
		}
		rankings, err := rec.RecommendBatch(chunk, config.At, config.ExcludeSeen, block)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for idx, user := range chunk {
			total.add(scoreRanking(rankings[idx], &e.cache.entries[user], config.At))
		}
	}
	return total.result(), nil
}
