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

package eval

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mindis/recsys-cotraining/model"
	"github.com/mindis/recsys-cotraining/model/knn"
	"github.com/mindis/recsys-cotraining/sparse"
)

const delta = 1e-5

// ten users over eight items: user u trained on items u%8 and (u+1)%8,
// tested on item (u+2)%8.
func newFixture(t *testing.T) (train, test *sparse.CSRMatrix, rec model.Recommender) {
	var (
		trainUsers, trainItems  []int32
		testUsers, testItems    []int32
		trainValues, testValues []float32
	)
	for u := int32(0); u < 10; u++ {
		trainUsers = append(trainUsers, u, u)
		trainItems = append(trainItems, u%8, (u+1)%8)
		trainValues = append(trainValues, 1, 1)
		testUsers = append(testUsers, u)
		testItems = append(testItems, (u+2)%8)
		testValues = append(testValues, 1)
	}
	train, err := sparse.NewCSRFromTriplets(10, 8, trainUsers, trainItems, trainValues)
	assert.NoError(t, err)
	test, err = sparse.NewCSRFromTriplets(10, 8, testUsers, testItems, testValues)
	assert.NoError(t, err)
	m := knn.NewItemKNN(model.Params{model.Similarity: "dot", model.TopK: 8})
	assert.NoError(t, m.Fit(context.Background(), train, nil))
	return train, test, m
}

func TestEvaluate_Sequential(t *testing.T) {
	train, test, rec := newFixture(t)
	e := NewEvaluator(train)
	config := NewConfig()
	config.At = 3
	result, err := e.Evaluate(context.Background(), rec, test, config)
	assert.NoError(t, err)
	for _, name := range []string{AUC, Precision, Recall, MAP, NDCG, MRR} {
		assert.Contains(t, result, name)
		assert.GreaterOrEqual(t, result[name], float32(0))
		assert.LessOrEqual(t, result[name], float32(1))
	}
	// one held-out item per user, so recall and precision are coupled
	assert.InDelta(t, result[Recall]/3, result[Precision], delta)
}

func TestEvaluate_ParallelMatchesSequential(t *testing.T) {
	train, test, rec := newFixture(t)
	e := NewEvaluator(train)
	sequential := NewConfig()
	sequential.At = 3
	expected, err := e.Evaluate(context.Background(), rec, test, sequential)
	assert.NoError(t, err)
	parallel := NewConfig()
	parallel.At = 3
	parallel.Strategy = Parallel
	parallel.Jobs = 4
	actual, err := e.Evaluate(context.Background(), rec, test, parallel)
	assert.NoError(t, err)
	for _, name := range []string{AUC, Precision, Recall, MAP, NDCG, MRR} {
		assert.InDelta(t, expected[name], actual[name], delta)
	}
}

func TestEvaluate_Random(t *testing.T) {
	train, test, rec := newFixture(t)
	e := NewEvaluator(train)
	config := NewConfig()
	config.Strategy = Random
	// At only shapes full-catalog rankings; the restricted candidate list is
	// scored whole, so a tiny At must not cost any hit
	config.At = 2
	config.NumRandomItems = 100
	result, err := e.Evaluate(context.Background(), rec, test, config)
	assert.NoError(t, err)
	// only recall is estimated
	assert.InDelta(t, 0, result[AUC], delta)
	assert.InDelta(t, 0, result[Precision], delta)
	// recall is hits / test nnz, so scaled back up it must be integral and
	// bounded by the number of test pairs
	hits := float64(result[Recall]) * float64(test.NNZ())
	assert.InDelta(t, math.Round(hits), hits, delta)
	assert.LessOrEqual(t, hits, float64(test.NNZ()))
	// the candidate list covers the whole catalog here, every held-out
	// item survives restriction
	assert.InDelta(t, 1, result[Recall], delta)
}

func TestEvaluate_MinRatingsPerUser(t *testing.T) {
	train, test, rec := newFixture(t)
	e := NewEvaluator(train)
	config := NewConfig()
	config.MinRatingsPerUser = 2
	// every user has exactly one test rating
	result, err := e.Evaluate(context.Background(), rec, test, config)
	assert.NoError(t, err)
	for _, name := range []string{AUC, Precision, Recall, MAP, NDCG, MRR} {
		assert.InDelta(t, 0, result[name], delta)
	}
}

func TestEvaluate_UnknownStrategy(t *testing.T) {
	train, test, rec := newFixture(t)
	e := NewEvaluator(train)
	config := NewConfig()
	config.Strategy = "genetic"
	_, err := e.Evaluate(context.Background(), rec, test, config)
	assert.Error(t, err)
}

func TestEvaluate_ShapeMismatch(t *testing.T) {
	train, _, rec := newFixture(t)
	e := NewEvaluator(train)
	wrong, err := sparse.NewCSRFromTriplets(10, 9, []int32{0}, []int32{8}, []float32{1})
	assert.NoError(t, err)
	_, err = e.Evaluate(context.Background(), rec, wrong, nil)
	assert.Error(t, err)
}

func TestEvaluate_CacheRebuilds(t *testing.T) {
	train, test, rec := newFixture(t)
	e := NewEvaluator(train)
	config := NewConfig()
	config.FastValidation = true
	_, err := e.Evaluate(context.Background(), rec, test, config)
	assert.NoError(t, err)
	assert.Equal(t, 1, e.Cache().Rebuilds())
	// unchanged test matrix reuses the cache
	_, err = e.Evaluate(context.Background(), rec, test, config)
	assert.NoError(t, err)
	assert.Equal(t, 1, e.Cache().Rebuilds())
	// a structurally different test matrix forces a rebuild even with fast
	// validation, so metrics never come from stale per-user slices
	changed, err := sparse.NewCSRFromTriplets(10, 8, []int32{0, 1}, []int32{2, 3}, []float32{1, 1})
	assert.NoError(t, err)
	_, err = e.Evaluate(context.Background(), rec, changed, config)
	assert.NoError(t, err)
	assert.Equal(t, 2, e.Cache().Rebuilds())
	// without fast validation every call rebuilds
	config.FastValidation = false
	_, err = e.Evaluate(context.Background(), rec, changed, config)
	assert.NoError(t, err)
	assert.Equal(t, 3, e.Cache().Rebuilds())
}

func TestEvaluateBatch(t *testing.T) {
	train, test, rec := newFixture(t)
	e := NewEvaluator(train)
	sequential := NewConfig()
	sequential.At = 3
	expected, err := e.Evaluate(context.Background(), rec, test, sequential)
	assert.NoError(t, err)
	batched := NewConfig()
	batched.At = 3
	batched.BatchSize = 4
	actual, err := e.EvaluateBatch(context.Background(), rec, test, batched)
	assert.NoError(t, err)
	for _, name := range []string{AUC, Precision, Recall, MAP, NDCG, MRR} {
		assert.InDelta(t, expected[name], actual[name], delta)
	}
}

func TestEvaluateBatch_Errors(t *testing.T) {
	train, test, rec := newFixture(t)
	e := NewEvaluator(train)
	config := NewConfig()
	config.FilterTopPop = true
	_, err := e.EvaluateBatch(context.Background(), rec, test, config)
	assert.Error(t, err)
	config = NewConfig()
	config.BatchSize = 0
	_, err = e.EvaluateBatch(context.Background(), rec, test, config)
	assert.Error(t, err)
}
