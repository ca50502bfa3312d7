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

package mf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mindis/recsys-cotraining/base"
	"github.com/mindis/recsys-cotraining/model"
	"github.com/mindis/recsys-cotraining/sparse"
)

// two users over three items: u0 has seen item 0, u1 has seen item 1
func newTinyTrain(t *testing.T) *sparse.CSRMatrix {
	train, err := sparse.NewCSRFromTriplets(2, 3,
		[]int32{0, 1}, []int32{0, 1}, []float32{1, 1})
	assert.NoError(t, err)
	return train
}

// newZeroModel builds a model with all factors zero, so predictions equal
// the hand-set item biases.
func newZeroModel(t *testing.T, train *sparse.CSRMatrix, bias []float32) *BPR {
	m := NewBPR(model.Params{model.InitMean: 0.0, model.InitStdDev: 0.0, model.NFactors: 2})
	m.Init(train)
	assert.Equal(t, train.Cols(), len(bias))
	m.ItemBias = bias
	return m
}

func TestBPR_TrainingImprovesPairwiseOrdering(t *testing.T) {
	train := newTinyTrain(t)
	before, after := 0, 0
	for seed := int64(0); seed < 20; seed++ {
		params := model.Params{
			model.RandomState: seed,
			model.NFactors:    4,
			model.NEpochs:     100,
			model.Lr:          0.1,
			model.InitStdDev:  0.1,
		}
		m := NewBPR(params)
		m.Init(train)
		// item 0 is a known positive for u0, item 2 a known negative
		if m.Predict(0, 0) > m.Predict(0, 2) {
			before++
		}
		assert.NoError(t, m.Fit(context.Background(), train, model.NewFitConfig().SetVerbose(0)))
		if m.Predict(0, 0) > m.Predict(0, 2) {
			after++
		}
	}
	assert.Greater(t, after, before)
	assert.GreaterOrEqual(t, after, 15)
}

func TestBPR_FitErrors(t *testing.T) {
	m := NewBPR(nil)
	// every user has seen the full catalog, no negative item exists
	saturated, err := sparse.NewCSRFromTriplets(1, 2,
		[]int32{0, 0}, []int32{0, 1}, []float32{1, 1})
	assert.NoError(t, err)
	assert.Error(t, m.Fit(context.Background(), saturated, nil))
	// u0 rated both items while u1 rated none: the matrix is not globally
	// full, yet no user can yield a triplet, so Fit must fail instead of
	// spinning in the sampler
	partial, err := sparse.NewCSRFromTriplets(2, 2,
		[]int32{0, 0}, []int32{0, 1}, []float32{1, 1})
	assert.NoError(t, err)
	assert.Error(t, m.Fit(context.Background(), partial, nil))
	// no interactions at all
	empty, err := sparse.NewCSRFromTriplets(2, 3, nil, nil, nil)
	assert.NoError(t, err)
	assert.Error(t, m.Fit(context.Background(), empty, nil))
}

func TestBPR_SampleNegative(t *testing.T) {
	train, err := sparse.NewCSRFromTriplets(1, 10,
		[]int32{0, 0, 0, 0, 0, 0, 0, 0, 0},
		[]int32{0, 1, 2, 3, 4, 5, 6, 7, 8},
		[]float32{1, 1, 1, 1, 1, 1, 1, 1, 1})
	assert.NoError(t, err)
	m := NewBPR(nil)
	m.Init(train)
	rng := base.NewRandomGenerator(0)
	// the only unseen item is 9: rejection either finds it or the
	// complement fallback does
	for k := 0; k < 100; k++ {
		assert.Equal(t, int32(9), m.sampleNegative(rng, 0))
	}
}

func TestBPR_TopPredictions(t *testing.T) {
	train := newTinyTrain(t)
	m := newZeroModel(t, train, []float32{0.1, 0.5, 0.9})
	assert.Equal(t, []int32{2, 1, 0}, m.TopPredictions(0, 3, false))
	assert.Equal(t, []int32{2, 1}, m.TopPredictions(0, 2, false))
	// u0 has seen item 0
	assert.Equal(t, []int32{2, 1}, m.TopPredictions(0, 3, true))
}

func TestBPR_Recommend(t *testing.T) {
	train := newTinyTrain(t)
	m := newZeroModel(t, train, []float32{0.1, 0.5, 0.9})
	ranked, err := m.Recommend(0, 3, true, false)
	assert.NoError(t, err)
	assert.Equal(t, []int32{2, 1}, ranked)
	_, err = m.Recommend(0, 3, false, true)
	assert.Error(t, err)

	unfitted := NewBPR(nil)
	_, err = unfitted.Recommend(0, 3, false, false)
	assert.Error(t, err)
}

func TestBPR_RecommendBatch(t *testing.T) {
	train := newTinyTrain(t)
	m := newZeroModel(t, train, []float32{0.1, 0.5, 0.9})
	results, err := m.RecommendBatch([]int32{0, 1}, 3, false, nil)
	assert.NoError(t, err)
	assert.Equal(t, []int32{2, 1, 0}, results[0])
	assert.Equal(t, []int32{2, 1, 0}, results[1])
	// masking sinks item 2 for u0
	results, err = m.RecommendBatch([]int32{0}, 3, true, [][]float32{{0, 0, 1}})
	assert.NoError(t, err)
	assert.Equal(t, []int32{1, 0, 2}, results[0])
	// errors
	_, err = m.RecommendBatch([]int32{0}, 3, true, nil)
	assert.Error(t, err)
	_, err = m.RecommendBatch([]int32{0, 1}, 3, true, [][]float32{{0, 0, 1}})
	assert.Error(t, err)
}

func TestBPR_Label(t *testing.T) {
	train, err := sparse.NewCSRFromTriplets(2, 4,
		[]int32{0, 1}, []int32{0, 1}, []float32{1, 1})
	assert.NoError(t, err)
	m := newZeroModel(t, train, []float32{0.9, 0.1, 0.5, 0.3})
	pool := []Pair{
		{User: 0, Item: 2}, // score 0.5
		{User: 1, Item: 0}, // score 0.9
		{User: 0, Item: 1}, // score 0.1
		{User: 1, Item: 3}, // score 0.3
	}
	labeled, meta, err := m.Label(pool, true, 1, 1)
	assert.NoError(t, err)
	assert.Equal(t, 1, meta.NumPositive)
	assert.Equal(t, 1, meta.NumNegative)
	assert.True(t, meta.Positive.Contains(Pair{User: 1, Item: 0}))
	assert.True(t, meta.Negative.Contains(Pair{User: 0, Item: 1}))
	// sorted by (user, item)
	assert.Equal(t, []LabeledPair{
		{User: 0, Item: 1, Rating: 0},
		{User: 1, Item: 0, Rating: 1},
	}, labeled)
	// explicit mode assigns rating-scale labels
	labeled, _, err = m.Label(pool, false, 1, 1)
	assert.NoError(t, err)
	assert.Equal(t, float32(1), labeled[0].Rating)
	assert.Equal(t, float32(5), labeled[1].Rating)
}

func TestBPR_LabelOverlap(t *testing.T) {
	train := newTinyTrain(t)
	m := newZeroModel(t, train, []float32{0.9, 0.5, 0.1})
	pool := []Pair{{User: 0, Item: 1}, {User: 0, Item: 2}}
	// label counts larger than the pool never double-label a pair
	labeled, meta, err := m.Label(pool, true, 2, 2)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(labeled))
	assert.Equal(t, 2, meta.NumPositive)
	assert.Equal(t, 0, meta.NumNegative)
	_, _, err = m.Label(pool, true, -1, 0)
	assert.Error(t, err)
}

func TestBPR_AUCTest(t *testing.T) {
	// item 3 never appears in training, so despite its top bias it must
	// neither count as a positive nor compete as a candidate
	train, err := sparse.NewCSRFromTriplets(3, 4,
		[]int32{0, 1, 2}, []int32{0, 1, 2}, []float32{1, 1, 1})
	assert.NoError(t, err)
	m := newZeroModel(t, train, []float32{0.4, 0.1, 0.5, 0.9})
	// u0 held-out item 2 (0.5) beats candidate 1 (0.1): AUC 1
	// u1 held-out item 0 (0.4) loses to candidate 2 (0.5): AUC 0
	// u2 held-out item 3 is untrained, so u2 contributes nothing
	auc, err := m.AUCTest([]Pair{{User: 0, Item: 2}, {User: 1, Item: 0}, {User: 2, Item: 3}})
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, auc, 1e-5)
	// out of range pairs are rejected
	_, err = m.AUCTest([]Pair{{User: 7, Item: 0}})
	assert.Error(t, err)
	// empty test set
	auc, err = m.AUCTest(nil)
	assert.NoError(t, err)
	assert.InDelta(t, 0, auc, 1e-5)
}
