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

package knn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mindis/recsys-cotraining/model"
	"github.com/mindis/recsys-cotraining/sparse"
)

// three users over four items:
//
//	u0: {0, 1}
//	u1: {1, 2}
//	u2: {0, 2, 3}
func newTrainMatrix(t *testing.T) *sparse.CSRMatrix {
	train, err := sparse.NewCSRFromTriplets(3, 4,
		[]int32{0, 0, 1, 1, 2, 2, 2},
		[]int32{0, 1, 1, 2, 0, 2, 3},
		[]float32{1, 1, 1, 1, 1, 1, 1})
	assert.NoError(t, err)
	return train
}

func TestItemKNN_FitCosine(t *testing.T) {
	m := NewItemKNN(model.Params{model.TopK: 4})
	err := m.Fit(context.Background(), newTrainMatrix(t), nil)
	assert.NoError(t, err)
	// items 0 and 1 co-occur once, each seen by two users
	w := m.Weights().ToCSC()
	rows, values := w.Col(1)
	assert.Contains(t, rows, int32(0))
	for k, i := range rows {
		if i == 0 {
			assert.InDelta(t, 0.5, values[k], 1e-5)
		}
	}
	// self-similarity is never stored
	for j := int32(0); j < 4; j++ {
		rows, _ := w.Col(j)
		assert.NotContains(t, rows, j)
	}
	assert.NotNil(t, m.DenseWeights())
}

func TestItemKNN_FitUnknownSimilarity(t *testing.T) {
	m := NewItemKNN(model.Params{model.Similarity: "pearson"})
	err := m.Fit(context.Background(), newTrainMatrix(t), nil)
	assert.Error(t, err)
}

func TestItemKNN_Recommend(t *testing.T) {
	m := NewItemKNN(model.Params{model.Similarity: "dot", model.TopK: 4})
	err := m.Fit(context.Background(), newTrainMatrix(t), nil)
	assert.NoError(t, err)
	// u0 scores: item2 = 2, items 0, 1, 3 = 1; ties keep the lower index
	ranked, err := m.Recommend(0, 4, false, false)
	assert.NoError(t, err)
	assert.Equal(t, []int32{2, 0, 1, 3}, ranked)
	// truncation
	ranked, err = m.Recommend(0, 2, false, false)
	assert.NoError(t, err)
	assert.Equal(t, []int32{2, 0}, ranked)
	// seen exclusion drops items 0 and 1
	ranked, err = m.Recommend(0, 4, true, false)
	assert.NoError(t, err)
	assert.Equal(t, []int32{2, 3}, ranked)
	// top popular filter
	m.SetTopPopFilter([]int32{2})
	ranked, err = m.Recommend(0, 4, false, true)
	assert.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 3}, ranked)
}

func TestItemKNN_RecommendNotFitted(t *testing.T) {
	m := NewItemKNN(nil)
	_, err := m.Recommend(0, 10, false, false)
	assert.Error(t, err)
}

func TestItemKNN_RecommendBatch(t *testing.T) {
	m := NewItemKNN(model.Params{model.Similarity: "dot", model.TopK: 4})
	err := m.Fit(context.Background(), newTrainMatrix(t), nil)
	assert.NoError(t, err)
	results, err := m.RecommendBatch([]int32{0, 1}, 4, false, nil)
	assert.NoError(t, err)
	assert.Equal(t, []int32{2, 0, 1, 3}, results[0])
	// masking pushes seen items to the bottom instead of removing them
	results, err = m.RecommendBatch([]int32{0}, 4, true, [][]float32{{1, 1, 0, 0}})
	assert.NoError(t, err)
	assert.Equal(t, []int32{2, 3, 0, 1}, results[0])
	// truncation
	results, err = m.RecommendBatch([]int32{0}, 2, true, [][]float32{{1, 1, 0, 0}})
	assert.NoError(t, err)
	assert.Equal(t, []int32{2, 3}, results[0])
}

func TestItemKNN_RecommendBatchErrors(t *testing.T) {
	m := NewItemKNN(model.Params{model.Similarity: "dot", model.Normalize: true})
	err := m.Fit(context.Background(), newTrainMatrix(t), nil)
	assert.NoError(t, err)
	_, err = m.RecommendBatch([]int32{0}, 4, false, nil)
	assert.Error(t, err)

	m = NewItemKNN(model.Params{model.Similarity: "dot"})
	err = m.Fit(context.Background(), newTrainMatrix(t), nil)
	assert.NoError(t, err)
	_, err = m.RecommendBatch([]int32{0}, 4, true, nil)
	assert.Error(t, err)
	_, err = m.RecommendBatch([]int32{0, 1}, 4, true, [][]float32{{1, 1, 0, 0}})
	assert.Error(t, err)
}

func TestItemKNN_Normalize(t *testing.T) {
	m := NewItemKNN(model.Params{model.Similarity: "dot", model.Normalize: true, model.TopK: 4})
	err := m.Fit(context.Background(), newTrainMatrix(t), nil)
	assert.NoError(t, err)
	// binarized profile equals the raw profile here, so every scored item
	// normalizes to 1 and ties resolve by item index
	ranked, err := m.Recommend(0, 4, false, false)
	assert.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2, 3}, ranked)
}
