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

// Package knn implements an item-based collaborative filtering recommender:
// item-item similarities are learned from co-occurrence in the training
// matrix, sparsified column-wise to the top K neighbors, and scores come
// from the product of a user's profile with the weight matrix.
package knn

import (
	"context"
	"sort"
	"time"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/mindis/recsys-cotraining/base"
	"github.com/mindis/recsys-cotraining/base/log"
	"github.com/mindis/recsys-cotraining/common/floats"
	"github.com/mindis/recsys-cotraining/common/parallel"
	"github.com/mindis/recsys-cotraining/model"
	"github.com/mindis/recsys-cotraining/sparse"
)

const epsilon = 1e-6

// ItemKNN is an item-based neighborhood recommender. The weight matrix is
// read-only after Fit, so concurrent Recommend calls need no locking.
type ItemKNN struct {
	model.BaseModel
	train   *sparse.CSRMatrix
	weights *sparse.CSRMatrix
	dense   *mat.Dense
	topPop  mapset.Set[int32]
	// hyper-parameters
	similarity string
	topK       int
	normalize  bool
}

// NewItemKNN creates an item-based neighborhood recommender.
func NewItemKNN(params model.Params) *ItemKNN {
	m := new(ItemKNN)
	m.SetParams(params)
	return m
}

// SetParams sets hyper-parameters.
func (m *ItemKNN) SetParams(params model.Params) {
	m.BaseModel.SetParams(params)
	m.similarity = m.Params.GetString(model.Similarity, "cosine")
	m.topK = m.Params.GetInt(model.TopK, 50)
	m.normalize = m.Params.GetBool(model.Normalize, false)
}

// SetTopPopFilter installs the set of globally popular items dropped from
// rankings when filterTopPop is requested.
func (m *ItemKNN) SetTopPopFilter(items []int32) {
	m.topPop = mapset.NewSet(items...)
}

// Weights returns the sparsified similarity matrix. Nil before Fit.
func (m *ItemKNN) Weights() *sparse.CSRMatrix {
	return m.weights
}

// DenseWeights returns the full similarity matrix before sparsification.
// Nil before Fit.
func (m *ItemKNN) DenseWeights() *mat.Dense {
	return m.dense
}

// Fit computes the item-item similarity matrix from the training matrix and
// keeps the topK most similar neighbors per column. Each call retrains from
// scratch.
func (m *ItemKNN) Fit(ctx context.Context, train *sparse.CSRMatrix, config *model.FitConfig) error {
	config = config.LoadDefaultIfNil()
	start := time.Now()
	m.ResetRandomGenerator()
	m.train = train
	nItems := train.Cols()
	// co-occurrence counts over binarized interactions
	similarity := mat.NewDense(nItems, nItems, nil)
	for u := int32(0); u < int32(train.Rows()); u++ {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		indices, _ := train.Row(u)
		for _, i := range indices {
			for _, j := range indices {
				if i != j {
					similarity.Set(int(i), int(j), similarity.At(int(i), int(j))+1)
				}
			}
		}
	}
	if m.similarity == "cosine" {
		norms := make([]float32, nItems)
		for u := int32(0); u < int32(train.Rows()); u++ {
			indices, _ := train.Row(u)
			for _, i := range indices {
				norms[i]++
			}
		}
		for i := range norms {
			norms[i] = math32.Sqrt(norms[i])
		}
		// rows are disjoint, safe to normalize concurrently
		if err := parallel.Parallel(ctx, nItems, config.Jobs, func(_, i int) error {
			for j := 0; j < nItems; j++ {
				if v := similarity.At(i, j); v != 0 {
					similarity.Set(i, j, v/float64(norms[i]*norms[j]))
				}
			}
			return nil
		}); err != nil {
			return errors.Trace(err)
		}
	} else if m.similarity != "dot" {
		return errors.Errorf("knn: unknown similarity %q", m.similarity)
	}
	m.dense = similarity
	weights, err := sparse.TopKDense(similarity, m.topK)
	if err != nil {
		return errors.Trace(err)
	}
	m.weights = weights
	log.Logger().Info("fit item knn",
		zap.String("similarity", m.similarity),
		zap.Int("top_k", m.topK),
		zap.Int("weight_nnz", weights.NNZ()),
		zap.Duration("fit_time", time.Since(start)))
	return nil
}

// scores computes the full catalog score vector for one sparse profile:
// profile · W, reading the sparse weight matrix row-wise.
func (m *ItemKNN) scores(indices []int32, values []float32) ([]float32, error) {
	if m.weights == nil {
		return nil, errors.Errorf("knn: model is not fitted")
	}
	for _, i := range indices {
		if int(i) >= m.weights.Rows() {
			return nil, errors.Errorf("knn: profile item %d out of range for %d weights", i, m.weights.Rows())
		}
	}
	scores := make([]float32, m.weights.Cols())
	for k, i := range indices {
		neighbors, similarities := m.weights.Row(i)
		for p, j := range neighbors {
			scores[j] += values[k] * similarities[p]
		}
	}
	if m.normalize {
		denominator := make([]float32, m.weights.Cols())
		for _, i := range indices {
			neighbors, similarities := m.weights.Row(i)
			for p, j := range neighbors {
				denominator[j] += similarities[p]
			}
		}
		for j := range denominator {
			if math32.Abs(denominator[j]) < epsilon {
				denominator[j] = 1
			}
		}
		floats.Div(scores, denominator)
	}
	return scores, nil
}

// Recommend returns up to n items for a user sorted by descending score.
func (m *ItemKNN) Recommend(user int32, n int, excludeSeen, filterTopPop bool) ([]int32, error) {
	if m.train == nil {
		return nil, errors.Errorf("knn: model is not fitted")
	}
	indices, values := m.train.Row(user)
	scores, err := m.scores(indices, values)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ranked := argsortDescending(scores)
	result := make([]int32, 0, n)
	seen := mapset.NewSet(indices...)
	for _, j := range ranked {
		if len(result) >= n {
			break
		}
		if excludeSeen && seen.Contains(j) {
			continue
		}
		if filterTopPop && m.topPop != nil && m.topPop.Contains(j) {
			continue
		}
		result = append(result, j)
	}
	return result, nil
}

// RecommendBatch ranks items for a block of users. Seen items are masked to
// -Inf instead of removed, so they sink to the bottom of the ranking.
// Normalization is unsupported here and fails loudly.
func (m *ItemKNN) RecommendBatch(users []int32, n int, excludeSeen bool, relevantItems [][]float32) ([][]int32, error) {
	if m.train == nil {
		return nil, errors.Errorf("knn: model is not fitted")
	}
	if m.normalize {
		return nil, errors.Errorf("knn: normalization is not supported in batch scoring")
	}
	if excludeSeen && relevantItems == nil {
		return nil, errors.Errorf("knn: seen-item exclusion requires relevant items")
	}
	if relevantItems != nil && len(relevantItems) != len(users) {
		return nil, errors.Errorf("knn: %d users but %d relevant item rows", len(users), len(relevantItems))
	}
	results := make([][]int32, len(users))
	for idx, user := range users {
		indices, values := m.train.Row(user)
		scores, err := m.scores(indices, values)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if excludeSeen {
			for j, v := range relevantItems[idx] {
				if v != 0 {
					scores[j] = math32.Inf(-1)
				}
			}
		}
		ranked := argsortDescending(scores)
		if n < len(ranked) {
			ranked = ranked[:n]
		}
		results[idx] = ranked
	}
	return results, nil
}

// argsortDescending returns item indices ordered by strictly descending
// score. The sort is stable over ascending indices, so ties keep the lower
// item index first and the order is deterministic.
func argsortDescending(scores []float32) []int32 {
	ranked := base.RangeInt32(len(scores))
	sort.SliceStable(ranked, func(a, b int) bool {
		return scores[ranked[a]] > scores[ranked[b]]
	})
	return ranked
}
