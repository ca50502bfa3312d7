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

// Package mf implements matrix factorization trained with the Bayesian
// Personalized Ranking objective: stochastic gradient ascent over sampled
// (user, positive item, negative item) triplets.
package mf

import (
	"context"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/mindis/recsys-cotraining/base"
	"github.com/mindis/recsys-cotraining/base/log"
	"github.com/mindis/recsys-cotraining/common/floats"
	"github.com/mindis/recsys-cotraining/model"
	"github.com/mindis/recsys-cotraining/sparse"
)

// negative sampling falls back to exact complement sampling after this many
// rejected draws, so a user who has seen most of the catalog cannot stall
// the training loop
const maxNegativeAttempts = 32

// Pair is one (user, item) coordinate.
type Pair struct {
	User int32
	Item int32
}

// LabeledPair is a pair with an assigned rating.
type LabeledPair struct {
	User   int32
	Item   int32
	Rating float32
}

// LabelMeta reports which pairs a labeling pass selected, for agreement
// analysis between co-trained models.
type LabelMeta struct {
	NumPositive int
	NumNegative int
	Positive    mapset.Set[Pair]
	Negative    mapset.Set[Pair]
}

// BPR is a matrix factorization model with item biases:
//
//	score(u, i) = ItemBias[i] + dot(UserFactor[u], ItemFactor[i])
//
// Factor matrices are mutated in place by Fit only; every other consumer
// reads them without locking. Training is single-threaded over the update
// stream since concurrent in-place steps would lose updates.
type BPR struct {
	model.BaseModel
	UserFactor [][]float32
	ItemFactor [][]float32
	ItemBias   []float32
	train      *sparse.CSRMatrix
	seen       []*bitset.BitSet
	eligible   []int32
	// hyper-parameters
	nFactors   int
	nEpochs    int
	batchSize  int
	lr         float32
	regUser    float32
	regItemPos float32
	regItemNeg float32
	regBias    float32
	initMean   float32
	initStdDev float32
}

// NewBPR creates a BPR model.
func NewBPR(params model.Params) *BPR {
	m := new(BPR)
	m.SetParams(params)
	return m
}

// SetParams sets hyper-parameters.
func (m *BPR) SetParams(params model.Params) {
	m.BaseModel.SetParams(params)
	m.nFactors = m.Params.GetInt(model.NFactors, 20)
	m.nEpochs = m.Params.GetInt(model.NEpochs, 30)
	m.batchSize = m.Params.GetInt(model.BatchSize, 1)
	m.lr = m.Params.GetFloat32(model.Lr, 0.05)
	m.regUser = m.Params.GetFloat32(model.RegUser, 0.0025)
	m.regItemPos = m.Params.GetFloat32(model.RegItemPos, 0.0025)
	m.regItemNeg = m.Params.GetFloat32(model.RegItemNeg, 0.00025)
	m.regBias = m.Params.GetFloat32(model.RegBias, 0)
	m.initMean = m.Params.GetFloat32(model.InitMean, 0)
	m.initStdDev = m.Params.GetFloat32(model.InitStdDev, 0.001)
}

// Init allocates and randomly initializes the factor matrices for a training
// matrix. Called by Fit, exposed for querying an untrained model in tests.
func (m *BPR) Init(train *sparse.CSRMatrix) {
	rng := m.GetRandomGenerator()
	m.UserFactor = rng.NormalMatrix(train.Rows(), m.nFactors, m.initMean, m.initStdDev)
	m.ItemFactor = rng.NormalMatrix(train.Cols(), m.nFactors, m.initMean, m.initStdDev)
	m.ItemBias = make([]float32, train.Cols())
	m.attach(train)
}

func (m *BPR) attach(train *sparse.CSRMatrix) {
	m.train = train
	m.seen = make([]*bitset.BitSet, train.Rows())
	m.eligible = m.eligible[:0]
	for u := int32(0); u < int32(train.Rows()); u++ {
		m.seen[u] = bitset.New(uint(train.Cols()))
		indices, _ := train.Row(u)
		for _, i := range indices {
			m.seen[u].Set(uint(i))
		}
		// a triplet needs both a positive and a negative item, so users
		// with an empty row or a saturated row cannot be sampled
		if len(indices) > 0 && len(indices) < train.Cols() {
			m.eligible = append(m.eligible, u)
		}
	}
}

// Fit trains the model. The total step count is nEpochs * nnz / batchSize;
// each step draws batchSize fresh triplets and applies one gradient-ascent
// update per triplet with a fixed learning rate.
func (m *BPR) Fit(ctx context.Context, train *sparse.CSRMatrix, config *model.FitConfig) error {
	config = config.LoadDefaultIfNil()
	start := time.Now()
	m.ResetRandomGenerator()
	m.Init(train)
	if train.NNZ() == 0 {
		return errors.Errorf("bpr: no user has any training interaction")
	}
	if len(m.eligible) == 0 {
		return errors.Errorf("bpr: every interacting user has seen the full catalog, no triplet can be sampled")
	}
	if m.batchSize < 1 {
		return errors.Errorf("bpr: batch size must be positive, got %d", m.batchSize)
	}
	steps := m.nEpochs * train.NNZ() / m.batchSize
	rng := m.GetRandomGenerator()
	userBuf := make([]float32, m.nFactors)
	diff := make([]float32, m.nFactors)
	grad := make([]float32, m.nFactors)
	logPeriod := base.Max(1, steps*config.Verbose/100)
	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		for s := 0; s < m.batchSize; s++ {
			u, i, j := m.sampleTriplet(rng)
			m.update(u, i, j, userBuf, diff, grad)
		}
		if config.Verbose > 0 && (step+1)%logPeriod == 0 {
			log.Logger().Debug("fit bpr",
				zap.Int("step", step+1),
				zap.Int("total_steps", steps))
		}
	}
	log.Logger().Info("fit bpr",
		zap.Int("n_factors", m.nFactors),
		zap.Int("steps", steps),
		zap.Duration("fit_time", time.Since(start)))
	return nil
}

// sampleTriplet draws one training sample: a uniform eligible user, a
// uniform positive from the user's seen set and a rejection-sampled
// negative. Eligible users always have an unseen item, so a draw never
// needs a retry.
func (m *BPR) sampleTriplet(rng base.RandomGenerator) (u, i, j int32) {
	u = m.eligible[rng.Intn(len(m.eligible))]
	indices, _ := m.train.Row(u)
	i = indices[rng.Intn(len(indices))]
	j = m.sampleNegative(rng, u)
	return
}

// sampleNegative draws a uniform unseen item for a user with at least one
// unseen item.
func (m *BPR) sampleNegative(rng base.RandomGenerator, u int32) int32 {
	nItems := int32(m.train.Cols())
	for attempt := 0; attempt < maxNegativeAttempts; attempt++ {
		j := rng.Int31n(nItems)
		if !m.seen[u].Test(uint(j)) {
			return j
		}
	}
	// dense seen set, sample the complement exactly
	complement := make([]int32, 0, nItems-int32(m.seen[u].Count()))
	for v, ok := m.seen[u].NextClear(0); ok && v < uint(nItems); v, ok = m.seen[u].NextClear(v + 1) {
		complement = append(complement, int32(v))
	}
	return complement[rng.Intn(len(complement))]
}

// update applies one gradient-ascent step on the log-sigmoid pairwise
// objective for the triplet (u, i, j).
func (m *BPR) update(u, i, j int32, userBuf, diff, grad []float32) {
	x := m.ItemBias[i] - m.ItemBias[j] +
		floats.Dot(m.UserFactor[u], m.ItemFactor[i]) -
		floats.Dot(m.UserFactor[u], m.ItemFactor[j])
	z := math32.Exp(-x) / (1 + math32.Exp(-x))
	copy(userBuf, m.UserFactor[u])
	// user factor
	floats.SubTo(m.ItemFactor[i], m.ItemFactor[j], diff)
	floats.MulConstTo(diff, z, grad)
	floats.MulConstAdd(userBuf, -m.regUser, grad)
	floats.MulConstAdd(grad, m.lr, m.UserFactor[u])
	// positive item factor
	floats.MulConstTo(userBuf, z, grad)
	floats.MulConstAdd(m.ItemFactor[i], -m.regItemPos, grad)
	floats.MulConstAdd(grad, m.lr, m.ItemFactor[i])
	// negative item factor
	floats.MulConstTo(userBuf, -z, grad)
	floats.MulConstAdd(m.ItemFactor[j], -m.regItemNeg, grad)
	floats.MulConstAdd(grad, m.lr, m.ItemFactor[j])
	// item biases
	m.ItemBias[i] += m.lr * (z - m.regBias*m.ItemBias[i])
	m.ItemBias[j] += m.lr * (-z - m.regBias*m.ItemBias[j])
}

// Predict returns the score of one (user, item) coordinate.
func (m *BPR) Predict(user, item int32) float32 {
	return m.ItemBias[item] + floats.Dot(m.UserFactor[user], m.ItemFactor[item])
}

// Predictions returns the full catalog score vector for one user.
func (m *BPR) Predictions(user int32) []float32 {
	scores := make([]float32, len(m.ItemBias))
	for item := range m.ItemBias {
		scores[item] = m.ItemBias[item] + floats.Dot(m.UserFactor[user], m.ItemFactor[item])
	}
	return scores
}

// TopPredictions returns up to n items sorted by descending score.
func (m *BPR) TopPredictions(user int32, n int, excludeSeen bool) []int32 {
	scores := m.Predictions(user)
	ranked := argsortDescending(scores)
	result := make([]int32, 0, n)
	for _, item := range ranked {
		if len(result) >= n {
			break
		}
		if excludeSeen && m.seen[user].Test(uint(item)) {
			continue
		}
		result = append(result, item)
	}
	return result
}
