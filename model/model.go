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

package model

import (
	"context"

	"github.com/mindis/recsys-cotraining/base"
	"github.com/mindis/recsys-cotraining/sparse"
)

// Recommender is the contract every concrete model fulfills so a single
// evaluation harness can drive it. Fit is idempotent: calling it again
// retrains from scratch on the given matrix.
type Recommender interface {
	SetParams(params Params)
	GetParams() Params
	// Fit trains the model on an interaction matrix.
	Fit(ctx context.Context, train *sparse.CSRMatrix, config *FitConfig) error
	// Recommend returns up to n item indices for a user, sorted by strictly
	// descending score. excludeSeen drops the user's training items,
	// filterTopPop drops globally popular items when the model supports it.
	Recommend(user int32, n int, excludeSeen, filterTopPop bool) ([]int32, error)
	// RecommendBatch ranks items for a block of users at once. Seen items are
	// pushed to the bottom by score masking, driven by the relevantItems
	// block (one dense row per user, nonzero marks seen).
	RecommendBatch(users []int32, n int, excludeSeen bool, relevantItems [][]float32) ([][]int32, error)
}

// FitConfig tunes a single training run without touching the model's
// hyper-parameters.
type FitConfig struct {
	Jobs    int
	Verbose int
}

// NewFitConfig creates the default training configuration: single-threaded,
// progress logged every 10 iterations.
func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
	}
}

// SetJobs sets the number of concurrent workers.
func (config *FitConfig) SetJobs(nJobs int) *FitConfig {
	config.Jobs = nJobs
	return config
}

// SetVerbose sets the logging period.
func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

// LoadDefaultIfNil returns the default configuration when config is nil.
func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

// BaseModel holds the hyper-parameters and the seeded random source shared
// by all models.
type BaseModel struct {
	Params    Params
	rng       base.RandomGenerator
	randState int64
}

// SetParams sets hyper-parameters and reseeds the random source.
func (model *BaseModel) SetParams(params Params) {
	model.Params = params
	model.randState = model.Params.GetInt64(RandomState, 0)
	model.rng = base.NewRandomGenerator(model.randState)
}

// GetParams returns hyper-parameters.
func (model *BaseModel) GetParams() Params {
	return model.Params
}

// GetRandomGenerator returns the model's random source.
func (model *BaseModel) GetRandomGenerator() base.RandomGenerator {
	return model.rng
}

// ResetRandomGenerator reseeds the random source from the stored random
// state so repeated Fit calls start from the same draw sequence.
func (model *BaseModel) ResetRandomGenerator() {
	model.rng = base.NewRandomGenerator(model.randState)
}
