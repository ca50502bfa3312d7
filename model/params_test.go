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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParams(t *testing.T) {
	p := Params{
		Lr:          0.05,
		NEpochs:     30,
		RandomState: int64(42),
		Similarity:  "cosine",
		Normalize:   true,
	}
	assert.Equal(t, float32(0.05), p.GetFloat32(Lr, 0))
	assert.Equal(t, 30, p.GetInt(NEpochs, 0))
	assert.Equal(t, int64(42), p.GetInt64(RandomState, 0))
	assert.Equal(t, "cosine", p.GetString(Similarity, ""))
	assert.Equal(t, true, p.GetBool(Normalize, false))
	// defaults
	assert.Equal(t, 20, p.GetInt(NFactors, 20))
	assert.Equal(t, float32(0.1), p.GetFloat32(RegUser, 0.1))
	// type mismatch falls back to the default
	assert.Equal(t, 7, p.GetInt(Similarity, 7))
	// int converts to int64 and float32
	q := Params{NEpochs: 10}
	assert.Equal(t, int64(10), q.GetInt64(NEpochs, 0))
	assert.Equal(t, float32(10), q.GetFloat32(NEpochs, 0))
}

func TestParamsCopyOverwrite(t *testing.T) {
	p := Params{Lr: 0.1, NEpochs: 10}
	c := p.Copy()
	c[Lr] = 0.2
	assert.Equal(t, float32(0.1), p.GetFloat32(Lr, 0))
	merged := p.Overwrite(Params{NEpochs: 20, NFactors: 5})
	assert.Equal(t, float32(0.1), merged.GetFloat32(Lr, 0))
	assert.Equal(t, 20, merged.GetInt(NEpochs, 0))
	assert.Equal(t, 5, merged.GetInt(NFactors, 0))
}
