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
	"github.com/mindis/recsys-cotraining/sparse"
)

// userEntry holds the per-user slices re-used across repeated evaluation
// calls: the training profile and the held-out test items with their
// ratings.
type userEntry struct {
	trainItems  []int32
	trainValues []float32
	testItems   []int32
	testRatings []float32
}

// Cache is the fast-validation state of an evaluator. It is rebuilt when
// the test matrix changes structurally (shape, nonzero pattern or values)
// and reused otherwise. The rebuild counter exists so reuse is observable.
type Cache struct {
	entries  []userEntry
	lastTest *sparse.CSRMatrix
	rebuilds int
}

// Rebuilds returns how many times the cache was built.
func (c *Cache) Rebuilds() int {
	return c.rebuilds
}

// ensure makes the cache match the given train/test pair. With fast
// validation the cache is reused only when the test matrix is structurally
// equal to the last one seen; without it the cache is rebuilt
// unconditionally.
func (c *Cache) ensure(train, test *sparse.CSRMatrix, fastValidation bool) {
	if fastValidation && c.lastTest != nil && sparse.Equal(test, c.lastTest) {
		return
	}
	c.rebuilds++
	c.lastTest = test
	c.entries = make([]userEntry, train.Rows())
	for u := int32(0); u < int32(train.Rows()); u++ {
		entry := &c.entries[u]
		entry.trainItems, entry.trainValues = train.Row(u)
		entry.testItems, entry.testRatings = test.Row(u)
	}
}
