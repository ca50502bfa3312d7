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
	"github.com/bits-and-blooms/bitset"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
)

// AUCTest computes held-out AUC by brute force: for every user, every
// held-out positive item is compared against every item absent from both the
// user's training set and the held-out set, and the fraction of correct
// orderings is averaged over users. Items nobody interacted with during
// training are skipped on both sides of the comparison, their factors and
// biases were never updated and score only initialization noise. Cost is
// O(catalog) per positive item per user, intended for small offline
// experiments only.
func (m *BPR) AUCTest(test []Pair) (float32, error) {
	if m.train == nil {
		return 0, errors.Errorf("bpr: model is not fitted")
	}
	nItems := int32(m.train.Cols())
	heldOut := make(map[int32]mapset.Set[int32])
	for _, p := range test {
		if p.User < 0 || int(p.User) >= m.train.Rows() || p.Item < 0 || p.Item >= nItems {
			return 0, errors.Errorf("bpr: test pair (%d, %d) outside the trained matrix", p.User, p.Item)
		}
		if m.train.RowNNZ(p.User) == 0 {
			// user unobserved during training, factors are noise
			continue
		}
		if _, ok := heldOut[p.User]; !ok {
			heldOut[p.User] = mapset.NewSet[int32]()
		}
		heldOut[p.User].Add(p.Item)
	}
	trained := bitset.New(uint(nItems))
	for u := int32(0); u < int32(m.train.Rows()); u++ {
		indices, _ := m.train.Row(u)
		for _, i := range indices {
			trained.Set(uint(i))
		}
	}
	var sum float32
	numUsers := 0
	for u, positives := range heldOut {
		scores := m.Predictions(u)
		correct, total := 0, 0
		for i := range positives.Iter() {
			if !trained.Test(uint(i)) {
				continue
			}
			for j := int32(0); j < nItems; j++ {
				if !trained.Test(uint(j)) || m.seen[u].Test(uint(j)) || positives.Contains(j) {
					continue
				}
				total++
				if scores[i] > scores[j] {
					correct++
				}
			}
		}
		if total > 0 {
			sum += float32(correct) / float32(total)
			numUsers++
		}
	}
	if numUsers == 0 {
		return 0, nil
	}
	return sum / float32(numUsers), nil
}
