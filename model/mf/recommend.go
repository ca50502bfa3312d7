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
	"sort"

	"github.com/chewxy/math32"
	"github.com/juju/errors"

	"github.com/mindis/recsys-cotraining/base"
)

// Recommend returns up to n items for a user sorted by descending score.
// Top-popular filtering is a neighborhood-model concern and is rejected
// here.
func (m *BPR) Recommend(user int32, n int, excludeSeen, filterTopPop bool) ([]int32, error) {
	if m.train == nil {
		return nil, errors.Errorf("bpr: model is not fitted")
	}
	if filterTopPop {
		return nil, errors.Errorf("bpr: top popular filtering is not supported")
	}
	return m.TopPredictions(user, n, excludeSeen), nil
}

// RecommendBatch ranks items for a block of users. Seen items are masked to
// -Inf instead of removed, so they sink to the bottom of the ranking.
func (m *BPR) RecommendBatch(users []int32, n int, excludeSeen bool, relevantItems [][]float32) ([][]int32, error) {
	if m.train == nil {
		return nil, errors.Errorf("bpr: model is not fitted")
	}
	if excludeSeen && relevantItems == nil {
		return nil, errors.Errorf("bpr: seen-item exclusion requires relevant items")
	}
	if relevantItems != nil && len(relevantItems) != len(users) {
		return nil, errors.Errorf("bpr: %d users but %d relevant item rows", len(users), len(relevantItems))
	}
	results := make([][]int32, len(users))
	for idx, user := range users {
		scores := m.Predictions(user)
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
// score, ties keeping the lower item index first.
func argsortDescending(scores []float32) []int32 {
	ranked := base.RangeInt32(len(scores))
	sort.SliceStable(ranked, func(a, b int) bool {
		return scores[ranked[a]] > scores[ranked[b]]
	})
	return ranked
}
