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

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mindis/recsys-cotraining/base"
	"github.com/mindis/recsys-cotraining/base/log"
)

// rating values assigned to hard labels
const (
	binaryPositiveLabel   = 1
	binaryNegativeLabel   = 0
	explicitPositiveLabel = 5
	explicitNegativeLabel = 1
)

// Label scores a pool of unlabeled (user, item) pairs and hard-labels the
// pMost highest-scored pairs positive and the nMost lowest-scored pairs
// negative. Scoring is batched by unique user: one full catalog prediction
// per user regardless of how many pool pairs it appears in. The labeled
// pairs come back sorted by (user, item) for cheap sparse assignment.
func (m *BPR) Label(pool []Pair, binary bool, pMost, nMost int) ([]LabeledPair, *LabelMeta, error) {
	if m.train == nil {
		return nil, nil, errors.Errorf("bpr: model is not fitted")
	}
	if pMost < 0 || nMost < 0 {
		return nil, nil, errors.Errorf("bpr: label counts must be non-negative, got %d and %d", pMost, nMost)
	}
	users := lo.Uniq(lo.Map(pool, func(p Pair, _ int) int32 { return p.User }))
	predictions := make(map[int32][]float32, len(users))
	for _, u := range users {
		predictions[u] = m.Predictions(u)
	}
	scores := make([]float32, len(pool))
	for k, p := range pool {
		scores[k] = predictions[p.User][p.Item]
	}
	order := make([]int, len(pool))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	pMost = base.Min(pMost, len(pool))
	nMost = base.Min(nMost, len(pool)-pMost)
	positiveLabel, negativeLabel := float32(explicitPositiveLabel), float32(explicitNegativeLabel)
	if binary {
		positiveLabel, negativeLabel = binaryPositiveLabel, binaryNegativeLabel
	}
	meta := &LabelMeta{
		NumPositive: pMost,
		NumNegative: nMost,
		Positive:    mapset.NewSet[Pair](),
		Negative:    mapset.NewSet[Pair](),
	}
	labeled := make([]LabeledPair, 0, pMost+nMost)
	for _, k := range order[:pMost] {
		labeled = append(labeled, LabeledPair{User: pool[k].User, Item: pool[k].Item, Rating: positiveLabel})
		meta.Positive.Add(pool[k])
	}
	for _, k := range order[len(order)-nMost:] {
		labeled = append(labeled, LabeledPair{User: pool[k].User, Item: pool[k].Item, Rating: negativeLabel})
		meta.Negative.Add(pool[k])
	}
	sort.Slice(labeled, func(a, b int) bool {
		if labeled[a].User != labeled[b].User {
			return labeled[a].User < labeled[b].User
		}
		return labeled[a].Item < labeled[b].Item
	})
	log.Logger().Info("label pairs",
		zap.Int("pool_size", len(pool)),
		zap.Int("n_positive", pMost),
		zap.Int("n_negative", nMost))
	return labeled, meta, nil
}
