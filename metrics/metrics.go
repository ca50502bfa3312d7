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

// Package metrics implements ranking quality metrics as pure functions over
// a relevance vector aligned with a ranked item list. All metrics return a
// scalar in [0, 1].
package metrics

import (
	"sort"

	"github.com/chewxy/math32"
)

// ROCAUC returns the area under the ROC curve of a ranked list: the fraction
// of (relevant, irrelevant) pairs where the relevant item is ranked higher.
// A list without relevant items scores 0, one made only of relevant items
// scores 1.
func ROCAUC(isRelevant []bool) float32 {
	numPos, numNeg := 0, 0
	var correctPairs float32
	// walking the ranking top-down, every relevant item beats all
	// irrelevant items that come after it
	negAfter := 0
	for _, rel := range isRelevant {
		if !rel {
			negAfter++
		}
	}
	numNeg = negAfter
	for _, rel := range isRelevant {
		if rel {
			numPos++
			correctPairs += float32(negAfter)
		} else {
			negAfter--
		}
	}
	if numPos == 0 {
		return 0
	}
	if numNeg == 0 {
		return 1
	}
	return correctPairs / float32(numPos*numNeg)
}

// Precision returns the fraction of recommended items that are relevant.
func Precision(isRelevant []bool) float32 {
	if len(isRelevant) == 0 {
		return 0
	}
	return float32(countTrue(isRelevant)) / float32(len(isRelevant))
}

// Recall returns the fraction of relevant items that were recommended.
func Recall(isRelevant []bool, numRelevant int) float32 {
	if numRelevant == 0 {
		return 0
	}
	return float32(countTrue(isRelevant)) / float32(numRelevant)
}

// MAP returns the mean average precision of a ranked list: precision@k
// averaged over the positions of relevant items, normalized by the smaller
// of the list length and the number of relevant items.
func MAP(isRelevant []bool, numRelevant int) float32 {
	denominator := min(len(isRelevant), numRelevant)
	if denominator == 0 {
		return 0
	}
	var sum float32
	hits := 0
	for k, rel := range isRelevant {
		if rel {
			hits++
			sum += float32(hits) / float32(k+1)
		}
	}
	return sum / float32(denominator)
}

// RR returns the reciprocal rank of the first relevant item, or 0 when no
// recommended item is relevant.
func RR(isRelevant []bool) float32 {
	for k, rel := range isRelevant {
		if rel {
			return 1 / float32(k+1)
		}
	}
	return 0
}

// NDCG returns the normalized discounted cumulative gain of a ranked list
// truncated at `at` positions, given graded relevance weights for the
// relevant items. Gains are exponential (2^rel - 1); the ideal ordering is
// derived from the full relevance map.
func NDCG(ranked []int32, relevance map[int32]float32, at int) float32 {
	if at >= 0 && at < len(ranked) {
		ranked = ranked[:at]
	}
	var rankDCG float32
	for k, item := range ranked {
		rankDCG += gain(relevance[item]) / math32.Log2(float32(k)+2)
	}
	ideal := make([]float32, 0, len(relevance))
	for _, rel := range relevance {
		ideal = append(ideal, rel)
	}
	sort.Slice(ideal, func(i, j int) bool { return ideal[i] > ideal[j] })
	var idealDCG float32
	for k, rel := range ideal {
		idealDCG += gain(rel) / math32.Log2(float32(k)+2)
	}
	if idealDCG == 0 {
		return 0
	}
	return rankDCG / idealDCG
}

func gain(relevance float32) float32 {
	return math32.Exp2(relevance) - 1
}

func countTrue(a []bool) (n int) {
	for _, v := range a {
		if v {
			n++
		}
	}
	return
}
