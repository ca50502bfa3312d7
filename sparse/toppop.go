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

package sparse

import (
	"sort"

	"github.com/juju/errors"

	"github.com/mindis/recsys-cotraining/base"
)

// RemoveTopPop removes the most popular items from an interaction matrix.
// Popularity is the per-item interaction count in a, or in the logical OR of
// a and b when b is non-nil. The floor(p * nItems) most popular columns are
// dropped. It returns the reduced matrix built from a, an increasing mapping
// from new column index to original item index, and the removed original
// item indices.
func RemoveTopPop(a, b *CSRMatrix, p float64) (*CSRMatrix, []int32, []int32, error) {
	if p < 0 || p > 1 {
		return nil, nil, nil, errors.Errorf("sparse: removal fraction must be in [0, 1], got %v", p)
	}
	if b != nil && (a.Rows() != b.Rows() || a.Cols() != b.Cols()) {
		return nil, nil, nil, errors.Errorf("sparse: matrix shapes do not match (%dx%d vs %dx%d)",
			a.Rows(), a.Cols(), b.Rows(), b.Cols())
	}
	nItems := a.Cols()
	counts := make([]int, nItems)
	for i := int32(0); i < int32(a.Rows()); i++ {
		indicesA, _ := a.Row(i)
		if b == nil {
			for _, j := range indicesA {
				counts[j]++
			}
			continue
		}
		// merge the two sorted index slices, each union member counts once
		indicesB, _ := b.Row(i)
		x, y := 0, 0
		for x < len(indicesA) || y < len(indicesB) {
			switch {
			case y == len(indicesB) || (x < len(indicesA) && indicesA[x] < indicesB[y]):
				counts[indicesA[x]]++
				x++
			case x == len(indicesA) || indicesB[y] < indicesA[x]:
				counts[indicesB[y]]++
				y++
			default:
				counts[indicesA[x]]++
				x++
				y++
			}
		}
	}
	// order items by descending popularity, larger index first among ties
	order := base.RangeInt32(nItems)
	sort.SliceStable(order, func(x, y int) bool {
		if counts[order[x]] != counts[order[y]] {
			return counts[order[x]] > counts[order[y]]
		}
		return order[x] > order[y]
	})
	numRemove := int(p * float64(nItems))
	removedSet := make([]bool, nItems)
	for _, j := range order[:numRemove] {
		removedSet[j] = true
	}
	mapping := make([]int32, 0, nItems-numRemove)
	removed := make([]int32, 0, numRemove)
	newIndex := make([]int32, nItems)
	for j := 0; j < nItems; j++ {
		if removedSet[j] {
			newIndex[j] = -1
			removed = append(removed, int32(j))
		} else {
			newIndex[j] = int32(len(mapping))
			mapping = append(mapping, int32(j))
		}
	}
	// rebuild the reduced matrix from a with columns remapped
	reduced := &CSRMatrix{
		rows:   a.Rows(),
		cols:   len(mapping),
		rowPtr: make([]int, a.Rows()+1),
	}
	for i := int32(0); i < int32(a.Rows()); i++ {
		indices, values := a.Row(i)
		for k, j := range indices {
			if newIndex[j] >= 0 {
				reduced.colInd = append(reduced.colInd, newIndex[j])
				reduced.values = append(reduced.values, values[k])
				reduced.rowPtr[i+1]++
			}
		}
	}
	for i := 0; i < reduced.rows; i++ {
		reduced.rowPtr[i+1] += reduced.rowPtr[i]
	}
	return reduced, mapping, removed, nil
}
