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
	"gonum.org/v1/gonum/mat"
)

// TopK sparsifies a square similarity weight matrix by keeping, for each
// column, only the K largest-valued entries. Ties are broken by the original
// row index. Retained values are unchanged. Only stored entries are visited,
// so the cost is O(nnz log nnz).
func TopK(w *CSCMatrix, k int) (*CSRMatrix, error) {
	if w.Rows() != w.Cols() {
		return nil, errors.Errorf("sparse: top-K requires a square matrix, got %dx%d", w.Rows(), w.Cols())
	}
	if k < 0 {
		return nil, errors.Errorf("sparse: top-K requires k >= 0, got %d", k)
	}
	triplets := make([]triplet, 0, min(w.NNZ(), k*w.Cols()))
	for j := 0; j < w.Cols(); j++ {
		rows, values := w.Col(int32(j))
		triplets = append(triplets, topKColumn(rows, values, int32(j), k)...)
	}
	return compress(w.Rows(), w.Cols(), triplets), nil
}

// TopKDense is the dense-input variant of TopK. Every column is fully
// sorted, O(n^2 log n) overall, and the result is materialized as a sparse
// matrix. Exact zeros are never stored.
func TopKDense(w *mat.Dense, k int) (*CSRMatrix, error) {
	n, cols := w.Dims()
	if n != cols {
		return nil, errors.Errorf("sparse: top-K requires a square matrix, got %dx%d", n, cols)
	}
	if k < 0 {
		return nil, errors.Errorf("sparse: top-K requires k >= 0, got %d", k)
	}
	rows := make([]int32, n)
	values := make([]float32, n)
	for i := range rows {
		rows[i] = int32(i)
	}
	triplets := make([]triplet, 0, k*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			values[i] = float32(w.At(i, j))
		}
		for _, t := range topKColumn(rows, values, int32(j), k) {
			if t.value != 0 {
				triplets = append(triplets, t)
			}
		}
	}
	return compress(n, n, triplets), nil
}

// topKColumn selects the k largest entries of one column. rows is assumed
// sorted ascending, so a stable sort by descending value resolves ties in
// favor of the smallest original row index.
func topKColumn(rows []int32, values []float32, col int32, k int) []triplet {
	if k == 0 || len(rows) == 0 {
		return nil
	}
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] > values[order[b]]
	})
	if k > len(order) {
		k = len(order)
	}
	selected := make([]triplet, 0, k)
	for _, idx := range order[:k] {
		selected = append(selected, triplet{row: rows[idx], col: col, value: values[idx]})
	}
	return selected
}
