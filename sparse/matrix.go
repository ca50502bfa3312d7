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
)

// CSRMatrix is a sparse matrix in compressed sparse row layout. Rows are
// users and columns are items for interaction matrices. Entries inside a row
// are sorted by column index and duplicates are summed during construction.
type CSRMatrix struct {
	rows   int
	cols   int
	rowPtr []int
	colInd []int32
	values []float32
}

// CSCMatrix is a sparse matrix in compressed sparse column layout. It favors
// column slicing, e.g. per-item popularity and top-K sparsification.
type CSCMatrix struct {
	rows   int
	cols   int
	colPtr []int
	rowInd []int32
	values []float32
}

type triplet struct {
	row   int32
	col   int32
	value float32
}

func compress(rows, cols int, triplets []triplet) *CSRMatrix {
	sort.SliceStable(triplets, func(i, j int) bool {
		if triplets[i].row != triplets[j].row {
			return triplets[i].row < triplets[j].row
		}
		return triplets[i].col < triplets[j].col
	})
	m := &CSRMatrix{
		rows:   rows,
		cols:   cols,
		rowPtr: make([]int, rows+1),
		colInd: make([]int32, 0, len(triplets)),
		values: make([]float32, 0, len(triplets)),
	}
	lastRow, lastCol := int32(-1), int32(-1)
	for _, t := range triplets {
		if t.row == lastRow && t.col == lastCol {
			// duplicated coordinate, accumulate
			m.values[len(m.values)-1] += t.value
			continue
		}
		m.colInd = append(m.colInd, t.col)
		m.values = append(m.values, t.value)
		m.rowPtr[t.row+1]++
		lastRow, lastCol = t.row, t.col
	}
	for i := 0; i < rows; i++ {
		m.rowPtr[i+1] += m.rowPtr[i]
	}
	return m
}

// NewCSRFromTriplets creates a CSRMatrix from parallel (row, col, value)
// slices. Duplicated coordinates are summed. Out-of-range coordinates are
// rejected.
func NewCSRFromTriplets(rows, cols int, rowIndices, colIndices []int32, values []float32) (*CSRMatrix, error) {
	if len(rowIndices) != len(colIndices) || len(rowIndices) != len(values) {
		return nil, errors.Errorf("sparse: triplet slice lengths do not match (%d, %d, %d)",
			len(rowIndices), len(colIndices), len(values))
	}
	triplets := make([]triplet, 0, len(values))
	for i := range values {
		if rowIndices[i] < 0 || int(rowIndices[i]) >= rows || colIndices[i] < 0 || int(colIndices[i]) >= cols {
			return nil, errors.Errorf("sparse: coordinate (%d, %d) out of range (%d, %d)",
				rowIndices[i], colIndices[i], rows, cols)
		}
		triplets = append(triplets, triplet{row: rowIndices[i], col: colIndices[i], value: values[i]})
	}
	return compress(rows, cols, triplets), nil
}

// Rows returns the number of rows.
func (m *CSRMatrix) Rows() int {
	return m.rows
}

// Cols returns the number of columns.
func (m *CSRMatrix) Cols() int {
	return m.cols
}

// NNZ returns the number of stored entries.
func (m *CSRMatrix) NNZ() int {
	return len(m.values)
}

// Row returns the column indices and values of one row. The returned slices
// alias internal storage and must not be modified.
func (m *CSRMatrix) Row(i int32) ([]int32, []float32) {
	begin, end := m.rowPtr[i], m.rowPtr[i+1]
	return m.colInd[begin:end], m.values[begin:end]
}

// RowNNZ returns the number of stored entries in one row.
func (m *CSRMatrix) RowNNZ(i int32) int {
	return m.rowPtr[i+1] - m.rowPtr[i]
}

// Binarize returns a copy of the matrix with every stored value set to one.
// The nonzero pattern is unchanged.
func (m *CSRMatrix) Binarize() *CSRMatrix {
	b := &CSRMatrix{
		rows:   m.rows,
		cols:   m.cols,
		rowPtr: m.rowPtr,
		colInd: m.colInd,
		values: make([]float32, len(m.values)),
	}
	for k := range b.values {
		b.values[k] = 1
	}
	return b
}

// ToCSC converts the matrix to compressed sparse column layout. Values and
// shape are preserved, only the access pattern changes.
func (m *CSRMatrix) ToCSC() *CSCMatrix {
	c := &CSCMatrix{
		rows:   m.rows,
		cols:   m.cols,
		colPtr: make([]int, m.cols+1),
		rowInd: make([]int32, len(m.values)),
		values: make([]float32, len(m.values)),
	}
	for _, j := range m.colInd {
		c.colPtr[j+1]++
	}
	for j := 0; j < m.cols; j++ {
		c.colPtr[j+1] += c.colPtr[j]
	}
	offset := make([]int, m.cols)
	for i := 0; i < m.rows; i++ {
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			j := m.colInd[k]
			pos := c.colPtr[j] + offset[j]
			c.rowInd[pos] = int32(i)
			c.values[pos] = m.values[k]
			offset[j]++
		}
	}
	return c
}

// Rows returns the number of rows.
func (m *CSCMatrix) Rows() int {
	return m.rows
}

// Cols returns the number of columns.
func (m *CSCMatrix) Cols() int {
	return m.cols
}

// NNZ returns the number of stored entries.
func (m *CSCMatrix) NNZ() int {
	return len(m.values)
}

// Col returns the row indices and values of one column. The returned slices
// alias internal storage and must not be modified.
func (m *CSCMatrix) Col(j int32) ([]int32, []float32) {
	begin, end := m.colPtr[j], m.colPtr[j+1]
	return m.rowInd[begin:end], m.values[begin:end]
}

// ToCSR converts the matrix to compressed sparse row layout.
func (m *CSCMatrix) ToCSR() *CSRMatrix {
	r := &CSRMatrix{
		rows:   m.rows,
		cols:   m.cols,
		rowPtr: make([]int, m.rows+1),
		colInd: make([]int32, len(m.values)),
		values: make([]float32, len(m.values)),
	}
	for _, i := range m.rowInd {
		r.rowPtr[i+1]++
	}
	for i := 0; i < m.rows; i++ {
		r.rowPtr[i+1] += r.rowPtr[i]
	}
	offset := make([]int, m.rows)
	for j := 0; j < m.cols; j++ {
		for k := m.colPtr[j]; k < m.colPtr[j+1]; k++ {
			i := m.rowInd[k]
			pos := r.rowPtr[i] + offset[i]
			r.colInd[pos] = int32(j)
			r.values[pos] = m.values[k]
			offset[i]++
		}
	}
	return r
}

// Equal reports whether two matrices have the same shape, nonzero pattern
// and values. It is the structural comparison used to decide whether the
// fast-validation cache must be rebuilt.
func Equal(a, b *CSRMatrix) bool {
	if a == nil || b == nil {
		return false
	}
	if a.rows != b.rows || a.cols != b.cols || len(a.values) != len(b.values) {
		return false
	}
	for i := range a.rowPtr {
		if a.rowPtr[i] != b.rowPtr[i] {
			return false
		}
	}
	for k := range a.values {
		if a.colInd[k] != b.colInd[k] || a.values[k] != b.values[k] {
			return false
		}
	}
	return true
}
