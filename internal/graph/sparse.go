package graph

import "sort"

// cell addresses one matrix entry.
type cell struct {
	row, col int
}

// Entry is one nonzero matrix entry.
type Entry struct {
	Row, Col int
	Value    int64
}

// Matrix is a sparse integer matrix holding only nonzero cells.
// The zero value is not usable; construct with NewMatrix.
type Matrix struct {
	rows, cols int
	cells      map[cell]int64
}

// NewMatrix creates an empty rows-by-cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		rows:  rows,
		cols:  cols,
		cells: make(map[cell]int64),
	}
}

// Dims returns the matrix dimensions.
func (m *Matrix) Dims() (rows, cols int) {
	return m.rows, m.cols
}

// At returns the value at (row, col); absent cells are zero.
func (m *Matrix) At(row, col int) int64 {
	return m.cells[cell{row, col}]
}

// Add increments the value at (row, col) by delta.
// Accumulation is commutative, which is what makes the builder safe to run
// over records appended in arbitrary order by concurrent crawl tasks.
func (m *Matrix) Add(row, col int, delta int64) {
	if delta == 0 {
		return
	}
	k := cell{row, col}
	v := m.cells[k] + delta
	if v == 0 {
		delete(m.cells, k)
	} else {
		m.cells[k] = v
	}
}

// Set stores a value at (row, col).
func (m *Matrix) Set(row, col int, value int64) {
	k := cell{row, col}
	if value == 0 {
		delete(m.cells, k)
	} else {
		m.cells[k] = value
	}
}

// NonZero returns the number of nonzero cells.
func (m *Matrix) NonZero() int {
	return len(m.cells)
}

// Entries returns all nonzero entries in row-major order.
// The sort makes emission deterministic regardless of map iteration order.
func (m *Matrix) Entries() []Entry {
	entries := make([]Entry, 0, len(m.cells))
	for k, v := range m.cells {
		entries = append(entries, Entry{Row: k.row, Col: k.col, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Row != entries[j].Row {
			return entries[i].Row < entries[j].Row
		}
		return entries[i].Col < entries[j].Col
	})
	return entries
}

// Boolean returns a copy with every nonzero cell replaced by one.
func (m *Matrix) Boolean() *Matrix {
	b := NewMatrix(m.rows, m.cols)
	for k := range m.cells {
		b.cells[k] = 1
	}
	return b
}

// Transpose returns the transposed matrix.
func (m *Matrix) Transpose() *Matrix {
	t := NewMatrix(m.cols, m.rows)
	for k, v := range m.cells {
		t.cells[cell{k.col, k.row}] = v
	}
	return t
}

// Mul returns the matrix product m times other.
// Only nonzero cells of m are visited, and for each one only the nonzero
// cells in the matching row of other, so the cost is proportional to the
// number of contributing pairs rather than the dense dimensions.
func (m *Matrix) Mul(other *Matrix) *Matrix {
	if m.cols != other.rows {
		panic("graph: dimension mismatch in sparse multiply")
	}

	// Row index of other: row -> nonzero (col, value) pairs.
	type colValue struct {
		col   int
		value int64
	}
	otherRows := make(map[int][]colValue, other.rows)
	for k, v := range other.cells {
		otherRows[k.row] = append(otherRows[k.row], colValue{k.col, v})
	}

	product := NewMatrix(m.rows, other.cols)
	for k, v := range m.cells {
		for _, cv := range otherRows[k.col] {
			product.Add(k.row, cv.col, v*cv.value)
		}
	}
	return product
}

// ColumnSums returns the per-column totals as a dense slice.
func (m *Matrix) ColumnSums() []int64 {
	sums := make([]int64, m.cols)
	for k, v := range m.cells {
		sums[k.col] += v
	}
	return sums
}

// Sum returns the total of all cells.
func (m *Matrix) Sum() int64 {
	var total int64
	for _, v := range m.cells {
		total += v
	}
	return total
}
