package graph

import (
	"reflect"
	"testing"
)

func TestMatrixBasics(t *testing.T) {
	t.Parallel()

	t.Run("absent cells read as zero", func(t *testing.T) {
		t.Parallel()
		m := NewMatrix(3, 3)
		if got := m.At(1, 2); got != 0 {
			t.Errorf("expected 0, got %d", got)
		}
	})

	t.Run("Add accumulates and removes cells that cancel out", func(t *testing.T) {
		t.Parallel()
		m := NewMatrix(2, 2)
		m.Add(0, 1, 3)
		m.Add(0, 1, 2)
		if got := m.At(0, 1); got != 5 {
			t.Errorf("expected 5, got %d", got)
		}
		m.Add(0, 1, -5)
		if m.NonZero() != 0 {
			t.Errorf("expected cancelled cell to be removed, have %d nonzero", m.NonZero())
		}
	})

	t.Run("Entries are sorted row-major", func(t *testing.T) {
		t.Parallel()
		m := NewMatrix(3, 3)
		m.Set(2, 0, 7)
		m.Set(0, 2, 1)
		m.Set(0, 1, 4)
		m.Set(1, 1, 2)

		want := []Entry{
			{Row: 0, Col: 1, Value: 4},
			{Row: 0, Col: 2, Value: 1},
			{Row: 1, Col: 1, Value: 2},
			{Row: 2, Col: 0, Value: 7},
		}
		if got := m.Entries(); !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("Boolean flattens values to one", func(t *testing.T) {
		t.Parallel()
		m := NewMatrix(2, 2)
		m.Set(0, 0, 9)
		m.Set(1, 1, -3)
		b := m.Boolean()
		if b.At(0, 0) != 1 || b.At(1, 1) != 1 {
			t.Errorf("expected all nonzero cells to be 1, got %d and %d", b.At(0, 0), b.At(1, 1))
		}
		if m.At(0, 0) != 9 {
			t.Error("Boolean must not modify the receiver")
		}
	})

	t.Run("Transpose swaps coordinates and dimensions", func(t *testing.T) {
		t.Parallel()
		m := NewMatrix(2, 3)
		m.Set(0, 2, 5)
		tr := m.Transpose()
		rows, cols := tr.Dims()
		if rows != 3 || cols != 2 {
			t.Errorf("expected 3x2, got %dx%d", rows, cols)
		}
		if tr.At(2, 0) != 5 {
			t.Errorf("expected transposed cell value 5, got %d", tr.At(2, 0))
		}
	})
}

func TestMatrixMul(t *testing.T) {
	t.Parallel()

	t.Run("matches the dense product", func(t *testing.T) {
		t.Parallel()

		// | 1 2 |   | 5 6 |   | 19 22 |
		// | 3 4 | x | 7 8 | = | 43 50 |
		a := NewMatrix(2, 2)
		a.Set(0, 0, 1)
		a.Set(0, 1, 2)
		a.Set(1, 0, 3)
		a.Set(1, 1, 4)

		b := NewMatrix(2, 2)
		b.Set(0, 0, 5)
		b.Set(0, 1, 6)
		b.Set(1, 0, 7)
		b.Set(1, 1, 8)

		p := a.Mul(b)
		want := [][]int64{{19, 22}, {43, 50}}
		for i := range want {
			for j := range want[i] {
				if got := p.At(i, j); got != want[i][j] {
					t.Errorf("product[%d][%d]: expected %d, got %d", i, j, want[i][j], got)
				}
			}
		}
	})

	t.Run("sparse inputs only produce touched cells", func(t *testing.T) {
		t.Parallel()

		a := NewMatrix(100, 100)
		a.Set(3, 50, 2)
		b := NewMatrix(100, 100)
		b.Set(50, 7, 3)

		p := a.Mul(b)
		if p.NonZero() != 1 {
			t.Fatalf("expected exactly one nonzero cell, got %d", p.NonZero())
		}
		if got := p.At(3, 7); got != 6 {
			t.Errorf("expected 6, got %d", got)
		}
	})

	t.Run("dimension mismatch panics", func(t *testing.T) {
		t.Parallel()
		defer func() {
			if recover() == nil {
				t.Error("expected panic on dimension mismatch")
			}
		}()
		NewMatrix(2, 3).Mul(NewMatrix(2, 3))
	})
}

func TestMatrixSums(t *testing.T) {
	t.Parallel()

	m := NewMatrix(2, 3)
	m.Set(0, 0, 1)
	m.Set(1, 0, 2)
	m.Set(1, 2, 4)

	if got := m.ColumnSums(); !reflect.DeepEqual(got, []int64{3, 0, 4}) {
		t.Errorf("expected column sums [3 0 4], got %v", got)
	}
	if got := m.Sum(); got != 7 {
		t.Errorf("expected total 7, got %d", got)
	}
}
