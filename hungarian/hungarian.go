// Package hungarian solves the assignment problem (maximum weight perfect
// matching on a bipartite graph) with the Kuhn-Munkres algorithm in its
// shortest-augmenting-path formulation.
//
// The matching is computed between the rows (participants and dummy
// participants) and columns (course places) of a dense adjacency matrix,
// honoring a set of masks: skipped rows and columns are ignored entirely,
// dummy rows may fill any non-mandatory column, and mandatory columns must
// be matched with a real (non-dummy) row.
package hungarian

// EdgeWeight is the entry type of the adjacency matrix.
//
// It is deliberately small so the whole adjacency matrix fits into a CPU
// cache: the matrix has n^2 entries of this type, where n is the total
// number of maximum course places. On the other hand it must represent the
// full weight range: all actual edge weights must be well above zero times
// the number of participants, so that assigning every participant to their
// last choice still beats assigning any participant to an unchosen course.
// With 450 participants and weights around 50000, uint16 is sufficient and
// a 50x20-place matrix stays around 2MB.
type EdgeWeight uint16

// Score is the result score type (target function value) of the matching.
type Score uint32

// Matching maps each column (course place) of the adjacency matrix to the
// matched row (participant), or -1 if the column was skipped.
type Matching []int

// Matrix is a dense rows x cols adjacency matrix of edge weights.
type Matrix struct {
	rows, cols int
	data       []EdgeWeight
}

// NewMatrix creates a zero-filled matrix with the given dimensions.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, data: make([]EdgeWeight, rows*cols)}
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (rows, cols int) {
	return m.rows, m.cols
}

// At returns the entry at row x, column y.
func (m *Matrix) At(x, y int) EdgeWeight {
	return m.data[x*m.cols+y]
}

// Set stores w at row x, column y.
func (m *Matrix) Set(x, y int, w EdgeWeight) {
	m.data[x*m.cols+y] = w
}

// cost values are shifted into minimization space; forbidden edges (dummy
// row on mandatory column) get a cost large enough never to be picked when
// any feasible alternative exists.
const (
	inf       = int64(1) << 60
	forbidden = int64(1) << 40
)

// Solve computes a maximum weight perfect matching between the non-skipped
// rows and non-skipped columns of adj. The caller must ensure that the
// number of non-skipped rows equals the number of non-skipped columns.
//
// dummyRow marks rows that do not represent an actual participant; they may
// be matched anywhere except mandatory columns. mandatoryCol marks columns
// that must be filled by a real participant. skipRow/skipCol exclude rows
// and columns from the matching entirely.
func Solve(adj *Matrix, dummyRow, mandatoryCol, skipRow, skipCol []bool) (Matching, Score) {
	n, m := adj.Dims()

	xs := make([]int, 0, n)
	for x := 0; x < n; x++ {
		if !skipRow[x] {
			xs = append(xs, x)
		}
	}
	ys := make([]int, 0, m)
	for y := 0; y < m; y++ {
		if !skipCol[y] {
			ys = append(ys, y)
		}
	}
	k := len(ys)
	if len(xs) != k {
		panic("hungarian: number of effective rows and columns differs")
	}

	matching := make(Matching, m)
	for y := range matching {
		matching[y] = -1
	}
	if k == 0 {
		return matching, 0
	}

	// Maximum weight, used to mirror weights into costs for minimization.
	var maxWeight EdgeWeight
	for _, x := range xs {
		for _, y := range ys {
			if w := adj.At(x, y); w > maxWeight {
				maxWeight = w
			}
		}
	}
	cost := func(i, j int) int64 {
		x, y := xs[i], ys[j]
		if dummyRow[x] && mandatoryCol[y] {
			return forbidden
		}
		return int64(maxWeight) - int64(adj.At(x, y))
	}

	// Shortest augmenting path with potentials, 1-based as usual.
	u := make([]int64, k+1)
	v := make([]int64, k+1)
	p := make([]int, k+1)
	way := make([]int, k+1)
	minv := make([]int64, k+1)
	used := make([]bool, k+1)

	for i := 1; i <= k; i++ {
		p[0] = i
		j0 := 0
		for j := 0; j <= k; j++ {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := 0
			for j := 1; j <= k; j++ {
				if used[j] {
					continue
				}
				cur := cost(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= k; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	var score Score
	for j := 1; j <= k; j++ {
		x, y := xs[p[j]-1], ys[j-1]
		matching[y] = x
		score += Score(adj.At(x, y))
	}
	return matching, score
}
