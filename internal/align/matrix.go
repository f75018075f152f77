package align

// matrix is the (rows x cols) cost table and backpointer table for one
// alignment, stored row-major in flat arenas so a fill allocates three
// slices regardless of input size.
type matrix struct {
	cols int
	cost []float64 // accumulated cost D[i][j]
	step []float64 // cost of the transition chosen into (i, j)
	back []Op      // transition chosen into (i, j)
}

func newMatrix(rows, cols int) *matrix {
	n := rows * cols
	return &matrix{
		cols: cols,
		cost: make([]float64, n),
		step: make([]float64, n),
		back: make([]Op, n),
	}
}

func (m *matrix) idx(i, j int) int { return i*m.cols + j }

func (m *matrix) at(i, j int) float64 { return m.cost[m.idx(i, j)] }

func (m *matrix) set(i, j int, cost, step float64, op Op) {
	k := m.idx(i, j)
	m.cost[k] = cost
	m.step[k] = step
	m.back[k] = op
}
