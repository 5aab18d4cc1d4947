package matcher

import (
	"math"
	"sort"

	"bank-reconciliation-engine/internal/models"
)

// tieBreakBudget bounds the total rank bias the optimal solver adds to any
// assignment. Scores are rounded to 1e-12, so the bias can only decide
// between assignments of equal total score.
const tieBreakBudget = 1e-13

// Solver selects a one-to-one subset of scored pairs. The result is ordered
// by statement input position.
type Solver interface {
	Solve(pairs []*models.CandidatePair) []*models.CandidatePair
}

// NewSolver returns the solver for the given kind
func NewSolver(kind SolverKind) Solver {
	switch kind {
	case SolverOptimal:
		return &OptimalSolver{}
	case SolverMaximal:
		return &MaximalSolver{}
	default:
		return &GreedySolver{}
	}
}

// RankPairs sorts pairs in place by decreasing preference: higher score,
// smaller date difference, exact reference match, then statement and book
// input order
func RankPairs(pairs []*models.CandidatePair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		return preferred(pairs[i], pairs[j])
	})
}

func preferred(a, b *models.CandidatePair) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DateDifferenceDays != b.DateDifferenceDays {
		return a.DateDifferenceDays < b.DateDifferenceDays
	}
	aRef := a.Reference == models.ReferenceMatch
	bRef := b.Reference == models.ReferenceMatch
	if aRef != bRef {
		return aRef
	}
	if a.StatementOrder != b.StatementOrder {
		return a.StatementOrder < b.StatementOrder
	}
	return a.BookOrder < b.BookOrder
}

// GreedySolver claims pairs in ranking order, accepting a pair when neither
// side is already claimed
type GreedySolver struct{}

// Solve implements Solver
func (gs *GreedySolver) Solve(pairs []*models.CandidatePair) []*models.CandidatePair {
	ranked := rankedCopy(pairs)

	state := newAssignment()
	state.claim(ranked)
	return state.accepted()
}

// MaximalSolver starts from the greedy assignment and then follows
// augmenting paths, one connected component at a time, until no unmatched
// statement can be paired. A greedy match may move to another partner, and
// the total score can drop below the greedy one.
type MaximalSolver struct{}

// Solve implements Solver
func (ms *MaximalSolver) Solve(pairs []*models.CandidatePair) []*models.CandidatePair {
	state := newAssignment()

	for _, component := range components(rankedCopy(pairs)) {
		state.claim(component)

		// adjacency per statement keeps ranking order
		adjacency := make(map[int][]*models.CandidatePair)
		var order []int
		for _, pair := range component {
			if _, ok := adjacency[pair.StatementOrder]; !ok {
				order = append(order, pair.StatementOrder)
			}
			adjacency[pair.StatementOrder] = append(adjacency[pair.StatementOrder], pair)
		}
		sort.Ints(order)

		for _, stmt := range order {
			if _, matched := state.byStatement[stmt]; matched {
				continue
			}
			state.augment(stmt, adjacency, make(map[int]bool))
		}
	}

	return state.accepted()
}

func rankedCopy(pairs []*models.CandidatePair) []*models.CandidatePair {
	ranked := make([]*models.CandidatePair, len(pairs))
	copy(ranked, pairs)
	RankPairs(ranked)
	return ranked
}

// assignment tracks the current matching by input position
type assignment struct {
	byStatement map[int]*models.CandidatePair
	byBook      map[int]*models.CandidatePair
}

func newAssignment() *assignment {
	return &assignment{
		byStatement: make(map[int]*models.CandidatePair),
		byBook:      make(map[int]*models.CandidatePair),
	}
}

// claim assigns ranked pairs whose sides are both still free
func (a *assignment) claim(ranked []*models.CandidatePair) {
	for _, pair := range ranked {
		if a.stmtClaimed(pair) || a.bookClaimed(pair) {
			continue
		}
		a.assign(pair)
	}
}

func (a *assignment) stmtClaimed(pair *models.CandidatePair) bool {
	_, ok := a.byStatement[pair.StatementOrder]
	return ok
}

func (a *assignment) bookClaimed(pair *models.CandidatePair) bool {
	_, ok := a.byBook[pair.BookOrder]
	return ok
}

func (a *assignment) assign(pair *models.CandidatePair) {
	a.byStatement[pair.StatementOrder] = pair
	a.byBook[pair.BookOrder] = pair
}

// augment looks for an alternating path from an unmatched statement to a free book
func (a *assignment) augment(stmt int, adjacency map[int][]*models.CandidatePair, visited map[int]bool) bool {
	for _, pair := range adjacency[stmt] {
		if visited[pair.BookOrder] {
			continue
		}
		visited[pair.BookOrder] = true

		holder, taken := a.byBook[pair.BookOrder]
		if !taken || a.augment(holder.StatementOrder, adjacency, visited) {
			a.assign(pair)
			return true
		}
	}
	return false
}

func (a *assignment) accepted() []*models.CandidatePair {
	result := make([]*models.CandidatePair, 0, len(a.byStatement))
	for _, pair := range a.byStatement {
		result = append(result, pair)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StatementOrder < result[j].StatementOrder
	})
	return result
}

// OptimalSolver finds the assignment with the largest total score, using the
// Hungarian algorithm on each connected component of the candidate graph.
// Leaving a statement unmatched scores zero, so a single strong pair wins
// over two weaker ones whose scores add up to less.
type OptimalSolver struct{}

// Solve implements Solver
func (s *OptimalSolver) Solve(pairs []*models.CandidatePair) []*models.CandidatePair {
	ranked := rankedCopy(pairs)

	rank := make(map[*models.CandidatePair]int, len(ranked))
	for i, pair := range ranked {
		rank[pair] = i
	}

	var result []*models.CandidatePair
	for _, component := range components(ranked) {
		result = append(result, solveComponent(component, rank, len(ranked))...)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StatementOrder < result[j].StatementOrder
	})
	return result
}

// components splits pairs into connected components of the bipartite graph,
// ordered by the first ranked pair of each component
func components(ranked []*models.CandidatePair) [][]*models.CandidatePair {
	parent := make(map[int]int)
	// books are keyed negatively so they never collide with statements
	key := func(bookOrder int) int { return -bookOrder - 1 }

	var find func(x int) int
	find = func(x int) int {
		if _, ok := parent[x]; !ok {
			parent[x] = x
		}
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for _, pair := range ranked {
		rs, rb := find(pair.StatementOrder), find(key(pair.BookOrder))
		if rs != rb {
			parent[rb] = rs
		}
	}

	groups := make(map[int][]*models.CandidatePair)
	var roots []int
	for _, pair := range ranked {
		root := find(pair.StatementOrder)
		if _, ok := groups[root]; !ok {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], pair)
	}

	result := make([][]*models.CandidatePair, 0, len(roots))
	for _, root := range roots {
		result = append(result, groups[root])
	}
	return result
}

func solveComponent(pairs []*models.CandidatePair, rank map[*models.CandidatePair]int, total int) []*models.CandidatePair {
	if len(pairs) == 1 {
		return pairs
	}

	rows := make(map[int]int)
	cols := make(map[int]int)
	for _, pair := range pairs {
		if _, ok := rows[pair.StatementOrder]; !ok {
			rows[pair.StatementOrder] = len(rows)
		}
		if _, ok := cols[pair.BookOrder]; !ok {
			cols[pair.BookOrder] = len(cols)
		}
	}

	n := len(rows)
	if len(cols) > n {
		n = len(cols)
	}

	// weight = score + rank bias; costs are negated weights and a missing
	// edge costs 0, the same as leaving both sides unmatched. An assignment
	// has at most n edges, so its total bias stays below tieBreakBudget.
	cost := make([][]float64, n)
	edges := make([][]*models.CandidatePair, n)
	for i := range cost {
		cost[i] = make([]float64, n)
		edges[i] = make([]*models.CandidatePair, n)
	}
	for _, pair := range pairs {
		r, c := rows[pair.StatementOrder], cols[pair.BookOrder]
		bias := tieBreakBudget * float64(total-rank[pair]) / float64(total*n)
		cost[r][c] = -(pair.Score + bias)
		edges[r][c] = pair
	}

	assignment := hungarian(cost)

	var result []*models.CandidatePair
	for r, c := range assignment {
		if c >= 0 && edges[r][c] != nil {
			result = append(result, edges[r][c])
		}
	}
	return result
}

// hungarian solves the square minimum-cost assignment problem and returns,
// for each row, the assigned column
func hungarian(cost [][]float64) []int {
	n := len(cost)
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
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

		for {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
			if j0 == 0 {
				break
			}
		}
	}

	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	for j := 1; j <= n; j++ {
		if p[j] > 0 {
			result[p[j]-1] = j - 1
		}
	}
	return result
}
