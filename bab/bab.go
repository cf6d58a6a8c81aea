// Package bab provides a generic parallel branch and bound solver for
// maximization problems.
//
// The solver explores a tree of subproblems in pseudo depth-first order:
// deeper nodes are preferred, and among nodes of equal depth the one with
// the better parent bound wins. Multiple workers pull nodes from a shared
// priority queue, so the search degrades gracefully into a best-first
// search near the root while still diving quickly towards first feasible
// solutions.
package bab

import (
	"container/heap"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"
)

// Score is the target function value of a solution. Higher is better.
type Score uint32

// SubProblem is a node of the branch and bound tree. Depth reports how many
// branching decisions led to this node; deeper nodes are explored first.
type SubProblem interface {
	Depth() int
}

type nodeKind int

const (
	kindNoSolution nodeKind = iota
	kindFeasible
	kindInfeasible
)

// NodeResult is the outcome of solving a single subproblem.
type NodeResult[P SubProblem, S any] struct {
	kind     nodeKind
	solution S
	score    Score
	branches []P
}

// NoSolution reports that the subproblem (and its whole subtree) has no
// feasible solution.
func NoSolution[P SubProblem, S any]() NodeResult[P, S] {
	return NodeResult[P, S]{kind: kindNoSolution}
}

// Feasible reports that the relaxed solution of the subproblem is feasible,
// making it a candidate for the overall optimum.
func Feasible[P SubProblem, S any](solution S, score Score) NodeResult[P, S] {
	return NodeResult[P, S]{kind: kindFeasible, solution: solution, score: score}
}

// Infeasible reports that the relaxed solution violates a constraint and
// hands back the derived subproblems. bound is the relaxed score of this
// node, an upper bound for every branch.
func Infeasible[P SubProblem, S any](branches []P, bound Score) NodeResult[P, S] {
	return NodeResult[P, S]{kind: kindInfeasible, branches: branches, score: bound}
}

// Solution returns the feasible solution and its score. ok is false if the
// result is not feasible.
func (r NodeResult[P, S]) Solution() (solution S, score Score, ok bool) {
	return r.solution, r.score, r.kind == kindFeasible
}

// Branches returns the subproblems derived from an infeasible result and
// their common bound. ok is false if the result is not infeasible.
func (r NodeResult[P, S]) Branches() (branches []P, bound Score, ok bool) {
	return r.branches, r.score, r.kind == kindInfeasible
}

// IsNoSolution reports whether the result marks a dead subtree.
func (r NodeResult[P, S]) IsNoSolution() bool {
	return r.kind == kindNoSolution
}

// Statistics holds counters gathered during a solver run.
type Statistics struct {
	// NumNodes is the total number of evaluated subproblems.
	NumNodes uint64
	// NumFeasible counts nodes whose relaxed solution was feasible.
	NumFeasible uint64
	// NumInfeasible counts nodes that branched into subproblems.
	NumInfeasible uint64
	// NumNoSolution counts nodes without any feasible solution.
	NumNoSolution uint64
	// NumPruned counts nodes discarded by the bound without evaluation.
	NumPruned uint64
	// NumNewBest counts how often a new best solution was found.
	NumNewBest uint64
	// MaxQueueLen is the high water mark of the pending node queue.
	MaxQueueLen int
	// Duration is the wall clock time of the whole run.
	Duration time.Duration
	// SubproblemTime is the cumulative time spent evaluating subproblems,
	// summed over all workers.
	SubproblemTime time.Duration
}

func (s Statistics) String() string {
	return fmt.Sprintf(
		"explored %d nodes (%d feasible, %d infeasible, %d without solution), %d new best solutions, pruned %d, max queue length %d, took %v (%v in subproblems)",
		s.NumNodes, s.NumFeasible, s.NumInfeasible, s.NumNoSolution, s.NumNewBest, s.NumPruned,
		s.MaxQueueLen, s.Duration, s.SubproblemTime)
}

type node[P SubProblem] struct {
	problem P
	// bound is the relaxed score of the parent node, an upper bound for
	// the best solution in this subtree.
	bound Score
	seq   uint64
}

type nodeQueue[P SubProblem] []node[P]

func (q nodeQueue[P]) Len() int { return len(q) }

func (q nodeQueue[P]) Less(i, j int) bool {
	di, dj := q[i].problem.Depth(), q[j].problem.Depth()
	if di != dj {
		return di > dj
	}
	if q[i].bound != q[j].bound {
		return q[i].bound > q[j].bound
	}
	return q[i].seq < q[j].seq
}

func (q nodeQueue[P]) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue[P]) Push(x any) { *q = append(*q, x.(node[P])) }

func (q *nodeQueue[P]) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

type sharedState[P SubProblem, S any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   nodeQueue[P]
	busy    int
	seq     uint64
	best    *S
	score   Score
	hasBest bool
	stats   Statistics
}

// Solve runs the branch and bound search over the tree rooted at base,
// evaluating nodes with nodeSolver from numWorkers goroutines. It returns
// the best feasible solution found (or nil if none exists), its score and
// the run statistics. nodeSolver must be safe for concurrent use.
func Solve[P SubProblem, S any](nodeSolver func(P) NodeResult[P, S], base P, numWorkers int) (*S, Score, Statistics) {
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}
	st := &sharedState[P, S]{}
	st.cond = sync.NewCond(&st.mu)
	st.queue = nodeQueue[P]{{problem: base, bound: math.MaxUint32}}
	st.stats.MaxQueueLen = 1

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(nodeSolver, st)
		}()
	}
	wg.Wait()
	st.stats.Duration = time.Since(start)
	return st.best, st.score, st.stats
}

func worker[P SubProblem, S any](nodeSolver func(P) NodeResult[P, S], st *sharedState[P, S]) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for {
		for len(st.queue) == 0 {
			if st.busy == 0 {
				st.cond.Broadcast()
				return
			}
			st.cond.Wait()
		}
		nd := heap.Pop(&st.queue).(node[P])
		// A better solution may have shown up since this node was queued.
		if st.hasBest && nd.bound <= st.score {
			st.stats.NumPruned++
			continue
		}
		st.busy++
		st.mu.Unlock()

		nodeStart := time.Now()
		result := nodeSolver(nd.problem)
		nodeTime := time.Since(nodeStart)

		st.mu.Lock()
		st.busy--
		st.stats.NumNodes++
		st.stats.SubproblemTime += nodeTime
		switch result.kind {
		case kindFeasible:
			st.stats.NumFeasible++
			if !st.hasBest || result.score > st.score {
				st.best = &result.solution
				st.score = result.score
				st.hasBest = true
				st.stats.NumNewBest++
			}
		case kindInfeasible:
			st.stats.NumInfeasible++
			if !st.hasBest || result.score > st.score {
				for _, branch := range result.branches {
					st.seq++
					heap.Push(&st.queue, node[P]{problem: branch, bound: result.score, seq: st.seq})
				}
				if len(st.queue) > st.stats.MaxQueueLen {
					st.stats.MaxQueueLen = len(st.queue)
				}
			} else {
				st.stats.NumPruned += uint64(len(result.branches))
			}
		case kindNoSolution:
			st.stats.NumNoSolution++
		}
		st.cond.Broadcast()
	}
}
