package caobab

// kSelections enumerates all selections of k elements out of n, as sorted
// index slices in lexicographic order. It keeps a single index slice of
// length k, so memory consumption and per-step cost are linear in k.
type kSelections struct {
	n, k  int
	index []int
}

func newKSelections(n, k int) *kSelections {
	return &kSelections{n: n, k: k}
}

// next returns the next selection, or false when the enumeration is done.
// The returned slice is reused between calls and must not be retained.
func (s *kSelections) next() ([]int, bool) {
	if s.index == nil {
		if s.k == 0 || s.k > s.n {
			return nil, false
		}
		s.index = make([]int, s.k)
		for i := range s.index {
			s.index[i] = i
		}
		return s.index, true
	}
	j := s.k - 1
	for s.index[j] >= s.n-(s.k-j) {
		if j == 0 {
			return nil, false
		}
		j--
	}
	s.index[j]++
	for l := j + 1; l < s.k; l++ {
		s.index[l] = s.index[j] + l - j
	}
	return s.index, true
}

// binom computes the binomial coefficient (n choose k), used to size the
// result slice for constraint set generation.
func binom(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := 1
	for i := 0; i < k; i++ {
		result = result * (n - i) / (i + 1)
	}
	return result
}
