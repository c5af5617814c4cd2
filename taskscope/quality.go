package taskscope

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/addrummond/heap"
)

type qualityThreshold[T any] struct {
	threshold float64
	score     func(T) float64
	best      T
	bestScore float64
	have      bool
	met       bool
	failures  []error
}

// NewQualityThreshold returns a joiner that stops the scope as soon as a
// completed result scores at or above threshold. If none does, Join
// yields the best-scoring result seen; if nothing completed successfully
// the scope error wraps ErrJoinerRejected.
func NewQualityThreshold[T any](threshold float64, score func(T) float64) Joiner[T, T] {
	if score == nil {
		panic("taskscope: quality threshold requires a score function")
	}
	return &qualityThreshold[T]{threshold: threshold, score: score}
}

func (j *qualityThreshold[T]) OnFork(*Subtask[T]) bool { return false }

func (j *qualityThreshold[T]) OnComplete(st *Subtask[T]) bool {
	if j.met {
		return false
	}
	v, err := st.Outcome()
	if err != nil {
		if st.State() == Failed {
			j.failures = append(j.failures, err)
		}
		return false
	}
	s := j.score(v)
	if !j.have || s > j.bestScore {
		j.best, j.bestScore, j.have = v, s, true
	}
	if s >= j.threshold {
		j.met = true
		return true
	}
	return false
}

func (j *qualityThreshold[T]) Result() (T, error) {
	if j.have {
		return j.best, nil
	}
	var zero T
	return zero, fmt.Errorf("no result to score against threshold %v: %w",
		j.threshold, errors.Join(append(slices.Clone(j.failures), ErrJoinerRejected)...))
}

type scored[T any] struct {
	value T
	score float64
}

func (a *scored[T]) Cmp(b *scored[T]) int { return cmp.Compare(a.score, b.score) }

type topScoring[T any] struct {
	k        int
	score    func(T) float64
	h        heap.Heap[scored[T], heap.Min]
	n        int
	failures []error
}

// NewTopScoring returns a joiner that collects every successful result
// and reports the k best by score, best first. Like AwaitAll it never
// stops the scope early and tolerates deadline expiry; the min-heap keeps
// only k candidates regardless of how many subtasks complete.
func NewTopScoring[T any](k int, score func(T) float64) Joiner[T, []T] {
	if k <= 0 {
		panic("taskscope: top-scoring joiner requires k > 0")
	}
	if score == nil {
		panic("taskscope: top-scoring joiner requires a score function")
	}
	return &topScoring[T]{k: k, score: score}
}

func (j *topScoring[T]) OnFork(*Subtask[T]) bool { return false }

func (j *topScoring[T]) OnComplete(st *Subtask[T]) bool {
	v, err := st.Outcome()
	if err != nil {
		if st.State() == Failed {
			j.failures = append(j.failures, err)
		}
		return false
	}
	heap.PushOrderable(&j.h, scored[T]{value: v, score: j.score(v)})
	j.n++
	if j.n > j.k {
		// Evict the current worst so the heap holds the k best.
		heap.PopOrderable(&j.h)
		j.n--
	}
	return false
}

func (j *topScoring[T]) TolerateTimeout() bool { return true }

func (j *topScoring[T]) Result() ([]T, error) {
	out := make([]T, 0, j.n)
	for {
		s, ok := heap.PopOrderable(&j.h)
		if !ok {
			break
		}
		out = append(out, s.value)
	}
	slices.Reverse(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("no successful result to rank: %w",
			errors.Join(append(slices.Clone(j.failures), ErrJoinerRejected)...))
	}
	return out, nil
}
