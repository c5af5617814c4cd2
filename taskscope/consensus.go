package taskscope

import (
	"fmt"
	"math"
	"slices"
)

// Consensus is the aggregate reported by the majority-consensus joiner.
// Votes holds the boolean votes in completion order; subtasks that failed
// or were cancelled cast no vote.
type Consensus struct {
	Reached  bool
	Agree    int
	Disagree int
	Votes    []bool
}

type majorityConsensus struct {
	ratio     float64
	forked    int
	completed int
	agree     int
	votes     []bool
	decided   bool
	reached   bool
}

// NewMajorityConsensus returns a joiner over boolean votes. The scope
// stops once agreeing votes reach ceil(ratio*forked), or as soon as the
// remaining completions can no longer get there. ratio must be in (0, 1].
//
// The electorate is the set of subtasks forked so far. When voters can
// complete faster than the caller forks them, gate their bodies on a
// start signal so the ratio is evaluated against the full electorate.
func NewMajorityConsensus(ratio float64) Joiner[bool, Consensus] {
	if ratio <= 0 || ratio > 1 {
		panic("taskscope: consensus ratio must be in (0, 1]")
	}
	return &majorityConsensus{ratio: ratio}
}

func (j *majorityConsensus) required() int {
	return int(math.Ceil(j.ratio * float64(j.forked)))
}

func (j *majorityConsensus) OnFork(*Subtask[bool]) bool {
	j.forked++
	return false
}

func (j *majorityConsensus) OnComplete(st *Subtask[bool]) bool {
	if j.decided {
		return false
	}
	j.completed++
	if v, err := st.Outcome(); err == nil {
		j.votes = append(j.votes, v)
		if v {
			j.agree++
		}
	}
	// A failed or cancelled subtask casts no vote but still shrinks the
	// pool of votes that may yet arrive.
	need := j.required()
	switch {
	case j.agree >= need:
		j.decided, j.reached = true, true
		return true
	case j.agree+(j.forked-j.completed) < need:
		j.decided = true
		return true
	}
	return false
}

func (j *majorityConsensus) Result() (Consensus, error) {
	c := Consensus{
		Reached:  j.reached,
		Agree:    j.agree,
		Disagree: len(j.votes) - j.agree,
		Votes:    slices.Clone(j.votes),
	}
	if !j.reached {
		return c, fmt.Errorf("consensus unreachable: %d of %d required agree votes: %w",
			j.agree, j.required(), ErrJoinerRejected)
	}
	return c, nil
}
