package crdt

import (
	"fmt"

	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// Vote tracks this node's boolean vote plus the tallies observed across the
// cluster. Regular outbound deltas carry only the self vote, and the proxy
// fills in the tallies on inbound ones; an initial delta also carries the
// tallies.
type Vote struct {
	selfVote    bool
	votesFor    int32
	totalVoters int32
	changed     bool
}

// NewVote creates a vote with this node voting false.
func NewVote() *Vote {
	return &Vote{totalVoters: 1}
}

// SelfVote returns this node's vote.
func (v *Vote) SelfVote() bool {
	return v.selfVote
}

// VotesFor returns the number of nodes voting true.
func (v *Vote) VotesFor() int32 {
	return v.votesFor
}

// TotalVoters returns the number of nodes with a vote.
func (v *Vote) TotalVoters() int32 {
	return v.totalVoters
}

// AtLeastOne reports whether any node votes true.
func (v *Vote) AtLeastOne() bool {
	return v.votesFor > 0
}

// Majority reports whether more than half the nodes vote true.
func (v *Vote) Majority() bool {
	return v.votesFor*2 > v.totalVoters
}

// All reports whether every node votes true.
func (v *Vote) All() bool {
	return v.votesFor == v.totalVoters
}

// Vote records this node's vote. The local tally is adjusted immediately; the
// cluster-wide tallies arrive with the next inbound delta.
func (v *Vote) Vote(vote bool) {
	if v.selfVote == vote {
		return
	}
	v.selfVote = vote
	v.changed = true
	if vote {
		v.votesFor++
	} else {
		v.votesFor--
	}
}

// GetAndResetDelta implements State. Regular deltas carry only this node's
// vote; an initial delta also carries the observed tallies so it reproduces
// the full state on a fresh instance.
func (v *Vote) GetAndResetDelta(initial bool) *protocol.ReplicatedEntityDelta {
	if !v.changed && !initial {
		return nil
	}
	v.changed = false
	delta := &protocol.VoteDelta{SelfVote: v.selfVote}
	if initial {
		delta.VotesFor = v.votesFor
		delta.TotalVoters = v.totalVoters
	}
	return &protocol.ReplicatedEntityDelta{Vote: delta}
}

// ApplyDelta implements State.
func (v *Vote) ApplyDelta(delta *protocol.ReplicatedEntityDelta) error {
	if delta == nil || delta.Vote == nil {
		return fmt.Errorf("%w: vote cannot apply %s", ErrIncompatibleDelta, deltaKind(delta))
	}
	v.selfVote = delta.Vote.SelfVote
	v.votesFor = delta.Vote.VotesFor
	v.totalVoters = delta.Vote.TotalVoters
	if v.totalVoters == 0 {
		v.totalVoters = 1
	}
	return nil
}
