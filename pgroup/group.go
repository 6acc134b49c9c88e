// Package pgroup provides the process-group capability used to coordinate
// participants that write disjoint slices of one logical array.
//
// A Group is either a single participant (Solo), a set of in-process
// participants (NewLocal), or participants in separate OS processes joined
// over TCP (Listen / Dial). Every collective call blocks until all
// participants have made the same call.
package pgroup

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned by collective calls once any participant aborted.
	ErrAborted = errors.New("process group aborted")
	// ErrMismatch is returned when participants issue different collectives
	// in the same round.
	ErrMismatch = errors.New("mismatched collective operations")
)

// Group is a fixed set of participants ranked 0..Size()-1.
type Group interface {
	Rank() int
	Size() int
	// AllGather contributes local and returns every participant's
	// contribution indexed by rank.
	AllGather(ctx context.Context, local []int) ([][]int, error)
	// Broadcast returns root's data on every participant.
	Broadcast(ctx context.Context, root int, data []byte) ([]byte, error)
	// Barrier returns once every participant has entered it.
	Barrier(ctx context.Context) error
	// Abort poisons the group: pending and future collectives on every
	// participant fail with ErrAborted.
	Abort(code int)
}

// Solo returns the single-participant group. All collectives are identities.
func Solo() Group { return solo{} }

type solo struct{}

func (solo) Rank() int { return 0 }
func (solo) Size() int { return 1 }

func (solo) AllGather(_ context.Context, local []int) ([][]int, error) {
	return [][]int{append([]int(nil), local...)}, nil
}

func (solo) Broadcast(_ context.Context, root int, data []byte) ([]byte, error) {
	if root != 0 {
		return nil, fmt.Errorf("broadcast root %d out of range for 1 participant", root)
	}
	return data, nil
}

func (solo) Barrier(context.Context) error { return nil }
func (solo) Abort(int)                     {}

// round is one participant's contribution to a collective.
type round struct {
	op     string
	values []int
	data   []byte
}

// outcome is what every participant receives when a round completes.
type outcome struct {
	values [][]int
	data   [][]byte
}

func checkRound(rounds []round) error {
	for r := 1; r < len(rounds); r++ {
		if rounds[r].op != rounds[0].op {
			return fmt.Errorf("%w: rank 0 called %s, rank %d called %s", ErrMismatch, rounds[0].op, r, rounds[r].op)
		}
	}
	return nil
}

func collect(rounds []round) outcome {
	out := outcome{values: make([][]int, len(rounds)), data: make([][]byte, len(rounds))}
	for r, rd := range rounds {
		out.values[r] = rd.values
		out.data[r] = rd.data
	}
	return out
}

func checkRoot(root, size int) error {
	if root < 0 || root >= size {
		return fmt.Errorf("broadcast root %d out of range for %d participants", root, size)
	}
	return nil
}
