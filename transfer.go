package zarr

import (
	"context"
	"errors"
	"fmt"

	"github.com/TuSKan/go-zarr/pgroup"
)

// TransferMode selects how participants issue their writes.
type TransferMode int

const (
	// TransferIndependent lets each participant write the chunks it alone
	// covers as soon as it is ready. Chunks it shares with others are still
	// written one rank at a time.
	TransferIndependent TransferMode = iota
	// TransferCollective makes participants write in rank order, one round
	// per rank, each round closed by a barrier. A participant with nothing
	// to write still joins every round.
	TransferCollective
)

func (m TransferMode) String() string {
	if m == TransferCollective {
		return "collective"
	}
	return "independent"
}

func transferMode(collective bool) TransferMode {
	if collective {
		return TransferCollective
	}
	return TransferIndependent
}

// ShouldWrite reports whether a participant has data to write: false
// exactly when the leading extent of its memory region is zero. A scalar
// always has one element to write.
func ShouldWrite(mem Region) bool {
	return len(mem.Count) == 0 || mem.Count[0] > 0
}

// Transfer holds the transfer settings of one write.
type Transfer struct {
	handle
	mode  TransferMode
	write bool
}

func (t *Transfer) Kind() Kind   { return KindTransfer }
func (t *Transfer) Close() error { return t.release() }

// Mode returns the transfer mode.
func (t *Transfer) Mode() TransferMode { return t.mode }

// ShouldWrite reports whether this participant issues a write.
func (t *Transfer) ShouldWrite() bool { return t.write }

// configureTransfer builds the transfer for a write from mem. The decision
// to skip is local and needs no extra synchronization.
func (f *File) configureTransfer(mem *Dataspace, mode TransferMode) (*Transfer, bool) {
	t := &Transfer{handle: f.acquire(mem.path), mode: mode, write: ShouldWrite(mem.region)}
	return t, t.write
}

// run issues a write split in two parts: owned stores the chunks no other
// participant touches and shared the chunks it may share with others.
//
// In collective mode each participant issues both parts in its own round.
// In independent mode owned is issued at once and only shared waits for
// the participant's round, so partly covered chunks are never merged by
// two participants at the same time. Either way every participant of a
// group larger than one joins every round, and a failed write does not
// stop it from doing so.
func (t *Transfer) run(ctx context.Context, g pgroup.Group, owned, shared func(context.Context) error) error {
	if t.closed {
		return ErrClosed
	}
	both := func(ctx context.Context) error {
		if err := owned(ctx); err != nil {
			return err
		}
		return shared(ctx)
	}
	if g.Size() == 1 {
		if !t.write {
			return nil
		}
		return both(ctx)
	}

	var writeErr error
	round := both
	if t.mode == TransferIndependent {
		if t.write {
			writeErr = owned(ctx)
		}
		round = shared
	}
	for r := 0; r < g.Size(); r++ {
		if r == g.Rank() && t.write && writeErr == nil {
			writeErr = round(ctx)
		}
		if err := g.Barrier(ctx); err != nil {
			return errors.Join(writeErr, fmt.Errorf("failed to complete collective round %d: %w", r, err))
		}
	}
	return writeErr
}
