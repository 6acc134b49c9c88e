package pgroup

import (
	"context"
	"sync"
)

// NewLocal returns n participants that live in the same process, typically
// one per goroutine. Member i has rank i.
func NewLocal(n int) []Group {
	h := &hub{size: n, pending: make([]round, n)}
	h.cond = sync.NewCond(&h.mu)
	members := make([]Group, n)
	for i := range members {
		members[i] = &local{hub: h, rank: i}
	}
	return members
}

type hub struct {
	mu      sync.Mutex
	cond    *sync.Cond
	size    int
	gen     uint64
	arrived int
	pending []round
	result  outcome
	err     error
}

// exchange blocks until all participants contributed to the current round.
func (h *hub) exchange(ctx context.Context, rank int, rd round) (outcome, error) {
	stop := context.AfterFunc(ctx, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.cond.Broadcast()
	})
	defer stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return outcome{}, h.err
	}

	h.pending[rank] = rd
	h.arrived++
	gen := h.gen
	if h.arrived == h.size {
		if err := checkRound(h.pending); err != nil {
			h.err = err
			h.cond.Broadcast()
			return outcome{}, err
		}
		h.result = collect(h.pending)
		h.pending = make([]round, h.size)
		h.arrived = 0
		h.gen++
		h.cond.Broadcast()
		return h.result, nil
	}

	for h.gen == gen && h.err == nil {
		if err := ctx.Err(); err != nil {
			// A participant that leaves mid-round breaks the group.
			h.err = err
			h.cond.Broadcast()
			return outcome{}, err
		}
		h.cond.Wait()
	}
	if h.gen == gen {
		return outcome{}, h.err
	}
	return h.result, nil
}

func (h *hub) abort() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err == nil {
		h.err = ErrAborted
	}
	h.cond.Broadcast()
}

type local struct {
	hub  *hub
	rank int
}

func (l *local) Rank() int { return l.rank }
func (l *local) Size() int { return l.hub.size }

func (l *local) AllGather(ctx context.Context, values []int) ([][]int, error) {
	out, err := l.hub.exchange(ctx, l.rank, round{op: "allgather", values: append([]int(nil), values...)})
	if err != nil {
		return nil, err
	}
	return out.values, nil
}

func (l *local) Broadcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	if err := checkRoot(root, l.hub.size); err != nil {
		return nil, err
	}
	rd := round{op: "broadcast"}
	if l.rank == root {
		rd.data = append([]byte(nil), data...)
	}
	out, err := l.hub.exchange(ctx, l.rank, rd)
	if err != nil {
		return nil, err
	}
	return out.data[root], nil
}

func (l *local) Barrier(ctx context.Context) error {
	_, err := l.hub.exchange(ctx, l.rank, round{op: "barrier"})
	return err
}

func (l *local) Abort(int) { l.hub.abort() }
