package pgroup_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TuSKan/go-zarr/pgroup"
)

// runAll calls fn once per member, each in its own goroutine.
func runAll(t *testing.T, members []pgroup.Group, fn func(g pgroup.Group) error) []error {
	t.Helper()
	errs := make([]error, len(members))
	var wg sync.WaitGroup
	for i, g := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn(g)
		}()
	}
	wg.Wait()
	return errs
}

func TestSolo(t *testing.T) {
	ctx := context.Background()
	g := pgroup.Solo()
	require.Equal(t, 0, g.Rank())
	require.Equal(t, 1, g.Size())

	all, err := g.AllGather(ctx, []int{4, 2})
	require.NoError(t, err)
	require.Equal(t, [][]int{{4, 2}}, all)

	data, err := g.Broadcast(ctx, 0, []byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), data)

	_, err = g.Broadcast(ctx, 1, nil)
	require.Error(t, err)
	require.NoError(t, g.Barrier(ctx))
}

func TestLocal_AllGather(t *testing.T) {
	ctx := context.Background()
	members := pgroup.NewLocal(3)
	tables := make([][][]int, 3)

	errs := runAll(t, members, func(g pgroup.Group) error {
		var err error
		tables[g.Rank()], err = g.AllGather(ctx, []int{g.Rank() * 10, 7})
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	want := [][]int{{0, 7}, {10, 7}, {20, 7}}
	for r := range tables {
		require.Equal(t, want, tables[r], "rank %d", r)
	}
}

func TestLocal_BroadcastAndBarrier(t *testing.T) {
	ctx := context.Background()
	members := pgroup.NewLocal(4)
	got := make([][]byte, 4)

	errs := runAll(t, members, func(g pgroup.Group) error {
		for round := 0; round < 3; round++ {
			var msg []byte
			if g.Rank() == 2 {
				msg = []byte{byte(round)}
			}
			data, err := g.Broadcast(ctx, 2, msg)
			if err != nil {
				return err
			}
			got[g.Rank()] = append(got[g.Rank()], data...)
			if err := g.Barrier(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	for r, err := range errs {
		require.NoError(t, err)
		require.Equal(t, []byte{0, 1, 2}, got[r])
	}
}

func TestLocal_Mismatch(t *testing.T) {
	ctx := context.Background()
	members := pgroup.NewLocal(2)

	errs := runAll(t, members, func(g pgroup.Group) error {
		if g.Rank() == 0 {
			return g.Barrier(ctx)
		}
		_, err := g.AllGather(ctx, []int{1})
		return err
	})
	for _, err := range errs {
		require.ErrorIs(t, err, pgroup.ErrMismatch)
	}
}

func TestLocal_Abort(t *testing.T) {
	ctx := context.Background()
	members := pgroup.NewLocal(3)

	errs := runAll(t, members, func(g pgroup.Group) error {
		if g.Rank() == 1 {
			g.Abort(1)
			return nil
		}
		return g.Barrier(ctx)
	})
	require.ErrorIs(t, errs[0], pgroup.ErrAborted)
	require.NoError(t, errs[1])
	require.ErrorIs(t, errs[2], pgroup.ErrAborted)
}

func TestLocal_ContextCancel(t *testing.T) {
	members := pgroup.NewLocal(2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Rank 1 never arrives.
	err := members[0].Barrier(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	err = members[1].Barrier(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
