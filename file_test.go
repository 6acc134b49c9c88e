package zarr_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"

	"github.com/TuSKan/go-zarr"
	"github.com/TuSKan/go-zarr/pgroup"
)

// newMemFile creates an empty hierarchy in a fresh in-memory bucket.
func newMemFile(t *testing.T, opts ...zarr.FileOption) *zarr.File {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	opts = append([]zarr.FileOption{zarr.ReturnErrors(), zarr.WithLogger(testr.New(t))}, opts...)
	f, err := zarr.NewFile(context.Background(), bucket, zarr.ModeCreate, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

// runGroup opens one File per participant of an in-process group over a
// shared bucket and runs fn on each concurrently.
func runGroup(t *testing.T, bucket *blob.Bucket, size int, cfg zarr.Config, fn func(f *zarr.File) error) []error {
	t.Helper()
	members := pgroup.NewLocal(size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for r, g := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := zarr.NewFile(context.Background(), bucket, zarr.ModeCreate,
				zarr.WithGroup(g), zarr.WithConfig(cfg), zarr.ReturnErrors(), zarr.WithLogger(testr.New(t)))
			if err != nil {
				errs[r] = err
				return
			}
			defer f.Close()
			if errs[r] = fn(f); errs[r] == nil && f.OpenHandles() != 0 {
				errs[r] = fmt.Errorf("rank %d leaked %d handles", r, f.OpenHandles())
			}
		}()
	}
	wg.Wait()
	return errs
}

func TestCreateAndAppend(t *testing.T) {
	ctx := context.Background()
	url := "file:///" + filepath.ToSlash(t.TempDir())

	f, err := zarr.Create(ctx, url, zarr.ReturnErrors())
	require.NoError(t, err)
	g, err := f.CreateGroup(ctx, "results")
	require.NoError(t, err)
	require.NoError(t, g.Close())
	require.NoError(t, zarr.WriteDataset(ctx, f, "results/x", []int{3}, []int32{1, 2, 3}))
	require.NoError(t, f.Close())
	require.ErrorIs(t, f.Close(), zarr.ErrClosed)

	f, err = zarr.Append(ctx, url, zarr.ReturnErrors())
	require.NoError(t, err)
	got, shape, err := zarr.ReadDataset[int32](ctx, f, "results/x")
	require.NoError(t, err)
	require.Equal(t, []int{3}, shape)
	require.Equal(t, []int32{1, 2, 3}, got)
	require.NoError(t, f.Close())

	// Create truncates what was there.
	f, err = zarr.Create(ctx, url, zarr.ReturnErrors())
	require.NoError(t, err)
	defer f.Close()
	ok, err := f.Exists(ctx, "results", zarr.KindGroup)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAppend_NoRootGroup(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	_, err := zarr.NewFile(context.Background(), bucket, zarr.ModeAppend, zarr.ReturnErrors())
	require.ErrorIs(t, err, zarr.ErrNotFound)
}

func TestNewFile_InvalidConfig(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	cfg := zarr.DefaultConfig()
	cfg.ChunkSize = 0
	_, err := zarr.NewFile(context.Background(), bucket, zarr.ModeCreate, zarr.WithConfig(cfg))
	require.Error(t, err)
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	f := newMemFile(t)

	g, err := f.CreateGroup(ctx, "/a")
	require.NoError(t, err)
	require.Equal(t, zarr.KindGroup, g.Kind())
	require.Equal(t, "a", g.Path())
	require.NoError(t, g.Close())

	_, err = f.CreateGroup(ctx, "a")
	require.ErrorIs(t, err, zarr.ErrAlreadyExists)

	_, err = f.CreateGroup(ctx, "missing/b")
	require.ErrorIs(t, err, zarr.ErrNotFound)

	_, err = f.CreateGroup(ctx, "a/.zarray")
	require.ErrorIs(t, err, zarr.ErrInvalidPath)

	g, err = f.OpenGroup(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, g.Close())
	_, err = f.OpenGroup(ctx, "b")
	require.ErrorIs(t, err, zarr.ErrNotFound)
	require.Zero(t, f.OpenHandles())
}

func TestCreateGroup_Collective(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	errs := runGroup(t, bucket, 3, zarr.DefaultConfig(), func(f *zarr.File) error {
		g, err := f.CreateGroup(context.Background(), "shared")
		if err != nil {
			return err
		}
		return g.Close()
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	ok, err := bucket.Exists(context.Background(), "shared/.zgroup")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCreateGroup_CollectiveErrors(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	errs := runGroup(t, bucket, 3, zarr.DefaultConfig(), func(f *zarr.File) error {
		ctx := context.Background()
		r := f.Group().Rank()
		g, err := f.CreateGroup(ctx, "a")
		if err != nil {
			return err
		}
		g.Close()
		if _, err := f.CreateGroup(ctx, "a"); !errors.Is(err, zarr.ErrAlreadyExists) {
			return fmt.Errorf("rank %d: duplicate group: %v", r, err)
		}
		if _, err := f.CreateGroup(ctx, "a/.zarray"); !errors.Is(err, zarr.ErrInvalidPath) {
			return fmt.Errorf("rank %d: reserved segment: %v", r, err)
		}
		if _, err := f.CreateGroup(ctx, "missing/b"); !errors.Is(err, zarr.ErrNotFound) {
			return fmt.Errorf("rank %d: missing parent: %v", r, err)
		}
		err = zarr.WriteAttribute(ctx, f, "a", "x/y", int64(1))
		if !errors.Is(err, zarr.ErrInvalidPath) {
			return fmt.Errorf("rank %d: attribute name: %v", r, err)
		}
		var ioErr *zarr.IOError
		if !errors.As(err, &ioErr) || ioErr.Path == "" {
			return fmt.Errorf("rank %d: attribute error without path: %v", r, err)
		}
		return nil
	})
	for r, err := range errs {
		require.NoError(t, err, "rank %d", r)
	}
}

func TestFailFunc(t *testing.T) {
	ctx := context.Background()
	var messages []string
	fail := func(msg string) {
		messages = append(messages, msg)
		panic(msg)
	}
	f := newMemFile(t, zarr.WithFailFunc(fail))

	require.PanicsWithValue(t, `Failed to open group nowhere: object not found: group "nowhere"`, func() {
		f.OpenGroup(ctx, "nowhere")
	})
	require.Panics(t, func() {
		zarr.WriteDataset(ctx, f, "x", []int{4}, []float32{1, 2})
	})
	require.Len(t, messages, 2)
	require.Contains(t, messages[1], "Failed to write dataset x")

	// AlreadyExists is returned, not fatal.
	require.NoError(t, zarr.WriteDataset(ctx, f, "y", []int{1}, []float32{1}))
	err := zarr.WriteDataset(ctx, f, "y", []int{1}, []float32{1})
	require.ErrorIs(t, err, zarr.ErrAlreadyExists)

	// Existence checks report a missing object without failing.
	ok, err := f.ExistsDataset(ctx, "", "nowhere")
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, messages, 2)
}
