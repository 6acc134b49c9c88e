package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/go-logr/logr"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/TuSKan/go-zarr/pgroup"
)

// Mode selects how NewFile treats the existing content of a bucket.
type Mode int

const (
	// ModeCreate removes every object in the bucket and writes a new root group.
	ModeCreate Mode = iota
	// ModeAppend requires an existing root group and keeps its content.
	ModeAppend
)

// File is an open Zarr hierarchy. Calls against one File must not overlap.
type File struct {
	bucket *blob.Bucket
	owned  bool

	config Config
	group  pgroup.Group
	logger logr.Logger
	fail   FailFunc

	open   atomic.Int64
	closed bool
}

// Create opens the bucket at url and truncates it to an empty hierarchy.
// In a process group every participant must call it.
func Create(ctx context.Context, url string, opts ...FileOption) (*File, error) {
	return openURL(ctx, url, ModeCreate, opts)
}

// Append opens the existing hierarchy at url for reading and writing.
func Append(ctx context.Context, url string, opts ...FileOption) (*File, error) {
	return openURL(ctx, url, ModeAppend, opts)
}

func openURL(ctx context.Context, url string, mode Mode, opts []FileOption) (*File, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	f, err := NewFile(ctx, bucket, mode, opts...)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	f.owned = true
	return f, nil
}

// NewFile opens a hierarchy in a bucket owned by the caller. Participants of
// a process group may share one bucket.
func NewFile(ctx context.Context, bucket *blob.Bucket, mode Mode, opts ...FileOption) (*File, error) {
	f, err := newFile(bucket, opts)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeCreate:
		err := f.onRoot(ctx, "create", "/", func() error {
			if err := f.truncate(ctx); err != nil {
				return err
			}
			return f.writeJSON(ctx, groupKey, GroupMetadata{ZarrFormat: zarrFormat})
		})
		if err != nil {
			return nil, err
		}
	case ModeAppend:
		kind, err := f.nodeKind(ctx, "")
		if err != nil {
			return nil, ioError("open", "/", err)
		}
		if kind != KindGroup {
			return nil, fmt.Errorf("%w: no root group", ErrNotFound)
		}
	default:
		return nil, fmt.Errorf("unknown mode %d", mode)
	}
	return f, nil
}

func newFile(bucket *blob.Bucket, opts []FileOption) (*File, error) {
	o := defaultFileOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	f := &File{
		bucket: bucket,
		config: o.config,
		group:  o.group,
		logger: o.logger,
		fail:   o.fail,
	}
	if o.fail == nil && !o.returnErrors {
		f.fail = f.abortProcess
	}
	return f, nil
}

// Group returns the process group of the file.
func (f *File) Group() pgroup.Group { return f.group }

// Logger returns the file's logger.
func (f *File) Logger() logr.Logger { return f.logger }

// OpenHandles returns the number of handles not yet closed.
func (f *File) OpenHandles() int { return int(f.open.Load()) }

// Close closes the file and, when the file opened it, the bucket. Handles
// must be closed first.
func (f *File) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	if n := f.OpenHandles(); n > 0 {
		f.logger.Info("closing file with open handles", "count", n)
	}
	if f.owned {
		return f.bucket.Close()
	}
	return nil
}

// abortProcess is the default fatal-error sink.
func (f *File) abortProcess(message string) {
	f.logger.Error(nil, message)
	f.group.Abort(1)
	os.Exit(1)
}

// check funnels a failed operation into the fatal sink. AlreadyExists is
// returned to the caller instead.
func (f *File) check(op, path string, err error) error {
	if err == nil || errors.Is(err, ErrAlreadyExists) || f.fail == nil {
		return err
	}
	f.fail(fmt.Sprintf("Failed to %s %s: %v", op, path, err))
	return err
}

// onRoot runs fn on rank 0 only and hands its outcome to every participant.
// Rank 0 keeps its own error; the others receive one that matches the same
// sentinel error.
func (f *File) onRoot(ctx context.Context, op, path string, fn func() error) error {
	if f.group.Size() == 1 {
		return ioError(op, path, fn())
	}
	var (
		status []byte
		err    error
	)
	if f.group.Rank() == 0 {
		err = fn()
		status = encodeStatus(err)
	}
	status, berr := f.group.Broadcast(ctx, 0, status)
	if berr != nil {
		return ioError(op, path, errors.Join(err, berr))
	}
	if f.group.Rank() == 0 {
		return ioError(op, path, err)
	}
	return decodeStatus(op, path, status)
}

// statusErrors maps the status codes sent by rank 0 to sentinel errors.
// Code 0 is success; any other failure is sent as statusFailed.
var statusErrors = []error{
	nil,
	ErrAlreadyExists,
	ErrNotFound,
	ErrClosed,
	ErrInvalidPath,
	ErrShapeMismatch,
	ErrWrongKind,
}

var statusFailed = byte(len(statusErrors))

// rootError is a rank 0 failure as seen by the other participants.
type rootError struct {
	msg      string
	sentinel error
}

func (e *rootError) Error() string { return e.msg }
func (e *rootError) Unwrap() error { return e.sentinel }

func encodeStatus(err error) []byte {
	if err == nil {
		return []byte{0}
	}
	for code, sentinel := range statusErrors[1:] {
		if errors.Is(err, sentinel) {
			return append([]byte{byte(code + 1)}, err.Error()...)
		}
	}
	return append([]byte{statusFailed}, err.Error()...)
}

func decodeStatus(op, path string, status []byte) error {
	if len(status) == 0 {
		return ioError(op, path, errors.New("empty status from rank 0"))
	}
	code, msg := status[0], string(status[1:])
	switch {
	case code == 0:
		return nil
	case int(code) < len(statusErrors):
		return ioError(op, path, &rootError{msg: msg, sentinel: statusErrors[code]})
	default:
		return ioError(op, path, &rootError{msg: msg})
	}
}

func (f *File) truncate(ctx context.Context) error {
	iter := f.bucket.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list bucket: %w", err)
		}
		if err := f.bucket.Delete(ctx, obj.Key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return fmt.Errorf("failed to delete %s: %w", obj.Key, err)
		}
	}
}

func (f *File) exists(ctx context.Context, key string) (bool, error) {
	ok, err := f.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return ok, nil
}

// nodeKind reports whether path is a group, an array, or nothing (0).
func (f *File) nodeKind(ctx context.Context, path string) (Kind, error) {
	ok, err := f.exists(ctx, storeKey(path, groupKey))
	if err != nil || ok {
		return KindGroup, err
	}
	ok, err = f.exists(ctx, storeKey(path, arrayKey))
	if err != nil || ok {
		return KindArray, err
	}
	return 0, nil
}

func (f *File) readJSON(ctx context.Context, key string, v any) error {
	raw, err := f.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (f *File) writeJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := f.bucket.WriteAll(ctx, key, raw, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// CreateGroup creates the group at path. Its parent must exist.
// In a process group every participant must call it.
func (f *File) CreateGroup(ctx context.Context, path string) (*Group, error) {
	path = CleanPath(path)
	err := f.onRoot(ctx, "create group", path, func() error {
		parent, _, err := splitParent(path)
		if err != nil {
			return err
		}
		kind, err := f.nodeKind(ctx, parent)
		if err != nil {
			return err
		}
		if kind != KindGroup {
			return fmt.Errorf("%w: parent group %q", ErrNotFound, parent)
		}
		if kind, err = f.nodeKind(ctx, path); err != nil {
			return err
		} else if kind != 0 {
			return fmt.Errorf("%w: %s %q", ErrAlreadyExists, kind, path)
		}
		return f.writeJSON(ctx, storeKey(path, groupKey), GroupMetadata{ZarrFormat: zarrFormat})
	})
	if err := f.check("create group", path, err); err != nil {
		return nil, err
	}
	g := &Group{handle: f.acquire(path)}
	return g, nil
}

// OpenGroup opens the existing group at path.
func (f *File) OpenGroup(ctx context.Context, path string) (*Group, error) {
	path = CleanPath(path)
	kind, err := f.nodeKind(ctx, path)
	if err != nil {
		return nil, f.check("open group", path, ioError("open group", path, err))
	}
	if kind != KindGroup {
		return nil, f.check("open group", path, fmt.Errorf("%w: group %q", ErrNotFound, path))
	}
	return &Group{handle: f.acquire(path)}, nil
}
