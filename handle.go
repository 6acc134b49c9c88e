package zarr

import (
	"errors"
	"fmt"
)

// Kind is the kind of object a handle refers to.
type Kind int

const (
	KindGroup Kind = iota + 1
	KindArray
	KindAttribute
	KindDataspace
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindArray:
		return "array"
	case KindAttribute:
		return "attribute"
	case KindDataspace:
		return "dataspace"
	case KindTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Handle is an open reference to an object of a File. Handles are counted by
// their File until closed; closing twice returns ErrClosed.
type Handle interface {
	Kind() Kind
	Path() string
	Close() error
}

type handle struct {
	file   *File
	path   string
	closed bool
}

func (f *File) acquire(path string) handle {
	f.open.Add(1)
	return handle{file: f, path: path}
}

func (h *handle) Path() string { return h.path }

func (h *handle) release() error {
	if h.closed {
		return ErrClosed
	}
	h.closed = true
	h.file.open.Add(-1)
	return nil
}

// Chain is the ordered list of handles opened while resolving a path,
// root first.
type Chain []Handle

// Leaf returns the handle of the resolved object.
func (c Chain) Leaf() Handle {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// Close closes every handle leaf first. Handles that are already closed are
// skipped.
func (c Chain) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if c[i] == nil {
			continue
		}
		if err := c[i].Close(); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to close %s %q: %w", c[i].Kind(), c[i].Path(), err))
		}
	}
	return errors.Join(errs...)
}

// Group is an open group.
type Group struct {
	handle
}

func (g *Group) Kind() Kind   { return KindGroup }
func (g *Group) Close() error { return g.release() }
