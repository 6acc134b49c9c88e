package zarr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolve walks path from the root group and returns the chain of handles
// opened on the way, ending with an object of the requested kind (group,
// array or attribute). For an attribute, the last segment names the
// attribute and the segment before it its group or array.
//
// On failure every handle opened so far is closed before returning. On
// success the caller closes the chain.
func (f *File) Resolve(ctx context.Context, path string, kind Kind) (chain Chain, err error) {
	if f.closed {
		return nil, ErrClosed
	}
	segments := SplitPath(path)
	objects := segments
	switch kind {
	case KindGroup, KindArray:
	case KindAttribute:
		if len(segments) == 0 {
			return nil, fmt.Errorf("%w: attribute path %q has no name", ErrInvalidPath, path)
		}
		objects = segments[:len(segments)-1]
	default:
		return nil, fmt.Errorf("%w: cannot resolve a %s", ErrWrongKind, kind)
	}
	if kind == KindArray && len(objects) == 0 {
		return nil, fmt.Errorf("%w: array path %q has no name", ErrInvalidPath, path)
	}

	defer func() {
		if err != nil {
			chain.Close()
			chain = nil
		}
	}()

	root, err := f.nodeKind(ctx, "")
	if err != nil {
		return chain, ioError("resolve", path, err)
	}
	if root != KindGroup {
		return chain, fmt.Errorf("%w: root group", ErrNotFound)
	}
	chain = append(chain, &Group{handle: f.acquire("")})

	for i := range objects {
		current := strings.Join(objects[:i+1], "/")
		found, err := f.nodeKind(ctx, current)
		if err != nil {
			return chain, ioError("resolve", current, err)
		}
		last := i == len(objects)-1
		switch {
		case found == 0:
			return chain, fmt.Errorf("%w: %q", ErrNotFound, current)
		case found == KindGroup && (!last || kind != KindArray):
			chain = append(chain, &Group{handle: f.acquire(current)})
		case found == KindArray && last && kind != KindGroup:
			a, err := f.openArray(ctx, current)
			if err != nil {
				return chain, err
			}
			chain = append(chain, a)
		default:
			return chain, fmt.Errorf("%w: %q is a %s", ErrNotFound, current, found)
		}
	}

	if kind == KindAttribute {
		attr, err := f.openAttribute(ctx, strings.Join(objects, "/"), segments[len(segments)-1])
		if err != nil {
			return chain, err
		}
		chain = append(chain, attr)
	}
	return chain, nil
}

// Exists reports whether path resolves to an object of the given kind.
// A missing object is not an error.
func (f *File) Exists(ctx context.Context, path string, kind Kind) (bool, error) {
	chain, err := f.Resolve(ctx, path, kind)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, f.check("check existence of", path, err)
	}
	return true, chain.Close()
}

// ExistsDataset reports whether parent/name is an array.
func (f *File) ExistsDataset(ctx context.Context, parent, name string) (bool, error) {
	return f.Exists(ctx, JoinPath(parent, name), KindArray)
}

// ExistsAttribute reports whether the group or array parent has the
// attribute name.
func (f *File) ExistsAttribute(ctx context.Context, parent, name string) (bool, error) {
	return f.Exists(ctx, JoinPath(parent, name), KindAttribute)
}
