package zarr

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"gocloud.dev/blob"
)

// Walk calls fn for the group or array at path and every group and array
// below it, in path order. Chunks and attributes are not visited.
func (f *File) Walk(ctx context.Context, path string, fn func(path string, kind Kind) error) error {
	path = CleanPath(path)
	kind, err := f.nodeKind(ctx, path)
	if err != nil {
		return f.check("walk", path, ioError("walk", path, err))
	}
	if kind == 0 {
		return f.check("walk", path, fmt.Errorf("%w: %q", ErrNotFound, path))
	}

	nodes := map[string]Kind{path: kind}
	if kind == KindGroup {
		prefix := ""
		if path != "" {
			prefix = path + "/"
		}
		iter := f.bucket.List(&blob.ListOptions{Prefix: prefix})
		for {
			obj, err := iter.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return f.check("walk", path, ioError("walk", path, err))
			}
			dir, name := "", obj.Key
			if i := strings.LastIndex(obj.Key, "/"); i >= 0 {
				dir, name = obj.Key[:i], obj.Key[i+1:]
			}
			switch name {
			case groupKey:
				nodes[dir] = KindGroup
			case arrayKey:
				nodes[dir] = KindArray
			}
		}
	}

	paths := make([]string, 0, len(nodes))
	for p := range nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := fn(p, nodes[p]); err != nil {
			return err
		}
	}
	return nil
}
