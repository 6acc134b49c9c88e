package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// AttrValue is the set of Go types an attribute can hold.
type AttrValue interface {
	int8 | int16 | int32 | int64 | int |
		uint8 | uint16 | uint32 | uint64 | uint |
		float32 | float64 | string | bool
}

// Attribute is an open attribute of a group or array.
type Attribute struct {
	handle
	name string
	raw  json.RawMessage
}

func (a *Attribute) Kind() Kind   { return KindAttribute }
func (a *Attribute) Close() error { return a.release() }

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.name }

// Decode unmarshals the attribute value into v.
func (a *Attribute) Decode(v any) error {
	if a.closed {
		return ErrClosed
	}
	if err := decodeAttrValue(a.raw, v); err != nil {
		return fmt.Errorf("failed to decode attribute %q of %q: %w", a.name, a.path, err)
	}
	return nil
}

// attrFloat is a float attribute value. NaN and the infinities are stored
// as the strings "NaN", "Infinity" and "-Infinity", as fill values are.
type attrFloat struct {
	v    float64
	bits int
}

func (x attrFloat) MarshalJSON() ([]byte, error) {
	if name, ok := nonFiniteName(x.v); ok {
		return json.Marshal(name)
	}
	if x.bits == 32 {
		return json.Marshal(float32(x.v))
	}
	return json.Marshal(x.v)
}

func (x *attrFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		v, ok := parseNonFinite(name)
		if !ok {
			return fmt.Errorf("invalid float %q", name)
		}
		x.v = v
		return nil
	}
	bits := x.bits
	if bits == 0 {
		bits = 64
	}
	v, err := strconv.ParseFloat(string(b), bits)
	if err != nil {
		return fmt.Errorf("invalid float %s", b)
	}
	x.v = v
	return nil
}

func floatsOf[F float32 | float64](v []F, bits int) []attrFloat {
	out := make([]attrFloat, len(v))
	for i, x := range v {
		out[i] = attrFloat{v: float64(x), bits: bits}
	}
	return out
}

func encodeAttrValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case float32:
		value = attrFloat{v: float64(v), bits: 32}
	case float64:
		value = attrFloat{v: v, bits: 64}
	case []float32:
		value = floatsOf(v, 32)
	case []float64:
		value = floatsOf(v, 64)
	}
	return json.Marshal(value)
}

func decodeAttrValue(raw []byte, v any) error {
	switch p := v.(type) {
	case *float32:
		x := attrFloat{bits: 32}
		err := json.Unmarshal(raw, &x)
		*p = float32(x.v)
		return err
	case *float64:
		x := attrFloat{bits: 64}
		err := json.Unmarshal(raw, &x)
		*p = x.v
		return err
	case *[]float32:
		return decodeFloats(raw, p, 32)
	case *[]float64:
		return decodeFloats(raw, p, 64)
	}
	return json.Unmarshal(raw, v)
}

func decodeFloats[F float32 | float64](raw []byte, p *[]F, bits int) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	out := make([]F, len(items))
	for i, item := range items {
		x := attrFloat{bits: bits}
		if err := json.Unmarshal(item, &x); err != nil {
			return err
		}
		out[i] = F(x.v)
	}
	*p = out
	return nil
}

// readAttrs returns the attributes of the object at path. An object without
// a .zattrs key has no attributes.
func (f *File) readAttrs(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	attrs := map[string]json.RawMessage{}
	err := f.readJSON(ctx, storeKey(path, attrsKey), &attrs)
	if errors.Is(err, ErrNotFound) {
		return map[string]json.RawMessage{}, nil
	}
	return attrs, err
}

// openAttribute opens the attribute name of the group or array at objPath.
func (f *File) openAttribute(ctx context.Context, objPath, name string) (*Attribute, error) {
	attrs, err := f.readAttrs(ctx, objPath)
	if err != nil {
		return nil, ioError("open attribute", JoinPath(objPath, name), err)
	}
	raw, ok := attrs[name]
	if !ok {
		return nil, fmt.Errorf("%w: attribute %q of %q", ErrNotFound, name, objPath)
	}
	return &Attribute{handle: f.acquire(objPath), name: name, raw: raw}, nil
}

// WriteAttribute attaches the scalar attribute name to the group or array
// parent. An empty string is stored as a single space. Writing an existing
// attribute returns ErrAlreadyExists. Every participant must call it.
func WriteAttribute[T AttrValue](ctx context.Context, f *File, parent, name string, v T) error {
	var value any = v
	if s, ok := value.(string); ok && s == "" {
		value = " "
	}
	return f.writeAttribute(ctx, parent, name, value)
}

// WriteAttributeSlice attaches the vector attribute name to the group or
// array parent.
func WriteAttributeSlice[T AttrValue](ctx context.Context, f *File, parent, name string, v []T) error {
	if v == nil {
		v = []T{}
	}
	return f.writeAttribute(ctx, parent, name, v)
}

func (f *File) writeAttribute(ctx context.Context, parent, name string, value any) error {
	parent = CleanPath(parent)
	path := JoinPath(parent, name)
	err := f.onRoot(ctx, "write attribute", path, func() error {
		if segs := SplitPath(name); len(segs) != 1 || segs[0] != name {
			return fmt.Errorf("%w: attribute name %q", ErrInvalidPath, name)
		}
		if _, _, err := splitParent(path); err != nil {
			return err
		}
		kind, err := f.nodeKind(ctx, parent)
		if err != nil {
			return err
		}
		if kind == 0 {
			return fmt.Errorf("%w: object %q", ErrNotFound, parent)
		}
		attrs, err := f.readAttrs(ctx, parent)
		if err != nil {
			return err
		}
		if _, ok := attrs[name]; ok {
			return fmt.Errorf("%w: attribute %q of %q", ErrAlreadyExists, name, parent)
		}
		raw, err := encodeAttrValue(value)
		if err != nil {
			return fmt.Errorf("failed to encode attribute %q: %w", name, err)
		}
		attrs[name] = raw
		return f.writeJSON(ctx, storeKey(parent, attrsKey), attrs)
	})
	return f.check("write attribute", path, err)
}

// ReadAttribute reads the scalar attribute at path, whose last segment is
// the attribute name.
func ReadAttribute[T AttrValue](ctx context.Context, f *File, path string) (T, error) {
	var v T
	err := f.readAttribute(ctx, path, &v)
	return v, err
}

// ReadAttributeSlice reads the vector attribute at path.
func ReadAttributeSlice[T AttrValue](ctx context.Context, f *File, path string) ([]T, error) {
	var v []T
	err := f.readAttribute(ctx, path, &v)
	return v, err
}

func (f *File) readAttribute(ctx context.Context, path string, v any) error {
	chain, err := f.Resolve(ctx, path, KindAttribute)
	if err != nil {
		return f.check("read attribute", path, err)
	}
	defer chain.Close()
	return f.check("read attribute", path, chain.Leaf().(*Attribute).Decode(v))
}

// Attributes returns every attribute of the group or array at path.
func (f *File) Attributes(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	path = CleanPath(path)
	kind, err := f.nodeKind(ctx, path)
	if err != nil {
		return nil, f.check("read attributes of", path, ioError("read attributes of", path, err))
	}
	if kind == 0 {
		return nil, f.check("read attributes of", path, fmt.Errorf("%w: object %q", ErrNotFound, path))
	}
	attrs, err := f.readAttrs(ctx, path)
	return attrs, f.check("read attributes of", path, err)
}
