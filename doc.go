// Package zarr reads and writes chunked, optionally compressed N-dimensional
// arrays and their attributes in a Zarr v2 hierarchy held in a gocloud.dev
// blob bucket.
//
// Several cooperating processes may contribute disjoint slices of one
// logical array. Their extents along the leading axis are reduced through a
// pgroup.Group, each participant writes its own region, and the transfer can
// be collective (rank-ordered rounds closed by barriers) or independent.
//
// Objects are addressed by slash-separated paths ("grp/sub/data"). Opening a
// path yields a Chain of handles that must be closed with Chain.Close.
package zarr
