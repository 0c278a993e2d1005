// Package value implements the Value union used both as sequence content and
// as references to nested containers.
//
// Binary, String, List and Map hold their payload behind a shared immutable
// allocation. Copying a Value copies a pointer; every "mutation" (Append,
// With, Without, Set) builds a new allocation. Each payload carries a
// structural hash that is computed at most once and published with an atomic
// compare-and-swap, so values may be shared freely across goroutines.
//
// Nesting depth is bounded by MaxDepth. Validate, FromGo and
// UnmarshalCanonical reject deeper values with a DEPTH_EXCEEDED error.
package value
