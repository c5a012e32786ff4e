// Package reembed rewrites the vectors of every stored chunk with a new or
// updated embedding model.
//
// Collections are processed one at a time in batches, with retry and
// exponential backoff on embedding calls. Vectors are normalized before
// they are written back so similarity search keeps working unchanged.
package reembed
