// Package layout reads dataset bytes from compact, contiguous and chunked
// storage behind one [Layout] interface.
//
// Row-oriented callers use [Layout.ReadRows], which reads a block of whole
// rows (every element sharing one first-dimension index). Contiguous storage
// serves it with a single read of exactly the block's bytes, and
// [Contiguous.Span] exposes that byte range for read-ahead hints.
//
// Chunked storage is located through the index named in the layout message:
// a version 1 or 2 B-tree, a fixed or extensible array, an implicit index,
// or a single chunk. The index is read once per [Chunked] and sorted by
// first-dimension offset, so a selection of rows binary-searches to the
// first overlapping chunk and stops after the last. The most recently
// decoded chunk is retained. Edge chunks are clipped while copying, and
// chunks that were never written read as zeros.
package layout
