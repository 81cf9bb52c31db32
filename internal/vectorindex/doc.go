// Package vectorindex keeps an in-memory approximate nearest neighbour index over
// chunk embeddings, chosen by corpus size.
//
// Below the IVF threshold (10,000 vectors by default) the index is a flat exact
// scan. At or above it, vectors are partitioned by an inverted file: k-means
// centroids (nlist = round(sqrt(N)), clamped to [8, 4096]) trained with Lloyd
// iterations from a fixed seed, and each query scans the nprobe closest
// partitions (default max(1, nlist/8)).
//
// Stored vectors are normalized, so scores are cosine similarities.
//
//	mgr := vectorindex.NewManager(store, vectorindex.Config{}, logger)
//	if err := mgr.Rebuild(ctx); err != nil {
//	    return err
//	}
//	results, err := mgr.Search(queryVector, 20)
//
// The index holds no document metadata. Callers apply document filters to the
// returned chunk ids.
package vectorindex
