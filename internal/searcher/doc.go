// Package searcher implements hybrid retrieval over datasheet chunks, combining
// vector similarity and BM25 keyword matching.
//
// Three modes are supported:
//   - Hybrid: both legs run concurrently and are fused (default)
//   - Vector: cosine similarity against the in-memory vector index, or a storage scan
//   - Keyword: FTS5 BM25 only
//
// Hybrid results are fused with a weighted sum by default:
//
//	score = wv*clamp(cosine, 0, 1) + wk*|bm25|/max|bm25|
//
// Weights come from configuration (0.7/0.3) and are normalized to sum to 1.
// Reciprocal Rank Fusion is available with FusionRRF. Each leg fetches twice the
// requested limit, ties are broken by chunk id, and MinRelevance applies to the
// fused score.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, emb, vectors, searcher.Config{}, logger)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:    "DDR5 operating voltage",
//	    Limit:    5,
//	    UseCache: true,
//	    Filters:  &storage.SearchFilters{ProductFamilies: []string{"DDR5"}},
//	})
//
// # Caching
//
// Responses are cached in an LRU keyed by a SHA-256 of the normalized request
// (lowercased query with collapsed whitespace, limit, mode, fusion and sorted
// filters). Entries expire after the configured TTL and are returned as deep
// copies. The indexer calls InvalidateCache after every index or delete.
package searcher
