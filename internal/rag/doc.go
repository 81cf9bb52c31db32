// Package rag answers questions about the indexed datasheets.
//
// A query is enhanced with keywords for the asker's role, run through the
// hybrid searcher, and the top chunks are rendered into a Korean or English
// prompt for the LLM. The generated answer is scored by the quality
// validator; answers that fail validation are replaced by a fixed fallback
// with low confidence. Every answered query is written to the query log so
// it can be rated and aggregated into statistics.
//
// MultiSourceQuery widens retrieval beyond the chunks. It also searches
// document metadata, confident past answers and an optional web searcher,
// then weights and merges the hits into one context.
package rag
