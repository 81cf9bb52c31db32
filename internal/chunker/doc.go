// Package chunker splits extracted datasheet pages into retrieval chunks.
//
// Splitting is delegated to langchaingo's recursive character splitter, which
// tries paragraph breaks, then line breaks, sentence ends, spaces and finally
// single characters until every piece fits the chunk size.
//
// # Usage
//
//	c, err := chunker.New(chunker.WithChunkSize(1000), chunker.WithChunkOverlap(200))
//	if err != nil {
//	    return err
//	}
//	chunks, err := c.ChunkDocument(result, documentID)
//
// # Chunk Metadata
//
// Pages are split independently, so a chunk never spans two pages. Every
// chunk records:
//   - PageNumber: the 1-based source page
//   - Section: the last heading at or before the chunk, on this page or earlier
//   - ChunkIndex: 0-based position across the whole document
//   - ChunkType: "text", or "table" for detected tables
//   - ContentHash and TokenCount (runes / 4)
//
// Tables are rendered one row per line with cells joined by " | " and are
// chunked after the text of their page.
package chunker
