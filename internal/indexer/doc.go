// Package indexer manages the lifecycle of uploaded PDF documents.
//
// An upload is validated, written to the upload directory as "<md5>_<name>",
// recorded as a pending document and handed to a background worker pool. The
// worker extracts text, detects sections, chunks the pages, embeds the chunks
// and stores everything, then marks the document completed or failed.
//
// # Basic Usage
//
//	idx, err := indexer.New(indexer.Deps{
//	    Storage:     store,
//	    Embedder:    emb,
//	    Vectors:     vectors,
//	    Invalidator: searcher,
//	    Logger:      logger,
//	}, indexer.Config{UploadDir: "./data/uploads"})
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	res, err := idx.Upload(ctx, indexer.UploadRequest{
//	    Filename: "ddr5.pdf",
//	    Reader:   file,
//	    Meta:     indexer.MetadataFromForm(c.PostForm),
//	})
//
// Ingest runs the same pipeline synchronously, which is what the CLI uses.
//
// # Processing Pipeline
//
//  1. Status moves to processing
//  2. Parse: page text, tables and section headings
//  3. Chunk: recursive character splitting per page, tables kept separate
//  4. Replace: old chunks and sections of the document are removed
//  5. Embed: batches of 50 chunks, a few batches in flight at once
//  6. Store: each batch of chunks and embeddings in one transaction
//  7. Index: vectors added to the in-memory index, search cache invalidated
//
// A failure at any step marks the document failed with the error message and
// removes the chunks written so far.
//
// # Duplicates
//
// Uploads are identified by the MD5 of their bytes. Uploading the same bytes again
// returns a *DuplicateError naming the existing document; errors.Is(err,
// ErrDuplicateDocument) also matches.
//
// # Concurrency
//
// Each document has an IndexLock. Processing, reindexing and deleting the same
// document at the same time fail with ErrAlreadyProcessing instead of waiting.
package indexer
