// Package storage provides SQLite-based persistence for indexed datasheets.
//
// The storage layer manages:
//   - Uploaded documents and their processing status
//   - Detected section headings
//   - Text and table chunks
//   - Vector embeddings
//   - Full-text search indexes
//   - The question log and user ratings
//
// # Database Schema
//
// Tables:
//   - documents: One row per uploaded PDF (MD5 file hash is unique)
//   - document_sections: Headings found by structure detection
//   - chunks: Chunk text with page, section and chunk type
//   - chunks_fts: FTS5 external-content index over chunks
//   - embeddings: One float32 vector per chunk
//   - query_logs: Answered questions, confidence and rating
//
// Deleting a document cascades to its sections, chunks and embeddings.
// Triggers keep chunks_fts in step with chunks.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("data/datasheets.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	doc := &storage.Document{
//	    ID:           uuid.NewString(),
//	    OriginalName: "ddr5.pdf",
//	    FileHash:     hash,
//	}
//	err = store.CreateDocument(ctx, doc)
//
// # Transactions
//
// The database uses a single connection. Inside a transaction every call must
// go through the Tx, never the parent store, or it will wait forever on the
// connection the transaction already holds:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	for _, c := range chunks {
//	    if err := tx.InsertChunk(ctx, c); err != nil {
//	        return err
//	    }
//	}
//	return tx.Commit()
//
// # Search
//
// SearchVector ranks chunks by cosine similarity against a query vector.
// SearchText ranks chunks by FTS5 BM25 and returns the raw score, which is
// negative with lower meaning better. Both accept SearchFilters that restrict
// results by document, document type, product family, product model or
// chunk type. Normalising and fusing the two lists is left to the searcher.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3
//
//   - Vector similarity is computed in SQL by sqlite-vec
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite
//
//   - Vector similarity is computed in Go
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
