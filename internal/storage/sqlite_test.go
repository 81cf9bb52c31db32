package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/datasheet-rag/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func createTestDocument(t *testing.T, s Storage, id, name string) *Document {
	t.Helper()
	doc := &Document{
		ID:            id,
		Filename:      "hash-" + id + "_" + name,
		OriginalName:  name,
		FilePath:      "/uploads/hash-" + id + "_" + name,
		FileHash:      "hash-" + id,
		FileSize:      1024,
		ProductFamily: "DDR5",
		ProductModel:  "M321R8GA0BB0",
	}
	require.NoError(t, s.CreateDocument(context.Background(), doc))
	return doc
}

func insertTestChunk(t *testing.T, s Storage, docID string, index int, content string) *Chunk {
	t.Helper()
	chunk := &Chunk{
		DocumentID:  docID,
		Content:     content,
		ContentHash: sha256.Sum256([]byte(content)),
		TokenCount:  len(content) / 4,
		PageNumber:  index + 1,
		Section:     "Specification",
		ChunkIndex:  index,
		ChunkType:   string(types.ChunkText),
	}
	require.NoError(t, s.InsertChunk(context.Background(), chunk))
	return chunk
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)

	assert.NotNil(t, storage.DB())

	version, err := SchemaVersion(context.Background(), storage.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestCreateDocument(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc := createTestDocument(t, storage, "doc-1", "ddr5.pdf")
	assert.Equal(t, types.DocDatasheet, doc.DocumentType)
	assert.Equal(t, types.StatusPending, doc.Status)
	assert.Equal(t, "ko", doc.Language)
	assert.False(t, doc.CreatedAt.IsZero())

	// Same file hash is rejected
	duplicate := &Document{ID: "doc-2", Filename: "x", OriginalName: "copy.pdf", FilePath: "/x", FileHash: doc.FileHash}
	err := storage.CreateDocument(ctx, duplicate)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetDocument(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	created := createTestDocument(t, storage, "doc-1", "ddr5.pdf")

	got, err := storage.GetDocument(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ddr5.pdf", got.OriginalName)
	assert.Equal(t, "DDR5", got.ProductFamily)
	assert.Equal(t, "M321R8GA0BB0", got.ProductModel)
	assert.Empty(t, got.Version)
	assert.True(t, got.ProcessedAt.IsZero())

	byHash, err := storage.GetDocumentByHash(ctx, created.FileHash)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byHash.ID)

	_, err = storage.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.GetDocumentByHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDocuments(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createTestDocument(t, storage, fmt.Sprintf("doc-%d", i), fmt.Sprintf("file-%d.pdf", i))
	}
	manual := &Document{
		ID: "manual", Filename: "m", OriginalName: "install-guide.pdf", FilePath: "/m",
		FileHash: "manual-hash", DocumentType: types.DocManual, ProductFamily: "SSD",
	}
	require.NoError(t, storage.CreateDocument(ctx, manual))

	docs, total, err := storage.ListDocuments(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, docs, 6)

	docs, total, err = storage.ListDocuments(ctx, ListOptions{Page: 2, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, docs, 2)

	docs, total, err = storage.ListDocuments(ctx, ListOptions{DocumentType: string(types.DocManual)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, "manual", docs[0].ID)

	docs, total, err = storage.ListDocuments(ctx, ListOptions{ProductFamily: "DDR5"})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, docs, 5)

	docs, total, err = storage.ListDocuments(ctx, ListOptions{Search: "install"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, "install-guide.pdf", docs[0].OriginalName)

	require.NoError(t, storage.UpdateDocumentStatus(ctx, "manual", types.StatusCompleted, ""))
	docs, total, err = storage.ListDocuments(ctx, ListOptions{Status: types.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, "manual", docs[0].ID)
}

func TestUpdateDocumentStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc := createTestDocument(t, storage, "doc-1", "ddr5.pdf")

	require.NoError(t, storage.UpdateDocumentStatus(ctx, doc.ID, types.StatusProcessing, ""))
	got, err := storage.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, got.Status)
	assert.True(t, got.ProcessedAt.IsZero())

	require.NoError(t, storage.UpdateDocumentStatus(ctx, doc.ID, types.StatusFailed, "no extractable text"))
	got, err = storage.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "no extractable text", got.ErrorMessage)
	assert.False(t, got.ProcessedAt.IsZero())

	err = storage.UpdateDocumentStatus(ctx, doc.ID, types.ProcessingStatus("bogus"), "")
	assert.ErrorIs(t, err, types.ErrInvalidStatus)

	err = storage.UpdateDocumentStatus(ctx, "missing", types.StatusCompleted, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateDocument(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc := createTestDocument(t, storage, "doc-1", "ddr5.pdf")
	doc.PageCount = 12
	doc.HasTOC = true
	doc.Version = "1.2"
	doc.Status = types.StatusCompleted
	require.NoError(t, storage.UpdateDocument(ctx, doc))

	got, err := storage.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.PageCount)
	assert.True(t, got.HasTOC)
	assert.Equal(t, "1.2", got.Version)
	assert.Equal(t, types.StatusCompleted, got.Status)

	missing := &Document{ID: "missing", DocumentType: types.DocDatasheet, Status: types.StatusPending}
	assert.ErrorIs(t, storage.UpdateDocument(ctx, missing), ErrNotFound)
}

func TestCountDocumentsByType(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	createTestDocument(t, storage, "a", "a.pdf")
	createTestDocument(t, storage, "b", "b.pdf")
	require.NoError(t, storage.CreateDocument(ctx, &Document{
		ID: "c", Filename: "c", OriginalName: "c.pdf", FilePath: "/c", FileHash: "c", DocumentType: types.DocSpecification,
	}))

	counts, err := storage.CountDocumentsByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"datasheet": 2, "specification": 1}, counts)
}

func TestSections(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc := createTestDocument(t, storage, "doc-1", "ddr5.pdf")

	sections := []*Section{
		{Title: "1. Overview", PageNumber: 1, Offset: 0},
		{Title: "2. Electrical Characteristics", PageNumber: 3, Offset: 1200},
	}
	require.NoError(t, storage.ReplaceSections(ctx, doc.ID, sections))
	assert.Greater(t, sections[0].ID, int64(0))

	got, err := storage.ListSections(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1. Overview", got[0].Title)
	assert.Equal(t, 1, got[1].Position)

	// Replace drops the previous set
	require.NoError(t, storage.ReplaceSections(ctx, doc.ID, []*Section{{Title: "Features", PageNumber: 1}}))
	got, err = storage.ListSections(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Features", got[0].Title)
}

func TestChunks(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc := createTestDocument(t, storage, "doc-1", "ddr5.pdf")
	first := insertTestChunk(t, storage, doc.ID, 0, "Operating voltage is 1.1V")
	second := insertTestChunk(t, storage, doc.ID, 1, "Capacity is 32GB per module")
	assert.Greater(t, second.ID, first.ID)

	got, err := storage.GetChunk(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Operating voltage is 1.1V", got.Content)
	assert.Equal(t, first.ContentHash, got.ContentHash)
	assert.Equal(t, "Specification", got.Section)

	// Re-inserting the same index replaces the content and keeps the id
	updated := insertTestChunk(t, storage, doc.ID, 0, "Operating voltage is 1.2V")
	assert.Equal(t, first.ID, updated.ID)

	chunks, err := storage.ListChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Operating voltage is 1.2V", chunks[0].Content)

	n, err := storage.CountChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	details, err := storage.GetChunkDetails(ctx, []int64{first.ID, second.ID, 9999})
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, doc.Filename, details[second.ID].Filename)
	assert.Equal(t, "ddr5.pdf", details[second.ID].OriginalName)
	assert.Equal(t, "DDR5", details[second.ID].ProductFamily)

	deleted, err := storage.DeleteChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = storage.GetChunk(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmbeddings(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc := createTestDocument(t, storage, "doc-1", "ddr5.pdf")
	chunk := insertTestChunk(t, storage, doc.ID, 0, "Operating voltage is 1.1V")

	emb := &Embedding{
		ChunkID:   chunk.ID,
		Vector:    SerializeVector([]float32{0.1, 0.2, 0.3}),
		Dimension: 3,
		Provider:  "local",
		Model:     "hash",
	}
	require.NoError(t, storage.UpsertEmbedding(ctx, emb))
	firstID := emb.ID

	emb.Vector = SerializeVector([]float32{0.3, 0.2, 0.1})
	require.NoError(t, storage.UpsertEmbedding(ctx, emb))
	assert.Equal(t, firstID, emb.ID)

	got, err := storage.GetEmbedding(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.3, 0.2, 0.1}, DeserializeVector(got.Vector))

	var seen []int64
	err = storage.ListEmbeddings(ctx, func(chunkID int64, vector []float32) error {
		seen = append(seen, chunkID)
		assert.Len(t, vector, 3)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{chunk.ID}, seen)

	_, err = storage.GetEmbedding(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDocumentCascades(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc := createTestDocument(t, storage, "doc-1", "ddr5.pdf")
	chunk := insertTestChunk(t, storage, doc.ID, 0, "Refresh interval tREFI")
	require.NoError(t, storage.UpsertEmbedding(ctx, &Embedding{
		ChunkID: chunk.ID, Vector: SerializeVector([]float32{1, 0}), Dimension: 2, Provider: "local", Model: "hash",
	}))
	require.NoError(t, storage.ReplaceSections(ctx, doc.ID, []*Section{{Title: "Overview"}}))

	require.NoError(t, storage.DeleteDocument(ctx, doc.ID))

	n, err := storage.CountChunks(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = storage.GetEmbedding(ctx, chunk.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	sections, err := storage.ListSections(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, sections)

	// The FTS index no longer returns the deleted chunk
	results, err := storage.SearchText(ctx, "tREFI", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.ErrorIs(t, storage.DeleteDocument(ctx, doc.ID), ErrNotFound)
}

func TestFilterChunks(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	ddr := createTestDocument(t, storage, "ddr", "ddr5.pdf")
	ssd := &Document{
		ID: "ssd", Filename: "s", OriginalName: "ssd.pdf", FilePath: "/s", FileHash: "ssd",
		ProductFamily: "SSD", DocumentType: types.DocManual,
	}
	require.NoError(t, storage.CreateDocument(ctx, ssd))

	a := insertTestChunk(t, storage, ddr.ID, 0, "voltage")
	b := insertTestChunk(t, storage, ssd.ID, 0, "endurance")

	keep, err := storage.FilterChunks(ctx, []int64{a.ID, b.ID}, &SearchFilters{ProductFamilies: []string{"SSD"}})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{b.ID: true}, keep)

	keep, err = storage.FilterChunks(ctx, []int64{a.ID, b.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, keep, 2)

	keep, err = storage.FilterChunks(ctx, nil, &SearchFilters{DocumentIDs: []string{"ddr"}})
	require.NoError(t, err)
	assert.Empty(t, keep)
}

func TestQueryLogs(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	logs := []*QueryLog{
		{ID: "q1", Question: "DDR5 전압은?", UserRole: "engineer", Confidence: 0.8, ResponseTimeMS: 100, SourcesCount: 3, ModelUsed: "qwen2:0.5b"},
		{ID: "q2", Question: "DDR5 전압은?", UserRole: "quality", Confidence: 0.6, ResponseTimeMS: 300, SourcesCount: 2, ModelUsed: "qwen2:0.5b"},
		{ID: "q3", Question: "용량은?", UserRole: "engineer", Confidence: 0.4, ResponseTimeMS: 200, SourcesCount: 1, ModelUsed: "qwen2:0.5b"},
	}
	for _, l := range logs {
		require.NoError(t, storage.LogQuery(ctx, l))
	}
	assert.ErrorIs(t, storage.LogQuery(ctx, &QueryLog{ID: "q1", Question: "again", UserRole: "engineer"}), ErrAlreadyExists)

	require.NoError(t, storage.SetQueryRating(ctx, "q1", 5))
	require.NoError(t, storage.SetQueryRating(ctx, "q3", 3))
	assert.ErrorIs(t, storage.SetQueryRating(ctx, "missing", 4), ErrNotFound)
	// Ratings outside 1..5 violate the CHECK constraint
	assert.Error(t, storage.SetQueryRating(ctx, "q2", 6))

	popular, err := storage.PopularQueries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, popular, 2)
	assert.Equal(t, PopularQuery{Question: "DDR5 전압은?", Count: 2}, popular[0])

	stats, err := storage.QueryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalQueries)
	assert.Equal(t, 2, stats.RatedQueries)
	assert.InDelta(t, 200.0, stats.AvgResponseTimeMS, 0.001)
	assert.InDelta(t, 0.6, stats.AvgConfidence, 0.001)
	assert.InDelta(t, 4.0, stats.AvgRating, 0.001)
	assert.Equal(t, map[string]int{"engineer": 2, "quality": 1}, stats.RoleDistribution)

	confident, err := storage.ConfidentQueries(ctx, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, confident, 2)
	assert.Equal(t, "q1", confident[0].ID)
	assert.Equal(t, "q2", confident[1].ID)
	require.NotNil(t, confident[0].Rating)
	assert.Equal(t, 5, *confident[0].Rating)
	assert.Nil(t, confident[1].Rating)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.DocumentsCount)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.True(t, status.Health.FTSIndexesBuilt)
	assert.False(t, status.Health.EmbeddingsAvailable)

	doc := createTestDocument(t, storage, "doc-1", "ddr5.pdf")
	require.NoError(t, storage.UpdateDocumentStatus(ctx, doc.ID, types.StatusCompleted, ""))
	createTestDocument(t, storage, "doc-2", "other.pdf")
	chunk := insertTestChunk(t, storage, doc.ID, 0, "content")
	require.NoError(t, storage.UpsertEmbedding(ctx, &Embedding{
		ChunkID: chunk.ID, Vector: SerializeVector([]float32{1}), Dimension: 1, Provider: "local", Model: "hash",
	}))

	status, err = storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.DocumentsCount)
	assert.Equal(t, map[string]int{"completed": 1, "pending": 1}, status.DocumentsByStatus)
	assert.Equal(t, 1, status.ChunksCount)
	assert.Equal(t, 1, status.EmbeddingsCount)
	assert.True(t, status.Health.EmbeddingsAvailable)
	assert.Greater(t, status.IndexSizeMB, 0.0)
}

func TestTransactions(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc := createTestDocument(t, storage, "doc-1", "ddr5.pdf")

	t.Run("commit", func(t *testing.T) {
		tx, err := storage.BeginTx(ctx)
		require.NoError(t, err)
		insertTestChunk(t, tx, doc.ID, 0, "committed")
		// Reads inside the transaction see its own writes
		n, err := tx.CountChunks(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.NoError(t, tx.Commit())

		n, err = storage.CountChunks(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("rollback", func(t *testing.T) {
		tx, err := storage.BeginTx(ctx)
		require.NoError(t, err)
		insertTestChunk(t, tx, doc.ID, 1, "rolled back")
		require.NoError(t, tx.Rollback())

		n, err := storage.CountChunks(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("nested", func(t *testing.T) {
		tx, err := storage.BeginTx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()
		_, err = tx.BeginTx(ctx)
		assert.Error(t, err)
	})
}

func TestMigrationsRollback(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	db := storage.DB()

	require.NoError(t, RollbackMigration(ctx, db))
	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='query_logs'").Scan(&name)
	assert.Error(t, err)

	// Re-applying brings the schema back to current
	require.NoError(t, ApplyMigrations(ctx, db))
	version, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}
