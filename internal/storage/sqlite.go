package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/datasheet-rag/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	queries
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{queries: queries{q: db}, db: db}, nil
}

// DB exposes the underlying handle for migrations and diagnostics
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{queries: queries{q: tx}, tx: tx}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// queries holds every statement, bound to either the DB or a transaction.
// With a single pooled connection, code inside a transaction must only use
// the transaction's queries or it will block on the connection.
type queries struct {
	q querier
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	queries
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}

// Document operations

const documentColumns = `
	id, filename, original_name, file_path, file_hash, file_size, document_type,
	product_family, product_model, version, language, page_count, processing_status,
	error_message, has_toc, processed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var docType, status string
	var family, model, version, errMsg sql.NullString
	var processedAt sql.NullTime
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.OriginalName, &doc.FilePath, &doc.FileHash,
		&doc.FileSize, &docType, &family, &model, &version, &doc.Language,
		&doc.PageCount, &status, &errMsg, &doc.HasTOC, &processedAt,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.DocumentType = types.DocumentType(docType)
	doc.Status = types.ProcessingStatus(status)
	doc.ProductFamily = family.String
	doc.ProductModel = model.String
	doc.Version = version.String
	doc.ErrorMessage = errMsg.String
	if processedAt.Valid {
		doc.ProcessedAt = processedAt.Time
	}
	return &doc, nil
}

// nullString maps the empty string to SQL NULL
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *queries) CreateDocument(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO documents (id, filename, original_name, file_path, file_hash, file_size,
			document_type, product_family, product_model, version, language, page_count,
			processing_status, error_message, has_toc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if doc.DocumentType == "" {
		doc.DocumentType = types.DocDatasheet
	}
	if doc.Status == "" {
		doc.Status = types.StatusPending
	}
	if doc.Language == "" {
		doc.Language = "ko"
	}
	now := time.Now().UTC()
	_, err := s.q.ExecContext(ctx, query,
		doc.ID, doc.Filename, doc.OriginalName, doc.FilePath, doc.FileHash, doc.FileSize,
		string(doc.DocumentType), nullString(doc.ProductFamily), nullString(doc.ProductModel),
		nullString(doc.Version), doc.Language, doc.PageCount, string(doc.Status),
		nullString(doc.ErrorMessage), doc.HasTOC, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.OriginalName, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

func (s *queries) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *queries) GetDocumentByHash(ctx context.Context, fileHash string) (*Document, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE file_hash = ?", fileHash)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *queries) ListDocuments(ctx context.Context, opts ListOptions) ([]*Document, int, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}

	where := " WHERE 1=1"
	args := make([]interface{}, 0, 4)
	if opts.DocumentType != "" {
		where += " AND document_type = ?"
		args = append(args, opts.DocumentType)
	}
	if opts.ProductFamily != "" {
		where += " AND product_family = ?"
		args = append(args, opts.ProductFamily)
	}
	if opts.Status != "" {
		where += " AND processing_status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.Search != "" {
		where += " AND (original_name LIKE ? OR product_model LIKE ? OR product_family LIKE ?)"
		like := "%" + opts.Search + "%"
		args = append(args, like, like, like)
	}

	var total int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	query := "SELECT " + documentColumns + " FROM documents" + where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, (opts.Page-1)*opts.Limit)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0, opts.Limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

func (s *queries) UpdateDocument(ctx context.Context, doc *Document) error {
	query := `
		UPDATE documents
		SET document_type = ?, product_family = ?, product_model = ?, version = ?, language = ?,
		    page_count = ?, processing_status = ?, error_message = ?, has_toc = ?,
		    processed_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now().UTC()
	var processedAt interface{}
	if !doc.ProcessedAt.IsZero() {
		processedAt = doc.ProcessedAt
	}
	result, err := s.q.ExecContext(ctx, query,
		string(doc.DocumentType), nullString(doc.ProductFamily), nullString(doc.ProductModel),
		nullString(doc.Version), doc.Language, doc.PageCount, string(doc.Status),
		nullString(doc.ErrorMessage), doc.HasTOC, processedAt, now, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	doc.UpdatedAt = now
	return nil
}

func (s *queries) UpdateDocumentStatus(ctx context.Context, id string, status types.ProcessingStatus, errMsg string) error {
	if !status.Valid() {
		return types.ErrInvalidStatus
	}
	now := time.Now().UTC()
	var processedAt interface{}
	if status.Terminal() {
		processedAt = now
	}
	result, err := s.q.ExecContext(ctx, `
		UPDATE documents
		SET processing_status = ?, error_message = ?, processed_at = coalesce(?, processed_at), updated_at = ?
		WHERE id = ?
	`, string(status), nullString(errMsg), processedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *queries) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *queries) CountDocumentsByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT document_type, COUNT(*) FROM documents GROUP BY document_type")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// Section operations

func (s *queries) ReplaceSections(ctx context.Context, documentID string, sections []*Section) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM document_sections WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to clear sections: %w", err)
	}
	for i, sec := range sections {
		sec.DocumentID = documentID
		sec.Position = i
		result, err := s.q.ExecContext(ctx, `
			INSERT INTO document_sections (document_id, title, page_number, start_offset, position)
			VALUES (?, ?, ?, ?, ?)
		`, documentID, sec.Title, sec.PageNumber, sec.Offset, sec.Position)
		if err != nil {
			return fmt.Errorf("failed to insert section: %w", err)
		}
		if id, err := result.LastInsertId(); err == nil {
			sec.ID = id
		}
	}
	return nil
}

func (s *queries) ListSections(ctx context.Context, documentID string) ([]*Section, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, document_id, title, page_number, start_offset, position
		FROM document_sections
		WHERE document_id = ?
		ORDER BY position
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sections := make([]*Section, 0)
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.ID, &sec.DocumentID, &sec.Title, &sec.PageNumber, &sec.Offset, &sec.Position); err != nil {
			return nil, err
		}
		sections = append(sections, &sec)
	}
	return sections, rows.Err()
}

// Chunk operations

func (s *queries) InsertChunk(ctx context.Context, chunk *Chunk) error {
	query := `
		INSERT INTO chunks (document_id, content, content_hash, token_count, page_number,
			section, chunk_index, chunk_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, chunk_index) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			token_count = excluded.token_count,
			page_number = excluded.page_number,
			section = excluded.section,
			chunk_type = excluded.chunk_type
		RETURNING id
	`
	now := time.Now().UTC()
	err := s.q.QueryRowContext(ctx, query,
		chunk.DocumentID, chunk.Content, chunk.ContentHash[:], chunk.TokenCount,
		chunk.PageNumber, nullString(chunk.Section), chunk.ChunkIndex, chunk.ChunkType, now,
	).Scan(&chunk.ID)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	chunk.CreatedAt = now
	return nil
}

const chunkColumns = `c.id, c.document_id, c.content, c.content_hash, c.token_count,
	c.page_number, c.section, c.chunk_index, c.chunk_type, c.created_at`

func scanChunk(row rowScanner, extra ...interface{}) (*Chunk, error) {
	var chunk Chunk
	var hash []byte
	var section sql.NullString
	var tokenCount sql.NullInt64
	dest := []interface{}{
		&chunk.ID, &chunk.DocumentID, &chunk.Content, &hash, &tokenCount,
		&chunk.PageNumber, &section, &chunk.ChunkIndex, &chunk.ChunkType, &chunk.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	copy(chunk.ContentHash[:], hash)
	chunk.Section = section.String
	chunk.TokenCount = int(tokenCount.Int64)
	return &chunk, nil
}

func (s *queries) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM chunks c WHERE c.id = ?", chunkID)
	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return chunk, err
}

func (s *queries) GetChunkDetails(ctx context.Context, chunkIDs []int64) (map[int64]*ChunkDetail, error) {
	details := make(map[int64]*ChunkDetail, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return details, nil
	}

	query := "SELECT " + chunkColumns + `, d.filename, d.original_name, d.document_type, d.product_family, d.product_model
		FROM chunks c
		INNER JOIN documents d ON c.document_id = d.id
		WHERE c.id IN (` + placeholders(len(chunkIDs)) + `)`
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var filename, originalName, docType string
		var family, model sql.NullString
		chunk, err := scanChunk(rows, &filename, &originalName, &docType, &family, &model)
		if err != nil {
			return nil, err
		}
		details[chunk.ID] = &ChunkDetail{
			Chunk:         *chunk,
			Filename:      filename,
			OriginalName:  originalName,
			DocumentType:  docType,
			ProductFamily: family.String,
			ProductModel:  model.String,
		}
	}
	return details, rows.Err()
}

func (s *queries) ListChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks c WHERE c.document_id = ? ORDER BY c.chunk_index", documentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*Chunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *queries) DeleteChunksByDocument(ctx context.Context, documentID string) (int, error) {
	result, err := s.q.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *queries) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	var err error
	if documentID == "" {
		err = s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	} else {
		err = s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID).Scan(&n)
	}
	return n, err
}

// Embedding operations

func (s *queries) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model
		RETURNING id
	`
	now := time.Now().UTC()
	err := s.q.QueryRowContext(ctx, query,
		embedding.ChunkID, embedding.Vector, embedding.Dimension,
		embedding.Provider, embedding.Model, now).Scan(&embedding.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	embedding.CreatedAt = now
	return nil
}

func (s *queries) GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error) {
	query := `
		SELECT id, chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var embedding Embedding
	err := s.q.QueryRowContext(ctx, query, chunkID).Scan(
		&embedding.ID, &embedding.ChunkID, &embedding.Vector,
		&embedding.Dimension, &embedding.Provider, &embedding.Model,
		&embedding.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &embedding, nil
}

// ListEmbeddings streams every stored vector to fn in chunk id order.
// fn must not call back into storage: the connection is held by the cursor.
func (s *queries) ListEmbeddings(ctx context.Context, fn func(chunkID int64, vector []float32) error) error {
	rows, err := s.q.QueryContext(ctx, "SELECT chunk_id, vector FROM embeddings ORDER BY chunk_id")
	if err != nil {
		return fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return err
		}
		if err := fn(chunkID, deserializeVector(blob)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Search operations

func (s *queries) SearchVector(ctx context.Context, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.q, queryVector, limit, filters)
}

func (s *queries) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.q, query, limit, filters)
}

// FilterChunks returns the subset of chunkIDs whose documents satisfy filters
func (s *queries) FilterChunks(ctx context.Context, chunkIDs []int64, filters *SearchFilters) (map[int64]bool, error) {
	keep := make(map[int64]bool, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return keep, nil
	}

	query := `
		SELECT c.id FROM chunks c
		INNER JOIN documents d ON c.document_id = d.id
		WHERE c.id IN (` + placeholders(len(chunkIDs)) + `)`
	args := make([]interface{}, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		args = append(args, id)
	}
	query, args = applyDocumentFilters(query, args, filters)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to filter chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		keep[id] = true
	}
	return keep, rows.Err()
}

// Query log operations

func (s *queries) LogQuery(ctx context.Context, log *QueryLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO query_logs (id, question, user_role, answer, confidence, response_time_ms,
			sources_count, model_used, rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.Question, log.UserRole, log.Answer, log.Confidence, log.ResponseTimeMS,
		log.SourcesCount, log.ModelUsed, log.Rating, log.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("query log %s: %w", log.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to log query: %w", err)
	}
	return nil
}

func (s *queries) SetQueryRating(ctx context.Context, id string, rating int) error {
	result, err := s.q.ExecContext(ctx, "UPDATE query_logs SET rating = ? WHERE id = ?", rating, id)
	if err != nil {
		return fmt.Errorf("failed to store rating: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *queries) PopularQueries(ctx context.Context, limit int) ([]PopularQuery, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT question, COUNT(*) AS n
		FROM query_logs
		GROUP BY question
		ORDER BY n DESC, question
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	popular := make([]PopularQuery, 0, limit)
	for rows.Next() {
		var p PopularQuery
		if err := rows.Scan(&p.Question, &p.Count); err != nil {
			return nil, err
		}
		popular = append(popular, p)
	}
	return popular, rows.Err()
}

// ConfidentQueries returns answered questions above minConfidence, most confident and newest first
func (s *queries) ConfidentQueries(ctx context.Context, minConfidence float64, limit int) ([]*QueryLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, question, user_role, answer, confidence, response_time_ms, sources_count, model_used, rating, created_at
		FROM query_logs
		WHERE confidence > ?
		ORDER BY confidence DESC, created_at DESC
		LIMIT ?
	`, minConfidence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	logs := make([]*QueryLog, 0, limit)
	for rows.Next() {
		var l QueryLog
		var answer, model sql.NullString
		var rating sql.NullInt64
		if err := rows.Scan(&l.ID, &l.Question, &l.UserRole, &answer, &l.Confidence,
			&l.ResponseTimeMS, &l.SourcesCount, &model, &rating, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Answer = answer.String
		l.ModelUsed = model.String
		if rating.Valid {
			r := int(rating.Int64)
			l.Rating = &r
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

func (s *queries) QueryStats(ctx context.Context) (*QueryStats, error) {
	stats := &QueryStats{RoleDistribution: make(map[string]int)}

	var avgTime, avgConf, avgRating sql.NullFloat64
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(response_time_ms), AVG(confidence), AVG(rating), COUNT(rating)
		FROM query_logs
	`).Scan(&stats.TotalQueries, &avgTime, &avgConf, &avgRating, &stats.RatedQueries)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate query logs: %w", err)
	}
	stats.AvgResponseTimeMS = avgTime.Float64
	stats.AvgConfidence = avgConf.Float64
	stats.AvgRating = avgRating.Float64

	rows, err := s.q.QueryContext(ctx, "SELECT user_role, COUNT(*) FROM query_logs GROUP BY user_role")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		stats.RoleDistribution[role] = n
	}
	return stats, rows.Err()
}

// Status operations

func (s *queries) GetStatus(ctx context.Context) (*IndexStatus, error) {
	status := &IndexStatus{DocumentsByStatus: make(map[string]int)}

	rows, err := s.q.QueryContext(ctx, "SELECT processing_status, COUNT(*) FROM documents GROUP BY processing_status")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.DocumentsByStatus[st] = n
		status.DocumentsCount += n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&status.ChunksCount); err != nil {
		return nil, err
	}
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&status.EmbeddingsCount); err != nil {
		return nil, err
	}
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM query_logs").Scan(&status.QueriesCount); err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	if err := s.q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	var ftsName string
	ftsErr := s.q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='chunks_fts'").Scan(&ftsName)

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		FTSIndexesBuilt:     ftsErr == nil,
	}

	return status, nil
}

// Helpers

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
