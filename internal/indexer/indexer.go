package indexer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/datasheet-rag/internal/chunker"
	"github.com/dshills/datasheet-rag/internal/embedder"
	"github.com/dshills/datasheet-rag/internal/metrics"
	"github.com/dshills/datasheet-rag/internal/parser"
	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/internal/vectorindex"
	"github.com/dshills/datasheet-rag/pkg/types"
)

// Defaults
const (
	DefaultMaxFileSize      = 100 * 1024 * 1024
	DefaultBatchSize        = embedder.DefaultBatchSize
	DefaultPoolSize         = 4
	DefaultEmbedConcurrency = 2
)

// CacheInvalidator drops cached search results after the corpus changes
type CacheInvalidator interface {
	InvalidateCache()
}

// Config contains configuration for the indexer
type Config struct {
	UploadDir         string   // Where uploaded files are stored
	MaxFileSize       int64    // Upload size limit in bytes
	AllowedExtensions []string // Accepted file extensions, lowercase with dot
	BatchSize         int      // Chunks embedded and committed per transaction
	PoolSize          int      // Background processing workers
	EmbedConcurrency  int      // Embedding batches in flight per document
}

func (c Config) withDefaults() Config {
	if c.UploadDir == "" {
		c.UploadDir = "./data/uploads"
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{".pdf"}
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = DefaultEmbedConcurrency
	}
	return c
}

// Deps are the collaborators of the indexer. Parser and Chunker default when nil.
type Deps struct {
	Storage     storage.Storage
	Embedder    embedder.Embedder
	Parser      *parser.Parser
	Chunker     *chunker.Chunker
	Vectors     *vectorindex.Manager
	Invalidator CacheInvalidator
	Logger      *zap.Logger
}

// Indexer coordinates the document pipeline: store -> parse -> chunk -> embed -> index
type Indexer struct {
	storage     storage.Storage
	embedder    embedder.Embedder
	parser      *parser.Parser
	chunker     *chunker.Chunker
	vectors     *vectorindex.Manager
	invalidator CacheInvalidator
	logger      *zap.Logger
	config      Config

	pool  *ants.Pool
	wg    sync.WaitGroup
	locks sync.Map // document id -> *IndexLock

	mu     sync.RWMutex
	closed bool
}

// UploadRequest is one file to store and index
type UploadRequest struct {
	Filename string
	Reader   io.Reader
	Size     int64 // Declared size, or 0 when unknown
	Meta     Metadata
}

// UploadResult describes a stored upload
type UploadResult struct {
	DocumentID string
	Status     types.ProcessingStatus
	Filename   string
	FilePath   string
	FileHash   string
	FileSize   int64
}

// DocumentStatus is a document with its chunk count
type DocumentStatus struct {
	Document   *storage.Document
	ChunkCount int
}

// ReindexResult summarizes a reindex run
type ReindexResult struct {
	Processed int
	Failed    int
	Skipped   int
	Errors    []string
	Duration  time.Duration
}

// New creates an Indexer and its worker pool
func New(deps Deps, cfg Config) (*Indexer, error) {
	if deps.Storage == nil {
		return nil, errors.New("indexer requires storage")
	}
	if deps.Embedder == nil {
		return nil, errors.New("indexer requires an embedder")
	}
	cfg = cfg.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("indexer")

	if deps.Parser == nil {
		deps.Parser = parser.New(logger)
	}
	if deps.Chunker == nil {
		c, err := chunker.New()
		if err != nil {
			return nil, err
		}
		deps.Chunker = c
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	pool, err := ants.NewPool(cfg.PoolSize,
		ants.WithPanicHandler(func(p any) {
			logger.Error("document processing panicked", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Indexer{
		storage:     deps.Storage,
		embedder:    deps.Embedder,
		parser:      deps.Parser,
		chunker:     deps.Chunker,
		vectors:     deps.Vectors,
		invalidator: deps.Invalidator,
		logger:      logger,
		config:      cfg,
		pool:        pool,
	}, nil
}

// Upload stores the file, creates a pending document and schedules background processing.
// It returns as soon as the document record exists.
func (idx *Indexer) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	doc, err := idx.store(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := idx.enqueue(doc.ID); err != nil {
		return nil, err
	}
	return resultOf(doc), nil
}

// Ingest stores the file and processes it before returning
func (idx *Indexer) Ingest(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	doc, err := idx.store(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := idx.Process(ctx, doc.ID); err != nil {
		return nil, err
	}
	doc, err = idx.storage.GetDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return resultOf(doc), nil
}

func resultOf(doc *storage.Document) *UploadResult {
	return &UploadResult{
		DocumentID: doc.ID,
		Status:     doc.Status,
		Filename:   doc.Filename,
		FilePath:   doc.FilePath,
		FileHash:   doc.FileHash,
		FileSize:   doc.FileSize,
	}
}

// store validates the upload, writes it as <md5>_<name> and creates the document record
func (idx *Indexer) store(ctx context.Context, req UploadRequest) (*storage.Document, error) {
	if idx.isClosed() {
		return nil, ErrClosed
	}

	name := filepath.Base(strings.ReplaceAll(req.Filename, "\\", "/"))
	if !idx.allowedExtension(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(name))
	}
	if req.Size > idx.config.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, req.Size, idx.config.MaxFileSize)
	}

	docType, err := types.ParseDocumentType(deref(req.Meta.DocumentType))
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(idx.config.UploadDir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	hash := md5.New()
	written, err := io.Copy(io.MultiWriter(tmp, hash), io.LimitReader(req.Reader, idx.config.MaxFileSize+1))
	closeErr := tmp.Close()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	if closeErr != nil {
		cleanup()
		return nil, fmt.Errorf("failed to save upload: %w", closeErr)
	}
	if written == 0 {
		cleanup()
		return nil, ErrEmptyFile
	}
	if written > idx.config.MaxFileSize {
		cleanup()
		return nil, fmt.Errorf("%w: limit %d bytes", ErrFileTooLarge, idx.config.MaxFileSize)
	}

	fileHash := hex.EncodeToString(hash.Sum(nil))
	if existing, err := idx.storage.GetDocumentByHash(ctx, fileHash); err == nil {
		cleanup()
		return nil, &DuplicateError{DocumentID: existing.ID}
	} else if !errors.Is(err, storage.ErrNotFound) {
		cleanup()
		return nil, err
	}

	storedName := fileHash + "_" + name
	finalPath := filepath.Join(idx.config.UploadDir, storedName)
	doc := &storage.Document{
		ID:            uuid.NewString(),
		Filename:      storedName,
		OriginalName:  name,
		FilePath:      finalPath,
		FileHash:      fileHash,
		FileSize:      written,
		DocumentType:  docType,
		ProductFamily: deref(req.Meta.ProductFamily),
		ProductModel:  deref(req.Meta.ProductModel),
		Version:       deref(req.Meta.Version),
		Language:      deref(req.Meta.Language),
		Status:        types.StatusPending,
	}

	// The unique file_hash row claims finalPath before any file is moved there
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		cleanup()
		if errors.Is(err, storage.ErrAlreadyExists) {
			if existing, getErr := idx.storage.GetDocumentByHash(ctx, fileHash); getErr == nil {
				return nil, &DuplicateError{DocumentID: existing.ID}
			}
			return nil, ErrDuplicateDocument
		}
		return nil, err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		cleanup()
		if delErr := idx.storage.DeleteDocument(ctx, doc.ID); delErr != nil {
			idx.logger.Warn("failed to drop document after store failure",
				zap.String("document_id", doc.ID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	idx.logger.Info("document stored",
		zap.String("document_id", doc.ID),
		zap.String("filename", name),
		zap.Int64("size", written))
	return doc, nil
}

func (idx *Indexer) allowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range idx.config.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// enqueue schedules processing on the pool without blocking the caller
func (idx *Indexer) enqueue(id string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return ErrClosed
	}

	idx.wg.Add(1)
	go func() {
		err := idx.pool.Submit(func() {
			defer idx.wg.Done()
			if err := idx.Process(context.Background(), id); err != nil {
				idx.logger.Warn("background processing failed", zap.String("document_id", id), zap.Error(err))
			}
		})
		if err != nil {
			idx.wg.Done()
			idx.logger.Error("failed to schedule processing", zap.String("document_id", id), zap.Error(err))
			_ = idx.storage.UpdateDocumentStatus(context.Background(), id, types.StatusFailed, err.Error())
		}
	}()
	return nil
}

func (idx *Indexer) lockFor(id string) *IndexLock {
	lock, _ := idx.locks.LoadOrStore(id, &IndexLock{})
	return lock.(*IndexLock)
}

// Process runs the full pipeline for one stored document and records the outcome
func (idx *Indexer) Process(ctx context.Context, id string) error {
	lock := idx.lockFor(id)
	if !lock.TryAcquire() {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessing, id)
	}
	defer lock.Release()

	start := time.Now()
	doc, err := idx.storage.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := idx.storage.UpdateDocumentStatus(ctx, id, types.StatusProcessing, ""); err != nil {
		return err
	}

	chunkCount, err := idx.process(ctx, doc)
	if err != nil {
		metrics.DocumentsProcessedTotal.WithLabelValues(string(types.StatusFailed)).Inc()
		idx.logger.Error("document processing failed", zap.String("document_id", id), zap.Error(err))
		if statusErr := idx.storage.UpdateDocumentStatus(context.WithoutCancel(ctx), id, types.StatusFailed, err.Error()); statusErr != nil {
			idx.logger.Error("failed to record failure", zap.String("document_id", id), zap.Error(statusErr))
		}
		return err
	}

	metrics.DocumentsProcessedTotal.WithLabelValues(string(types.StatusCompleted)).Inc()
	idx.logger.Info("document processed",
		zap.String("document_id", id),
		zap.Int("pages", doc.PageCount),
		zap.Int("chunks", chunkCount),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (idx *Indexer) process(ctx context.Context, doc *storage.Document) (int, error) {
	result, err := idx.parser.ParseFile(ctx, doc.FilePath)
	if err != nil {
		return 0, fmt.Errorf("failed to extract text: %w", err)
	}

	chunks, err := idx.chunker.ChunkDocument(result, doc.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to chunk document: %w", err)
	}

	if err := idx.clearChunks(ctx, doc.ID); err != nil {
		return 0, err
	}

	sections := make([]*storage.Section, len(result.Sections))
	for i, s := range result.Sections {
		sections[i] = &storage.Section{
			DocumentID: doc.ID,
			Title:      s.Title,
			PageNumber: s.Page,
			Offset:     s.Offset,
			Position:   i,
		}
	}
	if err := idx.storage.ReplaceSections(ctx, doc.ID, sections); err != nil {
		return 0, err
	}

	if err := idx.indexChunks(ctx, chunks); err != nil {
		_ = idx.clearChunks(context.WithoutCancel(ctx), doc.ID)
		return 0, err
	}

	doc.PageCount = result.PageCount
	doc.HasTOC = result.HasTOC
	doc.Status = types.StatusCompleted
	doc.ErrorMessage = ""
	doc.ProcessedAt = time.Now().UTC()
	if err := idx.storage.UpdateDocument(ctx, doc); err != nil {
		return 0, err
	}

	idx.invalidate()
	return len(chunks), nil
}

// indexChunks embeds batches concurrently, then writes each batch of chunks and
// embeddings in its own transaction
func (idx *Indexer) indexChunks(ctx context.Context, chunks []*types.Chunk) error {
	size := idx.config.BatchSize
	var batches [][]*types.Chunk
	for i := 0; i < len(chunks); i += size {
		batches = append(batches, chunks[i:min(i+size, len(chunks))])
	}

	embedded := make([]*embedder.BatchEmbeddingResponse, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.config.EmbedConcurrency)
	for b, batch := range batches {
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			resp, err := idx.embedder.GenerateBatch(gctx, embedder.BatchEmbeddingRequest{Texts: texts})
			if err != nil {
				return fmt.Errorf("failed to embed batch %d: %w", b, err)
			}
			embedded[b] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for b, batch := range batches {
		ids, vectors, err := idx.storeBatch(ctx, batch, embedded[b].Embeddings)
		if err != nil {
			return fmt.Errorf("failed to store batch %d: %w", b, err)
		}
		if idx.vectors != nil {
			if err := idx.vectors.Add(ids, vectors); err != nil {
				idx.logger.Warn("vector index update failed, rebuilding", zap.Error(err))
				if err := idx.vectors.Rebuild(ctx); err != nil {
					return err
				}
			}
		}
		metrics.ChunksIndexedTotal.Add(float64(len(batch)))
	}
	return nil
}

func (idx *Indexer) storeBatch(ctx context.Context, batch []*types.Chunk, embeddings []*embedder.Embedding) ([]int64, [][]float32, error) {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, len(batch))
	vectors := make([][]float32, len(batch))
	for i, c := range batch {
		sc := storage.FromTypesChunk(*c)
		if err := tx.InsertChunk(ctx, sc); err != nil {
			return nil, nil, err
		}
		c.ID = sc.ID

		emb := embeddings[i]
		if err := tx.UpsertEmbedding(ctx, &storage.Embedding{
			ChunkID:   sc.ID,
			Vector:    storage.SerializeVector(emb.Vector),
			Dimension: emb.Dimension,
			Provider:  emb.Provider,
			Model:     emb.Model,
		}); err != nil {
			return nil, nil, err
		}
		ids[i] = sc.ID
		vectors[i] = emb.Vector
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, vectors, nil
}

// clearChunks removes a document's chunks from storage and the vector index
func (idx *Indexer) clearChunks(ctx context.Context, documentID string) error {
	existing, err := idx.storage.ListChunksByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}
	if _, err := idx.storage.DeleteChunksByDocument(ctx, documentID); err != nil {
		return err
	}
	if idx.vectors != nil {
		ids := make([]int64, len(existing))
		for i, c := range existing {
			ids[i] = c.ID
		}
		idx.vectors.Remove(ids...)
	}
	return nil
}

func (idx *Indexer) invalidate() {
	if idx.invalidator != nil {
		idx.invalidator.InvalidateCache()
	}
}

// Status returns a document and its chunk count
func (idx *Indexer) Status(ctx context.Context, id string) (*DocumentStatus, error) {
	doc, err := idx.storage.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := idx.storage.CountChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DocumentStatus{Document: doc, ChunkCount: count}, nil
}

// Delete removes a document, its rows, its file and its vectors
func (idx *Indexer) Delete(ctx context.Context, id string) error {
	lock := idx.lockFor(id)
	if !lock.TryAcquire() {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessing, id)
	}
	defer func() {
		lock.Release()
		idx.locks.Delete(id)
	}()

	doc, err := idx.storage.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	chunks, err := idx.storage.ListChunksByDocument(ctx, id)
	if err != nil {
		return err
	}

	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return err
	}

	if idx.vectors != nil {
		ids := make([]int64, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		idx.vectors.Remove(ids...)
	}

	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			idx.logger.Warn("failed to remove document file", zap.String("path", doc.FilePath), zap.Error(err))
		}
	}

	idx.invalidate()
	idx.logger.Info("document deleted", zap.String("document_id", id), zap.Int("chunks", len(chunks)))
	return nil
}

// Reindex reprocesses the given documents, or every document when ids is empty.
// Completed documents are skipped unless force is set.
func (idx *Indexer) Reindex(ctx context.Context, ids []string, force bool) (*ReindexResult, error) {
	start := time.Now()
	if len(ids) == 0 {
		all, err := idx.allDocumentIDs(ctx)
		if err != nil {
			return nil, err
		}
		ids = all
	}

	result := &ReindexResult{Errors: []string{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := idx.storage.GetDocument(ctx, id)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		if doc.Status == types.StatusCompleted && !force {
			result.Skipped++
			continue
		}

		if err := idx.Process(ctx, id); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		result.Processed++
	}

	result.Duration = time.Since(start)
	idx.logger.Info("reindex finished",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (idx *Indexer) allDocumentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for page := 1; ; page++ {
		docs, total, err := idx.storage.ListDocuments(ctx, storage.ListOptions{Page: page, Limit: 100})
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
		if len(docs) == 0 || len(ids) >= total {
			return ids, nil
		}
	}
}

// Wait blocks until every scheduled document has been processed
func (idx *Indexer) Wait() {
	idx.wg.Wait()
}

// Running returns the number of documents being processed in the background
func (idx *Indexer) Running() int {
	return idx.pool.Running()
}

// Close stops accepting uploads, waits for background work and releases the pool
func (idx *Indexer) Close() error {
	idx.mu.Lock()
	if idx.closed {
		idx.mu.Unlock()
		return nil
	}
	idx.closed = true
	idx.mu.Unlock()

	idx.wg.Wait()
	idx.pool.Release()
	return nil
}

func (idx *Indexer) isClosed() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.closed
}
