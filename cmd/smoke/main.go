// Command smoke runs an offline end-to-end check: it builds a small datasheet
// PDF, ingests it with the local hashing embedder into an in-memory database,
// searches it, answers a question and calls the HTTP API.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/api"
	"github.com/dshills/datasheet-rag/internal/app"
	"github.com/dshills/datasheet-rag/internal/config"
	"github.com/dshills/datasheet-rag/internal/indexer"
	"github.com/dshills/datasheet-rag/internal/llm/llmtest"
	"github.com/dshills/datasheet-rag/internal/rag"
	"github.com/dshills/datasheet-rag/internal/searcher"
	"github.com/dshills/datasheet-rag/internal/testutil"
)

const scriptedAnswer = "• Operating voltage VDD is 1.1V typical for the M321R8GA0BB0 module"

func main() {
	useOllama := flag.Bool("ollama", false, "generate the answer with the configured Ollama model instead of a scripted one")
	verbose := flag.Bool("v", false, "log service output to stderr")
	flag.Parse()

	if err := run(*useOllama, *verbose); err != nil {
		fmt.Printf("\n✗ FAILURE: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\n✓ SUCCESS: ingestion, search, answering and the HTTP API work end to end")
}

func run(useOllama, verbose bool) error {
	fmt.Println("Running offline smoke test...")

	tmpDir, err := os.MkdirTemp("", "datasheet-rag-smoke-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = tmpDir
	cfg.Storage.UploadDir = tmpDir + "/uploads"
	cfg.Storage.DBPath = ":memory:"
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Dimension = 0

	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}

	var opts []app.Option
	if !useOllama {
		opts = append(opts, app.WithGenerator(llmtest.New(scriptedAnswer)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// Ingest
	pdf := testutil.BuildPDF("M321R8GA0BB0 Datasheet",
		testutil.TextPage(
			"1. Overview",
			"M321R8GA0BB0 is a DDR5 registered DIMM for servers.",
			"It supports on-die ECC and a power management IC.",
		),
		testutil.TextPage(
			"2. Electrical Characteristics",
			"Operating voltage VDD is 1.1V typical.",
			"Refresh interval tREFI is 3.9us.",
		),
	)
	family, model := "DDR5", "M321R8GA0BB0"
	result, err := a.Indexer.Ingest(ctx, indexer.UploadRequest{
		Filename: "m321r8ga0bb0.pdf",
		Reader:   bytes.NewReader(pdf),
		Size:     int64(len(pdf)),
		Meta:     indexer.Metadata{ProductFamily: &family, ProductModel: &model},
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	status, err := a.Storage.GetStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nIngestion:\n")
	fmt.Printf("  Document: %s (%s)\n", result.DocumentID, result.Status)
	fmt.Printf("  Chunks: %d\n", status.ChunksCount)
	fmt.Printf("  Embeddings: %d\n", status.EmbeddingsCount)
	fmt.Printf("  Vector Index: %s, %d vectors\n", a.Vectors.Stats().Strategy, a.Vectors.Len())
	if status.EmbeddingsCount == 0 {
		return fmt.Errorf("no embeddings were stored")
	}

	// Search
	resp, err := a.Searcher.Search(ctx, searcher.SearchRequest{Query: "operating voltage VDD", Limit: 3})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	fmt.Printf("\nSearch (%s, %s):\n", resp.SearchMode, resp.Fusion)
	for _, r := range resp.Results {
		fmt.Printf("  #%d score %.3f page %d\n", r.Rank, r.RelevanceScore, r.PageNumber)
	}
	if len(resp.Results) == 0 {
		return fmt.Errorf("search returned no results")
	}

	// Answer
	answer, err := a.RAG.Query(ctx, rag.QueryRequest{Question: "DDR5 모듈의 동작 전압(VDD)은?"})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	fmt.Printf("\nAnswer (%s, confidence %.2f):\n  %s\n", answer.ModelUsed, answer.Confidence, answer.Answer)
	if len(answer.Sources) == 0 {
		return fmt.Errorf("answer has no sources")
	}

	// HTTP API
	w := httptest.NewRecorder()
	a.HTTPServer("smoke").Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, api.BasePath+"/health", nil))
	fmt.Printf("\nHTTP:\n  GET %s/health -> %d\n", api.BasePath, w.Code)
	if w.Code != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", w.Code)
	}

	return nil
}
