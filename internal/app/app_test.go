package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/datasheet-rag/internal/api"
	"github.com/dshills/datasheet-rag/internal/config"
	"github.com/dshills/datasheet-rag/internal/indexer"
	"github.com/dshills/datasheet-rag/internal/llm/llmtest"
	"github.com/dshills/datasheet-rag/internal/rag"
	"github.com/dshills/datasheet-rag/internal/testutil"
	"github.com/dshills/datasheet-rag/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = dir
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Storage.DBPath = filepath.Join(dir, "db", "datasheet-rag.db")
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Dimension = 256
	return cfg
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestNew_BadEmbeddingProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "word2vec"

	_, err := New(context.Background(), cfg, nil, WithGenerator(llmtest.New("")))
	assert.Error(t, err)
}

func TestIsMemoryDB(t *testing.T) {
	assert.True(t, isMemoryDB(":memory:"))
	assert.True(t, isMemoryDB("file::memory:?cache=shared"))
	assert.True(t, isMemoryDB("file:test.db?mode=memory"))
	assert.False(t, isMemoryDB("./data/datasheet-rag.db"))
}

func TestApp_EndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	cfg := testConfig(t)
	gen := llmtest.New("• Operating voltage VDD is 1.1V typical")

	a, err := New(ctx, cfg, nil, WithGenerator(gen))
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.DirExists(t, cfg.Storage.UploadDir)
	assert.DirExists(t, filepath.Dir(cfg.Storage.DBPath))
	assert.Equal(t, "local", a.Embedder.Provider())
	assert.Equal(t, 0, a.Vectors.Len())

	pdf := testutil.BuildPDF("M321 Datasheet",
		testutil.TextPage("1. Overview", "M321 is a DDR5 registered DIMM."),
		testutil.TextPage("2. Electrical Characteristics", "Operating voltage VDD is 1.1V typical."),
	)
	family := "DDR5"
	result, err := a.Indexer.Ingest(ctx, indexer.UploadRequest{
		Filename: "m321.pdf",
		Reader:   bytes.NewReader(pdf),
		Size:     int64(len(pdf)),
		Meta:     indexer.Metadata{ProductFamily: &family},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.Greater(t, a.Vectors.Len(), 0)

	resp, err := a.RAG.Query(ctx, rag.QueryRequest{Question: "DDR5 operating voltage VDD"})
	require.NoError(t, err)
	assert.Equal(t, gen.Answer, resp.Answer)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, result.DocumentID, resp.Sources[0].DocumentID)

	srv := a.HTTPServer("test")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, api.BasePath+"/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	mcpServer, err := a.MCPServer("test")
	require.NoError(t, err)
	assert.NotNil(t, mcpServer)
}

func TestApp_ReloadsVectorsFromDisk(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := New(ctx, cfg, nil, WithGenerator(llmtest.New("")))
	require.NoError(t, err)

	pdf := testutil.BuildPDF("SSD Manual", testutil.TextPage("Sequential read speed reaches 7000 MB/s."))
	_, err = first.Indexer.Ingest(ctx, indexer.UploadRequest{Filename: "ssd.pdf", Reader: bytes.NewReader(pdf)})
	require.NoError(t, err)
	indexed := first.Vectors.Len()
	require.Greater(t, indexed, 0)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg, nil, WithGenerator(llmtest.New("")))
	require.NoError(t, err)
	defer func() { _ = second.Close() }()
	assert.Equal(t, indexed, second.Vectors.Len())
}
