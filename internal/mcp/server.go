package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/indexer"
	"github.com/dshills/datasheet-rag/internal/llm"
	"github.com/dshills/datasheet-rag/internal/rag"
	"github.com/dshills/datasheet-rag/internal/searcher"
	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/internal/vectorindex"
)

const (
	// ServerName is the MCP server name
	ServerName = "datasheet-rag"
	// DefaultVersion is reported when the caller does not supply one
	DefaultVersion = "dev"
)

// Deps are the components the tools call into. Vectors and Generator are optional.
type Deps struct {
	Storage   storage.Storage
	Indexer   *indexer.Indexer
	Searcher  *searcher.Searcher
	RAG       *rag.Service
	Vectors   *vectorindex.Manager
	Generator llm.Generator
	Logger    *zap.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	storage   storage.Storage
	indexer   *indexer.Indexer
	searcher  *searcher.Searcher
	rag       *rag.Service
	vectors   *vectorindex.Manager
	generator llm.Generator
	logger    *zap.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps, version string) (*Server, error) {
	if deps.Storage == nil || deps.Indexer == nil || deps.Searcher == nil || deps.RAG == nil {
		return nil, errors.New("mcp: storage, indexer, searcher and rag service are required")
	}
	if version == "" {
		version = DefaultVersion
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		ServerName,
		version,
	)

	s := &Server{
		mcp:       mcpServer,
		storage:   deps.Storage,
		indexer:   deps.Indexer,
		searcher:  deps.Searcher,
		rag:       deps.RAG,
		vectors:   deps.Vectors,
		generator: deps.Generator,
		logger:    logger.Named("mcp"),
	}

	s.registerTools()

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until the client disconnects.
// The caller owns the dependencies and closes them afterwards.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", zap.String("server", ServerName))
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(ingestDocumentTool(), s.handleIngestDocument)
	s.mcp.AddTool(searchDocumentsTool(), s.handleSearchDocuments)
	s.mcp.AddTool(askQuestionTool(), s.handleAskQuestion)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
