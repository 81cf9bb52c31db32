package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/dshills/datasheet-rag/pkg/types"
)

const (
	// DefaultChunkSize is the target maximum chunk length in characters
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of characters shared by neighbouring chunks
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order, from paragraph breaks down to single characters
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// ErrInvalidConfig is returned when the chunk size and overlap do not fit together
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Chunker splits extracted PDF pages into retrieval chunks
type Chunker struct {
	splitter     textsplitter.TextSplitter
	chunkSize    int
	chunkOverlap int
}

// Option configures a Chunker
type Option func(*Chunker)

// WithChunkSize sets the maximum chunk length in characters
func WithChunkSize(size int) Option {
	return func(c *Chunker) { c.chunkSize = size }
}

// WithChunkOverlap sets the overlap between neighbouring chunks
func WithChunkOverlap(overlap int) Option {
	return func(c *Chunker) { c.chunkOverlap = overlap }
}

// New creates a new Chunker instance
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.chunkSize)
	}
	if c.chunkOverlap < 0 || c.chunkOverlap >= c.chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, c.chunkOverlap, c.chunkSize)
	}

	c.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.chunkOverlap),
		textsplitter.WithSeparators(DefaultSeparators),
	)
	return c, nil
}

// ChunkDocument splits every page on its own so each chunk keeps its source
// page. Tables become separate chunks of type table. Chunk indexes are
// 0-based and increase across the whole document.
func (c *Chunker) ChunkDocument(result *types.ExtractResult, documentID string) ([]*types.Chunk, error) {
	if result == nil {
		return nil, errors.New("extract result is required")
	}
	if documentID == "" {
		return nil, errors.New("document ID is required")
	}

	chunks := make([]*types.Chunk, 0)
	index := 0

	add := func(content string, page int, section string, chunkType types.ChunkType) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		chunk := &types.Chunk{
			DocumentID: documentID,
			Content:    content,
			PageNumber: page,
			Section:    section,
			ChunkIndex: index,
			ChunkType:  chunkType,
		}
		chunk.ComputeContentHash()
		chunk.ComputeTokenCount()
		chunks = append(chunks, chunk)
		index++
	}

	for _, page := range result.Pages {
		pieces, err := c.splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split page %d: %w", page.Number, err)
		}

		from := 0
		for _, piece := range pieces {
			offset := locate(page.Text, piece, from)
			from = offset + 1
			add(piece, page.Number, result.SectionAt(page.Number, offset), types.ChunkText)
		}

		tableSection := result.SectionAt(page.Number, len(page.Text))
		for _, table := range page.Tables {
			rendered := table.Render()
			pieces, err := c.splitter.SplitText(rendered)
			if err != nil {
				return nil, fmt.Errorf("failed to split table on page %d: %w", page.Number, err)
			}
			for _, piece := range pieces {
				add(piece, page.Number, tableSection, types.ChunkTable)
			}
		}
	}

	return chunks, nil
}

// locate finds where piece starts in text, searching forward from from.
// The splitter may trim or re-join separators, so a prefix is tried before
// giving up and using from.
func locate(text, piece string, from int) int {
	if from > len(text) {
		from = len(text)
	}
	if i := strings.Index(text[from:], piece); i >= 0 {
		return from + i
	}
	prefix := piece
	if len(prefix) > 40 {
		prefix = prefix[:40]
	}
	if i := strings.Index(text[from:], prefix); i >= 0 {
		return from + i
	}
	return from
}
