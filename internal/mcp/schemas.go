package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ingestDocumentTool returns the tool definition for ingest_document
func ingestDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_document",
		Description: "Ingest a PDF datasheet or manual from the local filesystem so it can be searched",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a .pdf file",
				},
				"document_type": map[string]interface{}{
					"type":        "string",
					"description": "Kind of document",
					"enum":        []string{"datasheet", "manual", "specification"},
					"default":     "datasheet",
				},
				"product_family": map[string]interface{}{
					"type":        "string",
					"description": "Product family, e.g. DDR5 or SSD",
				},
				"product_model": map[string]interface{}{
					"type":        "string",
					"description": "Product model number",
				},
				"version": map[string]interface{}{
					"type":        "string",
					"description": "Document revision",
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Document language code",
					"default":     "ko",
				},
			},
			Required: []string{"path"},
		},
	}
}

// documentFilterSchema describes the filter object shared by search and ask
func documentFilterSchema() map[string]interface{} {
	stringList := func(description string) map[string]interface{} {
		return map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": description,
		}
	}
	return map[string]interface{}{
		"type":        "object",
		"description": "Optional filters to narrow results",
		"properties": map[string]interface{}{
			"document_ids":     stringList("Only search these documents"),
			"document_types":   stringList("datasheet, manual or specification"),
			"product_families": stringList("Product families to include"),
			"product_models":   stringList("Product models to include"),
			"chunk_types":      stringList("text or table"),
		},
	}
}

// searchDocumentsTool returns the tool definition for search_documents
func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Search indexed manufacturing documents with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search mode: hybrid (default), vector, or keyword",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
				"fusion": map[string]interface{}{
					"type":        "string",
					"description": "How hybrid results are combined: weighted (default) or rrf",
					"enum":        []string{"weighted", "rrf"},
					"default":     "weighted",
				},
				"filters": documentFilterSchema(),
			},
			Required: []string{"query"},
		},
	}
}

// askQuestionTool returns the tool definition for ask_question
func askQuestionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question from the indexed documents, citing the sources used",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question to answer (at most 1000 characters)",
				},
				"user_role": map[string]interface{}{
					"type":        "string",
					"description": "Role that shapes the answer",
					"enum":        []string{"engineer", "quality", "sales", "support"},
					"default":     "engineer",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of chunks used as context (1-20)",
					"default":     5,
					"minimum":     1,
					"maximum":     20,
				},
				"filters": documentFilterSchema(),
			},
			Required: []string{"question"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Get index statistics, or the processing status of one document",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": map[string]interface{}{
					"type":        "string",
					"description": "Document to report on; omit for the whole index",
				},
			},
		},
	}
}
