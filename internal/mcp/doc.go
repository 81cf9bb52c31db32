// Package mcp implements the Model Context Protocol (MCP) server for datasheet-rag.
//
// The MCP server exposes four tools to AI assistants:
//   - ingest_document: Ingest a local PDF datasheet or manual
//   - search_documents: Hybrid search over the indexed chunks
//   - ask_question: Answer a question with cited sources
//   - get_status: Index statistics or the status of one document
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started with:
//
//	datasheet-rag mcp
//
// # Tool: ingest_document
//
//	Request:
//	{
//	  "name": "ingest_document",
//	  "arguments": {
//	    "path": "/data/pdfs/M321R8GA0BB0.pdf",
//	    "document_type": "datasheet",
//	    "product_family": "DDR5",
//	    "product_model": "M321R8GA0BB0"
//	  }
//	}
//
// Ingestion runs synchronously: the response arrives once the document is
// parsed, chunked and embedded, and reports document_id and chunks_created.
//
// # Tool: search_documents
//
//	Request:
//	{
//	  "name": "search_documents",
//	  "arguments": {
//	    "query": "operating voltage",
//	    "limit": 5,
//	    "search_mode": "hybrid",
//	    "filters": {"product_families": ["DDR5"]}
//	  }
//	}
//
// # Tool: ask_question
//
//	Request:
//	{
//	  "name": "ask_question",
//	  "arguments": {
//	    "question": "DDR5 모듈의 동작 전압은?",
//	    "user_role": "engineer"
//	  }
//	}
//
//	Response:
//	{
//	  "answer": "• 동작 전압(VDD): 1.1V",
//	  "confidence": 0.74,
//	  "sources": [{"document_name": "ddr5.pdf", "page_number": 3, ...}],
//	  "model_used": "llama3.1:8b"
//	}
//
// # Error Handling
//
// Tool failures are returned as *MCPError values carrying a JSON-RPC code:
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32001: Path or document not found
//   - -32002: Document already being processed
//   - -32003: Nothing indexed yet
//   - -32004: Empty query or question
//   - -32005: Duplicate document
//   - -32006: Retrieval or generation timed out
//
// # Logging
//
// stdout carries the protocol, so logs go to stderr and the rotating log file.
// Set the level via environment:
//
//	DSRAG_LOGGING_LEVEL=debug datasheet-rag mcp
package mcp
