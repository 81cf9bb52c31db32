// Package api serves the datasheet RAG system over HTTP.
//
// Routes live under /api/v1 and cover document upload and management,
// question answering (single, batch and Server-Sent Events streaming), raw
// hybrid search, query statistics and feedback, answer quality self-tests,
// and system status. Prometheus metrics are exposed at /metrics.
//
// Every failure is returned as an ErrorResponse whose status is derived from
// the sentinel error that caused it: validation errors are 400, unknown ids
// are 404, duplicate uploads are 409, oversized uploads are 413 and timeouts
// are 408.
package api
