// Package llm generates answers with a local language model.
//
// Generator is the interface the RAG service depends on. Ollama implements it:
// Generate and Stream go through langchaingo's ollama client (the /api/chat
// endpoint) with temperature, num_predict, top_k and top_p set per call, while
// Available, Models and EnsureModel talk to /api/tags and /api/pull directly.
//
// Package llmtest provides a scripted Generator for tests.
package llm
