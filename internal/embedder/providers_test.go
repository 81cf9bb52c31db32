package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

// fakeVector derives a small deterministic vector from the text length
func fakeVector(text string) []float32 {
	return []float32{float32(len(text)), 1, 0, 2}
}

// newOllamaServer answers both the legacy /api/embeddings and the batch /api/embed endpoints
func newOllamaServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/embeddings":
			prompt, _ := body["prompt"].(string)
			_ = json.NewEncoder(w).Encode(map[string]any{"embedding": fakeVector(prompt)})
		case "/api/embed":
			var inputs []string
			switch v := body["input"].(type) {
			case string:
				inputs = []string{v}
			case []any:
				for _, item := range v {
					s, _ := item.(string)
					inputs = append(inputs, s)
				}
			}
			out := make([][]float32, len(inputs))
			for i, in := range inputs {
				out[i] = fakeVector(in)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOllamaProvider(t *testing.T) {
	var calls atomic.Int32
	server := newOllamaServer(t, &calls)
	defer server.Close()

	emb, err := New(Config{Provider: "ollama", BaseURL: server.URL, Model: "bge-m3", Dimension: 4, Retry: fastRetry})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	assert.Equal(t, ProviderOllama, emb.Provider())
	assert.Equal(t, "bge-m3", emb.Model())
	assert.Equal(t, 4, emb.Dimension())

	ctx := context.Background()
	result, err := emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: "DDR5 voltage"})
	require.NoError(t, err)
	assert.Len(t, result.Vector, 4)
	assert.Equal(t, NormalizeVector(fakeVector("DDR5 voltage")), result.Vector)

	batch, err := emb.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "bb", "DDR5 voltage"}})
	require.NoError(t, err)
	require.Len(t, batch.Embeddings, 3)
	assert.Equal(t, NormalizeVector(fakeVector("bb")), batch.Embeddings[1].Vector)

	// Cached text is served locally
	before := calls.Load()
	_, err = emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: "bb"})
	require.NoError(t, err)
	assert.Equal(t, before, calls.Load())
}

func TestOllamaProvider_DimensionMismatch(t *testing.T) {
	var calls atomic.Int32
	server := newOllamaServer(t, &calls)
	defer server.Close()

	emb, err := New(Config{Provider: "ollama", BaseURL: server.URL, Dimension: 1024, Retry: fastRetry})
	require.NoError(t, err)

	_, err = emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOllamaProvider_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not loaded"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	emb, err := New(Config{Provider: "ollama", BaseURL: server.URL, Dimension: 4, Retry: fastRetry})
	require.NoError(t, err)

	_, err = emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func newOpenAIServer(t *testing.T, status *atomic.Int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if code := int(status.Load()); code != 0 && code != http.StatusOK {
			http.Error(w, "failure", code)
			return
		}

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Answer out of order to exercise index sorting
		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: fakeVector(req.Input[i]), Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestOpenAIProvider(t *testing.T) {
	var status, calls atomic.Int32
	server := newOpenAIServer(t, &status, &calls)
	defer server.Close()

	emb, err := New(Config{Provider: "openai", BaseURL: server.URL + "/v1/", APIKey: "test-key", Model: "m", Dimension: 4, Retry: fastRetry})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	batch, err := emb.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "bbb"}})
	require.NoError(t, err)
	require.Len(t, batch.Embeddings, 2)
	assert.Equal(t, NormalizeVector(fakeVector("a")), batch.Embeddings[0].Vector)
	assert.Equal(t, NormalizeVector(fakeVector("bbb")), batch.Embeddings[1].Vector)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIProvider_Retries(t *testing.T) {
	testCases := []struct {
		name      string
		status    int32
		wantCalls int32
		wantErr   bool
	}{
		{name: "server error retried", status: http.StatusInternalServerError, wantCalls: 3, wantErr: true},
		{name: "rate limit retried", status: http.StatusTooManyRequests, wantCalls: 3, wantErr: true},
		{name: "bad request not retried", status: http.StatusBadRequest, wantCalls: 1, wantErr: true},
		{name: "unauthorized not retried", status: http.StatusUnauthorized, wantCalls: 1, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var status, calls atomic.Int32
			status.Store(tc.status)
			server := newOpenAIServer(t, &status, &calls)
			defer server.Close()

			emb, err := New(Config{Provider: "openai", BaseURL: server.URL + "/v1", APIKey: "test-key", Dimension: 4, Retry: fastRetry})
			require.NoError(t, err)

			_, err = emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrProviderUnavailable)
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, int(tc.status), statusErr.StatusCode)
			}
			assert.Equal(t, tc.wantCalls, calls.Load())
		})
	}
}

func TestOpenAIProvider_RequiresKeyForOfficialEndpoint(t *testing.T) {
	_, err := New(Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLocalProvider(t *testing.T) {
	emb, err := New(Config{Provider: "local"})
	require.NoError(t, err)

	assert.Equal(t, ProviderLocal, emb.Provider())
	assert.Equal(t, LocalDimension, emb.Dimension())

	ctx := context.Background()
	a, err := emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: "operating voltage range"})
	require.NoError(t, err)
	b, err := emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: "operating voltage range"})
	require.NoError(t, err)
	assert.Equal(t, a.Vector, b.Vector, "local embeddings are deterministic")
	assert.Len(t, a.Vector, LocalDimension)

	similar, err := emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: "voltage range of the module"})
	require.NoError(t, err)
	unrelated, err := emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: "shipping address"})
	require.NoError(t, err)
	assert.Greater(t, dot(a.Vector, similar.Vector), dot(a.Vector, unrelated.Vector))

	symbols, err := emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: "!!!"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dot(symbols.Vector, symbols.Vector), 1e-5)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "jina"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestNew_DefaultsToOllama(t *testing.T) {
	emb, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, emb.Provider())
	assert.Equal(t, DefaultOllamaModel, emb.Model())
	assert.Equal(t, OllamaDimension, emb.Dimension())
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	_, err := retryWithBackoff(ctx, RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour}, func() (int, error) {
		attempts++
		cancel()
		return 0, ErrProviderUnavailable
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestJittered(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := jittered(time.Second, 0.2)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
	assert.Equal(t, time.Second, jittered(time.Second, 0))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
