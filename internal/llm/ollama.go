package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/metrics"
)

// Config holds Ollama connection settings
type Config struct {
	Host       string
	Model      string
	Timeout    time.Duration
	NumPredict int
}

// Ollama generates text with a local Ollama server. Generation goes through
// langchaingo; model listing and pulls use the REST API directly.
type Ollama struct {
	llm        *ollama.LLM
	httpClient *http.Client
	host       string
	model      string
	numPredict int
	logger     *zap.Logger
}

var _ Generator = (*Ollama)(nil)

// NewOllama creates an Ollama generator. Empty fields in cfg take the defaults.
func NewOllama(cfg Config, logger *zap.Logger) (*Ollama, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.NumPredict <= 0 {
		cfg.NumPredict = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")

	httpClient := &http.Client{Timeout: cfg.Timeout}
	client, err := ollama.New(
		ollama.WithServerURL(cfg.Host),
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	return &Ollama{
		llm:        client,
		httpClient: httpClient,
		host:       cfg.Host,
		model:      cfg.Model,
		numPredict: cfg.NumPredict,
		logger:     logger.Named("llm"),
	}, nil
}

// Model returns the configured model name
func (o *Ollama) Model() string {
	return o.model
}

func (o *Ollama) callOptions(opts Options) []llms.CallOption {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.numPredict
	}
	callOpts := []llms.CallOption{
		llms.WithTemperature(opts.Temperature),
		llms.WithMaxTokens(maxTokens),
	}
	if opts.TopK > 0 {
		callOpts = append(callOpts, llms.WithTopK(opts.TopK))
	}
	if opts.TopP > 0 {
		callOpts = append(callOpts, llms.WithTopP(opts.TopP))
	}
	return callOpts
}

// Generate returns the trimmed completion for prompt
func (o *Ollama) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	start := time.Now()
	answer, err := llms.GenerateFromSinglePrompt(ctx, o.llm, prompt, o.callOptions(opts)...)
	metrics.LLMRequestsTotal.WithLabelValues(o.model, metrics.Status(err)).Inc()
	if err != nil {
		return "", o.wrapError(ctx, err)
	}

	o.logger.Debug("generated answer",
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("answer_chars", len(answer)),
		zap.Duration("duration", time.Since(start)))
	return strings.TrimSpace(answer), nil
}

// Stream sends tokens to fn as Ollama produces them
func (o *Ollama) Stream(ctx context.Context, prompt string, opts Options, fn TokenFunc) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}

	var fnErr error
	callOpts := append(o.callOptions(opts), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		fnErr = fn(string(chunk))
		return fnErr
	}))

	_, err := llms.GenerateFromSinglePrompt(ctx, o.llm, prompt, callOpts...)
	metrics.LLMRequestsTotal.WithLabelValues(o.model, metrics.Status(err)).Inc()
	switch {
	case err == nil:
		return nil
	case fnErr != nil:
		return fnErr
	default:
		return o.wrapError(ctx, err)
	}
}

func (o *Ollama) wrapError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Available reports whether GET /api/tags succeeds
func (o *Ollama) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.logger.Debug("ollama not reachable", zap.Error(err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Models lists installed model names
func (o *Ollama) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// EnsureModel pulls the configured model when no installed model name contains it
func (o *Ollama) EnsureModel(ctx context.Context) error {
	models, err := o.Models(ctx)
	if err != nil {
		return err
	}
	for _, name := range models {
		if strings.Contains(name, o.model) {
			return nil
		}
	}

	o.logger.Info("pulling model", zap.String("model", o.model))
	return o.pull(ctx)
}

type pullProgress struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
}

// pull streams POST /api/pull until Ollama reports success or an error
func (o *Ollama) pull(ctx context.Context) error {
	body, err := json.Marshal(map[string]any{"name": o.model, "stream": true})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// Pulls can take much longer than a generation
	client := &http.Client{Transport: o.httpClient.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: status %d: %s", ErrModelPull, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	scanner := bufio.NewScanner(resp.Body)
	lastStatus := ""
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var progress pullProgress
		if err := json.Unmarshal(line, &progress); err != nil {
			return fmt.Errorf("%w: bad progress line: %v", ErrModelPull, err)
		}
		if progress.Error != "" {
			return fmt.Errorf("%w: %s", ErrModelPull, progress.Error)
		}
		if progress.Status == "success" {
			o.logger.Info("model pulled", zap.String("model", o.model))
			return nil
		}
		if progress.Status != lastStatus {
			o.logger.Debug("pull progress", zap.String("status", progress.Status))
			lastStatus = progress.Status
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrModelPull, err)
	}
	return fmt.Errorf("%w: stream ended before success", ErrModelPull)
}
