// Package embed turns query and passage text into the fixed-dimension
// unit vectors the retrieval pipeline compares. Two providers are
// supported: an Ollama-compatible local server and the OpenAI embeddings
// API (which llama.cpp and most hosted gateways also speak).
//
// Every vector returned by this package is L2-normalized and has exactly
// Config.Dimensions components; downstream cosine math relies on both.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/saagar210/AssistSupport/pkg/math/vector"
)

// ErrEmptyInput is returned when a caller asks to embed an empty or
// whitespace-only string. There is no meaningful vector for "nothing",
// and letting it through would silently index garbage.
var ErrEmptyInput = errors.New("embed: empty input text")

// Embedder generates vector embeddings from text.
//
// Implementations must be safe for concurrent use: the coordinator calls
// Embed from every in-flight request, and the model behind it is shared
// read-only after load.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds several texts in one round trip where the
	// provider supports it. Used by offline indexing, not the hot path.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector dimension.
	Dimensions() int

	// Model returns the model name.
	Model() string
}

// Config holds embedding provider configuration.
type Config struct {
	Provider   string        // "ollama" or "openai"
	APIURL     string        // base URL, e.g. http://localhost:11434
	APIPath    string        // endpoint path, e.g. /api/embeddings
	APIKey     string        // bearer token, OpenAI-style providers only
	Model      string        // e.g. mxbai-embed-large
	Dimensions int           // expected vector size; responses are validated against it
	Timeout    time.Duration // per-request HTTP timeout
}

// DefaultOllamaConfig returns the configuration for a local Ollama
// instance serving mxbai-embed-large (1024 dimensions).
func DefaultOllamaConfig() *Config {
	return &Config{
		Provider:   "ollama",
		APIURL:     "http://localhost:11434",
		APIPath:    "/api/embeddings",
		Model:      "mxbai-embed-large",
		Dimensions: 1024,
		Timeout:    30 * time.Second,
	}
}

// DefaultOpenAIConfig returns the configuration for OpenAI's
// text-embedding-3-small (1536 dimensions).
func DefaultOpenAIConfig(apiKey string) *Config {
	return &Config{
		Provider:   "openai",
		APIURL:     "https://api.openai.com",
		APIPath:    "/v1/embeddings",
		APIKey:     apiKey,
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// finishVector enforces the package contract on a provider response:
// the vector must match the configured dimension, and is normalized to
// unit length before anyone downstream sees it. Most embedding models
// already emit unit vectors, but the contract shouldn't depend on that.
func finishVector(v []float32, wantDims int, model string) ([]float32, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("embed: %s returned no embedding", model)
	}
	if wantDims > 0 && len(v) != wantDims {
		return nil, fmt.Errorf("embed: %s returned %d dimensions, expected %d", model, len(v), wantDims)
	}
	return vector.Normalize(v), nil
}

func checkInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	return nil
}

// OllamaEmbedder calls an Ollama server's /api/embeddings endpoint,
// one request per text.
type OllamaEmbedder struct {
	config *Config
	client *http.Client
}

// NewOllama creates an Ollama embedder. A nil config uses
// DefaultOllamaConfig.
func NewOllama(config *Config) *OllamaEmbedder {
	if config == nil {
		config = DefaultOllamaConfig()
	}
	return &OllamaEmbedder{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates a unit-length embedding for one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkInput(text); err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaRequest{Model: e.config.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.APIURL+e.config.APIPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embed: ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embed: decode ollama response: %w", err)
	}
	return finishVector(parsed.Embedding, e.config.Dimensions, e.config.Model)
}

// EmbedBatch embeds texts sequentially; Ollama's embeddings endpoint
// takes one prompt at a time.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed: text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int { return e.config.Dimensions }

// Model returns the model name.
func (e *OllamaEmbedder) Model() string { return e.config.Model }

// OpenAIEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
// Works against api.openai.com, Azure deployments, and llama.cpp's
// server, which all speak the same request shape.
type OpenAIEmbedder struct {
	config *Config
	client *http.Client
}

// NewOpenAI creates an OpenAI-compatible embedder. A nil config uses
// DefaultOpenAIConfig with no API key, which only works against local
// servers that skip auth.
func NewOpenAI(config *Config) *OpenAIEmbedder {
	if config == nil {
		config = DefaultOpenAIConfig("")
	}
	return &OpenAIEmbedder{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type openaiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed generates a unit-length embedding for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in a single request. Response order is
// restored from the per-item index field rather than assumed.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, text := range texts {
		if err := checkInput(text); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(openaiRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.APIURL+e.config.APIPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embed: openai returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embed: decode openai response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embed: openai returned %d embeddings for %d inputs", len(parsed.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("embed: openai returned out-of-range index %d", item.Index)
		}
		v, err := finishVector(item.Embedding, e.config.Dimensions, e.config.Model)
		if err != nil {
			return nil, err
		}
		out[item.Index] = v
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.config.Dimensions }

// Model returns the model name.
func (e *OpenAIEmbedder) Model() string { return e.config.Model }

// NewEmbedder selects a provider from config. Useful when the provider
// comes from configuration rather than code.
func NewEmbedder(config *Config) (Embedder, error) {
	switch config.Provider {
	case "ollama":
		return NewOllama(config), nil
	case "openai":
		return NewOpenAI(config), nil
	default:
		return nil, fmt.Errorf("embed: unknown provider %q", config.Provider)
	}
}
