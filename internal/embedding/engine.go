// Package embedding provides vector embeddings and term-level distance
// lookups for descriptor resolution and keyword expansion.
// Supports multiple backends: Ollama (local) and Google GenAI (cloud).
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"saged/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// HealthChecker is an optional interface for embedding engines that support
// health checks. If an engine implements this interface, the build can
// verify availability before attempting batch operations.
type HealthChecker interface {
	// HealthCheck verifies the embedding service is reachable.
	// Returns nil if healthy, error otherwise.
	HealthCheck(ctx context.Context) error
}

// =============================================================================
// EMBEDDING CONFIGURATION
// =============================================================================

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "genai" or "ollama"
	Provider string `json:"provider"`

	// Model named per provider. Defaults: "gemini-embedding-001" (genai),
	// "embeddinggemma" (ollama).
	Model string `json:"model"`

	// GenAI configuration
	APIKey string `json:"api_key"`

	// Ollama configuration
	OllamaURL string `json:"ollama_url"` // Default: "http://localhost:11434"

	// Timeout bounds each HTTP call the engine makes.
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:  "genai",
		Model:     "gemini-embedding-001",
		OllamaURL: "http://localhost:11434",
		Timeout:   30 * time.Second,
	}
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("Creating embedding engine with provider=%s", cfg.Provider)
	logging.EmbeddingDebug("Engine config: provider=%s, model=%s, ollama_url=%s, timeout=%s",
		cfg.Provider, cfg.Model, cfg.OllamaURL, cfg.Timeout)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaURL, cfg.Model, cfg.Timeout)
	case "genai":
		engine, err = NewGenAIEngine(cfg.APIKey, cfg.Model)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'genai' or 'ollama')", cfg.Provider)
		logging.EmbeddingError("Unsupported embedding provider: %s", cfg.Provider)
		return nil, err
	}

	if err != nil {
		logging.EmbeddingError("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine ready: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// =============================================================================
// DISTANCE METRICS
// =============================================================================

// Metric selects the distance function used for term comparisons.
type Metric string

const (
	MetricCosine    Metric = "cosine"    // 1 - cosine similarity, range [0, 2]
	MetricEuclidean Metric = "euclidean" // L2 norm of the difference
)

// Valid reports whether the metric names a known distance function.
func (m Metric) Valid() bool {
	return m == MetricCosine || m == MetricEuclidean
}

// Distance computes the distance between two vectors under the given metric.
// Lower means more similar for both metrics.
func Distance(m Metric, a, b []float32) (float64, error) {
	switch m {
	case MetricCosine:
		return CosineDistance(a, b)
	case MetricEuclidean:
		return EuclideanDistance(a, b)
	default:
		return 0, fmt.Errorf("unknown distance metric: %q", m)
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		logging.EmbeddingError("CosineSimilarity: vector dimension mismatch: %d != %d", len(a), len(b))
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i] * b[i])
		aMagnitude += float64(a[i] * a[i])
		bMagnitude += float64(b[i] * b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		logging.EmbeddingWarn("CosineSimilarity: zero magnitude vector detected")
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}

// CosineDistance is 1 - CosineSimilarity. Identical vectors sit at distance 0,
// orthogonal vectors at 1, opposed vectors at 2.
func CosineDistance(a, b []float32) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// EuclideanDistance is the L2 norm of a-b.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		logging.EmbeddingError("EuclideanDistance: vector dimension mismatch: %d != %d", len(a), len(b))
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var sum float64
	for i := 0; i < len(a); i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
