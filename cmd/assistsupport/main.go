// Command assistsupport is the CLI entry point for the hybrid retrieval
// service: start the HTTP API, run the feedback aggregator on demand, or
// issue a one-off search against a running (or local, in-memory) store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/saagar210/AssistSupport/pkg/article"
	"github.com/saagar210/AssistSupport/pkg/cache"
	"github.com/saagar210/AssistSupport/pkg/config"
	"github.com/saagar210/AssistSupport/pkg/coordinator"
	"github.com/saagar210/AssistSupport/pkg/embed"
	"github.com/saagar210/AssistSupport/pkg/feedback"
	"github.com/saagar210/AssistSupport/pkg/intent"
	"github.com/saagar210/AssistSupport/pkg/search"
	"github.com/saagar210/AssistSupport/pkg/server"
	"github.com/saagar210/AssistSupport/pkg/store"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "assistsupport",
		Short: "Hybrid keyword + vector retrieval service for an IT support knowledge base",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("assistsupport v%s\n", version)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the search HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("data-dir", "./data", "BadgerDB data directory")
	serveCmd.Flags().Bool("in-memory", false, "Use an in-memory store instead of BadgerDB (data is lost on exit)")
	serveCmd.Flags().Int("port", 0, "HTTP listen port (overrides ASSISTSUPPORT_API_PORT)")
	serveCmd.Flags().String("embedding-url", "http://localhost:11434", "Embedding API URL (Ollama-compatible)")
	serveCmd.Flags().String("embedding-model", "mxbai-embed-large", "Embedding model name")
	serveCmd.Flags().Int("embedding-dim", 1024, "Embedding vector dimensions")
	serveCmd.Flags().Bool("rerank", false, "Enable the cross-encoder reranker for the \"rerank\" fusion strategy")
	serveCmd.Flags().String("rerank-url", "http://localhost:8081/rerank", "Cross-encoder reranking service URL")
	serveCmd.Flags().Bool("rate-limit", false, "Enable per-IP rate limiting on /search, /feedback, and /stats")
	serveCmd.Flags().Int("rate-limit-per-minute", 60, "Requests allowed per IP per minute")
	serveCmd.Flags().Int("rate-limit-per-hour", 1000, "Requests allowed per IP per hour")
	serveCmd.Flags().Int("rate-limit-burst", 10, "Extra requests allowed per IP on top of the per-minute cap")
	rootCmd.AddCommand(serveCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate-feedback",
		Short: "Run the feedback aggregator once and report how many articles were updated",
		RunE:  runAggregateFeedback,
	}
	aggregateCmd.Flags().String("data-dir", "./data", "BadgerDB data directory")
	rootCmd.AddCommand(aggregateCmd)

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a single query against a local store and print the ranked results",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().String("data-dir", "./data", "BadgerDB data directory")
	searchCmd.Flags().Int("top-k", coordinator.DefaultTopK, "Number of results to return")
	searchCmd.Flags().String("strategy", string(article.StrategyAdaptive), "Fusion strategy: rrf, weighted, adaptive, rerank")
	rootCmd.AddCommand(searchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens either a BadgerDB-backed store at dataDir or an
// in-memory one, depending on inMemory.
func openStore(dataDir string, inMemory bool) (store.ArticleStore, error) {
	if inMemory {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.NewBadgerStore(dataDir)
}

// buildEmbedder wires the base Ollama client through the LRU cache and the
// role-prefix wrapper the coordinator expects. It does not contact the
// embedding backend; when the backend is unreachable, each search request
// fails at its embedding stage.
func buildEmbedder(apiURL, model string, dimensions int) *embed.RoleAwareEmbedder {
	base := embed.NewOllama(&embed.Config{
		Provider:   "ollama",
		APIURL:     apiURL,
		Model:      model,
		Dimensions: dimensions,
		Timeout:    30 * time.Second,
	})
	cached := embed.NewCachedEmbedder(base, 10000)
	return embed.NewRoleAwareEmbedder(cached)
}

func runServe(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	inMemory, _ := cmd.Flags().GetBool("in-memory")
	portFlag, _ := cmd.Flags().GetInt("port")
	embeddingURL, _ := cmd.Flags().GetString("embedding-url")
	embeddingModel, _ := cmd.Flags().GetString("embedding-model")
	embeddingDim, _ := cmd.Flags().GetInt("embedding-dim")
	rerankEnabled, _ := cmd.Flags().GetBool("rerank")
	rerankURL, _ := cmd.Flags().GetString("rerank-url")
	rateLimitEnabled, _ := cmd.Flags().GetBool("rate-limit")
	rateLimitPerMinute, _ := cmd.Flags().GetInt("rate-limit-per-minute")
	rateLimitPerHour, _ := cmd.Flags().GetInt("rate-limit-per-hour")
	rateLimitBurst, _ := cmd.Flags().GetInt("rate-limit-burst")

	runtimeCfg, err := config.LoadRuntimeFromEnv()
	if err != nil {
		return fmt.Errorf("loading runtime config: %w", err)
	}
	if err := config.EnsureValidRuntime(runtimeCfg); err != nil {
		return fmt.Errorf("invalid runtime config: %w", err)
	}
	if portFlag > 0 {
		runtimeCfg.APIPort = portFlag
	}

	st, err := openStore(dataDir, inMemory)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	embedder := buildEmbedder(embeddingURL, embeddingModel, embeddingDim)
	detector := intent.NewDetector(nil)

	reranker := search.NewCrossEncoder(&search.CrossEncoderConfig{
		Enabled: rerankEnabled,
		APIURL:  rerankURL,
		Model:   "cross-encoder/ms-marco-MiniLM-L-6-v2",
		Timeout: 10 * time.Second,
	})

	respCache := cache.NewSearchCache(5000, 5*time.Minute)

	coord := coordinator.New(st, detector, embedder, reranker, respCache, coordinator.DefaultConfig())

	aggregator := feedback.New(st, feedback.DefaultConfig())
	aggregator.Start(context.Background())
	defer aggregator.Stop()

	srvConfig := server.DefaultConfig()
	srvConfig.Port = runtimeCfg.APIPort
	srvConfig.APIKey = runtimeCfg.APIKey
	srvConfig.RequireAuth = runtimeCfg.IsProduction()
	srvConfig.RateLimitEnabled = rateLimitEnabled
	srvConfig.RateLimitPerMinute = rateLimitPerMinute
	srvConfig.RateLimitPerHour = rateLimitPerHour
	srvConfig.RateLimitBurst = rateLimitBurst
	srvConfig.Version = version

	srv, err := server.New(coord, srvConfig)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	fmt.Printf("assistsupport listening on %s (environment=%s)\n", srv.Addr(), runtimeCfg.Environment)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func runAggregateFeedback(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	st, err := store.NewBadgerStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	agg := feedback.New(st, feedback.DefaultConfig())
	updated, err := agg.RunOnce(context.Background())
	if err != nil {
		return fmt.Errorf("aggregating feedback: %w", err)
	}

	fmt.Printf("updated quality scores for %d article(s)\n", updated)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	topK, _ := cmd.Flags().GetInt("top-k")
	strategy, _ := cmd.Flags().GetString("strategy")

	st, err := store.NewBadgerStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	detector := intent.NewDetector(nil)
	coord := coordinator.New(st, detector, nil, nil, nil, coordinator.DefaultConfig())

	resp, err := coord.Search(context.Background(), coordinator.Request{
		Query:          args[0],
		TopK:           topK,
		FusionStrategy: article.FusionStrategy(strategy),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("intent: %s (confidence %.2f)\n", resp.Intent, resp.IntentConfidence)
	fmt.Printf("%d result(s) in %.1fms\n\n", len(resp.Results), resp.Metrics.TotalMS)
	for _, r := range resp.Results {
		fmt.Printf("%2d. [%.4f] %s (%s)\n    %s\n", r.Rank, r.Score, r.Title, r.Category, r.Preview)
	}
	return nil
}
