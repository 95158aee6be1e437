// Package main is the Kensaku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/cli"
	"github.com/kensaku-ai/kensaku/internal/config"
	"github.com/kensaku-ai/kensaku/internal/embedding"
	"github.com/kensaku-ai/kensaku/internal/extract"
	"github.com/kensaku-ai/kensaku/internal/keyword"
	"github.com/kensaku-ai/kensaku/internal/models"
	"github.com/kensaku-ai/kensaku/internal/pipeline"
	"github.com/kensaku-ai/kensaku/internal/retriever"
	"github.com/kensaku-ai/kensaku/internal/server"
	"github.com/kensaku-ai/kensaku/internal/storage"
	"github.com/kensaku-ai/kensaku/internal/vector"
	"github.com/kensaku-ai/kensaku/internal/watcher"
	"github.com/kensaku-ai/kensaku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "search":
		runSearch()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if cfg.Ingest.Watch {
		handler := &syncHandler{pipeline: components.Pipeline}
		watchSvc = watcher.New(cfg.Ingest.UploadDir, handler, logger,
			watcher.WithExtensions(components.Pipeline.SupportedTypes()))
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExisting(watchCtx)
	}

	srv := server.NewServer(components.Pipeline, &cfg.Server, cfg.Ingest.UploadDir, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// syncHandler bridges the directory watcher to the ingestion pipeline.
type syncHandler struct {
	pipeline *pipeline.Pipeline
}

func (h *syncHandler) HandleFile(ctx context.Context, path string) (string, error) {
	result := h.pipeline.IngestFile(ctx, path, nil)
	if !result.Success {
		return "", fmt.Errorf("ingest %s: %s", path, result.Error)
	}
	return result.SourceID, nil
}

func (h *syncHandler) HandleRemove(ctx context.Context, sourceID string) error {
	result := h.pipeline.DeleteSource(ctx, sourceID)
	if !result.Success {
		return fmt.Errorf("delete source %s: %s", sourceID, result.Error)
	}
	return nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kensaku ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		paths := collectSupportedFiles(path, components.Pipeline.SupportedTypes())
		if len(paths) == 0 {
			fmt.Printf("No supported files under %s\n", path)
			os.Exit(1)
		}
		batch := components.Pipeline.IngestBatch(ctx, paths, nil)
		fmt.Printf("Ingested %d/%d file(s), %d chunk(s) from %s\n",
			batch.Successful, batch.TotalFiles, batch.TotalDocuments, path)
		if batch.Failed > 0 {
			os.Exit(1)
		}
		return
	}
	result := components.Pipeline.IngestFile(ctx, path, nil)
	if !result.Success {
		fmt.Printf("Ingestion failed: %s\n", result.Error)
		os.Exit(1)
	}
	fmt.Printf("Ingested %s: %d chunk(s), source %s\n", result.SourceName, result.DocumentsCreated, result.SourceID)
}

func collectSupportedFiles(root string, extensions []string) []string {
	var paths []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, supported := range extensions {
			if ext == supported {
				paths = append(paths, path)
				break
			}
		}
		return nil
	})
	return paths
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use local indexes directly)")
	topK := fs.Int("top-k", 0, "number of chunks to retrieve (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kensaku query [flags] <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))

	var result *pipeline.QueryResult
	if *serverURL != "" {
		res, err := queryViaHTTP(*serverURL, question, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		result = res
	} else {
		components, logger := mustInitialize(*configPath)
		defer components.Close()
		defer logger.Sync()
		result = components.Pipeline.Query(context.Background(), question, pipeline.QueryOptions{TopK: *topK})
	}

	if *outputFormat == "json" {
		if err := cli.WriteJSON(os.Stdout, result); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if !result.Success {
		fmt.Printf("No answer: %s\n", result.Error)
		os.Exit(1)
	}
	fmt.Printf("\n%s\n", result.Answer)
	fmt.Printf("(%d chunk(s) retrieved)\n", result.RetrievedDocuments)
}

func queryViaHTTP(serverURL, question string, topK int) (*pipeline.QueryResult, error) {
	payload := map[string]interface{}{"question": question}
	if topK > 0 {
		payload["top_k"] = topK
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var result pipeline.QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use local indexes directly)")
	topK := fs.Int("top-k", 0, "number of results (0 = config default)")
	keywords := fs.String("keywords", "", "comma-separated keywords for hybrid search")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kensaku search [flags] <query>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var keywordList []string
	if *keywords != "" {
		for _, kw := range strings.Split(*keywords, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywordList = append(keywordList, kw)
			}
		}
	}

	var results []*models.RetrievalResult
	if *serverURL != "" {
		results, err = searchViaHTTP(*serverURL, query, keywordList, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components, logger := mustInitialize(*configPath)
		defer components.Close()
		defer logger.Sync()
		opts := pipeline.QueryOptions{TopK: *topK}
		if len(keywordList) > 0 {
			results = components.Pipeline.SearchHybrid(context.Background(), query, keywordList, opts)
		} else {
			results = components.Pipeline.Search(context.Background(), query, opts)
		}
	}
	if err := cli.WriteResults(os.Stdout, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL, query string, keywords []string, topK int) ([]*models.RetrievalResult, error) {
	payload := map[string]interface{}{"query": query}
	if topK > 0 {
		payload["top_k"] = topK
	}
	if len(keywords) > 0 {
		payload["keywords"] = keywords
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Results []*models.RetrievalResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Results, nil
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	source := fs.Bool("source", false, "treat the id as a source id and delete all its chunks")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kensaku delete [flags] <document-or-source-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	var result *pipeline.DeleteResult
	if *source {
		result = components.Pipeline.DeleteSource(ctx, id)
	} else {
		result = components.Pipeline.DeleteDocument(ctx, id)
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = result.Message
		}
		fmt.Printf("Deletion failed: %s\n", msg)
		os.Exit(1)
	}
	fmt.Printf("Deleted: %s\n", id)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use local indexes directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var info *pipeline.SystemInfo
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		info = res
	} else {
		components, logger := mustInitialize(*configPath)
		defer components.Close()
		defer logger.Sync()
		cfg := components.Config
		info = components.Pipeline.GetSystemInfo(context.Background(),
			cfg.Vector.PersistDir, cfg.Storage.DatabasePath, cfg.Storage.KeywordIndexPath, cfg.Embedding.CacheDir)
	}

	if *outputFormat == "json" {
		if err := cli.WriteJSON(os.Stdout, info); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Printf("system_status:      %s\n", info.SystemStatus)
	fmt.Printf("vector_backend:     %v\n", info.VectorStore["backend"])
	fmt.Printf("documents:          %v\n", info.VectorStore["document_count"])
	fmt.Printf("index_size:         %v\n", info.VectorStore["index_size"])
	fmt.Printf("embedding_model:    %v (%v dims)\n", info.EmbeddingModel["model_name"], info.EmbeddingModel["dimensions"])
	if info.Sources != nil {
		fmt.Printf("sources:            %v (%v chunks)\n", info.Sources["source_count"], info.Sources["chunk_count"])
	}
	if info.KeywordIndex != nil {
		fmt.Printf("keyword_documents:  %v\n", info.KeywordIndex["document_count"])
	}
	if info.DiskUsageBytes > 0 {
		fmt.Printf("disk_usage_bytes:   %d\n", info.DiskUsageBytes)
	}
	fmt.Printf("supported_types:    %s\n", strings.Join(info.SupportedTypes, ", "))
}

func statusViaHTTP(serverURL string) (*pipeline.SystemInfo, error) {
	resp, err := http.Get(serverURL + "/api/v1/info")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var info pipeline.SystemInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &info, nil
}

// Components holds initialized services.
type Components struct {
	Config    *config.Config
	Embedder  embedding.Embedder
	Service   *embedding.Service
	Store     vector.Store
	Registry  *storage.Registry
	Keyword   keyword.Index
	Retriever *retriever.Retriever
	Pipeline  *pipeline.Pipeline
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Service != nil {
		_ = c.Service.Close()
	}
}

func mustInitialize(configPath string) (*Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return components, logger
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
	)
	if err != nil {
		logger.Warn("ONNX model unavailable, using mock embedder",
			zap.String("model_path", cfg.Embedding.ModelPath),
			zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
	}

	service, err := embedding.NewService(embedder, embedding.ServiceOptions{
		ModelName:    cfg.Embedding.ModelName,
		CacheDir:     cfg.Embedding.CacheDir,
		CacheEnabled: cfg.Embedding.CacheEnabledOrDefault(),
		BatchSize:    cfg.Embedding.BatchSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding service: %w", err)
	}

	store, err := vector.NewStore(cfg.Vector.PersistDir, cfg.Vector.SimilarityThreshold, service, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	logger.Info("vector store initialized",
		zap.String("backend", store.Info(context.Background()).Backend),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	registry, err := storage.NewRegistry(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize source registry: %w", err)
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	retr := retriever.New(store, service, retriever.Defaults{
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Vector.SimilarityThreshold,
		SemanticWeight:      cfg.Retrieval.SemanticWeight,
		KeywordWeight:       cfg.Retrieval.KeywordWeight,
	}, logger)

	p := pipeline.New(store, retr, service, pipeline.Options{
		Splitter:  pipeline.NewOverlapSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		Extractor: extract.NewDocumentExtractor(0),
		Registry:  registry,
		Keyword:   keywordIndex,
		TopK:      cfg.Retrieval.TopK,
	}, logger)

	return &Components{
		Config:    cfg,
		Embedder:  embedder,
		Service:   service,
		Store:     store,
		Registry:  registry,
		Keyword:   keywordIndex,
		Retriever: retr,
		Pipeline:  p,
	}, nil
}

func printUsage() {
	fmt.Println(`kensaku - Local retrieval engine over embedded documents

Usage:
  kensaku server [flags]            Start the HTTP server
  kensaku ingest [flags] <path>     Ingest a file or directory
  kensaku query [flags] <question>  Ask a question over the knowledge base
  kensaku search [flags] <query>    Retrieve matching chunks
  kensaku delete [flags] <id>       Delete a document (or --source for a whole source)
  kensaku status [flags]            Show engine status
  kensaku version                   Show version
  kensaku help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kensaku/config.yaml)
  --debug            Enable debug logging

Query/Search Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct mode.
  --top-k int        Number of results (0 = config default)
  --keywords string  Comma-separated keywords for hybrid search (search only)
  --output string    Output format: text or json

Examples:
  kensaku server
  kensaku ingest ./docs
  kensaku query "how does the deploy pipeline work"
  kensaku search --keywords "postgres,wal" database durability
  kensaku delete --source 3a7bd3e2360a3d29eea436fcfb7e44c7
  kensaku status --output json`)
}
