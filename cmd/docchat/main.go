package main

import (
	"flag"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"docchat/internal/config"
	"docchat/internal/domain"
	"docchat/internal/embedding"
	"docchat/internal/generation"
	"docchat/internal/logging"
	"docchat/internal/service"
	"docchat/internal/tui"
	"docchat/internal/vectorstore"
	"docchat/internal/vectorstore/ann"
	"docchat/internal/vectorstore/local"
	"docchat/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var debug bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/docchat/config.yaml if not provided)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	logger, closeLog, err := logging.Setup(logging.Config{Level: level, File: cfg.Log.File})
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer closeLog()

	var store vectorstore.Storage
	switch cfg.Store.Type {
	case "local", "":
		store = local.New(cfg.Store.Path, cfg.Store.Collection)
	case "hnsw":
		store = ann.New(cfg.Store.Path, cfg.Store.Collection)
	case "qdrant":
		if cfg.Store.Qdrant == nil {
			log.Fatalf("qdrant store config missing")
		}
		store = qdrant.New(qdrant.Config{
			URL:        cfg.Store.Qdrant.URL,
			APIKey:     cfg.Store.Qdrant.APIKey,
			Collection: cfg.Store.Collection,
			Timeout:    time.Duration(cfg.Store.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		log.Fatalf("unknown store type: %s", cfg.Store.Type)
	}
	defer func() { _ = store.Close() }()

	factory := func(apiKey string) (domain.Embedder, domain.Generator, error) {
		emb, err := embedding.NewClient(embedding.Config{
			BaseURL: cfg.Embedding.BaseURL,
			APIKey:  apiKey,
			Model:   cfg.Embedding.Model,
			Timeout: time.Duration(cfg.Embedding.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		gen, err := generation.NewClient(generation.Config{
			BaseURL: cfg.Generation.BaseURL,
			APIKey:  apiKey,
			Model:   cfg.Generation.Model,
			Timeout: time.Duration(cfg.Generation.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return embedding.NewCached(emb, cfg.Embedding.CacheSize), gen, nil
	}

	svc := service.New(store, factory, service.Options{
		ChunkSize: cfg.Chunker.ChunkSize,
		Overlap:   cfg.Chunker.Overlap,
		TopK:      cfg.Retrieval.TopK,
	}, logger)

	// A key already present in the environment skips the interactive prompt.
	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		if err := svc.Configure(key); err != nil {
			log.Fatalf("failed to configure clients: %v", err)
		}
	}

	p := tea.NewProgram(tui.New(svc), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("tui error: %v", err)
	}
}
