package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"scout/internal/agents"
	"scout/internal/config"
	"scout/internal/crew"
	"scout/internal/github"
	server "scout/internal/http"
	"scout/internal/jobs"
	"scout/internal/llm"
	"scout/internal/migrate"
	"scout/internal/pipeline"
	"scout/internal/report"
	"scout/internal/search"
	"scout/internal/store"
	"scout/internal/webfetch"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	// Resolve the crew definition once at startup.
	registry, err := crew.Load(cfg.Crew.StagesPath, cfg.Crew.AgentsPath)
	if err != nil {
		log.Fatalf("load crew definition failed: %v", err)
	}

	// Research tools. The LLM is required; search/github/webfetch degrade
	// to "no evidence" when unconfigured.
	llmClient, provider, model, err := llm.NewClientFromConfig(cfg)
	if err != nil {
		log.Fatalf("llm configuration invalid: %v", err)
	}

	var searchProvider search.Provider
	if cfg.Search.Provider != "" || cfg.Search.Serper.APIKey != "" {
		searchProvider, err = search.NewProviderFromConfig(cfg)
		if err != nil {
			log.Fatalf("search configuration invalid: %v", err)
		}
	}

	runtime := &agents.Runtime{
		LLM:         llmClient,
		Search:      searchProvider,
		GitHub:      github.NewClientFromConfig(cfg),
		Web:         webfetch.NewFetcherFromConfig(cfg),
		MaxResults:  cfg.Search.MaxResults,
		Logger:      logger,
		LLMProvider: string(provider),
		LLMModel:    model,
	}

	stages := make([]pipeline.Stage, 0, len(registry.Stages))
	for _, def := range registry.Stages {
		stages = append(stages, pipeline.Stage{
			Spec: pipeline.StageSpec{
				Name:      def.Name,
				Agent:     def.Agent,
				DependsOn: def.DependsOn,
				HardStop:  def.HardStop,
				TimeoutMs: def.TimeoutMs,
			},
			Run: runtime.Executor(registry.Agents[def.Agent], def),
		})
	}

	runner, err := pipeline.NewRunner(stages, time.Duration(cfg.Scheduler.StageTimeoutMs)*time.Millisecond)
	if err != nil {
		log.Fatalf("pipeline construction failed: %v", err)
	}

	writer, err := report.NewWriter(cfg.Reports.Dir)
	if err != nil {
		log.Fatalf("reports directory unusable: %v", err)
	}

	// Optional Postgres artifact index.
	var index jobs.ArtifactIndex
	if cfg.Database.DSN != "" {
		if err := migrate.Run(cfg.Database.DSN); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		db, err := store.Open(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db failed: %v", err)
		}
		index = store.New(db)
	}

	rootCtx := context.Background()

	sched := jobs.NewScheduler(rootCtx, cfg, jobs.NewStore(), runner, writer, index, logger)
	go sched.StartRetention(rootCtx)

	s := server.NewServer(cfg, sched, writer, logger)
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
