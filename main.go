package main

import (
	"context"
	"log"
	"path/filepath"

	"github.com/akirose/yt-pipeline-core/adapter/llm"
	"github.com/akirose/yt-pipeline-core/adapter/stt"
	"github.com/akirose/yt-pipeline-core/adapter/ytdlp"
	"github.com/akirose/yt-pipeline-core/apikeys"
	"github.com/akirose/yt-pipeline-core/chat"
	"github.com/akirose/yt-pipeline-core/config"
	"github.com/akirose/yt-pipeline-core/failstore"
	"github.com/akirose/yt-pipeline-core/httpapi"
	"github.com/akirose/yt-pipeline-core/job"
	"github.com/akirose/yt-pipeline-core/jobstream"
	"github.com/akirose/yt-pipeline-core/pipeline"
	"github.com/akirose/yt-pipeline-core/policy"
	"github.com/akirose/yt-pipeline-core/store"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg := config.Load()

	st, err := store.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	fails, err := failstore.New(filepath.Join(cfg.DataDir, "failures.json"))
	if err != nil {
		log.Fatalf("failure tracker: %v", err)
	}

	registry := job.NewRegistry(jobstream.New("jobs"), fails)

	keyPolicy := policy.New(cfg.ServerKeyPolicy, cfg.DesignatedCallers())
	apiKeyStore := apikeys.New()

	acquirer := ytdlp.New()
	transcriber := stt.New(cfg.SpeechToTextAPIURL, cfg.OpenAIAPIKey, cfg.SpeechToTextModel)
	llmClient := llm.New(cfg.OpenAIAPIURL, cfg.OpenAIAPIModel, cfg.OpenAIAPIMaxTokens)

	pl := pipeline.New(registry, st, acquirer, transcriber, llmClient, apiKeyStore.Get, pipeline.Config{
		IntakeQueueCapacity: cfg.IntakeQueueCapacity,
		QueueCapacity:       cfg.StageQueueCapacity,
		ChunkSeconds:        cfg.TranscriptionChunkSeconds,
		SummaryChunkChars:   cfg.SummaryChunkChars,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pl.Run(ctx)

	chatRegistry := chat.NewRegistry(st, llmClient, apiKeyStore.Get, cfg.ChatAppendErrorToTranscript)

	server := httpapi.New(registry, pl, fails, st, chatRegistry, apiKeyStore, keyPolicy, cfg.OpenAIAPIKey)
	router := server.Router()

	log.Printf("Server starting on port %s...\n", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Error starting server: %v", err)
	}
}
