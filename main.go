package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/myproject/llm-apps/agent"
	"github.com/myproject/llm-apps/agent/embedding"
	"github.com/myproject/llm-apps/agent/llm"
	"github.com/myproject/llm-apps/agent/rerank"
	"github.com/myproject/llm-apps/agent/retrieval"
	"github.com/myproject/llm-apps/agent/tools"
	"github.com/myproject/llm-apps/agent/tools/buildin"
	"github.com/myproject/llm-apps/agent/vectorstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type runFunc func(ctx context.Context, cfg *agent.AppConfig, in io.Reader, out io.Writer) error

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, run).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer, runFn runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm-apps",
		Short: "Chat with a local LLM that can check the weather, answer from your documents and send email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cfg, err := agent.LoadAppConfig(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runFn(ctx, cfg, in, out)
		},
	}
	addFlags(cmd.Flags())
	return cmd
}

func setupLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
}

func run(ctx context.Context, cfg *agent.AppConfig, in io.Reader, out io.Writer) error {
	setupLogging(cfg.Debug)
	log.Debug().Interface("config", redacted(*cfg)).Msg("configuration loaded")

	sink := llm.NewStreamSink(out, llm.DefaultSinkBuffer)
	sink.Start()
	defer sink.Close()

	model, err := llm.New(ctx, llm.Config{
		Model:       cfg.LLMPath,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		ContextSize: cfg.ContextSize,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		GPULayers:   cfg.GPULayers,
		Verbose:     cfg.Debug,
	}, llm.NewCallbackManager(sink, llm.NewLogHandler()))
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	pooler, err := embedding.NewPooler(cfg.EmbedWorkers, embedding.DefaultBatchSize)
	if err != nil {
		return err
	}
	defer pooler.Release()
	embedder, err := embedding.NewEmbedder(embedding.Config{
		BaseURL:   cfg.EmbeddingEndpoint(),
		ModelName: cfg.EmbeddingPath,
		APIKey:    cfg.APIKey,
		BatchSize: embedding.DefaultBatchSize,
	}, pooler)
	if err != nil {
		return fmt.Errorf("load embedder: %w", err)
	}

	store, err := vectorstore.Open(ctx, cfg.DBPath, cfg.EmbeddingPath)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer store.Close()
	added, err := retrieval.EnsureIndex(ctx, store, embedder, cfg.DocsPath, retrieval.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap))
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if added > 0 {
		log.Info().Int("chunks", added).Str("db", store.Path()).Msg("document index built")
	}

	retriever := &retrieval.Retriever{
		Store:      store,
		Embedder:   embedder,
		Reranker:   rerank.NewHTTPReranker(cfg.RerankerEndpoint(), cfg.RerankerPath, cfg.APIKey),
		Stage1TopK: cfg.Stage1TopK,
		Stage2TopK: cfg.Stage2TopK,
	}
	sender := buildin.NewSMTPSender(buildin.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	toolset := []tools.Tool{
		buildin.NewChatTool(model),
		buildin.NewGetWeatherTool(model, buildin.WeatherOptions{BaseURL: cfg.WeatherURL}),
		buildin.NewRetrievalQATool(model, retriever),
		buildin.NewSendEmailTool(model, sender),
	}

	app := agent.NewApplication(toolset, model, agent.ApplicationConfig{
		MaxIters:     cfg.AgentMaxIters,
		SystemPrompt: cfg.SystemPrompt,
		ContextSize:  cfg.ContextSize,
		MaxTokens:    cfg.MaxTokens,
	})
	fmt.Fprintf(out, "Local assistant ready (%d tools). Type '%s' to quit.\n", len(app.Tools()), exitCommand)
	return runLoop(ctx, app, sink, in, out)
}

func redacted(cfg agent.AppConfig) agent.AppConfig {
	if cfg.APIKey != "" {
		cfg.APIKey = "***"
	}
	if cfg.SMTP.Password != "" {
		cfg.SMTP.Password = "***"
	}
	return cfg
}
