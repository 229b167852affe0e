package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/classtide/omnitutor/cmd/omnitutor/internal/config"
	"github.com/classtide/omnitutor/pkg/artifact"
	"github.com/classtide/omnitutor/pkg/convo"
	"github.com/classtide/omnitutor/pkg/httpapi"
	"github.com/classtide/omnitutor/pkg/kv"
	"github.com/classtide/omnitutor/pkg/live"
	"github.com/classtide/omnitutor/pkg/realtime"
	"github.com/classtide/omnitutor/pkg/registry"
	"github.com/classtide/omnitutor/pkg/speech"
	"github.com/classtide/omnitutor/pkg/storage"
	"github.com/classtide/omnitutor/pkg/tutor"
)

var (
	flagConfig string
	flagListen string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tutoring gateway server",
	Long: `Run the tutoring gateway server.

The server exposes the chat, file, conversation, configuration, and
MCP endpoints plus the realtime voice WebSocket. State is persisted
under the data directory; uploaded files go to local disk or S3.

Example:
  omnitutor serve --config omnitutor.yaml --listen :8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagConfig, "config", "", "path to the YAML config file")
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "HTTP listen address (overrides the config file)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if IsVerbose() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.Listen = flagListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := kv.NewBadger(kv.BadgerOptions{Dir: cfg.DBDir()})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	files, err := buildFileStore(cfg)
	if err != nil {
		return err
	}

	openaiOpts := []option.RequestOption{option.WithAPIKey(cfg.OpenAI.APIKey)}
	if cfg.OpenAI.BaseURL != "" {
		openaiOpts = append(openaiOpts, option.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	client := openai.NewClient(openaiOpts...)

	oai := tutor.NewOpenAI(tutor.OpenAIConfig{
		Client:        &client,
		RespondModel:  cfg.OpenAI.RespondModel,
		ClassifyModel: cfg.OpenAI.ClassifyModel,
		SearchModels:  cfg.OpenAI.SearchModels,
		Logger:        logger,
	})

	var (
		responder tutor.Responder = oai
		searcher  tutor.Searcher  = oai
	)
	if cfg.Backend == "gemini" {
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.Gemini.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return fmt.Errorf("gemini client: %w", err)
		}
		g := tutor.NewGemini(gc, cfg.Gemini.Model, logger)
		responder = g
		searcher = g
	}

	convos := convo.NewStore(db)
	artifacts := artifact.NewRegistry(db, files)

	svc := tutor.NewService(tutor.ServiceConfig{
		Conversations: convos,
		Artifacts:     artifacts,
		Router:        tutor.NewRouter(oai, logger),
		Pipeline:      tutor.NewPipeline(searcher, logger),
		Responder:     responder,
		Analyzer:      oai,
		Files:         oai,
		Searcher:      searcher,
		Transcriber:   speech.NewWhisper(&client, openai.AudioModel(cfg.OpenAI.TranscribeModel), logger),
		Logger:        logger,
	})

	var rtOpts []realtime.Option
	if cfg.OpenAI.RealtimeURL != "" {
		rtOpts = append(rtOpts, realtime.WithURL(cfg.OpenAI.RealtimeURL))
	}
	if cfg.OpenAI.RealtimeModel != "" {
		rtOpts = append(rtOpts, realtime.WithModel(cfg.OpenAI.RealtimeModel))
	}
	liveConf := live.NewConfigStore(db)
	manager := live.NewManager(live.ManagerConfig{
		Dialer: live.NewOpenAIDialer(realtime.NewClient(cfg.OpenAI.APIKey, rtOpts...)),
		Chat:   svc,
		Config: liveConf,
		Logger: logger,
	})

	server := httpapi.New(httpapi.Config{
		Tutor:     svc,
		Artifacts: artifacts,
		Convos:    convos,
		Live:      manager,
		LiveConf:  liveConf,
		MCPs:      registry.New(db, nil),
		Logger:    logger,
	})

	httpSrv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.Handler(),
	}
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("server listening",
		"addr", cfg.Listen,
		"backend", cfg.Backend,
		"storage", cfg.Storage.Backend,
		"data_dir", cfg.DataDir)
	if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildFileStore picks the artifact payload backend from the config.
func buildFileStore(cfg *config.Config) (storage.FileStore, error) {
	switch cfg.Storage.Backend {
	case "local":
		return storage.NewLocal(cfg.Storage.Dir)
	case "s3":
		sc := cfg.Storage.S3
		opts := s3.Options{
			Region:       sc.Region,
			UsePathStyle: sc.PathStyle,
		}
		if opts.Region == "" {
			opts.Region = "us-east-1"
		}
		if sc.Endpoint != "" {
			opts.BaseEndpoint = aws.String(sc.Endpoint)
		}
		if sc.AccessKey != "" {
			creds := aws.Credentials{
				AccessKeyID:     sc.AccessKey,
				SecretAccessKey: sc.SecretKey,
			}
			opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
				return creds, nil
			})
		}
		return storage.NewS3(s3.New(opts), sc.Bucket, sc.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
