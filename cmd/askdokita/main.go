package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/askdokita/askdokita/internal/profile"
	"github.com/askdokita/askdokita/server"
	"github.com/askdokita/askdokita/server/ai"
	"github.com/askdokita/askdokita/server/retrieval"
	"github.com/askdokita/askdokita/server/sms"
	"github.com/askdokita/askdokita/store"
)

const version = "0.2.0"

var rootCmd = &cobra.Command{
	Use:   "askdokita",
	Short: "AskDokita health chatbot gateway",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServer()
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Chunk and embed documents into the health document index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `server mode: "dev" or "prod"`)
	rootCmd.PersistentFlags().String("addr", "", "binding address")
	rootCmd.PersistentFlags().Int("port", profile.DefaultPort, "binding port")

	for _, flag := range []string{"mode", "addr", "port"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("dokita")
	viper.AutomaticEnv()

	rootCmd.AddCommand(ingestCmd)
}

func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Version: version,
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func newLogger(p *profile.Profile) *slog.Logger {
	if p.IsDev() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// generationConfig maps the profile onto the selected provider's client
// configuration.
func generationConfig(p *profile.Profile) *ai.Config {
	cfg := &ai.Config{
		Provider:       p.Provider,
		EmbeddingModel: p.EmbeddingModel,
	}
	switch p.Provider {
	case "openai":
		cfg.APIKey = p.OpenAIAPIKey
		cfg.BaseURL = p.OpenAIBaseURL
		cfg.Model = p.OpenAIModel
		if p.EmbeddingModel == profile.DefaultEmbeddingModel {
			cfg.EmbeddingModel = "text-embedding-3-small"
		}
	default:
		cfg.APIKey = p.GeminiAPIKey
		cfg.BaseURL = p.GeminiBaseURL
		cfg.Model = p.GeminiModel
	}
	return cfg
}

func newIndex(p *profile.Profile, embedder ai.Embedder) (*retrieval.Index, error) {
	driver, err := retrieval.NewDriver(p.IndexDriver, p.IndexDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open document index: %w", err)
	}
	return retrieval.NewIndex(driver, embedder, p.IndexCollection), nil
}

func runServer() error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	logger := newLogger(p)
	slog.SetDefault(logger)

	sessions, err := store.NewRedisSessionStore(p.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to session store: %w", err)
	}

	cfg := generationConfig(p)
	generator, err := ai.NewGenerator(cfg)
	if err != nil {
		return err
	}
	embedder, err := ai.NewEmbedder(cfg)
	if err != nil {
		return err
	}

	index, err := newIndex(p, embedder)
	if err != nil {
		return err
	}

	sender := sms.NewSender(&sms.Config{
		BaseURL:  p.SMSBaseURL,
		Username: p.SMSUsername,
		APIKey:   p.SMSAPIKey,
		SenderID: p.SMSSenderID,
	})
	if !sender.Enabled() {
		logger.Warn("outbound SMS credentials absent, provider B replies will not be delivered")
	}

	srv := server.New(p, sessions, generator, index, sender, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runIngest(paths []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	logger := newLogger(p)
	slog.SetDefault(logger)

	embedder, err := ai.NewEmbedder(generationConfig(p))
	if err != nil {
		return err
	}
	index, err := newIndex(p, embedder)
	if err != nil {
		return err
	}
	defer index.Close()

	ctx := context.Background()
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		chunks, err := index.Add(ctx, string(content))
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		logger.Info("document ingested", "path", path, "chunks", chunks)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
