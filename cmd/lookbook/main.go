// Command lookbook runs the fashion-marketing assistant service.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	lookbook "github.com/superlion8/lookbook"
	"github.com/superlion8/lookbook/gemini"
	"github.com/superlion8/lookbook/server"
	"github.com/superlion8/lookbook/stores"
	"github.com/superlion8/lookbook/tools"
)

const defaultSystemPrompt = `You are a fashion-marketing imagery assistant. You help plan campaigns,
analyze garments, and produce marketing visuals. Use the available tools
for anything involving images; reference images by their registry ids.`

var (
	flagAddr      string
	flagModel     string
	flagMediaDir  string
	flagRetention time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "lookbook",
		Short: "Fashion-marketing imagery assistant",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	serve.Flags().StringVar(&flagAddr, "addr", ":8080", "listen address")
	serve.Flags().StringVar(&flagModel, "model", "", "Gemini model name (default "+gemini.DefaultModel+")")
	serve.Flags().StringVar(&flagMediaDir, "media-dir", "media", "directory for persisted images")
	serve.Flags().DurationVar(&flagRetention, "media-retention", 30*24*time.Hour, "how long persisted images are kept")
	root.AddCommand(serve)

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Delete persisted images past the retention window and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			media, err := stores.NewDiskMediaStore(flagMediaDir, "/images")
			if err != nil {
				return err
			}
			removed, err := media.SweepOlderThan(flagRetention)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired media files\n", removed)
			return nil
		},
	}
	sweep.Flags().StringVar(&flagMediaDir, "media-dir", "media", "directory for persisted images")
	sweep.Flags().DurationVar(&flagRetention, "media-retention", 30*24*time.Hour, "how long persisted images are kept")
	root.AddCommand(sweep)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	logger := log.New(os.Stdout, "[LOOKBOOK] ", log.LstdFlags)

	store, err := storeFromEnv()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	traces, err := stores.NewTraceStoreFor(store)
	if err != nil {
		return fmt.Errorf("failed to open trace store: %w", err)
	}

	baseURL := os.Getenv("MEDIA_BASE_URL")
	if baseURL == "" {
		baseURL = "/images"
	}
	media, err := stores.NewDiskMediaStore(flagMediaDir, baseURL)
	if err != nil {
		return fmt.Errorf("failed to open media store: %w", err)
	}

	systemPrompt := os.Getenv("SYSTEM_PROMPT")
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	provider := gemini.NewProvider(flagModel)
	dispatcher := tools.NewDispatcher(tools.DefaultTools())
	agent := lookbook.NewAgent(provider, dispatcher, systemPrompt)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@daily", func() {
		removed, err := media.SweepOlderThan(flagRetention)
		if err != nil {
			logger.Printf("media sweep failed: %v", err)
			return
		}
		logger.Printf("media sweep removed %d expired files", removed)
	}); err != nil {
		return fmt.Errorf("failed to schedule media sweep: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.New(server.Config{
		Agent:    agent,
		Builder:  lookbook.NewContextBuilder(),
		Store:    store,
		Media:    media,
		Traces:   traces,
		MediaDir: flagMediaDir,
		Logger:   logger,
	})

	logger.Printf("listening on %s", flagAddr)
	return srv.Run(flagAddr)
}

// storeFromEnv picks the turn store from DB_TYPE: sqlite (default) or
// postgres via DATABASE_URL.
func storeFromEnv() (stores.TurnStore, error) {
	switch os.Getenv("DB_TYPE") {
	case "", "sqlite":
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "lookbook.sqlite"
		}
		return stores.NewSQLiteStoreSimple(path)
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for postgres")
		}
		return stores.NewPostgresStoreSimple(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE: %s", os.Getenv("DB_TYPE"))
	}
}
