package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mmynk/quozen/internal/config"
	"github.com/mmynk/quozen/internal/models"
	"github.com/mmynk/quozen/internal/storage"
	"github.com/mmynk/quozen/internal/storage/sqlite"
	"github.com/mmynk/quozen/pkg/logging"
)

var version = "dev"

var (
	cfg    *config.Config
	logger *slog.Logger

	dbFlag       string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "quozen",
	Short: "Quozen - shared expense ledgers on a document store",
	Long: `Quozen keeps each group's expenses, settlements and members in one
spreadsheet-like document and tracks each user's groups in a settings document.

Configuration comes from QUOZEN_* environment variables. Flags override them.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			loaded.DBPath = dbFlag
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevelFlag
		}
		cfg = loaded
		logger = logging.Setup(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path (overrides QUOZEN_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

// identity flags shared by the offline commands.
var (
	userIDFlag    string
	userEmailFlag string
	userNameFlag  string
)

func addIdentityFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&userIDFlag, "id", "", "User ID to act as")
	cmd.Flags().StringVar(&userEmailFlag, "email", "", "Email of the user to act as")
	cmd.Flags().StringVar(&userNameFlag, "name", "", "Display name of the user")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("email")
}

func identity() models.User {
	return models.User{ID: userIDFlag, Email: userEmailFlag, Name: userNameFlag}
}

// openService opens the SQLite store at the configured path and wraps it in
// the storage service. The returned close function releases the database.
func openService() (*storage.Service, func(), error) {
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	svc := storage.NewService(storage.Instrument(store), storage.WithLogger(logger))
	return svc, func() { store.Close() }, nil
}
