package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ackruti/Oracle-etl-tool/cmd/credentials"
	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

var (
	// Version information - set via ldflags during build
	// Example: go build -ldflags "-X github.com/ackruti/Oracle-etl-tool/cmd.Version=1.2.3"
	Version = "dev" // Default to "dev" if not set during build

	cfgFile          string
	resetCredentials bool

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			Underline(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D9FF"))

	logger = slog.New(newTextOnlyHandler(os.Stdout, nil))
)

// textOnlyHandler is a custom slog handler that outputs human-readable text
// without key=value pairs, suitable for interactive terminal usage
type textOnlyHandler struct {
	opts   slog.HandlerOptions
	writer io.Writer
}

func newTextOnlyHandler(w io.Writer, opts *slog.HandlerOptions) *textOnlyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &textOnlyHandler{
		opts:   *opts,
		writer: w,
	}
}

func (h *textOnlyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *textOnlyHandler) Handle(_ context.Context, r slog.Record) error {
	// Format: YYYY-MM-DD HH:MM:SS LEVEL message
	timestamp := r.Time.Format("2006-01-02 15:04:05")
	level := r.Level.String()

	_, err := fmt.Fprintf(h.writer, "%s %s %s\n", timestamp, level, r.Message)
	return err
}

func (h *textOnlyHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	// Attributes are only rendered by the logfmt and json handlers
	return h
}

func (h *textOnlyHandler) WithGroup(_ string) slog.Handler {
	return h
}

// initLogger initializes the slog logger based on debug flag and log format.
// When logFile is set, output is mirrored to a rotating file. The returned
// function closes that file.
func initLogger(isDebug bool, format, logFile string) func() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if isDebug {
		opts.Level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closeFn = func() { _ = rotating.Close() }
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "logfmt":
		// logfmt uses slog.TextHandler which outputs key=value pairs
		handler = slog.NewTextHandler(out, opts)
	default: // "text" or anything else
		handler = newTextOnlyHandler(out, opts)
	}

	logger = slog.New(handler).With("run_id", uuid.NewString())
	return closeFn
}

var rootCmd = &cobra.Command{
	Use:     "oracle-etl",
	Version: Version,
	Short:   "🛢️  Download forecast snapshots and upload planning data (Oracle ⇄ files)",
	Long: titleStyle.Render("Oracle ETL") + `

A CLI tool to move planning data between an Oracle database and files.
download-forecast pulls the latest BOM EO forecast snapshot and writes one
spreadsheet per market plus parquet chunks into a dated folder.
upload-data appends a tab-delimited export to a table when it is newer
than what the table already holds.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if !resetCredentials {
			return nil
		}
		return resetStoredCredentials(viper.GetString("app.credentials_file"))
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if resetCredentials {
			return nil
		}
		// Show help when no subcommand is specified
		return cmd.Help()
	},
}

// Execute runs the root command with a signal-aware context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(configCmd)

	// Persistent flags (available to all subcommands)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.oracle-etl.yaml)")
	flags.BoolP("debug", "d", false, "enable debug output")
	flags.String("log-format", "text", "log format (text, logfmt, json)")
	flags.String("log-file", "logs/oracle_etl.log", "rotating log file")
	flags.Bool("no-log-file", false, "log to stdout only")
	flags.BoolVar(&resetCredentials, "reset-credentials", false, "delete the stored database credentials")

	flags.String("db-driver", "oracle", "database driver (oracle, postgres, mysql, sqlite)")
	flags.String("db-host", "", "database host")
	flags.Int("db-port", 0, "database port (0 = driver default)")
	flags.String("db-service", "", "Oracle service name")
	flags.String("db-name", "", "database name (file path for sqlite)")
	flags.String("db-schema", "", "default schema for table lookups")
	flags.String("db-user", "", "database user (prompted and stored when empty)")
	flags.String("db-password", "", "database password")
	flags.String("db-sslmode", "disable", "PostgreSQL SSL mode (disable, require, verify-ca, verify-full)")
	flags.Int("db-statement-timeout", 300, "statement timeout in seconds (0 = no timeout)")
	flags.Int("db-insert-batch-rows", 500, "rows sent per INSERT statement")
	flags.String("credentials-file", "credentials.json", "where prompted credentials are stored")

	// Note: We don't use MarkFlagRequired because it checks before viper loads the config file.
	// Instead, validation happens in config.Validate() which runs after all config sources are loaded.

	bindFlags(flags, map[string]string{
		"debug":                "debug",
		"log_format":           "log-format",
		"log_file":             "log-file",
		"no_log_file":          "no-log-file",
		"db.driver":            "db-driver",
		"db.host":              "db-host",
		"db.port":              "db-port",
		"db.service":           "db-service",
		"db.name":              "db-name",
		"db.schema":            "db-schema",
		"db.user":              "db-user",
		"db.password":          "db-password",
		"db.sslmode":           "db-sslmode",
		"db.statement_timeout": "db-statement-timeout",
		"db.insert_batch_rows": "db-insert-batch-rows",
		"app.credentials_file": "credentials-file",
	})
}

// bindFlags binds viper keys to flags by name
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

func initConfig() {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".oracle-etl")
	}

	viper.SetEnvPrefix("ORACLE_ETL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && viper.GetBool("debug") {
		// Initialize logger early if reading config in debug mode
		initLogger(true, viper.GetString("log_format"), "")
		logger.Debug(fmt.Sprintf("📄 Using config file: %s", viper.ConfigFileUsed()))
	}
}

func resetStoredCredentials(path string) error {
	removed, err := credentials.NewFileStore(path, nil, logger).Reset()
	if err != nil {
		return fmt.Errorf("failed to reset credentials: %w", err)
	}
	if removed {
		logger.Info(fmt.Sprintf("🔑 Credentials reset - deleted %s", path))
	} else {
		logger.Info("🔑 No credentials file found to reset")
	}
	return nil
}

// runCommand wraps a pipeline with config loading, logging, panic recovery
// and the final runtime report. Failures are logged here once and returned
// so main can pick the exit code.
func runCommand(title string, validate func(*Config) error, run func(ctx context.Context, config *Config) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		config := loadConfig()

		closeLog := initLogger(config.Debug, config.LogFormat, config.LogFile)
		defer closeLog()

		start := time.Now()

		// Add panic recovery to catch any unexpected crashes
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				logger.Error(fmt.Sprintf("❌ PANIC: %v", r))
			}
		}()

		// Log startup banner
		logger.Info("")
		logger.Info(fmt.Sprintf("🚀 Oracle ETL v%s - %s", Version, title))
		logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

		logger.Debug("Validating configuration...")
		if err := validate(config); err != nil {
			logger.Error(fmt.Sprintf("❌ Configuration error: %s", err.Error()))
			return err
		}
		logger.Debug("Configuration validated successfully")

		err = run(cmd.Context(), config)
		elapsed := time.Since(start).Round(time.Millisecond)

		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("")
				logger.Info("⚠️  Cancelled by user")
				return err
			}
			logger.Error(fmt.Sprintf("❌ %s failed (%s) after %v: %s", title, etlerr.Kind(err), elapsed, err.Error()))
			return err
		}

		logger.Info("")
		logger.Info(fmt.Sprintf("✅ %s completed in %v", title, elapsed))
		return nil
	}
}
