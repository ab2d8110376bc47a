package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/RoomPipe/internal/api"
	"github.com/BTreeMap/RoomPipe/internal/calendar"
	"github.com/BTreeMap/RoomPipe/internal/clock"
	"github.com/BTreeMap/RoomPipe/internal/engine"
	"github.com/BTreeMap/RoomPipe/internal/observability"
	"github.com/BTreeMap/RoomPipe/internal/session"
	"github.com/BTreeMap/RoomPipe/internal/store"
	"github.com/BTreeMap/RoomPipe/internal/telegram"
	"github.com/BTreeMap/RoomPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for RoomPipe state data
	DefaultStateDir = "/var/lib/roompipe"
	// DefaultDBFileName is the default SQLite booking ledger filename
	DefaultDBFileName = "roompipe.db"
	// DefaultJanitorInterval is how often idle sessions are swept
	DefaultJanitorInterval = time.Minute
	// MetricsNamespace prefixes all Prometheus metric names
	MetricsNamespace = "roompipe"
)

// defaultRooms mirrors the meeting rooms of the original deployment.
var defaultRooms = []string{
	"Ruang Meeting A", "Ruang Meeting B", "Ruang Meeting C", "Ruang Meeting D",
	"Ruang Meeting E", "Ruang Meeting F", "Ruang Meeting G", "Ruang Meeting H",
}

// defaultTimeSlots are hourly boundaries; the last entry is closing time
// and is never offered as a start.
var defaultTimeSlots = []string{
	"08:00", "09:00", "10:00", "11:00", "12:00",
	"13:00", "14:00", "15:00", "16:00", "17:00",
}

func main() {
	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Initialize structured logger at the configured level
	initializeLogger(*flags.logLevel)

	if err := run(config, flags); err != nil {
		slog.Error("RoomPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("RoomPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	BotToken        string
	CalendarID      string
	CredentialsFile string
	CredentialsJSON string
	Rooms           []string
	TimeSlots       []string
	Timezone        string
	StateDir        string
	DBDSN           string
	APIAddr         string
	SessionTTL      time.Duration
	LogLevel        string
}

// Flags holds command line flag values
type Flags struct {
	botToken        *string
	calendarID      *string
	credentialsFile *string
	timezone        *string
	stateDir        *string
	dbDSN           *string
	apiAddr         *string
	sessionTTL      *time.Duration
	logLevel        *string
}

// initializeLogger sets up structured logging at the requested level
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// parseLogLevel maps a level name to a slog level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		BotToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),
		CalendarID:      os.Getenv("GOOGLE_CALENDAR_ID"),
		CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		CredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
		Rooms:           util.ParseListEnv("ROOMPIPE_ROOMS", defaultRooms),
		TimeSlots:       util.ParseListEnv("ROOMPIPE_TIME_SLOTS", defaultTimeSlots),
		Timezone:        os.Getenv("ROOMPIPE_TIMEZONE"),
		StateDir:        os.Getenv("ROOMPIPE_STATE_DIR"),
		DBDSN:           os.Getenv("ROOMPIPE_DB_DSN"),
		APIAddr:         os.Getenv("API_ADDR"),
		SessionTTL:      util.ParseDurationEnv("SESSION_TTL", session.DefaultTTL),
		LogLevel:        os.Getenv("LOG_LEVEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No ROOMPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Timezone == "" {
		config.Timezone = calendar.DefaultTimezone
		slog.Debug("No ROOMPIPE_TIMEZONE set, using default", "default_timezone", config.Timezone)
	}
	if config.DBDSN == "" {
		config.DBDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No booking ledger DSN provided, defaulting to SQLite", "sqlite_path", config.DBDSN)
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_BOT_TOKEN_SET", config.BotToken != "",
		"GOOGLE_CALENDAR_ID_SET", config.CalendarID != "",
		"GOOGLE_CREDENTIALS_FILE_SET", config.CredentialsFile != "",
		"GOOGLE_CREDENTIALS_JSON_SET", config.CredentialsJSON != "",
		"rooms", len(config.Rooms),
		"time_slots", len(config.TimeSlots),
		"ROOMPIPE_TIMEZONE", config.Timezone,
		"ROOMPIPE_DB_DSN_SET", config.DBDSN != "",
		"API_ADDR", config.APIAddr,
		"SESSION_TTL", config.SessionTTL)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		botToken:        flag.String("bot-token", config.BotToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		calendarID:      flag.String("calendar-id", config.CalendarID, "Google Calendar ID (overrides $GOOGLE_CALENDAR_ID)"),
		credentialsFile: flag.String("credentials-file", config.CredentialsFile, "Google service account credentials file (overrides $GOOGLE_CREDENTIALS_FILE)"),
		timezone:        flag.String("timezone", config.Timezone, "IANA timezone for slot times (overrides $ROOMPIPE_TIMEZONE)"),
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for RoomPipe data (overrides $ROOMPIPE_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DBDSN, "booking ledger DSN, SQLite path or Postgres URL (overrides $ROOMPIPE_DB_DSN)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sessionTTL:      flag.Duration("session-ttl", config.SessionTTL, "idle booking session lifetime (overrides $SESSION_TTL)"),
		logLevel:        flag.String("log-level", config.LogLevel, "log level: debug, info, warn, error (overrides $LOG_LEVEL)"),
	}

	flag.Parse()

	// Re-anchor a defaulted SQLite DSN when only the state directory moved.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildCalendarOptions constructs calendar service configuration options
func buildCalendarOptions(config Config, flags Flags) []calendar.Option {
	calOpts := []calendar.Option{
		calendar.WithCalendarID(*flags.calendarID),
		calendar.WithTimezone(*flags.timezone),
		calendar.WithRooms(config.Rooms),
		calendar.WithTimeSlots(config.TimeSlots),
	}
	if config.CredentialsJSON != "" {
		calOpts = append(calOpts, calendar.WithCredentialsJSON([]byte(config.CredentialsJSON)))
	} else if *flags.credentialsFile != "" {
		calOpts = append(calOpts, calendar.WithCredentialsFile(*flags.credentialsFile))
	}
	return calOpts
}

// buildLedger opens the booking ledger for the configured DSN
func buildLedger(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Opening Postgres booking ledger")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Opening SQLite booking ledger", "path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.NewSystem()

	loc, err := time.LoadLocation(*flags.timezone)
	if err != nil {
		return err
	}

	cal, err := calendar.New(ctx, buildCalendarOptions(config, flags)...)
	if err != nil {
		return err
	}

	ledger, err := buildLedger(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer ledger.Close()

	metrics := observability.NewMetrics(MetricsNamespace)

	sessions := session.NewStore(*flags.sessionTTL, clk)
	sessions.StartJanitor(DefaultJanitorInterval)
	defer sessions.Stop()

	eng := engine.New(sessions, cal, cal.Rooms(), cal.TimeSlots(),
		engine.WithLedger(ledger),
		engine.WithMetrics(metrics),
		engine.WithClock(clk),
		engine.WithLocation(loc),
	)

	bot, err := telegram.NewBot(eng, telegram.WithToken(*flags.botToken))
	if err != nil {
		return err
	}

	apiServer := api.NewServer(api.WithAddr(*flags.apiAddr), api.WithLedger(ledger))
	go func() {
		if err := apiServer.Start(); err != nil {
			slog.Error("API server error", "error", err)
			stop()
		}
	}()

	slog.Info("RoomPipe started",
		"rooms", len(cal.Rooms()),
		"time_slots", len(cal.TimeSlots()),
		"timezone", *flags.timezone,
		"session_ttl", *flags.sessionTTL)

	err = bot.Start(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Telegram bot error", "error", err)
	}

	bot.Stop()
	if err := apiServer.Stop(); err != nil {
		slog.Warn("API server shutdown error", "error", err)
	}
	return nil
}
