// Package cli holds the start-up plumbing shared by the command-line tools.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"orb-lab/internal/config"
	"orb-lab/internal/domain"
	"orb-lab/internal/logging"
	"orb-lab/internal/orchestrator"
)

// Flags are the options every tool accepts.
type Flags struct {
	ConfigPath    string
	PostgresDSN   string
	ClickhouseDSN string
	UseMemory     bool
}

// Register adds the shared flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", os.Getenv("ORB_CONFIG"), "Path to application config YAML (defaults when empty)")
	fs.StringVar(&f.PostgresDSN, "postgres-dsn", "", "PostgreSQL connection string (overrides config and POSTGRES_DSN)")
	fs.StringVar(&f.ClickhouseDSN, "clickhouse-dsn", "", "ClickHouse connection string (overrides config and CLICKHOUSE_DSN)")
	fs.BoolVar(&f.UseMemory, "use-memory", false, "Use in-memory storage instead of PostgreSQL and ClickHouse")
}

// Env is a loaded configuration with its logger.
type Env struct {
	Config *config.Config
	Log    zerolog.Logger
	closer io.Closer
	flags  Flags
}

// Setup loads .env, the application config and the logger. The tool name is
// attached to every log line.
func Setup(tool string, f Flags) (*Env, error) {
	config.LoadEnvFile(".env")

	cfg, err := config.LoadWithEnv(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	if f.PostgresDSN != "" {
		cfg.Storage.PostgresDSN = f.PostgresDSN
	}
	if f.ClickhouseDSN != "" {
		cfg.Storage.ClickhouseDSN = f.ClickhouseDSN
	}

	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return &Env{
		Config: cfg,
		Log:    log.With().Str("tool", tool).Logger(),
		closer: closer,
		flags:  f,
	}, nil
}

// Close releases the log output.
func (e *Env) Close() {
	if e.closer != nil {
		e.closer.Close()
	}
}

// Stores opens the configured stores. The returned cleanup must be called.
func (e *Env) Stores(ctx context.Context) (*orchestrator.Stores, func(), error) {
	s := e.Config.Storage
	stores, cleanup, err := orchestrator.OpenStores(ctx, s.PostgresDSN, s.ClickhouseDSN, e.flags.UseMemory)
	if err != nil {
		return nil, nil, err
	}
	if e.flags.UseMemory {
		e.Log.Warn().Msg("using in-memory storage; nothing is persisted")
	}
	return stores, cleanup, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ParseDay parses a YYYY-MM-DD trading-day label.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return domain.Day(t.Year(), t.Month(), t.Day()), nil
}

// ParseRange parses an inclusive trading-day range.
func ParseRange(from, to string) (time.Time, time.Time, error) {
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, errors.New("--from and --to are required")
	}
	f, err := ParseDay(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	t, err := ParseDay(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if t.Before(f) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return f, t, nil
}

// SplitList splits a comma-separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SetupFailed reports a Setup error on stderr and exits with status 1. The
// configured logger does not exist yet, so a JSON logger on stderr is used.
func SetupFailed(tool string, err error) {
	logSetupError(os.Stderr, tool, err)
	os.Exit(1)
}

func logSetupError(w io.Writer, tool string, err error) {
	log := logging.NewWithWriter(w, "json", zerolog.InfoLevel).With().Str("tool", tool).Logger()
	log.Error().Err(err).Msg("failed to load configuration")
}

// Fatal logs err and exits with status 1.
func Fatal(log zerolog.Logger, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	os.Exit(1)
}
