// Package cli implements the brick-matrix CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/brick-matrix/internal/config"
	"github.com/rcliao/brick-matrix/internal/logging"
	"github.com/rcliao/brick-matrix/internal/model"
	"github.com/rcliao/brick-matrix/internal/store"
)

var (
	configPath  string
	backendFlag string
	dbPath      string
	formatFlag  string
	actorFlag   string
	verbose     bool
	eventsFlag  bool

	cfg    *config.Config
	logger *zap.Logger
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "brick-matrix",
	Short: "Curated knowledge bricks for a clinic assistant",
	Long: "Manage typed knowledge bricks: create, edit, authorize, export and import\n" +
		"matrix documents, ingest sources, and assemble system prompts.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if backendFlag != "" {
			cfg.Store.Backend = backendFlag
		}
		if dbPath != "" {
			switch cfg.Store.Backend {
			case config.BackendFile:
				cfg.Store.FilePath = dbPath
			default:
				cfg.Store.SQLitePath = dbPath
			}
		}
		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Log.Development)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.brick-matrix/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Storage backend: sqlite, file or memory")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database or matrix file path for the selected backend")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Identity recorded as authorizedBy (default: admin.name)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	RootCmd.PersistentFlags().BoolVar(&eventsFlag, "events", false, "Stream store change events to stderr")
}

// storeHandle is an open store plus whatever its backend needs released.
type storeHandle struct {
	*store.KnowledgeStore
	sqlite *store.SQLiteBackend

	stopEvents func()
}

func (h *storeHandle) Close() {
	if h.stopEvents != nil {
		h.stopEvents()
	}
	if h.sqlite != nil {
		h.sqlite.Close()
	}
}

func openStore() (*storeHandle, error) {
	h := &storeHandle{}

	var backend store.Backend
	location := ""
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		b, err := store.NewSQLiteBackend(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		h.sqlite = b.WithHistoryDepth(cfg.Store.HistoryDepth)
		backend, location = h.sqlite, h.sqlite.Path()
	case config.BackendFile:
		b, err := store.NewFileBackend(cfg.Store.FilePath)
		if err != nil {
			return nil, err
		}
		backend, location = b, b.Path()
	case config.BackendMemory:
		backend = store.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Store.Backend)
	}

	h.KnowledgeStore = store.New(backend, store.Options{
		SchemaVersion: cfg.Store.SchemaVersion,
		Environment:   cfg.Store.Environment,
		DefaultActor:  cfg.Admin.Name,
		Logger:        logger.Named("store"),
	})

	logger.Debug("store opened", zap.String("backend", cfg.Store.Backend), zap.String("path", location))

	if eventsFlag {
		h.stopEvents = streamEvents(h.KnowledgeStore, os.Stderr)
	}

	if cfg.Store.SeedFile != "" {
		if err := seed(h); err != nil {
			h.Close()
			return nil, err
		}
	}
	return h, nil
}

func seed(h *storeHandle) error {
	data, err := os.ReadFile(cfg.Store.SeedFile)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	res, seeded := h.SeedIfEmpty(context.Background(), data)
	if !res.Success {
		return fmt.Errorf("seed: %w", res.Err)
	}
	if seeded {
		logger.Info("seeded empty store", zap.String("file", cfg.Store.SeedFile), zap.Int("count", res.Count))
	}
	return nil
}

// streamEvents writes every change event as a JSON line until the returned
// stop func is called. Stop waits for buffered events to be written.
func streamEvents(s *store.KnowledgeStore, w io.Writer) func() {
	events, cancel := s.Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		enc := json.NewEncoder(w)
		for ev := range events {
			_ = enc.Encode(ev)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func actor() string {
	if actorFlag != "" {
		return actorFlag
	}
	return cfg.Admin.Name
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// readInput returns the joined args, or stdin when it is piped.
func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "", nil
}

// readSource reads the named file, or stdin when path is empty or "-".
func readSource(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// importFailure names the reason an import was refused.
func importFailure(err error) string {
	switch {
	case store.IsMalformed(err):
		return "import: malformed document"
	case errors.Is(err, model.ErrValidation):
		return "import: invalid brick"
	case errors.Is(err, store.ErrStorageUnavailable):
		return "import: storage unavailable"
	default:
		return "import"
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
