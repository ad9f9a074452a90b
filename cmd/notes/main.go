package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pbaille/notes/internal/config"
	"github.com/pbaille/notes/internal/notes"
	"github.com/pbaille/notes/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app holds what every command needs once flags are parsed
type app struct {
	configPath string
	driver     string
	dbPath     string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "notes",
		Short:        "Note-taking backend with tags and search",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&a.driver, "store", "", "store driver (sqlite, mongo, neo4j, memory)")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "sqlite database path")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(a.addCmd())
	rootCmd.AddCommand(a.listCmd())
	rootCmd.AddCommand(a.showCmd())
	rootCmd.AddCommand(a.updateCmd())
	rootCmd.AddCommand(a.deleteCmd())
	rootCmd.AddCommand(a.tagsCmd())
	rootCmd.AddCommand(a.searchCmd())
	rootCmd.AddCommand(a.clipCmd())
	rootCmd.AddCommand(a.serveCmd())

	return rootCmd
}

// load layers flags over the file and environment configuration
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Driver = a.driver
	}
	if flags.Changed("db") {
		cfg.Store.SQLite.Path = a.dbPath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		cfg.Addr, _ = flags.GetString("addr")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// open connects the configured store. Callers close the returned backend.
func (a *app) open(ctx context.Context) (*notes.Service, store.Backend, error) {
	backend, err := store.Open(ctx, a.cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug("store opened", "driver", a.cfg.Store.Driver)

	return notes.NewService(backend, notes.WithLogger(a.logger)), backend, nil
}

// resolveID finds the note whose id starts with prefix
func resolveID(ctx context.Context, svc *notes.Service, prefix string) (string, error) {
	all, err := svc.List(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, n := range all {
		if n.ID == prefix {
			return n.ID, nil
		}
		if strings.HasPrefix(n.ID, prefix) {
			matches = append(matches, n.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("note not found: %s", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous id %s matches %d notes", prefix, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
