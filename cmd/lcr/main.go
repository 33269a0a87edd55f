package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pbaille/localrename/internal/alias"
	"github.com/pbaille/localrename/internal/api"
	"github.com/pbaille/localrename/internal/config"
	"github.com/pbaille/localrename/internal/dom"
	"github.com/pbaille/localrename/internal/eventloop"
	"github.com/pbaille/localrename/internal/fetcher"
	"github.com/pbaille/localrename/internal/host"
	"github.com/pbaille/localrename/internal/plugin"
	"github.com/pbaille/localrename/internal/resolver"
	"github.com/pbaille/localrename/internal/rewrite"
	"github.com/pbaille/localrename/internal/scanner"
	"github.com/pbaille/localrename/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	dbPath     string
	configPath string
	logLevel   string

	cfg config.Config
)

func main() {
	// Default database location
	home, _ := os.UserHomeDir()
	defaultDB := filepath.Join(home, ".lcr", "lcr.db")

	rootCmd := &cobra.Command{
		Use:           "lcr",
		Short:         "Local channel renames for a rendered sidebar",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			level, err := config.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "database path")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(aliasCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func getStore() (*store.Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.New(dbPath)
}

// loadAliases opens the database and loads the configured mapping
func loadAliases() (*store.Store, *alias.Store, error) {
	s, err := getStore()
	if err != nil {
		return nil, nil, err
	}
	aliases := alias.NewStore(s, cfg.PluginKey, cfg.StorageKey, slog.Default())
	if err := aliases.Load(); err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, aliases, nil
}

func aliasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage channel aliases",
	}
	cmd.AddCommand(aliasAddCmd())
	cmd.AddCommand(aliasRemoveCmd())
	cmd.AddCommand(aliasListCmd())
	cmd.AddCommand(aliasHistoryCmd())
	return cmd
}

func aliasAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [id] [label]",
		Short: "Set the display label for a channel id",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, aliases, err := loadAliases()
			if err != nil {
				return err
			}
			defer s.Close()

			entry, err := aliases.Add(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", entry.ID, entry.Label)
			return nil
		},
	}
}

func aliasRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove the alias of a channel id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, aliases, err := loadAliases()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := aliases.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed alias for %s\n", strings.TrimSpace(args[0]))
			return nil
		},
	}
}

func aliasListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, aliases, err := loadAliases()
			if err != nil {
				return err
			}
			defer s.Close()

			entries := aliases.Entries()
			if len(entries) == 0 {
				fmt.Println("No aliases yet. Use 'lcr alias add' to create one.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%-20s  %s\n", e.ID, e.Label)
			}
			return nil
		},
	}
}

func aliasHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent alias changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			events, err := s.ListEvents(cfg.PluginKey, limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No alias changes recorded.")
				return nil
			}
			for _, ev := range events {
				fmt.Printf("%s  %-6s  %-20s  %s\n",
					ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Action, ev.ItemID, ev.Label)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of changes to show")
	return cmd
}

func renderCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "render [file|url]",
		Short: "Apply aliases to a page once and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, aliases, err := loadAliases()
			if err != nil {
				return err
			}
			defer s.Close()

			doc, err := fetcher.Load(args[0])
			if err != nil {
				return err
			}
			selectors, err := dom.CompileAll(cfg.ScanSelectors)
			if err != nil {
				return err
			}
			sc, err := scanner.New(aliases, resolver.New(cfg.Namespace), rewrite.New(), scanner.Options{
				ItemAttribute: cfg.ItemAttribute,
				Selectors:     selectors,
			})
			if err != nil {
				return err
			}

			rep := sc.ScanWhole(doc.Root())
			slog.Info("rendered", "source", args[0], "examined", rep.Examined, "renamed", rep.Renamed)

			var buf bytes.Buffer
			if err := dom.Render(&buf, doc.Root()); err != nil {
				return err
			}
			return writeOutput(out, buf.Bytes())
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func writeOutput(path string, data []byte) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	_, err := w.Write(data)
	return err
}

func serveCmd() *cobra.Command {
	var (
		addr   string
		source string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a live rename session over an HTML file with the settings API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			// The loop outlives the session so Stop can still run on it
			loop := eventloop.New()
			loopCtx, stopLoop := context.WithCancel(context.Background())
			loopDone := make(chan error, 1)
			go func() { loopDone <- loop.Run(loopCtx) }()
			defer func() {
				stopLoop()
				<-loopDone
			}()

			fh, err := host.Open(source, loop, host.Options{Debounce: cfg.WatchDebounce})
			if err != nil {
				return err
			}

			p, err := plugin.New(loop, s, cfg)
			if err != nil {
				return err
			}
			if err := p.Start(ctx, fh.Document()); err != nil {
				return err
			}
			defer p.Stop(context.Background())

			server := api.New(p, fh, addr, slog.Default())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return fh.Watch(gctx) })
			g.Go(func() error { return server.Run(gctx) })
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "server address")
	cmd.Flags().StringVarP(&source, "source", "s", "", "HTML file rendered as the host page")
	cmd.MarkFlagRequired("source")
	return cmd
}
