package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	botcli "github.com/hyperjump/vincentbot/internal/cli"
	"github.com/hyperjump/vincentbot/internal/keyword"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/internal/server"
	"github.com/hyperjump/vincentbot/internal/storage"
	"github.com/hyperjump/vincentbot/internal/tui"
	"github.com/hyperjump/vincentbot/internal/watcher"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var outputFlag = &cli.StringFlag{
	Name:  "output",
	Value: "text",
	Usage: "output format: text or json",
}

var serverFlag = &cli.StringFlag{
	Name:  "server",
	Usage: "base URL of a running vincentbot server (empty = use local storage)",
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

// joinArgs joins all positional args so multi-word input works with or without quotes.
func joinArgs(c *cli.Context) string {
	return strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
}

// openIndex loads the persisted index and checks it matches the configured embedder.
func openIndex(comps *Components) error {
	if err := comps.Store.Load(); err != nil {
		return err
	}
	return comps.Pipeline.CheckIndex()
}

func ingestCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "load the sources and build the index",
		ArgsUsage: "[sources...]",
		Flags:     []cli.Flag{outputFlag},
		Action: func(c *cli.Context) error {
			ctx, cancel := signalContext(c)
			defer cancel()

			comps, err := initializeComponents(state.cfg, state.logger, false)
			if err != nil {
				return err
			}
			defer comps.Close()

			sources := c.Args().Slice()
			if len(sources) == 0 {
				sources = state.cfg.Sources.Paths
			}
			report, err := comps.Indexer.IngestSources(ctx, sources)
			if err != nil {
				return err
			}
			return botcli.WriteReport(c.App.Writer, report, botcli.ParseOutputFormat(c.String("output")))
		},
	}
}

func serveCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the chat API over HTTP",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "rebuild", Usage: "rebuild the index from the sources before serving"},
			&cli.BoolFlag{Name: "watch", Usage: "rebuild the index when a source changes"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger := state.cfg, state.logger
			ctx, cancel := signalContext(c)
			defer cancel()

			comps, err := initializeComponents(cfg, logger, true)
			if err != nil {
				return err
			}
			defer comps.Close()

			if c.Bool("rebuild") {
				report, err := comps.Pipeline.Rebuild(ctx)
				if err != nil {
					return fmt.Errorf("rebuild failed: %w", err)
				}
				logger.Info("index rebuilt",
					zap.String("build_id", report.BuildID),
					zap.Int("documents", report.Documents),
					zap.Int("chunks", report.Chunks),
					zap.Duration("took", report.Took))
				if err := comps.Pipeline.CheckIndex(); err != nil {
					return err
				}
			} else if err := openIndex(comps); err != nil {
				return fmt.Errorf("%w (run \"vincentbot ingest\" or pass --rebuild)", err)
			}

			if c.Bool("watch") || cfg.Watch.Enabled {
				w := watcher.New(cfg.Sources.Paths,
					func(paths []string) {
						report, err := comps.Pipeline.Rebuild(ctx)
						if err != nil {
							logger.Warn("rebuild after source change failed", zap.Strings("paths", paths), zap.Error(err))
							return
						}
						logger.Info("index rebuilt after source change",
							zap.Strings("paths", paths),
							zap.Int("chunks", report.Chunks))
					},
					watcher.WithLogger(logger),
					watcher.WithDebounce(cfg.Watch.Debounce),
					watcher.WithExtensions(cfg.Sources.Extensions),
				)
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("failed to start watcher: %w", err)
				}
				defer w.Stop()
			}

			srv := server.NewServer(comps.Pipeline, &cfg.Server, logger,
				server.WithCatalog(comps.Catalog),
				server.WithPassages(comps.Passages),
				server.WithDiskPaths(diskPaths(cfg)...),
			)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down...")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

func askCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "answer one question",
		ArgsUsage: "<question...>",
		Flags: []cli.Flag{
			serverFlag,
			&cli.IntFlag{Name: "k", Usage: "number of context chunks (0 = config value)"},
			outputFlag,
		},
		Action: func(c *cli.Context) error {
			req := models.ChatRequest{Query: joinArgs(c)}
			if err := req.Validate(); err != nil {
				return fmt.Errorf("%s: usage: vincentbot ask [flags] <question...>", botcli.ErrorMessage(err))
			}
			ctx, cancel := signalContext(c)
			defer cancel()

			var (
				answer *models.Answer
				err    error
			)
			if url := c.String("server"); url != "" {
				answer, err = botcli.NewClient(url, state.cfg.Server.RequestTimeout).Ask(ctx, req.Query)
			} else {
				comps, initErr := initializeComponents(state.cfg, state.logger, true)
				if initErr != nil {
					return initErr
				}
				defer comps.Close()
				if err := openIndex(comps); err != nil {
					return errors.New(botcli.ErrorMessage(err))
				}
				k := c.Int("k")
				if k <= 0 {
					k = comps.Pipeline.K()
				}
				answer, err = comps.Pipeline.AskK(ctx, req.Query, k)
			}
			if err != nil {
				state.logger.Debug("ask failed", zap.Error(err))
				return errors.New(botcli.ErrorMessage(err))
			}
			return botcli.WriteAnswer(c.App.Writer, answer, botcli.ParseOutputFormat(c.String("output")))
		},
	}
}

func chatCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "chat in the terminal",
		Flags: []cli.Flag{serverFlag},
		Action: func(c *cli.Context) error {
			var asker tui.Asker
			if url := c.String("server"); url != "" {
				asker = botcli.NewClient(url, state.cfg.Server.RequestTimeout)
			} else {
				// Log lines would corrupt the full-screen UI.
				logger := zap.NewNop()
				if state.cfg.Debug {
					logger = state.logger
				}
				comps, err := initializeComponents(state.cfg, logger, true)
				if err != nil {
					return err
				}
				defer comps.Close()
				if err := openIndex(comps); err != nil {
					return errors.New(botcli.ErrorMessage(err))
				}
				asker = comps.Pipeline
			}

			model := tui.New(asker, "Vincent Bot", state.cfg.Server.RequestTimeout)
			_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(c.Context)).Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
}

func passagesCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:      "passages",
		Usage:     "keyword lookup over the ingested passages",
		ArgsUsage: "<terms...>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 10, Usage: "maximum number of passages"},
			&cli.IntFlag{Name: "fuzziness", Usage: "edit distance allowed per term (0-2)"},
			serverFlag,
			outputFlag,
		},
		Action: func(c *cli.Context) error {
			query := joinArgs(c)
			if query == "" {
				return errors.New("usage: vincentbot passages [flags] <terms...>")
			}
			limit, fuzziness := c.Int("limit"), c.Int("fuzziness")
			if fuzziness < 0 || fuzziness > 2 {
				return fmt.Errorf("fuzziness must be between 0 and 2, got %d", fuzziness)
			}
			ctx, cancel := signalContext(c)
			defer cancel()

			var search func(fuzz int) ([]keyword.Passage, error)
			if url := c.String("server"); url != "" {
				client := botcli.NewClient(url, state.cfg.Server.RequestTimeout)
				search = func(fuzz int) ([]keyword.Passage, error) {
					return client.Passages(ctx, query, limit, fuzz)
				}
			} else {
				comps, err := initializeComponents(state.cfg, state.logger, false)
				if err != nil {
					return err
				}
				defer comps.Close()
				search = func(fuzz int) ([]keyword.Passage, error) {
					return comps.Passages.Search(ctx, query, limit, &keyword.SearchOptions{Fuzziness: fuzz})
				}
			}

			hits, err := search(fuzziness)
			if err != nil {
				return err
			}
			// Retry with typo tolerance when an exact lookup finds nothing.
			if len(hits) == 0 && fuzziness == 0 {
				if fuzzy, err := search(1); err == nil {
					hits = fuzzy
				}
			}
			return botcli.WritePassages(c.App.Writer, query, hits, botcli.ParseOutputFormat(c.String("output")))
		},
	}
}

func statusCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the index and catalog state",
		Flags: []cli.Flag{serverFlag, outputFlag},
		Action: func(c *cli.Context) error {
			format := botcli.ParseOutputFormat(c.String("output"))
			if url := c.String("server"); url != "" {
				status, err := botcli.NewClient(url, state.cfg.Server.RequestTimeout).Status(c.Context)
				if err != nil {
					return err
				}
				return botcli.WriteStatus(c.App.Writer, status, format)
			}

			comps, err := initializeComponents(state.cfg, state.logger, false)
			if err != nil {
				return err
			}
			defer comps.Close()
			status, err := localStatus(c.Context, state, comps)
			if err != nil {
				return err
			}
			return botcli.WriteStatus(c.App.Writer, status, format)
		},
	}
}

func localStatus(ctx context.Context, state *appState, comps *Components) (*botcli.Status, error) {
	status := &botcli.Status{Embedder: comps.Pipeline.EmbedderID()}
	if err := openIndex(comps); err != nil {
		status.IndexError = err.Error()
	}
	if manifest, ok := comps.Pipeline.Manifest(); ok {
		status.SetIndex(manifest)
	}

	var err error
	if status.Documents, err = comps.Catalog.CountDocuments(ctx); err != nil {
		return nil, err
	}
	if status.Chunks, err = comps.Catalog.CountChunks(ctx); err != nil {
		return nil, err
	}
	build, err := comps.Catalog.LatestBuild(ctx)
	if err != nil {
		return nil, err
	}
	status.SetLatestBuild(build)
	if n, err := comps.Passages.Count(); err == nil {
		status.Passages = n
	}
	if n, err := storage.DiskUsageBytes(diskPaths(state.cfg)...); err == nil {
		status.DiskUsageBytes = n
	}
	return status, nil
}
