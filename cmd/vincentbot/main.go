// Package main is the vincentbot CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hyperjump/vincentbot/internal/config"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "config.yaml"

// loadConfig loads the config at path. When path is the default and no such file
// exists, the built-in defaults are used with paths relative to the working directory.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, "", err
			}
			cfg, err := config.Default(cwd)
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// appState is filled by the Before hook and shared by every command.
type appState struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
}

func newApp() *cli.App {
	state := &appState{}
	return &cli.App{
		Name:    "vincentbot",
		Usage:   "answer questions about Vincent from his profile documents",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "config file path",
				EnvVars: []string{"VINCENTBOT_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, path, err := loadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if c.Bool("debug") {
				cfg.Debug = true
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			logger, err := utils.NewLogger(cfg.Debug)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			state.cfg, state.configPath, state.logger = cfg, path, logger
			logger.Debug("config loaded",
				zap.String("config_path", path),
				zap.Bool("debug", cfg.Debug),
			)
			return nil
		},
		After: func(c *cli.Context) error {
			if state.logger != nil {
				_ = state.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			ingestCommand(state),
			serveCommand(state),
			askCommand(state),
			chatCommand(state),
			passagesCommand(state),
			statusCommand(state),
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "vincentbot version %s\n", version)
					return nil
				},
			},
		},
	}
}

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
