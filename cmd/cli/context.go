package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/agro-tracker/internal/config"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/logger"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads and validates the configuration once. Flags changed on
// cmd override file and environment values.
func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path, cmd.Flags())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// runContext returns the command context carrying a logger that writes to
// stderr, leaving stdout to command output.
func (c *commandContext) runContext(cmd *cobra.Command) context.Context {
	level := "info"
	if c.config != nil {
		level = c.config.LogLevel
	}

	out := cmd.ErrOrStderr()
	noColor := !(isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	log := logger.NewWithWriter(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: noColor}).
		Level(logger.ParseLevel(level))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return logger.WithContext(ctx, log)
}

// resolveSnapshot returns the snapshot named by arg, or the latest one in
// the ledger directory when arg is empty. A bare file name is looked up in
// the ledger directory.
func resolveSnapshot(cfg *config.Config, arg string) (ledger.Handle, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return ledger.Latest(cfg.Ledger.Dir)
	}
	if !strings.ContainsRune(arg, os.PathSeparator) {
		return ledger.Handle{Dir: cfg.Ledger.Dir, Name: arg}, nil
	}
	return ledger.Handle{Dir: filepath.Dir(arg), Name: filepath.Base(arg)}, nil
}
