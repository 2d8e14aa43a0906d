/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/loquax/internal/config"
	"github.com/valpere/loquax/internal/logging"
)

var version = "0.1.0"

var (
	cfgFile string

	v         = config.New()
	cfg       *config.Config
	logger    = zap.NewNop()
	flushLogs = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "loquax",
	Short: "CLI client for the Loquax Latin scansion service",
	Long: `A CLI client that sends Latin text to a Loquax server and prints the
rendered result, optionally with scansion marks and IPA transcription.

Settings come from flags, LOQUAX_* environment variables, or a config file
(--config), in that order of precedence.

Use "loquax translate --help" for translation options.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = c

		l, flush, err := logging.New(logging.Options{
			Level:   cfg.LogLevel,
			File:    cfg.LogFile,
			Console: cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		logger, flushLogs = l, flush
		logger.Debug("configuration loaded",
			zap.String("url", cfg.URL),
			zap.String("endpoint", cfg.Endpoint),
			zap.Duration("timeout", cfg.Timeout),
			zap.String("db", cfg.DB))
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	flushLogs()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (toml, yaml or json)")
	pf.String("url", "http://localhost:5000", "Loquax server base URL")
	pf.String("endpoint", "/", "Request path on the server (\"/\" or \"/loquax\")")
	pf.Duration("timeout", 0, "Per-request timeout (0 = none)")
	pf.String("db", "./data/loquax.db", "Database path for history and cache")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-file", "", "Also write JSON logs to this file (rotated)")

	if err := config.BindFlags(v, pf); err != nil {
		panic(err)
	}
}
