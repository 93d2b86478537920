package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/flagext"
	"gopkg.in/yaml.v3"

	"github.com/sonic-net/fgnhgctl/cmd/fgnhgctl/app"
	"github.com/sonic-net/fgnhgctl/internal/config"
	"github.com/sonic-net/fgnhgctl/internal/fglog"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}

	if warnings := cfg.CheckConfig(); len(warnings) != 0 {
		level.Warn(fglog.Logger).Log("msg", "-- CONFIGURATION WARNINGS --")
		for _, w := range warnings {
			level.Warn(fglog.Logger).Log("field", w.Field, "msg", w.Message)
		}
	}

	a, err := app.New(*cfg)
	if err != nil {
		level.Error(fglog.Logger).Log("msg", "error initialising fgnhgctl", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level.Info(fglog.Logger).Log("msg", "starting fgnhgctl")
	if err := a.Run(ctx); err != nil {
		level.Error(fglog.Logger).Log("msg", "error running fgnhgctl", "err", err)
		os.Exit(1)
	}
}

// loadConfig registers the flag set against config.Config, overlays a
// -config.file YAML document if one was given, then re-parses os.Args so
// CLI flags still win, mirroring cmd/tempo/main.go's loadConfig.
func loadConfig() (*config.Config, error) {
	const configFileOption = "config.file"

	var configFile string
	args := os.Args[1:]

	// First pass: find -config.file, ignoring every other flag (they
	// aren't registered on this throwaway set yet).
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&configFile, configFileOption, "", "")
	for len(args) > 0 {
		_ = fs.Parse(args)
		args = args[1:]
	}

	cfg := &config.Config{}
	cfg.RegisterFlagsAndApplyDefaults("", flag.CommandLine)

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read configFile %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configFile %s: %w", configFile, err)
		}
	}

	flagext.IgnoredFlag(flag.CommandLine, configFileOption, "Configuration file to load")
	flag.Parse()

	return cfg, nil
}
