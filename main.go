// Package main provides the entry point of the aerial photo preprocessing
// pipeline: canvas sizing, fiducial detection, reprojection and resizing of
// a dataset of scanned photographs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"airphoto-prep/internal/applog"
	"airphoto-prep/internal/config"
	"airphoto-prep/internal/pipeline"
	"airphoto-prep/internal/version"
)

func main() {
	cfgPath := flag.String("config", "", "JSON run configuration")
	envPath := flag.String("env", ".env", "dotenv file with GAPP_* overrides")
	savePath := flag.String("save-config", "", "Write the effective configuration to this file and exit")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	config.DefineFlags(flag.CommandLine)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := load(*cfgPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	if *savePath != "" {
		if err := cfg.Save(*savePath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save configuration: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration:\n%v\n", err)
		os.Exit(2)
	}

	log, closer, err := applog.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(2)
	}
	defer closer.Close()

	log.Info("starting", "version", version.Version, "commit", version.GitCommit,
		"dataset", cfg.Dataset, "camera", cfg.Camera, "steps", fmt.Sprint(cfg.Steps))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pipeline.New(cfg, log).Run(ctx); err != nil {
		log.Error("run failed", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

// load applies the configuration sources, lowest precedence first.
func load(cfgPath, envPath string) (config.Config, error) {
	cfg := config.DefaultConfig()
	if cfgPath != "" {
		var err error
		if cfg, err = config.LoadFile(cfg, cfgPath); err != nil {
			return cfg, err
		}
	}
	if err := config.LoadEnv(envPath); err != nil {
		return cfg, err
	}
	cfg, err := cfg.ApplyEnv()
	if err != nil {
		return cfg, fmt.Errorf("bad environment: %w", err)
	}
	return cfg.ApplyFlags(flag.CommandLine)
}
