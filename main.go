package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mediadl/mediadl/server"
	"github.com/mediadl/mediadl/server/config"

	"github.com/spf13/viper"
)

func main() {
	// Parse optional config path from flag
	var (
		configFile  string
		printConfig bool
	)
	flag.StringVar(&configFile, "conf", "./config.yml", "Config file path")
	flag.BoolVar(&printConfig, "print-config", false, "Print the effective configuration and exit")
	flag.Parse()

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3033)
	v.SetDefault("server.poll_interval", "1s")
	v.SetDefault("paths.download_path", "./")
	v.SetDefault("paths.plugin_path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_path", "mediadl.log")
	v.SetDefault("logging.enable_file_logging", false)
	v.SetDefault("authentication.require_auth", false)

	// Env binding
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	// Load YAML file if exists
	if err := v.ReadInConfig(); err != nil {
		slog.Debug("using defaults")
	}

	cfg := config.Instance()
	if err := v.Unmarshal(cfg); err != nil {
		slog.Error("failed to load config", "error", err)
	}
	cfg.SetPath(configFile)

	if printConfig {
		if err := cfg.WriteYAML(os.Stdout); err != nil {
			slog.Error("failed to print config", "error", err)
			os.Exit(1)
		}
		return
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"download_path", cfg.Paths.DownloadPath,
	)

	if err := server.Run(ctx, &server.RunConfig{}); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited cleanly")
}
