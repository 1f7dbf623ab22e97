package main

import (
	"os"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"spoky/internal/agent"
	"spoky/internal/config"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	configFile := cli.StringP("config", "c", "spoky.yaml", "Config file path")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	user := cli.StringP("user", "u", "default_user", "User identifier")
	logLevel := cli.StringP("log", "l", "", "Log level (overrides config)")
	cli.Parse()

	godotenv.Load(*envFile)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load config", "path", *configFile, "err", err)
		os.Exit(1)
	}

	level := cfg.System.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[level],
	})))

	log.Info("Booting up", "user", *user)

	a, err := agent.New(cfg, *user)
	if err != nil {
		log.Error("Failed to init agent", "err", err)
		os.Exit(1)
	}

	log.Info("Boot up - successful")

	if err := a.Run(); err != nil {
		log.Error("Agent failed", "err", err)
		os.Exit(1)
	}
}
