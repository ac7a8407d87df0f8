package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/notification"
	"github.com/DjordjeVuckovic/etl-runner/internal/storage/factory"
	"github.com/DjordjeVuckovic/etl-runner/pkg/config/env"
)

type AppConfig struct {
	ENV string
}

func NewAppConfig() *AppConfig {
	return &AppConfig{
		ENV: os.Getenv("ENV"),
	}
}

type EtlConfig struct {
	StorageConfig   factory.StorageConfig
	TasksPath       string
	SMTP            notification.SMTPConfig
	NotifyRecipient string
	NotifySubject   string
	LogLevel        slog.Level
	Announce        etl.Announce
}

func (as *AppConfig) Load() (*EtlConfig, error) {
	if err := env.LoadDotEnv(as.ENV, "cmd/etl/.env"); err != nil {
		slog.Info("Failed to .env load environment variables, continuing with existing environment variables", "error", err)
	}

	storageCfg, err := factory.LoadEnv()
	if err != nil {
		return nil, err
	}

	var level slog.Level
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	announce := etl.AnnounceEveryChunk
	switch strings.ToLower(os.Getenv("ANNOUNCE_CHUNKS")) {
	case "", "every":
	case "first":
		announce = etl.AnnounceFirstChunk
	default:
		return nil, fmt.Errorf("invalid ANNOUNCE_CHUNKS %q, expected every or first", os.Getenv("ANNOUNCE_CHUNKS"))
	}

	tasksPath := os.Getenv("TASKS_PATH")
	if tasksPath == "" {
		tasksPath = "tasks"
	}

	return &EtlConfig{
		StorageConfig: *storageCfg,
		TasksPath:     tasksPath,
		SMTP: notification.SMTPConfig{
			Addr:     os.Getenv("SMTP_ADDR"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("MAIL_FROM"),
		},
		NotifyRecipient: os.Getenv("NOTIFY_RECIPIENT"),
		NotifySubject:   os.Getenv("NOTIFY_SUBJECT"),
		LogLevel:        level,
		Announce:        announce,
	}, nil
}
