package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	DBPath        string
	ExportDir     string
	DeviceTimeout time.Duration
}

func Load() Config {
	home, _ := os.UserHomeDir()

	return Config{
		Addr:          readString("BIOSYNC_ADDR", ":8080"),
		DBPath:        readString("BIOSYNC_DB", filepath.Join(home, ".biosync", "database.sqlite")),
		ExportDir:     readString("BIOSYNC_EXPORT_DIR", filepath.Join(home, "Documents", "BioSync Reports")),
		DeviceTimeout: readDurationSeconds("BIOSYNC_DEVICE_TIMEOUT_SECONDS", 30),
	}
}

func readString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func readDurationSeconds(key string, fallback int) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(fallback) * time.Second
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return time.Duration(fallback) * time.Second
	}
	return time.Duration(value) * time.Second
}
