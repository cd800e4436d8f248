package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the classifier service
type Config struct {
	WatchPath           string
	Recursive           bool
	DebounceMs          int
	LogLevel            string
	Port                int
	HTTPPort            int
	DBPath              string
	IgnorePatterns      []string
	MetadataFile        string
	SkipIgnoredRemovals bool
	TrackWorkers        int
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		WatchPath:           envString("WATCH_PATH", "demo"),
		Recursive:           envBool("WATCH_RECURSIVE", true),
		DebounceMs:          envInt("DEBOUNCE_MS", 1000),
		LogLevel:            envString("LOG_LEVEL", "info"),
		Port:                envInt("WATCHER_PORT", 50051),
		HTTPPort:            envInt("HTTP_PORT", 8080),
		DBPath:              os.Getenv("DB_PATH"),
		IgnorePatterns:      SplitList(os.Getenv("IGNORE_PATTERNS")),
		MetadataFile:        envString("METADATA_FILE", ".DS_Store"),
		SkipIgnoredRemovals: envBool("IGNORE_SKIPS_REMOVALS", false),
		TrackWorkers:        envInt("TRACK_WORKERS", 1),
	}
}

// Window returns the debounce window
func (c *Config) Window() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// SplitList splits a comma separated value, dropping empty entries
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
