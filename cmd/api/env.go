package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envValue returns the trimmed value of key, or ok=false when it is unset or blank.
func envValue(key string) (string, bool) {
	val := strings.TrimSpace(os.Getenv(key))
	return val, val != ""
}

// envParse parses key with parse, taking fallback when the key is unset or malformed.
func envParse[T any](key string, fallback T, parse func(string) (T, error)) T {
	val, ok := envValue(key)
	if !ok {
		return fallback
	}
	parsed, err := parse(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefault(key, fallback string) string {
	if val, ok := envValue(key); ok {
		return val
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	return envParse(key, fallback, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "yes", "on":
			return true, nil
		case "no", "off":
			return false, nil
		}
		return strconv.ParseBool(s)
	})
}

func envFloat(key string, fallback float64) float64 {
	return envParse(key, fallback, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func envInt(key string, fallback int) int {
	return envParse(key, fallback, strconv.Atoi)
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
