package main

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/germanamz/shrub/pkg/engine"
)

// defaultConfigPath is used when -config is not given and the file exists.
const defaultConfigPath = "shrub.yaml"

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// resolveConfigPath returns the explicit path, else shrub.yaml when present,
// else "" for the built-in defaults.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func loadConfig(path string) (engine.Config, error) {
	if path == "" {
		return engine.Default(), nil
	}
	return engine.LoadConfig(path)
}

// splitPatterns splits a comma-separated glob list, dropping blanks.
func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// colorEnabled reports whether w is a terminal and NO_COLOR is unset.
func colorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fi, err := f.Stat()
	if err != nil {
		return false
	}

	return fi.Mode()&os.ModeCharDevice != 0
}
