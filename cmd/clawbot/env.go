package main

import (
	"fmt"
	"os"
	"strings"
)

// loadEnvFile reads KEY=VALUE lines into the process environment so the
// config layer's env overrides pick them up. Existing variables win over
// the file. Supports comments, `export` prefixes and quoted values.
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		eq := strings.Index(line, "=")
		if eq <= 0 {
			return fmt.Errorf("%s:%d: not a KEY=VALUE line", path, i+1)
		}
		key := strings.TrimSpace(line[:eq])
		value := parseEnvValue(strings.TrimSpace(line[eq+1:]))

		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

func parseEnvValue(raw string) string {
	if len(raw) >= 2 && raw[0] == '\'' {
		if end := strings.IndexByte(raw[1:], '\''); end >= 0 {
			return raw[1 : end+1]
		}
	}
	if len(raw) >= 2 && raw[0] == '"' {
		if end := strings.IndexByte(raw[1:], '"'); end >= 0 {
			v := raw[1 : end+1]
			v = strings.ReplaceAll(v, `\n`, "\n")
			v = strings.ReplaceAll(v, `\t`, "\t")
			return v
		}
	}
	// Unquoted values lose trailing inline comments.
	if i := strings.Index(raw, " #"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}
