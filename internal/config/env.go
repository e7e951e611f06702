package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable swiftserve reads.
const EnvPrefix = "SWIFTSERVE_"

// LoadDotEnv reads a dotenv file and returns its key/value pairs. A missing
// file yields an empty map.
//
// Parsing rules:
// - Lines starting with '#' are ignored.
// - Empty lines are ignored.
// - Lines must be of form KEY=VALUE.
// - Whitespace around KEY is trimmed.
// - VALUE is taken as-is apart from one pair of surrounding quotes.
func LoadDotEnv(p string) (map[string]string, error) {
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot open dotenv file %s: %w", p, err)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out[k] = unquote(v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read dotenv file %s: %w", p, err)
	}
	return out, nil
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// lookup returns a getter that prefers the process environment and falls
// back to dotenv.
func lookup(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

// applyEnv overrides fields from SWIFTSERVE_* variables.
//
// SWIFTSERVE_DATASETS holds comma-separated alias=path pairs that are
// merged into the file's datasets.
func (c *Config) applyEnv(get func(string) (string, bool)) error {
	if v, ok := get(EnvPrefix + "DATASETS"); ok {
		for _, pair := range strings.Split(v, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			alias, path, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("%sDATASETS: expected alias=path, got %q", EnvPrefix, pair)
			}
			if c.Datasets == nil {
				c.Datasets = map[string]string{}
			}
			c.Datasets[strings.TrimSpace(alias)] = strings.TrimSpace(path)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_MASK_SIZE", &c.MaxMaskSize},
		{"METADATA_CACHE_SIZE", &c.MetadataCacheSize},
	}
	for _, f := range ints {
		if v, ok := get(EnvPrefix + f.key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, f.key, err)
			}
			*f.dst = n
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"SHARED_LOCK", &c.HDF5.SharedLock},
		{"READ_AHEAD", &c.HDF5.ReadAhead},
	}
	for _, f := range bools {
		if v, ok := get(EnvPrefix + f.key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, f.key, err)
			}
			*f.dst = b
		}
	}

	if v, ok := get(EnvPrefix + "LOCK_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sLOCK_TIMEOUT: %w", EnvPrefix, err)
		}
		c.HDF5.LockTimeout = d
	}
	if v, ok := get(EnvPrefix + "LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := get(EnvPrefix + "LOG_FORMAT"); ok {
		c.Log.Format = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}
