package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// cliBindings maps CLI flag names onto configuration paths.
var cliBindings = map[string]string{
	"host":      "server.host",
	"port":      "server.port",
	"mode":      "mode",
	"redis-url": "redis.url",
	"db":        "store.path",
	"log-level": "runtime.log_level",
	"base-url":  "client.base_url",
	"token":     "client.token",
}

// CLIFlags lists the flag names the CLI source understands, sorted.
func CLIFlags() []string {
	names := make([]string, 0, len(cliBindings))
	for name := range cliBindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type cliSource struct {
	values map[string]any
}

// NewCLIProvider builds a source from flag values keyed by flag name.
// Flags without a binding are ignored.
func NewCLIProvider(values map[string]any) Source {
	return &cliSource{values: values}
}

func (c *cliSource) Load() (map[string]any, error) {
	out := make(map[string]any)
	for name, value := range c.values {
		path, ok := cliBindings[name]
		if !ok {
			continue
		}
		if err := setNested(out, path, value); err != nil {
			return nil, fmt.Errorf("failed to set CLI flag %s: %w", name, err)
		}
	}
	return out, nil
}

func (c *cliSource) Type() SourceType { return SourceCLI }

func (c *cliSource) Close() error { return nil }

// setNested stores value at the dotted path, creating intermediate maps.
func setNested(m map[string]any, path string, value any) error {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, keyDelim)
	current := m
	for i, part := range parts[:len(parts)-1] {
		existing, ok := current[part]
		if !ok {
			next := make(map[string]any)
			current[part] = next
			current = next
			continue
		}
		next, ok := existing.(map[string]any)
		if !ok {
			return fmt.Errorf("configuration conflict: key %q is not a map", strings.Join(parts[:i+1], keyDelim))
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
	return nil
}

type yamlSource struct {
	path string
}

// NewYAMLProvider reads a YAML file. A missing file contributes no values so
// a default config path can be passed unconditionally.
func NewYAMLProvider(path string) Source {
	return &yamlSource{path: path}
}

func (y *yamlSource) Load() (map[string]any, error) {
	if y.path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(y.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return map[string]any{}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read YAML file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file %s: %w", y.path, err)
	}
	pruneNulls(doc)
	return doc, nil
}

// pruneNulls drops null leaves and the maps they leave empty so an explicit
// `key: ~` keeps the lower layer's value.
func pruneNulls(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			pruneNulls(val)
			if len(val) == 0 {
				delete(m, k)
			}
		}
	}
}

func (y *yamlSource) Type() SourceType { return SourceYAML }

func (y *yamlSource) Close() error { return nil }

// LoadEnvFile exports a dotenv file into the process environment for the env
// layer to read. Variables already set are left alone. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("failed to stat env file: %w", err)
	case !info.Mode().IsRegular():
		return fmt.Errorf("env file %s is not a regular file", path)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
