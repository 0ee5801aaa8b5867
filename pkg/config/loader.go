package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const keyDelim = "."

var sensitiveStringType = reflect.TypeOf(SensitiveString(""))

// loader reads every source into its own koanf layer and merges the layers
// in precedence order: defaults, then the given sources, then the environment.
// The origin of each key is the last layer that changed its value.
type loader struct {
	validator *validator.Validate
	loadMu    sync.Mutex
	originsMu sync.RWMutex
	origins   map[string]SourceType
}

type layer struct {
	source SourceType
	values *koanf.Koanf
}

// NewService creates a new configuration service with validation support.
func NewService() Service {
	return &loader{
		validator: validator.New(),
		origins:   make(map[string]SourceType),
	}
}

func (l *loader) Load(_ context.Context, sources ...Source) (*Config, error) {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()
	layers, err := readLayers(sources)
	if err != nil {
		return nil, err
	}
	merged := koanf.New(keyDelim)
	origins := make(map[string]SourceType)
	for _, ly := range layers {
		for _, key := range ly.values.Keys() {
			if merged.Exists(key) && reflect.DeepEqual(merged.Get(key), ly.values.Get(key)) {
				continue
			}
			origins[key] = ly.source
		}
		if err := merged.Merge(ly.values); err != nil {
			return nil, fmt.Errorf("failed to merge %s configuration: %w", ly.source, err)
		}
	}
	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}
	if err := l.Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	l.originsMu.Lock()
	l.origins = origins
	l.originsMu.Unlock()
	return cfg, nil
}

func readLayers(sources []Source) ([]layer, error) {
	defaults := koanf.New(keyDelim)
	if err := defaults.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	layers := []layer{{source: SourceDefault, values: defaults}}
	for _, src := range sources {
		if src == nil || src.Type() == SourceEnv || src.Type() == SourceDefault {
			continue
		}
		values := koanf.New(keyDelim)
		if err := values.Load(sourceProvider{src}, nil); err != nil {
			return nil, fmt.Errorf("failed to load from source %s: %w", src.Type(), err)
		}
		layers = append(layers, layer{source: src.Type(), values: values})
	}
	environment, err := readEnvironment()
	if err != nil {
		return nil, err
	}
	return append(layers, layer{source: SourceEnv, values: environment}), nil
}

// readEnvironment picks up only variables named by an env struct tag.
func readEnvironment() (*koanf.Koanf, error) {
	envToPath := GenerateEnvToConfigMap()
	values := koanf.New(keyDelim)
	err := values.Load(env.Provider(keyDelim, env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			if path, ok := envToPath[key]; ok {
				return path, value
			}
			return "", nil
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return values, nil
}

// sourceProvider adapts a Source to koanf.Provider.
type sourceProvider struct{ src Source }

func (p sourceProvider) Read() (map[string]any, error) { return p.src.Load() }

func (p sourceProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config source does not provide raw bytes")
}

func decode(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				decodeSensitive,
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return &cfg, nil
}

func decodeSensitive(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != sensitiveStringType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return SensitiveString(v), nil
	case []byte:
		return SensitiveString(v), nil
	default:
		return data, nil
	}
}

// Validate runs the struct tag rules and then the cross-field checks.
func (l *loader) Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := l.validator.Struct(config); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return validateCustom(config)
}

// GetSource reports which layer supplied key in the last successful load.
// Keys never loaded report an empty SourceType.
func (l *loader) GetSource(key string) SourceType {
	l.originsMu.RLock()
	defer l.originsMu.RUnlock()
	return l.origins[key]
}
