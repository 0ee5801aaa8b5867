package config

import (
	"reflect"
	"sort"
	"sync"
)

// EnvMapping ties an environment variable to the config path it sets.
type EnvMapping struct {
	EnvVar     string
	ConfigPath string
	Sensitive  bool
}

var envMappings = sync.OnceValue(func() []EnvMapping {
	var out []EnvMapping
	walkEnvTags(reflect.TypeOf(Config{}), "", &out)
	sort.Slice(out, func(i, j int) bool { return out[i].ConfigPath < out[j].ConfigPath })
	return out
})

// GenerateEnvMappings lists every env-tagged field, ordered by config path.
// The returned slice is shared and must not be modified.
func GenerateEnvMappings() []EnvMapping {
	return envMappings()
}

// GenerateEnvToConfigMap indexes GenerateEnvMappings by variable name.
func GenerateEnvToConfigMap() map[string]string {
	mappings := envMappings()
	out := make(map[string]string, len(mappings))
	for _, m := range mappings {
		out[m.EnvVar] = m.ConfigPath
	}
	return out
}

func walkEnvTags(t reflect.Type, prefix string, out *[]EnvMapping) {
	for _, field := range reflect.VisibleFields(t) {
		key := field.Tag.Get("koanf")
		if !field.IsExported() || key == "" || key == "-" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + keyDelim + key
		}
		if name := field.Tag.Get("env"); name != "" && name != "-" {
			*out = append(*out, EnvMapping{
				EnvVar:     name,
				ConfigPath: path,
				Sensitive:  field.Type == sensitiveStringType || field.Tag.Get("sensitive") == "true",
			})
		}
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			walkEnvTags(field.Type, path, out)
		}
	}
}
