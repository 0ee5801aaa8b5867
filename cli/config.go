package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/compozy/statusstream/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var tokenRegex = regexp.MustCompile(`token=[^&\s]+`)

var sensitivePatterns = []string{
	"PASSWORD",
	"TOKEN",
	"SECRET",
	"DSN",
	"PRIVATE",
	"CREDENTIALS",
}

var (
	durationType  = reflect.TypeOf(time.Duration(0))
	sensitiveType = reflect.TypeOf(config.SensitiveString(""))
)

// ConfigCmd returns the config command
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management and diagnostics",
	}
	cmd.AddCommand(
		configShowCmd(),
		configDiagnosticsCmd(),
		configValidateCmd(),
	)
	return cmd
}

func configShowCmd() *cobra.Command {
	var (
		format      string
		showSources bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration values and their sources",
		Long: `Display the effective configuration with optional source information.
Each value reports whether it came from CLI flags, the YAML file, the environment or defaults.
Secrets are always redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return fmt.Errorf("configuration not loaded")
			}
			var sources map[string]config.SourceType
			if showSources {
				sources = collectSources(config.ManagerFromContext(cmd.Context()).Service, cfg)
			}
			return formatConfigOutput(cmd.OutOrStdout(), cfg, sources, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (json, yaml, table)")
	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Show configuration sources")
	return cmd
}

func formatConfigOutput(
	w io.Writer,
	cfg *config.Config,
	sources map[string]config.SourceType,
	format string,
) error {
	output := map[string]any{"config": configMap(reflect.ValueOf(*cfg))}
	if len(sources) > 0 {
		output["sources"] = sources
	}
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(output)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		return encoder.Encode(output)
	case "table":
		return outputTable(w, cfg, sources)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func configDiagnosticsCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Run configuration diagnostics",
		Long: `Report validation errors, the source of each overridden value and
the environment variables the configuration reads.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiagnostics(cmd, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed source information")
	return cmd
}

func runDiagnostics(cmd *cobra.Command, verbose bool) error {
	out := cmd.OutOrStdout()
	manager := config.ManagerFromContext(cmd.Context())
	cfg := manager.Get()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}
	fmt.Fprintln(out, "=== Configuration Diagnostics ===")
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintf(out, "✗ Config file not found: %s\n", path)
		} else {
			fmt.Fprintf(out, "✓ Config file found: %s\n", path)
		}
	}
	if err := manager.Service.Validate(cfg); err != nil {
		fmt.Fprintf(out, "✗ Validation errors:\n%v\n", err)
	} else {
		fmt.Fprintln(out, "✓ Configuration is valid")
	}
	if changed := changedFlags(cmd.Flags()); len(changed) > 0 {
		fmt.Fprintf(out, "Flags set: %s\n", strings.Join(changed, ", "))
	}
	fmt.Fprintln(out, "\n--- Source Precedence ---")
	fmt.Fprintln(out, "1. Environment variables")
	fmt.Fprintln(out, "2. CLI flags")
	fmt.Fprintln(out, "3. YAML configuration file")
	fmt.Fprintln(out, "4. Default values")
	if verbose {
		fmt.Fprintln(out, "\n--- Configuration Sources ---")
		displaySourceBreakdown(out, collectSources(manager.Service, cfg))
	}
	fmt.Fprintln(out, "\n--- Environment Variable Mapping ---")
	displayEnvMapping(out)
	return nil
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager := config.ManagerFromContext(cmd.Context())
			if err := manager.Service.Validate(manager.Get()); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
			return nil
		},
	}
}

// changedFlags lists the flags the user set explicitly as name=value.
func changedFlags(fs *pflag.FlagSet) []string {
	var out []string
	fs.Visit(func(f *pflag.Flag) {
		value := f.Value.String()
		if f.Name == "token" {
			value = "[REDACTED]"
		}
		out = append(out, f.Name+"="+value)
	})
	sort.Strings(out)
	return out
}

// collectSources returns the non-default source of every leaf key.
func collectSources(service config.Service, cfg *config.Config) map[string]config.SourceType {
	result := make(map[string]config.SourceType)
	for key := range flattenConfig(cfg) {
		if source := service.GetSource(key); source != "" && source != config.SourceDefault {
			result[key] = source
		}
	}
	return result
}

// configMap renders a config struct as nested maps keyed by koanf tags.
func configMap(val reflect.Value) map[string]any {
	out := make(map[string]any)
	typ := val.Type()
	for i := range val.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("koanf")
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}
		value := fieldValue(val.Field(i))
		if str, ok := value.(string); ok && tag == "url" {
			value = redactURL(str)
		}
		out[tag] = value
	}
	return out
}

func fieldValue(v reflect.Value) any {
	switch {
	case v.Type() == sensitiveType:
		return config.SensitiveString(v.String()).String()
	case v.Type() == durationType:
		return time.Duration(v.Int()).String()
	case v.Kind() == reflect.Struct:
		return configMap(v)
	default:
		return v.Interface()
	}
}

// flattenConfig converts the nested config to dotted keys.
func flattenConfig(cfg *config.Config) map[string]string {
	result := make(map[string]string)
	flattenInto(result, "", configMap(reflect.ValueOf(*cfg)))
	return result
}

func flattenInto(result map[string]string, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flattenInto(result, key, val)
		case []string:
			result[key] = strings.Join(val, ",")
		case string:
			result[key] = val
		default:
			result[key] = fmt.Sprintf("%v", val)
		}
	}
}

func outputTable(out io.Writer, cfg *config.Config, sources map[string]config.SourceType) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	flat := flattenConfig(cfg)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if sources != nil {
		fmt.Fprintln(w, "KEY\tVALUE\tSOURCE")
		fmt.Fprintln(w, "---\t-----\t------")
	} else {
		fmt.Fprintln(w, "KEY\tVALUE")
		fmt.Fprintln(w, "---\t-----")
	}
	for _, key := range keys {
		if sources != nil {
			source := sources[key]
			if source == "" {
				source = config.SourceDefault
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", key, flat[key], source)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", key, flat[key])
	}
	return w.Flush()
}

func displaySourceBreakdown(out io.Writer, sources map[string]config.SourceType) {
	if len(sources) == 0 {
		fmt.Fprintln(out, "All values come from defaults")
		return
	}
	bySource := make(map[config.SourceType][]string)
	for key, source := range sources {
		bySource[source] = append(bySource[source], key)
	}
	for _, sourceType := range []config.SourceType{config.SourceEnv, config.SourceCLI, config.SourceYAML} {
		keys := bySource[sourceType]
		if len(keys) == 0 {
			continue
		}
		sort.Strings(keys)
		fmt.Fprintf(out, "\n%s:\n", sourceType)
		for _, key := range keys {
			fmt.Fprintf(out, "  - %s\n", key)
		}
	}
}

// redactURL hides credentials embedded in connection URLs.
func redactURL(urlStr string) string {
	if strings.Contains(urlStr, "://") && strings.Contains(urlStr, "@") {
		protocolEnd := strings.Index(urlStr, "://") + 3
		atIndex := strings.LastIndex(urlStr, "@")
		if atIndex > protocolEnd {
			return urlStr[:protocolEnd] + "[REDACTED]@" + urlStr[atIndex+1:]
		}
	}
	if strings.Contains(urlStr, "token=") {
		return tokenRegex.ReplaceAllString(urlStr, "token=[REDACTED]")
	}
	return urlStr
}

func isSensitiveEnvVar(envName, value string) bool {
	for _, pattern := range sensitivePatterns {
		if strings.Contains(envName, pattern) {
			return true
		}
	}
	return strings.Contains(value, "token=") ||
		(strings.Contains(value, "://") && strings.Contains(value, "@"))
}

func displayEnvMapping(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ENVIRONMENT VARIABLE\tCONFIG PATH\tCURRENT VALUE")
	fmt.Fprintln(w, "--------------------\t-----------\t-------------")
	for _, mapping := range config.GenerateEnvMappings() {
		value := os.Getenv(mapping.EnvVar)
		switch {
		case value == "":
			value = "(not set)"
		case mapping.Sensitive || isSensitiveEnvVar(mapping.EnvVar, value):
			value = "[REDACTED]"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", mapping.EnvVar, mapping.ConfigPath, value)
	}
}
