package builder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
)

const ConfigFilename = "Configure.toml"

var (
	defaultOptions     = []string{"-Wall", "-Wextra", "-O2", "-std=c++11"}
	defaultLinkOptions = []string{"-std=c++11"}
	defaultLibs        = []string{"-L/usr/local/lib"}
)

type Config struct {
	Project     ProjectSection      `toml:"project"`
	Compiler    CompilerSection     `toml:"compiler"`
	Executables []ExecutableSection `toml:"executable"`
}

// ProjectSection defines the [project] section
type ProjectSection struct {
	Src                string   `toml:"src"`
	Obj                string   `toml:"obj"`
	Bin                string   `toml:"bin"`
	Extension          string   `toml:"extension"`
	BuildFile          string   `toml:"build_file"`
	Cache              string   `toml:"cache"`
	Exclude            []string `toml:"exclude"`
	Requires           string   `toml:"requires"`
	SkipSystemIncludes bool     `toml:"skip_system_includes"`
}

// CompilerSection defines the [compiler] section
type CompilerSection struct {
	Cxx         string   `toml:"cxx"`
	Linker      string   `toml:"linker"`
	Options     []string `toml:"options"`
	Include     []string `toml:"include"`
	LinkDirs    []string `toml:"link_dirs"`
	Libs        []string `toml:"libs"`
	LinkOptions []string `toml:"link_options"`
	NoDefault   bool     `toml:"no_default"`
}

// ExecutableSection defines an [[executable]] entry
type ExecutableSection struct {
	Source string `toml:"source"`
	Name   string `toml:"name"`
}

// OutputName returns the name of the linked binary, defaulting to the
// basename of the source without its extension
func (e ExecutableSection) OutputName() string {
	if e.Name != "" {
		return e.Name
	}
	base := filepath.Base(e.Source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func DefaultConfig() *Config {
	return &Config{
		Project: ProjectSection{
			Src:       "src",
			Obj:       "obj",
			Bin:       "bin",
			Extension: "cpp",
			Cache:     ".configure_cache.json",
		},
	}
}

// mergeStructs merges the fields of the src struct into the dst struct
func mergeStructs(dst, src any) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Pointer || dstVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("dst must be a pointer to a struct")
	}

	dstElem := dstVal.Elem()
	srcVal := reflect.ValueOf(src)

	if srcVal.Kind() == reflect.Pointer {
		srcVal = srcVal.Elem()
	}

	if srcVal.Kind() != reflect.Struct {
		return fmt.Errorf("src must be a struct or a pointer to a struct")
	}

	if dstElem.Type() != srcVal.Type() {
		return fmt.Errorf("dst and src must be of the same struct type")
	}

	for i := range srcVal.NumField() {
		srcField := srcVal.Field(i)
		dstField := dstElem.Field(i)

		if !dstField.CanSet() {
			continue
		}

		switch dstField.Kind() {
		case reflect.Slice:
			if !srcField.IsNil() {
				dstField.Set(reflect.AppendSlice(dstField, srcField))
			}
		case reflect.Bool:
			dstField.SetBool(dstField.Bool() || srcField.Bool())
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}

	return nil
}

func mustMarshal(v any) string {
	b, err := toml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// unmarshalArraySection parses an array of tables such as [[executable]]
func unmarshalArraySection[T any](rawCfg map[string]any, name string, dst *[]T) error {
	data, ok := rawCfg[name]
	if !ok {
		return nil
	}
	var wrapper struct {
		Items []T `toml:"items"`
	}
	if err := toml.Unmarshal([]byte(mustMarshal(map[string]any{"items": data})), &wrapper); err != nil {
		return fmt.Errorf("failed to parse [[%s]] section: %w", name, err)
	}
	*dst = append(*dst, wrapper.Items...)
	return nil
}

// unmarshalConditionalSection is a helper to parse, evaluate and merge multiple sections with conditional logic
func unmarshalConditionalSection[T any](rawCfg map[string]any, name string, dst *T, env ConfigEnv) error {
	sectionData, ok := rawCfg[name]
	if !ok {
		return nil
	}

	sectionMap, ok := sectionData.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid [%s] section format: expected a table", name)
	}

	baseFields := make(map[string]any)
	conditionalFields := make(map[string]map[string]any)

	for key, val := range sectionMap {
		if subMap, ok := val.(map[string]any); ok {
			_, err := expr.Compile(key, expr.Env(env))
			if err == nil {
				conditionalFields[key] = subMap
			} else {
				baseFields[key] = val
			}
		} else {
			baseFields[key] = val
		}
	}

	if len(baseFields) > 0 {
		if err := toml.Unmarshal([]byte(mustMarshal(baseFields)), dst); err != nil {
			return fmt.Errorf("failed to parse base [%s] section: %w", name, err)
		}
	}

	for expression, condMap := range conditionalFields {
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return fmt.Errorf("failed to compile expression for [%s.%q]: %w", name, expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return fmt.Errorf("failed to run expression for [%s.%q]: %w", name, expression, err)
		}

		// merge sections if the result is true
		if matched, ok := result.(bool); !ok || !matched {
			continue
		}

		var condSection T
		if err := toml.Unmarshal([]byte(mustMarshal(condMap)), &condSection); err != nil {
			return fmt.Errorf("failed to parse conditional section [%s.%q]: %w", name, expression, err)
		}
		if err := mergeStructs(dst, condSection); err != nil {
			return fmt.Errorf("failed to merge conditional section [%s.%q]: %w", name, expression, err)
		}
	}

	return nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// evaluateString finds and evaluates all {{...}} expressions in a string
func evaluateString(s string, env ConfigEnv) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, matchIndexes := range matches {
		fullMatchStart := matchIndexes[0]
		fullMatchEnd := matchIndexes[1]
		expressionStart := matchIndexes[2]
		expressionEnd := matchIndexes[3]

		builder.WriteString(s[lastIndex:fullMatchStart])

		expression := strings.TrimSpace(s[expressionStart:expressionEnd])
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("failed to run expression %q: %w", expression, err)
		}

		fmt.Fprintf(&builder, "%v", result)
		lastIndex = fullMatchEnd
	}

	builder.WriteString(s[lastIndex:])

	return builder.String(), nil
}

// processExpressions recursively walks the parsed TOML data and evaluates expressions in strings
func processExpressions(data any, env ConfigEnv) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		for key, val := range v {
			processedVal, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			v[key] = processedVal
		}
		return v, nil
	case []any:
		for i, item := range v {
			processedItem, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			v[i] = processedItem
		}
		return v, nil
	case []map[string]any:
		for _, item := range v {
			if _, err := processExpressions(item, env); err != nil {
				return nil, err
			}
		}
		return v, nil
	case string:
		return evaluateString(v, env)
	default:
		return data, nil
	}
}

// ParseConfig parses a Configure.toml on top of the default configuration
func ParseConfig(rdr io.Reader, env ConfigEnv) (*Config, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}

	processedConfig, err := processExpressions(rawConfig, env)
	if err != nil {
		return nil, fmt.Errorf("error processing expressions in config: %w", err)
	}
	rawConfig = processedConfig.(map[string]any)

	cfg := DefaultConfig()
	if err := unmarshalConditionalSection(rawConfig, "project", &cfg.Project, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "compiler", &cfg.Compiler, env); err != nil {
		return nil, err
	}
	if err := unmarshalArraySection(rawConfig, "executable", &cfg.Executables); err != nil {
		return nil, err
	}

	for i, exe := range cfg.Executables {
		if exe.Source == "" {
			return nil, fmt.Errorf("executable #%d has no source", i+1)
		}
	}

	return cfg, nil
}

// ParseConfigFromFile parses a config file from a filepath
func ParseConfigFromFile(path string, env ConfigEnv) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseConfig(bufio.NewReader(f), env)
}

// LoadConfigInDirectory parses dir/Configure.toml, or returns the default
// configuration if there is none
func LoadConfigInDirectory(dir string, env ConfigEnv) (*Config, error) {
	path := filepath.Join(dir, ConfigFilename)
	cfg, err := ParseConfigFromFile(path, env)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigFilename, err)
	}
	return cfg, nil
}

//
// expr-lang helpers
//

// CheckRequires evaluates the project.requires expression, which must be true
func (cfg Config) CheckRequires(env ConfigEnv) error {
	if cfg.Project.Requires == "" {
		return nil
	}

	program, err := expr.Compile(cfg.Project.Requires, expr.Env(env))
	if err != nil {
		return fmt.Errorf("failed to compile project.requires: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return fmt.Errorf("failed to run project.requires: %w", err)
	}

	if result, ok := result.(bool); !ok || !result {
		return fmt.Errorf("project requirement not met\n%s", cfg.Project.Requires)
	}

	return nil
}

type ConfigEnv struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
}

func NewConfigEnv() ConfigEnv {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if i := strings.Index(e, "="); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}

	return ConfigEnv{
		TargetOS:   runtime.GOOS,
		TargetArch: runtime.GOARCH,
		Environ:    environ,
	}
}
