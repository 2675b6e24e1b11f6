package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment keys read at startup.
const (
	EnvMnemonic  = "MNEMONIC"
	EnvChainID   = "CHAIN_ID"
	EnvRPCURL    = "RPC_URL"
	EnvReportGas = "REPORT_GAS"
)

// Defaults mirror the layout of a stock contract project.
const (
	DefaultNetwork          = "custom"
	DefaultSources          = "examples"
	DefaultArtifacts        = "artifacts"
	DefaultCache            = "cache"
	DefaultTests            = "test"
	DefaultSuffix           = ".sol"
	DefaultGasMultiplierPct = 120
	DefaultCompileCommand   = "npx hardhat compile"
	DefaultCoverageCommand  = "npx hardhat coverage"
)

// Config is loaded once at startup and handed to constructors. Nothing else
// in the module reads the process environment.
type Config struct {
	Mnemonic  string `env:"MNEMONIC" validate:"required,mnemonic"`
	ChainID   int64  `env:"CHAIN_ID" validate:"gt=0"`
	RPCURL    string `env:"RPC_URL" validate:"required,rpcurl"`
	ReportGas bool   `env:"REPORT_GAS"`

	Project Project `env:"project" validate:"required"`
}

// Project is the optional forgeguard.yaml next to the sources.
type Project struct {
	Paths      Paths       `yaml:"paths"`
	Suffix     string      `yaml:"suffix"`
	Toolchain  Toolchain   `yaml:"toolchain"`
	Preprocess []Rule      `yaml:"preprocess" validate:"dive"`
	Network    NetworkConf `yaml:"network"`
}

type Paths struct {
	Root      string `yaml:"root"`
	Sources   string `yaml:"sources"`
	Artifacts string `yaml:"artifacts"`
	Cache     string `yaml:"cache"`
	Tests     string `yaml:"tests"`
}

// Toolchain holds command line templates for the external compiler.
type Toolchain struct {
	Compile  string `yaml:"compile"`
	Coverage string `yaml:"coverage"`
}

// Rule is a per-line regexp rewrite applied by the preprocess pass.
type Rule struct {
	Match   string `yaml:"match" validate:"required"`
	Replace string `yaml:"replace"`
}

type NetworkConf struct {
	Name             string          `yaml:"name"`
	GasMultiplierPct int             `yaml:"gas_multiplier_percent" validate:"gte=0"`
	Intercept        []InterceptRule `yaml:"intercept" validate:"dive"`
}

// InterceptRule short-circuits Method with Result when When holds.
type InterceptRule struct {
	Method string `yaml:"method" validate:"required"`
	When   string `yaml:"when"`
	Result string `yaml:"result" validate:"required"`
}

// ConfigurationError is fatal: the process stops before any component exists.
type ConfigurationError struct {
	Problems []string
	Err      error
}

func (e *ConfigurationError) Error() string {
	if len(e.Problems) == 0 && e.Err != nil {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Load reads envFile (if present), overlays the process environment, reads
// projectFile (if present) and validates the result.
func Load(envFile, projectFile string) (*Config, error) {
	values := map[string]string{}
	if envFile != "" {
		fileValues, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigurationError{Err: fmt.Errorf("reading %s: %w", envFile, err)}
		}
		for k, v := range fileValues {
			values[k] = v
		}
	}
	for _, key := range []string{EnvMnemonic, EnvChainID, EnvRPCURL, EnvReportGas} {
		if v, ok := os.LookupEnv(key); ok {
			values[key] = v
		}
	}

	project, err := LoadProject(projectFile)
	if err != nil {
		return nil, err
	}

	return New(values, project)
}

// LoadProject parses the project file. A missing file yields defaults.
func LoadProject(path string) (Project, error) {
	var p Project
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Project{}, &ConfigurationError{Err: fmt.Errorf("reading %s: %w", path, err)}
		default:
			if err := yaml.Unmarshal(data, &p); err != nil {
				return Project{}, &ConfigurationError{Err: fmt.Errorf("parsing %s: %w", path, err)}
			}
			if p.Paths.Root == "" {
				p.Paths.Root = filepath.Dir(path)
			}
		}
	}
	return p, nil
}

// New builds a Config from raw key/value pairs. Tests use it with synthetic
// values.
func New(values map[string]string, project Project) (*Config, error) {
	cfg := &Config{
		Mnemonic: strings.TrimSpace(values[EnvMnemonic]),
		RPCURL:   strings.TrimSpace(values[EnvRPCURL]),
		Project:  project,
	}

	var problems []string

	// Unparsable ids stay zero and fail the gt=0 check below.
	if id, err := strconv.ParseInt(strings.TrimSpace(values[EnvChainID]), 10, 64); err == nil {
		cfg.ChainID = id
	}
	if raw := values[EnvReportGas]; raw != "" {
		cfg.ReportGas = true
	}

	if err := cfg.Project.applyDefaults(); err != nil {
		problems = append(problems, err.Error())
	}

	problems = append(problems, validationProblems(cfg)...)
	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}
	return cfg, nil
}

func (p *Project) applyDefaults() error {
	if p.Paths.Root == "" {
		p.Paths.Root = "."
	}
	root, err := filepath.Abs(p.Paths.Root)
	if err != nil {
		return fmt.Errorf("paths.root: %v", err)
	}
	p.Paths.Root = root

	p.Paths.Sources = resolve(root, p.Paths.Sources, DefaultSources)
	p.Paths.Artifacts = resolve(root, p.Paths.Artifacts, DefaultArtifacts)
	p.Paths.Cache = resolve(root, p.Paths.Cache, DefaultCache)
	p.Paths.Tests = resolve(root, p.Paths.Tests, DefaultTests)

	if p.Suffix == "" {
		p.Suffix = DefaultSuffix
	}
	if p.Toolchain.Compile == "" {
		p.Toolchain.Compile = DefaultCompileCommand
	}
	if p.Toolchain.Coverage == "" {
		p.Toolchain.Coverage = DefaultCoverageCommand
	}
	if p.Network.Name == "" {
		p.Network.Name = DefaultNetwork
	}
	if p.Network.GasMultiplierPct == 0 {
		p.Network.GasMultiplierPct = DefaultGasMultiplierPct
	}
	return nil
}

func resolve(root, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(root, value)
}

// ExamplesDir is the directory the coverage transaction preprocesses.
func (c *Config) ExamplesDir() string {
	return filepath.Join(c.Project.Paths.Root, "examples")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		if name := strings.Split(f.Tag.Get("yaml"), ",")[0]; name != "" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("mnemonic", validateMnemonic)
	_ = v.RegisterValidation("rpcurl", validateRPCURL)
	return v
}

// validateMnemonic accepts the BIP-39 phrase lengths.
func validateMnemonic(fl validator.FieldLevel) bool {
	switch len(strings.Fields(fl.Field().String())) {
	case 12, 15, 18, 21, 24:
		return true
	}
	return false
}

func validateRPCURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return true
	}
	return false
}

func validationProblems(cfg *Config) []string {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return problems
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required (set it in your .env file)", field)
	case "gt":
		return fmt.Sprintf("%s must be a positive integer", field)
	case "mnemonic":
		return fmt.Sprintf("%s must be a 12, 15, 18, 21 or 24 word phrase", field)
	case "rpcurl":
		return fmt.Sprintf("%s must be an http(s) or ws(s) URL, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}
