package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhirerr"
)

const (
	// DefaultSchemaBaseURL hosts the flattened OpenAPI schema of every core
	// FHIR resource as {Type}-definition.json.
	DefaultSchemaBaseURL = "https://raw.githubusercontent.com/tewhatuora/schemas/main/alt-fhir-oas-flattened/"

	// DefaultCapabilityProfile is the profile a CapabilityStatement must
	// declare in meta.profile to be compiled.
	DefaultCapabilityProfile = "https://fhir-ig-uat.digital.health.nz/hnz-digital-tooling/StructureDefinition/hnz-capability-statement"

	// EnvPrefix prefixes every environment variable override.
	EnvPrefix = "FHIR_OASGEN"
)

var defaultResponsesPattern = regexp.MustCompile(`^(\d{3})(,\d{3})*$`)

type Config struct {
	InputFolder          string   `mapstructure:"inputFolder" json:"inputFolder"`
	RemoteURL            string   `mapstructure:"remoteUrl" json:"remoteUrl"`
	RemoteDependencyURLs []string `mapstructure:"remoteDependencyUrl" json:"remoteDependencyUrl"`
	OutputFolder         string   `mapstructure:"outputFolder" json:"outputFolder"`
	PersistFiles         bool     `mapstructure:"persistFiles" json:"persistFiles"`
	DisableOutputFiles   bool     `mapstructure:"disableOutputFiles" json:"disableOutputFiles"`

	ContentType       []string `mapstructure:"contentType" json:"contentType"`           // media types replicated in every content map
	DefaultResponses  string   `mapstructure:"defaultResponses" json:"defaultResponses"` // comma separated status codes
	DedupeSchemas     bool     `mapstructure:"dedupeSchemas" json:"dedupeSchemas"`
	DefaultOAuthScope string   `mapstructure:"defaultOAuthScope" json:"defaultOAuthScope"`

	SchemaBaseURL     string `mapstructure:"schemaBaseUrl" json:"schemaBaseUrl"`
	SchemaDir         string `mapstructure:"schemaDir" json:"schemaDir"` // local base schemas, overrides schemaBaseUrl
	CapabilityProfile string `mapstructure:"capabilityProfile" json:"capabilityProfile"`

	SkipValidation bool   `mapstructure:"skipValidation" json:"skipValidation"`
	CheckSchemas   bool   `mapstructure:"checkSchemas" json:"checkSchemas"`
	LogLevel       string `mapstructure:"logLevel" json:"logLevel"`
	LogFormat      string `mapstructure:"logFormat" json:"logFormat"` // json, console, auto
}

func DefaultConfig() *Config {
	return &Config{
		OutputFolder:      "./output",
		ContentType:       []string{"application/json"},
		DefaultResponses:  "400,401,403,500",
		DefaultOAuthScope: "scope/example",
		SchemaBaseURL:     DefaultSchemaBaseURL,
		CapabilityProfile: DefaultCapabilityProfile,
		LogLevel:          "info",
		LogFormat:         "auto",
	}
}

// NewViper returns a viper instance seeded with the defaults and wired to
// FHIR_OASGEN_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("inputFolder", d.InputFolder)
	v.SetDefault("remoteUrl", d.RemoteURL)
	v.SetDefault("remoteDependencyUrl", []string{})
	v.SetDefault("outputFolder", d.OutputFolder)
	v.SetDefault("persistFiles", d.PersistFiles)
	v.SetDefault("disableOutputFiles", d.DisableOutputFiles)
	v.SetDefault("contentType", d.ContentType)
	v.SetDefault("defaultResponses", d.DefaultResponses)
	v.SetDefault("dedupeSchemas", d.DedupeSchemas)
	v.SetDefault("defaultOAuthScope", d.DefaultOAuthScope)
	v.SetDefault("schemaBaseUrl", d.SchemaBaseURL)
	v.SetDefault("schemaDir", d.SchemaDir)
	v.SetDefault("capabilityProfile", d.CapabilityProfile)
	v.SetDefault("skipValidation", d.SkipValidation)
	v.SetDefault("checkSchemas", d.CheckSchemas)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("logFormat", d.LogFormat)
	return v
}

// Load reads the optional config file registered on v and decodes the
// merged defaults, file, environment and bound flags.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ContentType = splitList(cfg.ContentType)
	cfg.RemoteDependencyURLs = splitList(cfg.RemoteDependencyURLs)
	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	return Load(NewViper(), path)
}

func (c *Config) Validate() error {
	if c.InputFolder == "" && c.RemoteURL == "" {
		return &fhirerr.ConfigError{Message: "either inputFolder or remoteUrl must be provided"}
	}
	if c.InputFolder != "" && c.RemoteURL != "" {
		return &fhirerr.ConfigError{Message: "inputFolder and remoteUrl are mutually exclusive"}
	}
	if !defaultResponsesPattern.MatchString(c.DefaultResponses) {
		return &fhirerr.ConfigError{
			Option:  "defaultResponses",
			Message: "must be a comma-separated string of three-digit HTTP status codes",
		}
	}
	if len(c.ContentType) == 0 {
		return &fhirerr.ConfigError{Option: "contentType", Message: "at least one media type is required"}
	}
	return nil
}

// DefaultResponseCodes returns the parsed default error status codes in
// declaration order. Malformed entries are dropped.
func (c *Config) DefaultResponseCodes() []int {
	var codes []int
	for _, part := range strings.Split(c.DefaultResponses, ",") {
		code, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		codes = append(codes, code)
	}
	return codes
}

// splitList flattens comma separated entries, as produced by environment
// variables, and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
