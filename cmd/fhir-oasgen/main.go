package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tewhatuora/fhir-openapi-converter/internal/config"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
	"github.com/tewhatuora/fhir-openapi-converter/internal/generator"
	"github.com/tewhatuora/fhir-openapi-converter/internal/ig"
	"github.com/tewhatuora/fhir-openapi-converter/internal/parser"
	"github.com/tewhatuora/fhir-openapi-converter/internal/profile"
)

var (
	version = "dev"

	cfgFile string
)

// flag name -> config key
var flagKeys = map[string]string{
	"input-folder":          "inputFolder",
	"remote-url":            "remoteUrl",
	"remote-dependency-url": "remoteDependencyUrl",
	"output-folder":         "outputFolder",
	"persist-files":         "persistFiles",
	"disable-output-files":  "disableOutputFiles",
	"content-type":          "contentType",
	"default-responses":     "defaultResponses",
	"dedupe-schemas":        "dedupeSchemas",
	"default-oauth-scope":   "defaultOAuthScope",
	"schema-base-url":       "schemaBaseUrl",
	"schema-dir":            "schemaDir",
	"capability-profile":    "capabilityProfile",
	"skip-validation":       "skipValidation",
	"check-schemas":         "checkSchemas",
	"log-level":             "logLevel",
	"log-format":            "logFormat",
}

func main() {
	rootCmd, err := newRootCmd(config.NewViper())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) (*cobra.Command, error) {
	d := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "fhir-oasgen",
		Short: "Generate OpenAPI documents from FHIR CapabilityStatements",
		Long: `fhir-oasgen compiles the CapabilityStatements of a FHIR implementation guide
into OpenAPI 3.0 documents, one per statement.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (JSON or YAML)")
	flags.StringP("input-folder", "i", "", "folder of implementation guide JSON artifacts")
	flags.StringP("remote-url", "r", "", "URL of an implementation guide package (.tgz)")
	flags.StringSlice("remote-dependency-url", nil, "URLs of dependency packages (.tgz)")
	flags.StringP("output-folder", "o", d.OutputFolder, "output directory")
	flags.Bool("persist-files", false, "keep downloaded packages on disk")
	flags.Bool("disable-output-files", false, "do not write output files")
	flags.StringSlice("content-type", d.ContentType, "media types offered by every operation")
	flags.String("default-responses", d.DefaultResponses, "comma separated error status codes added to every operation")
	flags.Bool("dedupe-schemas", false, "hoist identical schema properties into shared components")
	flags.String("default-oauth-scope", d.DefaultOAuthScope, "scope required by every operation under the OAuth scheme")
	flags.String("schema-base-url", d.SchemaBaseURL, "base URL of the {Type}-definition.json resource schemas")
	flags.String("schema-dir", "", "local directory of resource schemas, overrides --schema-base-url")
	flags.String("capability-profile", d.CapabilityProfile, "profile a CapabilityStatement must declare to be compiled")
	flags.Bool("skip-validation", false, "skip OpenAPI validation of the generated documents")
	flags.Bool("check-schemas", false, "check derived profile schemas against the JSON Schema draft-07 meta-schema")
	flags.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	flags.String("log-format", d.LogFormat, "log format (json, console, auto)")
	if err := bindFlags(v, rootCmd); err != nil {
		return nil, err
	}

	rootCmd.AddCommand(validateCmd())
	return rootCmd, nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file or url]",
		Short: "Validate a generated OpenAPI document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger("info", "auto")
			doc, err := parser.Parse(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			summary := parser.Summarize(doc)
			log.Info().Str("source", args[0]).Str("title", summary.Title).Msg(summary.String())
			return nil
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel, cfg.LogFormat)

	opts := ig.Options{
		InputFolder:       cfg.InputFolder,
		PersistFiles:      cfg.PersistFiles,
		CapabilityProfile: cfg.CapabilityProfile,
	}
	if cfg.RemoteURL != "" {
		opts.PackageURLs = append([]string{cfg.RemoteURL}, cfg.RemoteDependencyURLs...)
	}
	artifacts, err := ig.Load(ctx, opts, log)
	if err != nil {
		return err
	}

	gen := generator.New(generator.OptionsFromConfig(cfg), schemaSource(cfg), artifacts, artifacts.Examples, log)

	var errs []error
	for _, cs := range artifacts.CapabilityStatements {
		if err := generate(ctx, gen, cfg, cs, log); err != nil {
			log.Error().Err(err).Str("capability", cs.ID).Msg("failed to generate OpenAPI document")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// generate compiles one statement, writes it and validates the written
// bytes. A failure only affects this statement.
func generate(ctx context.Context, gen *generator.Generator, cfg *config.Config, cs *fhir.CapabilityStatement, log zerolog.Logger) error {
	doc, err := gen.Generate(ctx, cs)
	if err != nil {
		return err
	}
	out, err := generator.Encode(doc)
	if err != nil {
		return err
	}

	if !cfg.DisableOutputFiles {
		written, err := generator.Write(out, cfg.OutputFolder, cs.ID)
		if err != nil {
			return err
		}
		log.Info().Strs("files", written).Msg("wrote OpenAPI document")
	}

	if cfg.SkipValidation {
		return nil
	}
	parsed, err := parser.ParseData(ctx, out.JSON, nil)
	if err != nil {
		return err
	}
	log.Info().Str("capability", cs.ID).Msg(parser.Summarize(parsed).String())
	return nil
}

func schemaSource(cfg *config.Config) profile.Source {
	if cfg.SchemaDir != "" {
		return profile.NewCachedSource(&profile.DirSource{Dir: cfg.SchemaDir})
	}
	return profile.NewCachedSource(profile.NewHTTPSource(cfg.SchemaBaseURL))
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	console := format == "console"
	if format == "" || format == "auto" {
		fd := os.Stderr.Fd()
		console = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}

	logger := zerolog.New(os.Stderr)
	if console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
