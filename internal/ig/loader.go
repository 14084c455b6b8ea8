package ig

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhirerr"
)

// Options select where artifacts come from.
type Options struct {
	// InputFolder is a local folder of JSON artifacts.
	InputFolder string
	// PackageURLs are remote .tgz packages, used when InputFolder is empty.
	PackageURLs []string
	// PersistFiles keeps downloaded packages on disk.
	PersistFiles bool
	// CapabilityProfile, when set, must appear in a CapabilityStatement's
	// meta.profile for it to be kept.
	CapabilityProfile string
	Client            *http.Client
}

// Load reads and classifies the artifacts selected by opts. It fails with a
// NoCapabilityError when no CapabilityStatement survives filtering.
func Load(ctx context.Context, opts Options, log zerolog.Logger) (*Artifacts, error) {
	dir := opts.InputFolder
	if dir == "" {
		if len(opts.PackageURLs) == 0 {
			return nil, &fhirerr.ConfigError{Message: "no input folder or package url"}
		}
		client := opts.Client
		if client == nil {
			client = &http.Client{Timeout: 2 * time.Minute}
		}
		tmp, err := os.MkdirTemp("", "fhir-oasgen-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		if opts.PersistFiles {
			log.Info().Str("dir", tmp).Msg("keeping downloaded packages")
		} else {
			defer os.RemoveAll(tmp)
		}
		if err := downloadPackages(ctx, client, opts.PackageURLs, tmp, log); err != nil {
			return nil, err
		}
		dir = tmp
	}

	artifacts, err := ReadDir(dir, log)
	if err != nil {
		return nil, err
	}
	artifacts.CapabilityStatements = filterCapabilities(artifacts.CapabilityStatements, opts.CapabilityProfile, log)
	if len(artifacts.CapabilityStatements) == 0 {
		return nil, &fhirerr.NoCapabilityError{Profile: opts.CapabilityProfile}
	}

	log.Info().
		Str("dir", dir).
		Int("capabilityStatements", len(artifacts.CapabilityStatements)).
		Int("structureDefinitions", len(artifacts.StructureDefinitions)).
		Int("operationDefinitions", len(artifacts.OperationDefinitions)).
		Int("examples", artifacts.ExampleCount()).
		Msg("loaded implementation guide")
	return artifacts, nil
}

// ReadDir walks dir for *.json files and classifies them. Files that are not
// valid JSON objects are reported and skipped.
func ReadDir(dir string, log zerolog.Logger) (*Artifacts, error) {
	artifacts := newArtifacts(dir)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := artifacts.add(data); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skipping unparsable artifact")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return artifacts, nil
}

func (a *Artifacts) add(data []byte) error {
	var instance fhir.ResourceInstance
	if err := json.Unmarshal(data, &instance); err != nil {
		return err
	}
	if instance == nil {
		return fmt.Errorf("not a JSON object")
	}

	switch instance.ResourceType() {
	case "StructureDefinition":
		var sd fhir.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return err
		}
		if sd.URL != "" {
			a.StructureDefinitions[sd.URL] = &sd
		}
	case "OperationDefinition":
		var od fhir.OperationDefinition
		if err := json.Unmarshal(data, &od); err != nil {
			return err
		}
		if od.URL != "" {
			a.OperationDefinitions[od.URL] = &od
		}
	case "CapabilityStatement":
		var cs fhir.CapabilityStatement
		if err := json.Unmarshal(data, &cs); err != nil {
			return err
		}
		a.CapabilityStatements = append(a.CapabilityStatements, &cs)
	}

	if profiles := instance.Profiles(); len(profiles) > 0 {
		a.Examples[profiles[0]] = append(a.Examples[profiles[0]], instance)
	}
	return nil
}

func filterCapabilities(list []*fhir.CapabilityStatement, profile string, log zerolog.Logger) []*fhir.CapabilityStatement {
	if profile == "" {
		return list
	}
	var out []*fhir.CapabilityStatement
	for _, cs := range list {
		if cs.HasProfile(profile) {
			out = append(out, cs)
			continue
		}
		log.Warn().
			Str("id", cs.ID).
			Str("profile", profile).
			Msg("ignoring CapabilityStatement that does not declare the capability profile")
	}
	return out
}
