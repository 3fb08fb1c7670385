// Package loader reads a manifest file, expands its references and checks
// it against the embedded schema before decoding.
package loader

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/offsetup/internal/fault"
	"github.com/balaji-balu/offsetup/internal/ref"
	"github.com/balaji-balu/offsetup/pkg/manifest"
)

const schemaName = "offsetup.schema.json"

//go:embed schema/offsetup.schema.json
var schemaFS embed.FS

var (
	schema     *jsonschema.Schema
	schemaOnce sync.Once
	schemaErr  error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		data, err := schemaFS.ReadFile("schema/" + schemaName)
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaName, bytes.NewReader(data)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile(schemaName)
	})
	return schema, schemaErr
}

// Load reads and validates the manifest at path.
func Load(path string) (*manifest.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse runs the full load pipeline on raw manifest bytes. dir is the
// directory relative paths in the manifest resolve against.
func Parse(data []byte, dir string) (*manifest.Manifest, error) {
	resolved, err := Resolve(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(resolved); err != nil {
		return nil, err
	}
	m, err := manifest.Decode(resolved)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.Dir = dir
	return m, nil
}

// Resolve parses data and expands its references.
func Resolve(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fault.Wrap(fault.ErrManifestValidation, err, "parse")
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, fault.New(fault.ErrManifestValidation, "empty manifest")
	}
	return ref.Resolve(&doc)
}

// Validate checks a resolved document against the manifest schema.
func Validate(doc *yaml.Node) error {
	s, err := loadSchema()
	if err != nil {
		return fmt.Errorf("load manifest schema: %w", err)
	}

	var raw any
	if err := doc.Decode(&raw); err != nil {
		return fault.Wrap(fault.ErrManifestValidation, err, "decode")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fault.Wrap(fault.ErrManifestValidation, err, "manifest keys must be strings")
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fault.Wrap(fault.ErrManifestValidation, err, "decode")
	}

	if err := s.Validate(v); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fault.New(fault.ErrManifestValidation, "%s", verr.Error())
		}
		return fault.Wrap(fault.ErrManifestValidation, err, "schema")
	}
	return nil
}
