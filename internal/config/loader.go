package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a manifest file.
type Format string

// Supported manifest formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// DefaultNames are the manifest files looked up when none is given.
var DefaultNames = []string{"gpuprep.yaml", "gpuprep.yml", "gpuprep.toml"}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	default:
		return "", false
	}
}

// Find returns the first default manifest present in dir.
func Find(dir string) (string, error) {
	for _, name := range DefaultNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", NewConfigNotFoundError(filepath.Join(dir, DefaultNames[0]))
}

// Load reads, decodes, defaults and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return nil, NewUnsupportedFormatError(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewConfigNotFoundError(path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	m, err := Parse(data, format)
	if err != nil {
		return nil, NewParseError(path, format, err)
	}
	m.source = path

	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Parse decodes a manifest without applying defaults. Unknown keys are
// rejected so that typos do not silently disable a section.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, describeTOML(err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return &m, nil
}

// describeTOML adds the position go-toml reports to decode errors.
func describeTOML(err error) error {
	var decErr *toml.DecodeError
	if errors.As(err, &decErr) {
		row, col := decErr.Position()
		return fmt.Errorf("line %d, column %d: %w", row, col, err)
	}
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		return fmt.Errorf("%s", strings.TrimSpace(strict.String()))
	}
	return err
}
