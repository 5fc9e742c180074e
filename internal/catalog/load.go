package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk catalogue document. JSON documents are accepted as
// well since JSON is a subset of YAML.
type File struct {
	Types []Type `yaml:"types"`
}

// LoadFile reads a catalogue document from path.
func LoadFile(path string) ([]Type, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue file: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Load parses a catalogue document. Unknown keys are rejected so typos in
// hand-written catalogues surface early.
func Load(r io.Reader) ([]Type, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse catalogue: %w", err)
	}

	if err := validateFile(&file); err != nil {
		return nil, fmt.Errorf("invalid catalogue: %w", err)
	}
	return file.Types, nil
}

func validateFile(f *File) error {
	seen := make(map[string]bool, len(f.Types))
	for i, t := range f.Types {
		if t.ID == "" {
			return fmt.Errorf("types[%d]: id is required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("types[%d]: duplicate id %q", i, t.ID)
		}
		seen[t.ID] = true
		for j, p := range t.Properties {
			if p.Attribute == "" {
				return fmt.Errorf("types[%d].properties[%d]: attribute is required", i, j)
			}
		}
	}
	return nil
}
