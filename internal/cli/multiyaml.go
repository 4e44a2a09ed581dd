package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CollectionDefinition is one document of a collection file.
type CollectionDefinition struct {
	Name                 string               `yaml:"name" json:"name"`
	Type                 string               `yaml:"type,omitempty" json:"type,omitempty"`
	LimitingCollection   string               `yaml:"limitingCollection,omitempty" json:"limitingCollection,omitempty"`
	LimitingCollectionID string               `yaml:"limitingCollectionId,omitempty" json:"limitingCollectionId,omitempty"`
	RefreshType          string               `yaml:"refreshType,omitempty" json:"refreshType,omitempty"`
	RefreshDays          int                  `yaml:"refreshDays,omitempty" json:"refreshDays,omitempty"`
	Comment              string               `yaml:"comment,omitempty" json:"comment,omitempty"`
	Rules                []RuleDefinition     `yaml:"rules,omitempty" json:"rules,omitempty"`
	Variables            []VariableDefinition `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// RuleDefinition is a membership rule inside a CollectionDefinition.
type RuleDefinition struct {
	Type         string `yaml:"type" json:"type"`
	Name         string `yaml:"name,omitempty" json:"name,omitempty"`
	Device       string `yaml:"device,omitempty" json:"device,omitempty"`
	DeviceID     string `yaml:"deviceId,omitempty" json:"deviceId,omitempty"`
	Query        string `yaml:"query,omitempty" json:"query,omitempty"`
	Collection   string `yaml:"collection,omitempty" json:"collection,omitempty"`
	CollectionID string `yaml:"collectionId,omitempty" json:"collectionId,omitempty"`
}

// VariableDefinition is a collection variable inside a CollectionDefinition.
type VariableDefinition struct {
	Name   string `yaml:"name" json:"name"`
	Value  string `yaml:"value" json:"value"`
	Masked bool   `yaml:"masked,omitempty" json:"masked,omitempty"`
}

// ParseCollectionFile parses a file holding one or more collection
// definitions separated by ---. Environment variables in the file are
// expanded first.
func ParseCollectionFile(filename string) ([]CollectionDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	data = replaceTabsWithSpaces(data)
	data = []byte(os.ExpandEnv(string(data)))

	return ParseCollectionDefinitions(data)
}

// ParseCollectionDefinitions parses byte data containing multiple YAML
// documents. Empty documents are skipped.
func ParseCollectionDefinitions(data []byte) ([]CollectionDefinition, error) {
	// If data is empty or contains only whitespace or only --- separators, return empty slice
	content := strings.TrimSpace(string(data))
	if len(content) == 0 || strings.Trim(content, "- \n\t") == "" {
		return []CollectionDefinition{}, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var result []CollectionDefinition

	for i := 1; ; i++ {
		var node yaml.Node
		if err := decoder.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode YAML: %w", err)
		}
		// Skip empty documents (common with trailing ---)
		if len(node.Content) == 0 || (node.Content[0].Kind == yaml.MappingNode && len(node.Content[0].Content) == 0) {
			continue
		}
		var def CollectionDefinition
		if err := node.Decode(&def); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if def.Name == "" {
			return nil, fmt.Errorf("document %d: name is required", i)
		}
		result = append(result, def)
	}

	return result, nil
}

// replaceTabsWithSpaces replaces tabs, which YAML does not allow for
// indentation, with four spaces.
func replaceTabsWithSpaces(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\t"), []byte("    "))
}
