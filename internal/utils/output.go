package utils

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidateFormat rejects anything but text, json or yaml
func ValidateFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
		return nil
	}
	return WrapWithSuggestion(
		fmt.Errorf("unknown output format %q", format),
		"Use one of: text, json, yaml",
	)
}

// Write renders data in a structured format. Text output is the caller's job,
// so FormatText reports handled=false.
func Write(w io.Writer, format string, data any) (handled bool, err error) {
	switch format {
	case FormatJSON:
		return true, WriteJSON(w, data)
	case FormatYAML:
		return true, WriteYAML(w, data)
	case FormatText, "":
		return false, nil
	}
	return false, ValidateFormat(format)
}

// WriteJSON writes data as indented JSON followed by a newline
func WriteJSON(w io.Writer, data any) error {
	jsonData, err := MarshalJSON(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(jsonData))
	return err
}

// WriteYAML writes data as YAML
func WriteYAML(w io.Writer, data any) error {
	yamlData, err := MarshalYAML(data)
	if err != nil {
		return err
	}
	_, err = w.Write(yamlData)
	return err
}

// MarshalJSON marshals the provided data as indented JSON.
// Returns the JSON bytes or an error if marshaling fails.
func MarshalJSON(data any) ([]byte, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return jsonData, nil
}

// MarshalYAML marshals the provided data as YAML.
// Returns the YAML bytes or an error if marshaling fails.
func MarshalYAML(data any) ([]byte, error) {
	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return yamlData, nil
}
