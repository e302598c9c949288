// Package parse reads item documents for the apply and set commands.
package parse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fluxr/fluxr/internal/domain"
)

// Document represents parsed item data with optional fields
type Document struct {
	Name        *string `json:"name,omitempty" yaml:"name,omitempty"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
	Priority    *string `json:"priority,omitempty" yaml:"priority,omitempty"`
	Status      *string `json:"status,omitempty" yaml:"status,omitempty"`
	Position    *int    `json:"position,omitempty" yaml:"position,omitempty"`
	IfMatch     int64   `json:"if_match,omitempty" yaml:"if_match,omitempty"`
}

// Empty reports whether the document sets no item fields.
func (d *Document) Empty() bool {
	return d.Name == nil && d.Description == nil && d.Priority == nil && d.Status == nil && d.Position == nil
}

// Fields validates the document and converts it into shared item fields
// plus the requested status.
func (d *Document) Fields() (domain.ItemFields, *domain.Status, error) {
	var f domain.ItemFields
	if d.Name != nil {
		if err := domain.ValidateName(*d.Name); err != nil {
			return f, nil, err
		}
		name := strings.TrimSpace(*d.Name)
		f.Name = &name
	}
	f.Description = d.Description
	if d.Priority != nil {
		if err := domain.ValidatePriority(*d.Priority); err != nil {
			return f, nil, err
		}
		p := domain.Priority(*d.Priority)
		f.Priority = &p
	}
	if d.Position != nil {
		if err := domain.ValidatePosition(*d.Position); err != nil {
			return f, nil, err
		}
		f.Position = d.Position
	}
	var status *domain.Status
	if d.Status != nil {
		if err := domain.ValidateStatus(*d.Status); err != nil {
			return f, nil, err
		}
		s := domain.Status(*d.Status)
		status = &s
	}
	return f, status, nil
}

// Format represents supported input formats
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "md"
)

// DetectFormat attempts to determine the format of the input data
// Returns an error if the format cannot be reliably determined
func DetectFormat(data []byte) (Format, error) {
	text := string(data)
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(text, "---\n") {
		return FormatMarkdown, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var js json.RawMessage
		if err := json.Unmarshal(data, &js); err == nil {
			return FormatJSON, nil
		}
		return "", fmt.Errorf("input appears to be JSON but is invalid")
	}

	// Plain text is valid YAML too; only a mapping counts.
	var shape interface{}
	if err := yaml.Unmarshal(data, &shape); err == nil {
		if _, ok := shape.(map[string]interface{}); ok {
			return FormatYAML, nil
		}
	}

	return FormatMarkdown, nil
}

// ParseJSON parses JSON-formatted item data
func ParseJSON(data []byte) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &doc, nil
}

// ParseYAML parses YAML-formatted item data
func ParseYAML(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return &doc, nil
}

// ParseMarkdown parses markdown with optional YAML front matter.
// Without front matter the whole content is the description.
func ParseMarkdown(data []byte) (*Document, error) {
	text := string(data)
	var doc Document

	if !strings.HasPrefix(text, "---\n") {
		doc.Description = &text
		return &doc, nil
	}

	parts := strings.SplitN(text[4:], "\n---\n", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid markdown front matter format")
	}

	if err := yaml.Unmarshal([]byte(parts[0]), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse front matter: %w", err)
	}

	if description := strings.TrimSpace(parts[1]); description != "" {
		doc.Description = &description
	}
	return &doc, nil
}

// Parse parses item data in the given format.
// An empty format auto-detects.
func Parse(data []byte, format string) (*Document, error) {
	detected := Format(format)
	if format == "" {
		var err error
		if detected, err = DetectFormat(data); err != nil {
			return nil, err
		}
	}

	switch detected {
	case FormatJSON:
		return ParseJSON(data)
	case FormatYAML, "yml":
		return ParseYAML(data)
	case FormatMarkdown, "markdown":
		return ParseMarkdown(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// ParseAssignments builds a document from key=value pairs.
func ParseAssignments(pairs []string) (*Document, error) {
	var doc Document
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		v := value
		switch strings.TrimSpace(key) {
		case "name":
			doc.Name = &v
		case "description":
			doc.Description = &v
		case "priority":
			doc.Priority = &v
		case "status":
			doc.Status = &v
		case "position":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("position must be an integer: %q", v)
			}
			doc.Position = &n
		default:
			return nil, fmt.Errorf("unknown field %q (want name, description, priority, status or position)", key)
		}
	}
	return &doc, nil
}
