// Package oautherr turns an error code received on the sign-in error route
// into a user-facing explanation and drives the automatic retry of the
// recoverable ones.
package oautherr

import (
	_ "embed"
	"fmt"

	"github.com/goccy/go-yaml"
)

// DefaultCode is the catalog entry used for unknown codes.
const DefaultCode = "default"

// Codes with special retry handling.
const (
	CodeExpiredCode  = "expired_code"
	CodeInvalidScope = "invalid_scope"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Entry is the presentation of an error code.
type Entry struct {
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Severity    Severity `yaml:"severity" json:"severity"`
	Action      string   `yaml:"action" json:"action"`
	AutoRetry   bool     `yaml:"autoRetry" json:"autoRetry"`
}

// Catalog maps error codes to their entry. It always holds DefaultCode.
type Catalog map[string]Entry

//go:embed catalog.yaml
var catalogYAML []byte

var defaultCatalog = mustParseCatalog(catalogYAML)

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() Catalog {
	return defaultCatalog
}

// ParseCatalog decodes a YAML catalog and validates its entries.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	if _, ok := c[DefaultCode]; !ok {
		return nil, fmt.Errorf("catalog has no %q entry", DefaultCode)
	}

	for code, entry := range c {
		if entry.Title == "" || entry.Description == "" {
			return nil, fmt.Errorf("catalog entry %q needs a title and a description", code)
		}

		switch entry.Severity {
		case SeverityInfo, SeverityWarning, SeverityError:
		default:
			return nil, fmt.Errorf("catalog entry %q has unknown severity %q", code, entry.Severity)
		}
	}

	return c, nil
}

func mustParseCatalog(data []byte) Catalog {
	c, err := ParseCatalog(data)
	if err != nil {
		panic(err)
	}

	return c
}

// Classification is the outcome of classifying an error code.
type Classification struct {
	Entry

	Code       string `json:"code"`
	Known      bool   `json:"known"`
	NewAuthURL string `json:"newAuthUrl,omitempty"`
}

// Classify looks code up, falling back to the default entry. A non-empty
// message replaces the description and a replacement auth URL always makes
// the error eligible for automatic retry.
func (c Catalog) Classify(code, message, newAuthURL string) Classification {
	entry, known := c[code]
	if !known {
		entry = c[DefaultCode]
	}

	if message != "" {
		entry.Description = message
	}

	if newAuthURL != "" {
		entry.AutoRetry = true
	}

	return Classification{
		Entry:      entry,
		Code:       code,
		Known:      known,
		NewAuthURL: newAuthURL,
	}
}
