// Package random provides the random values issued during sign-in: client
// identifiers and the suffix of synthesized session markers.
package random

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

const markerSuffixLength = 9

// Source generates random values. The zero value is ready to use.
type Source struct{}

// MarkerSuffix returns the random part of a session marker token: lower case
// letters and digits.
func (Source) MarkerSuffix() string {
	return strings.ToLower(rand.Text()[:markerSuffixLength])
}

// ClientID identifies a browser across requests.
func (Source) ClientID() string {
	return uuid.NewString()
}
