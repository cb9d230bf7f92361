// Package ids provides the ports.IDProvider used outside of tests.
package ids

import "github.com/google/uuid"

// UUIDProvider generates random UUIDv4 trade identifiers.
type UUIDProvider struct{}

// NewUUIDProvider creates a new UUID-based id provider.
func NewUUIDProvider() *UUIDProvider {
	return &UUIDProvider{}
}

// NewID returns a fresh UUIDv4 string.
func (p *UUIDProvider) NewID() string {
	return uuid.NewString()
}
