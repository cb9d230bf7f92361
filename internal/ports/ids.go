package ports

// IDProvider supplies unique identifiers for new trade records.
// Injected rather than generated inside the engines so the accounting
// core stays deterministic under test.
type IDProvider interface {
	NewID() string
}
