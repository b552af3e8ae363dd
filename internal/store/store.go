// Package store persists named JSON blobs: strategy settings, strategy
// state snapshots and the portfolio ledger.
package store

// Store is a keyed JSON-blob store. Keys are flat names such as
// "cta_strategy_setting" or "portfolio_ledger".
type Store interface {
	// LoadJSON unmarshals the blob stored under key into target.
	// Returns false with a nil error when the key does not exist.
	LoadJSON(key string, target any) (bool, error)

	// LoadRaw returns the stored blob without decoding it.
	LoadRaw(key string) ([]byte, bool, error)

	// SaveJSON marshals v and stores it under key, replacing any
	// previous blob.
	SaveJSON(key string, v any) error

	// Delete removes the blob under key. Missing keys are not an error.
	Delete(key string) error

	Close() error
}
