package engine

import "context"

// StorageProvider is a key/value store. Items written with persistent=false
// live only as long as the provider instance.
// Implementations must embed BaseStorageProvider.
type StorageProvider interface {
	// GetItem returns the value stored under key and whether it exists.
	GetItem(ctx context.Context, key string) (string, bool, error)

	// SetItem stores value under key.
	SetItem(ctx context.Context, key, value string, persistent bool) error

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// IsItemPersistent reports whether key was stored persistently.
	IsItemPersistent(ctx context.Context, key string) (bool, error)

	mustEmbedBaseStorageProvider()
}

// BaseStorageProvider implements every StorageProvider operation by failing
// with ErrNotImplemented.
type BaseStorageProvider struct{}

func (BaseStorageProvider) GetItem(context.Context, string) (string, bool, error) {
	return "", false, NotImplemented("getItem")
}

func (BaseStorageProvider) SetItem(context.Context, string, string, bool) error {
	return NotImplemented("setItem")
}

func (BaseStorageProvider) RemoveItem(context.Context, string) error {
	return NotImplemented("removeItem")
}

func (BaseStorageProvider) IsItemPersistent(context.Context, string) (bool, error) {
	return false, NotImplemented("isItemPersistent")
}

func (BaseStorageProvider) mustEmbedBaseStorageProvider() {}
