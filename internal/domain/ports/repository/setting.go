package repository

import "context"

// SettingRepository stores string-keyed runtime settings.
type SettingRepository interface {
	// Get returns "" with ok=false when the key is not set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
	// SeedDefaults inserts missing keys without overwriting existing ones.
	SeedDefaults(ctx context.Context, defaults map[string]string) error
}
