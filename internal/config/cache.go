package config

import "time"

// CacheConfig defines how the user/token cache is used. When Enabled is false
// (or Redis is unreachable at startup) every lookup goes to the store.
// UserTTL bounds how long a cached user copy may be served. Token entries
// are never configured here: their TTL is derived from the token expiry.
type CacheConfig struct {
	Enabled bool          `env:"CACHE_ENABLED, default=true"`
	UserTTL time.Duration `env:"CACHE_USER_TTL, default=1h"`
	// Prefix namespaces every key, e.g. "auth" yields "auth:user:<id>".
	Prefix string `env:"CACHE_PREFIX"`
}
