package httpapi

import (
	"github.com/treiswell/fintrack/internal/storage/memory"
	"github.com/treiswell/fintrack/internal/storage/postgres"
)

// Compile-time interface assertions for both stores against the API interfaces.
var (
	_ Repository = (*memory.Store)(nil)
	_ Writer     = (*memory.Store)(nil)
	_ Repository = (*postgres.Store)(nil)
	_ Writer     = (*postgres.Store)(nil)
)
