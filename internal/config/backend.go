package config

// ValidStoreBackends contains the supported job table persistence backends.
var ValidStoreBackends = []string{
	"json",   // flat keyed record set rewritten on every mutation (default)
	"sqlite", // modernc.org/sqlite database, imports an existing jobs.json once
}

// DefaultStoreBackend is the default persistence backend.
const DefaultStoreBackend = "json"

// IsValidStoreBackend returns true if the backend name is valid.
func IsValidStoreBackend(backend string) bool {
	for _, valid := range ValidStoreBackends {
		if backend == valid {
			return true
		}
	}
	return false
}

// ValidateStoreBackend returns the backend if valid, or the default if invalid.
func ValidateStoreBackend(backend string) string {
	if IsValidStoreBackend(backend) {
		return backend
	}
	return DefaultStoreBackend
}
