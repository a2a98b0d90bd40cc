package config

import (
	"sync"
)

var (
	sessionSecretMu sync.RWMutex
	// SessionSecret signs the session tokens the development backend hands out.
	// Set SESSION_SECRET outside of local development.
	SessionSecret = []byte(GetEnvOrDefault("SESSION_SECRET", "parley-development-secret"))
)

// SetSessionSecret temporarily changes the session secret and returns a function to restore it
// This is primarily used for testing
func SetSessionSecret(secret []byte) func() {
	sessionSecretMu.Lock()
	previous := SessionSecret
	SessionSecret = secret
	sessionSecretMu.Unlock()

	return func() {
		sessionSecretMu.Lock()
		SessionSecret = previous
		sessionSecretMu.Unlock()
	}
}

// GetSessionSecret returns the current session secret in a thread-safe manner
func GetSessionSecret() []byte {
	sessionSecretMu.RLock()
	defer sessionSecretMu.RUnlock()
	return SessionSecret
}
