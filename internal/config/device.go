package config

import "github.com/google/uuid"

// generateDeviceID produces a default discovery device ID when the host
// config leaves one unset.
func generateDeviceID() string {
	return uuid.NewString()
}
