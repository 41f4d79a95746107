package instance

import "os"

const envInstanceID = "LIBRARY_INSTANCE_ID"

// GetID identifies this process in lock values and logs. It prefers
// LIBRARY_INSTANCE_ID, then the hostname.
func GetID() string {
	if id := os.Getenv(envInstanceID); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "library-0"
}
