package instance

import (
	"os"
	"testing"
)

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv(envInstanceID, "scanner-7")
	if got := GetID(); got != "scanner-7" {
		t.Fatalf("expected scanner-7, got %q", got)
	}
}

func TestGetIDFallsBackToHostname(t *testing.T) {
	t.Setenv(envInstanceID, "")
	host, err := os.Hostname()
	if err != nil || host == "" {
		t.Skip("hostname unavailable")
	}
	if got := GetID(); got != host {
		t.Fatalf("expected hostname %q, got %q", host, got)
	}
}
