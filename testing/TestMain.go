// Package testing puts test binaries that import it in test mode and points
// them at an unreachable GestionRH API.
package testing

import (
	"os"
	stdtesting "testing"
)

func init() {
	_ = os.Setenv("GESTIONRH_TEST_MODE", "1")
	if os.Getenv("HR_API_URL") == "" {
		_ = os.Setenv("HR_API_URL", "http://127.0.0.1:0/api")
	}
	_ = os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

// TestMain runs m with the environment prepared by init.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
