package app

import (
	"os"
	"strconv"
)

// TestModeEnv makes the entry points return before dialing Postgres, Redis
// or the trace collector.
const TestModeEnv = "GESTIONRH_TEST_MODE"

// InTestMode reports whether TestModeEnv is set to a true value.
func InTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return on
}
