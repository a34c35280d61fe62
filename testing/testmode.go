// Package testing switches binaries into test mode when imported by a test,
// so entrypoints exercised from tests never dial PostgreSQL or Redis.
package testing

import (
	"os"
	"sync"
)

const testModeEnv = "COMISIONES_TEST_MODE"

var once sync.Once

// Enable sets the test mode flag unless the environment already decided.
func Enable() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}

func init() {
	Enable()
}
