package app

import (
	"os"
	"strings"
	"sync"
)

const testModeEnv = "COMISIONES_TEST_MODE"

var (
	testModeMu     sync.RWMutex
	testModeCached *bool
)

// InTestMode reports whether the process runs under the test guard. Binaries
// skip connecting to PostgreSQL and Redis in that mode.
func InTestMode() bool {
	testModeMu.RLock()
	cached := testModeCached
	testModeMu.RUnlock()
	if cached != nil {
		return *cached
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads the environment flag and returns it.
func RefreshTestMode() bool {
	on := truthy(os.Getenv(testModeEnv))
	testModeMu.Lock()
	testModeCached = &on
	testModeMu.Unlock()
	return on
}

// SchedulerEnabled reports whether the worker should register the
// reconciliation cron entry.
func (c *Config) SchedulerEnabled() bool {
	return c != nil && strings.TrimSpace(c.ReconcileCron) != "" && !InTestMode()
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
