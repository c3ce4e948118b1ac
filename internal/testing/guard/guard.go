// Package guard switches the application into test mode when imported, so
// tests never start request logging or other runtime side effects.
package guard

import (
	"os"
	"sync"
)

// Env names the variable read by app.InTestMode.
const Env = "INTELIGENCIA_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
