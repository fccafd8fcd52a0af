// Command profilectl administers chat proxy profiles: seeding quotas,
// moving subscription tiers and storing per-user provider keys.
package main

import (
	"os"

	"github.com/multichat/chatproxy/internal/logging"
)

func main() {
	logging.SetupBaseLogger()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
