package config

import "fmt"

const ModuleName = "wallet-broker"

// Set at link time via -ldflags "-X github/chapool/wallet-broker/internal/config.Commit=...".
var (
	Commit    = "< 40 chars git commit hash via ldflags >"
	BuildDate = "< YYYY-MM-DDTHH:MM:SS+ZZ:00 via ldflags >"
)

func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", ModuleName, Commit, BuildDate)
}
