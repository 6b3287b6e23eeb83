package instance

import (
	"os"

	"github.com/angelmondragon/tradepost-backend/pkg/env"
)

// ID names the running process for logs and cron lock ownership. Platform
// dyno names win over WORKER_ID, then the hostname.
func ID() string {
	if id := env.First("DYNO", "WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
