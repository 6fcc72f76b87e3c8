// Package commands holds the rosterctl subcommands.
package commands

import (
	"context"
	"errors"

	"github.com/warp/crew-roster/app"
	"github.com/warp/crew-roster/config"
	"github.com/warp/crew-roster/generic"
)

// AppContext is filled in by the root command before any subcommand runs.
type AppContext struct {
	Ctx context.Context
	App *app.App
	// Today is the date commands treat as "now".
	Today func() generic.TimePoint
}

func (a *AppContext) today() generic.TimePoint {
	if a.Today != nil {
		return a.Today()
	}
	return generic.Today()
}

// dateArg parses a YYYY-MM-DD flag value, falling back to today.
func (a *AppContext) dateArg(s string) (generic.TimePoint, error) {
	if s == "" {
		return a.today(), nil
	}
	return generic.ParseDate(s)
}

// RequirePersistentStore rejects the memory driver: every rosterctl run is
// a fresh process, so status changes and fired reminders would vanish and
// scans would never see a request.
func RequirePersistentStore(cfg *config.Config) error {
	if cfg.Database.Driver == "memory" {
		return errors.New("rosterctl needs a persistent database: set database.driver to sqlite or postgres " +
			"(or CREW_ROSTER_DB_DRIVER and CREW_ROSTER_DB_DSN)")
	}
	return nil
}
