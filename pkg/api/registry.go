package api

import (
	"context"

	"github.com/rhuss/ribamar/pkg/dispatch"
)

// Root answers the liveness text on the root resource.
type Root struct{}

// Get answers "It works!".
func (Root) Get(context.Context, *dispatch.Deps, *dispatch.Envelope) (any, error) {
	return "It works!", nil
}

// Entities returns the capability table served by ribamar.
func Entities() []dispatch.Entity {
	resets := Resets{}
	return []dispatch.Entity{
		dispatch.NewEntity("", Root{}),
		dispatch.NewEntity("account", Accounts{}),
		dispatch.NewEntity("credential", Credentials{}),
		dispatch.NewEntity("authentication", Authentication{}),
		dispatch.NewEntity("notification", Notifications{}),
		dispatch.NewEntity("reset", resets, dispatch.WithVerb("expire", resets.Expire)),
		dispatch.NewEntity("search", Search{}),
	}
}
