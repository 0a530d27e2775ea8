package session

import (
	"context"

	"github.com/rs/zerolog"
)

// Decision is the outcome of one navigation attempt.
type Decision struct {
	Allowed    bool
	RedirectTo string // unauthenticated entry point when denied
}

// Gate decides whether a navigation attempt may enter a protected
// destination. It consults the latest session value once per attempt; a
// session expiring mid-visit is only caught on the next attempt.
type Gate struct {
	store *Store
	entry string
	log   zerolog.Logger
}

// NewGate creates a gate redirecting denied traffic to entryPath.
func NewGate(store *Store, entryPath string, log zerolog.Logger) *Gate {
	return &Gate{
		store: store,
		entry: entryPath,
		log:   log.With().Str("component", "gate").Logger(),
	}
}

// Check waits for the store's first value if none has been produced yet,
// then allows iff the session is Authenticated. A context that expires
// before the store settles counts as a denial: the gate never decides on
// an unset value, and it never lets unconfirmed traffic through.
func (g *Gate) Check(ctx context.Context, destination string) Decision {
	select {
	case <-g.store.Ready():
	case <-ctx.Done():
		g.log.Warn().Str("destination", destination).Msg("session state not settled before deadline, denying")
		return Decision{RedirectTo: g.entry}
	}

	state := g.store.Current()
	if state.Status == Authenticated {
		g.log.Debug().Str("destination", destination).Str("user", state.User.Username).Msg("navigation allowed")
		return Decision{Allowed: true}
	}
	g.log.Debug().Str("destination", destination).Msg("navigation denied")
	return Decision{RedirectTo: g.entry}
}
