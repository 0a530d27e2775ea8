package session

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/courant-live/courant/internal/api"
)

// Flow runs the login/register/logout operations. It is the Store's single
// writer: every state change in the client goes through here or through
// Store.CheckSession.
type Flow struct {
	api   *api.Client
	store *Store
	entry string
	log   zerolog.Logger
}

// NewFlow creates the auth flow around the given store.
func NewFlow(client *api.Client, store *Store, entryPath string, log zerolog.Logger) *Flow {
	return &Flow{
		api:   client,
		store: store,
		entry: entryPath,
		log:   log.With().Str("component", "auth").Logger(),
	}
}

// Login posts the credentials and, on success, round-trips through the
// server's /me endpoint to confirm the session actually took effect; it
// returns only after that check settles, so callers may navigate on a nil
// error. Failures come back as displayable errors (api.Message), never as
// state left behind in the store.
func (f *Flow) Login(ctx context.Context, creds api.Credentials) error {
	if _, err := f.api.Login(ctx, creds); err != nil {
		f.log.Info().Err(err).Str("username", creds.Username).Msg("login rejected")
		return err
	}
	f.store.CheckSession(ctx)
	return nil
}

// Register creates the account. It never touches session state: the user
// still has to log in separately.
func (f *Flow) Register(ctx context.Context, reg api.Registration) (*api.AuthResponse, error) {
	resp, err := f.api.Register(ctx, reg)
	if err != nil {
		f.log.Info().Err(err).Str("username", reg.Username).Msg("registration rejected")
		return nil, err
	}
	return resp, nil
}

// Logout posts the logout request and forces the session to Anonymous no
// matter how the server answered. The returned path is the unauthenticated
// entry point the caller must navigate to.
func (f *Flow) Logout(ctx context.Context) string {
	if err := f.api.Logout(ctx); err != nil {
		f.log.Warn().Err(err).Msg("logout request failed, clearing session anyway")
	}
	f.store.setAnonymous()
	return f.entry
}
