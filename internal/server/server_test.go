package server_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courant-live/courant/internal/api"
	"github.com/courant-live/courant/internal/config"
	"github.com/courant-live/courant/internal/logging"
	"github.com/courant-live/courant/internal/notify"
	"github.com/courant-live/courant/internal/server"
	"github.com/courant-live/courant/internal/session"
)

func newBackend(t *testing.T) (*server.Server, *httptest.Server) {
	t.Helper()
	cfg := config.Config{
		Server: config.Server{SessionTTL: config.Duration(time.Hour)},
		Notify: config.Notify{Topic: "notifications"},
	}
	s, err := server.New(cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Auth().Seed("alice", "alice@courant.local", "wonderland", "USER"))

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func newAPIClient(t *testing.T, srv *httptest.Server) *api.Client {
	t.Helper()
	c, err := api.New(srv.URL, 2*time.Second, logging.Nop())
	require.NoError(t, err)
	return c
}

func login(t *testing.T, c *api.Client, username, password string) {
	t.Helper()
	resp, err := c.Login(context.Background(), api.Credentials{Username: username, Password: password})
	require.NoError(t, err)
	require.True(t, resp.Success)
}

func TestProtectedEndpointsRequireSession(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)

	_, err := c.Notifications(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, "Aucun utilisateur authentifié", api.Message(err))

	_, err = c.Products(context.Background())
	assert.True(t, api.IsUnauthorized(err))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)

	_, err := c.Login(context.Background(), api.Credentials{Username: "alice", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, "Identifiants invalides", api.Message(err))

	_, err = c.Login(context.Background(), api.Credentials{Username: "nobody", Password: "x"})
	assert.True(t, api.IsUnauthorized(err))
}

func TestLoginEstablishesSession(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)

	resp, err := c.Login(context.Background(), api.Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Connexion réussie", resp.Message)
	assert.Equal(t, "alice", resp.Username)
	assert.NotEmpty(t, resp.SessionID)

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "USER", me.Role)

	// Protected data is now reachable.
	_, err = c.Products(context.Background())
	assert.NoError(t, err)
}

func TestRegisterThenLogin(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)

	resp, err := c.Register(context.Background(), api.Registration{
		Username: "bob", Email: "bob@courant.local", Password: "builder",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Inscription réussie ! Vous pouvez maintenant vous connecter.", resp.Message)

	// Registration does not establish a session.
	_, err = c.Me(context.Background())
	assert.True(t, api.IsUnauthorized(err))

	login(t, c, "bob", "builder")
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)

	_, err := c.Register(context.Background(), api.Registration{Username: "alice", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, "Ce nom d'utilisateur est déjà pris", api.Message(err))

	_, err = c.Register(context.Background(), api.Registration{
		Username: "alice2", Email: "alice@courant.local", Password: "x",
	})
	require.Error(t, err)
	assert.Equal(t, "Cet email est déjà associé à un compte", api.Message(err))
}

func TestLogoutEndsSession(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)
	login(t, c, "alice", "wonderland")

	require.NoError(t, c.Logout(context.Background()))

	_, err := c.Me(context.Background())
	assert.True(t, api.IsUnauthorized(err))

	// Logging out twice is still fine.
	assert.NoError(t, c.Logout(context.Background()))
}

func TestSendStoresHistoryNewestFirst(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)
	login(t, c, "alice", "wonderland")

	first, err := c.Send(context.Background(), api.SendNotification{Message: "first"})
	require.NoError(t, err)
	second, err := c.Send(context.Background(), api.SendNotification{Message: "second"})
	require.NoError(t, err)

	assert.Equal(t, "INFO", first.Type, "type defaults to INFO")
	assert.NotEmpty(t, first.ID)

	history, err := c.Notifications(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
}

// A published notification reaches a connected, subscribed channel.
func TestSendReachesSubscribedChannel(t *testing.T) {
	s, srv := newBackend(t)
	c := newAPIClient(t, srv)
	login(t, c, "alice", "wonderland")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	policy := notify.ReconnectPolicy{InitialDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2}
	ch := notify.NewChannel(wsURL, "notifications", policy, logging.Nop())

	var mu sync.Mutex
	var got []api.Notification
	cancel := ch.Subscribe(func(n api.Notification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go ch.Run(ctx)

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	// Probe until the hub has registered the subscription.
	require.Eventually(t, func() bool {
		s.Hub().Publish("notifications", []byte(`{"id":"probe"}`))
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	sent, err := c.Send(context.Background(), api.SendNotification{Message: "ping", Type: "ALERT"})
	require.NoError(t, err)

	find := func() *api.Notification {
		mu.Lock()
		defer mu.Unlock()
		for i := range got {
			if got[i].ID == sent.ID {
				return &got[i]
			}
		}
		return nil
	}
	require.Eventually(t, func() bool { return find() != nil },
		3*time.Second, 5*time.Millisecond)

	n := find()
	assert.Equal(t, "ping", n.Message)
	assert.Equal(t, "ALERT", n.Type)
}

// Full client-side flow against a real backend: the gate denies before
// login and admits after, driven by the reactive session store.
func TestSessionGateAgainstBackend(t *testing.T) {
	_, srv := newBackend(t)
	c := newAPIClient(t, srv)

	store := session.NewStore(c, logging.Nop())
	gate := session.NewGate(store, "/auth", logging.Nop())
	flow := session.NewFlow(c, store, "/auth", logging.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go store.CheckSession(ctx)
	d := gate.Check(ctx, "/notifications")
	assert.False(t, d.Allowed)
	assert.Equal(t, "/auth", d.RedirectTo)

	require.NoError(t, flow.Login(ctx, api.Credentials{Username: "alice", Password: "wonderland"}))

	d = gate.Check(ctx, "/notifications")
	assert.True(t, d.Allowed)
	assert.Equal(t, session.Authenticated, store.Current().Status)
	assert.Equal(t, "alice", store.Current().User.Username)

	entry := flow.Logout(ctx)
	assert.Equal(t, "/auth", entry)
	d = gate.Check(ctx, "/notifications")
	assert.False(t, d.Allowed)
}
