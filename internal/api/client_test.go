package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courant-live/courant/internal/logging"
)

func newClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(srv.URL, 2*time.Second, logging.Nop())
	require.NoError(t, err)
	return c
}

func TestServerErrorCarriesStatusAndMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "Identifiants invalides",
		})
	}))
	defer srv.Close()

	c := newClient(t, srv)
	_, err := c.Login(context.Background(), Credentials{Username: "x", Password: "y"})

	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.False(t, IsUnreachable(err))
	assert.Equal(t, "Identifiants invalides", Message(err))
}

func TestNetworkErrorWhenServerUnreachable(t *testing.T) {
	c, err := New("http://127.0.0.1:1", 200*time.Millisecond, logging.Nop())
	require.NoError(t, err)

	_, err = c.Me(context.Background())

	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	assert.False(t, IsUnauthorized(err))
	assert.Equal(t, "Impossible de contacter le serveur. Vérifiez votre connexion.", Message(err))
}

func TestNonJSONErrorBodyUsedVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "plain text failure", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(t, srv)
	_, err := c.Notifications(context.Background())

	require.Error(t, err)
	assert.Equal(t, "plain text failure", Message(err))
}

// The jar keeps the session cookie set by login and replays it on
// subsequent calls.
func TestSessionCookiePersistsAcrossCalls(t *testing.T) {
	var seenOnMe string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "courant_session", Value: "tok-123", Path: "/"})
			json.NewEncoder(w).Encode(AuthResponse{Success: true})
		case "/api/auth/me":
			if ck, err := r.Cookie("courant_session"); err == nil {
				seenOnMe = ck.Value
			}
			json.NewEncoder(w).Encode(AuthResponse{Success: true, Username: "alice"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newClient(t, srv)
	_, err := c.Login(context.Background(), Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	_, err = c.Me(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-123", seenOnMe)
	assert.Equal(t, "tok-123", c.SessionToken())
}

func TestSetSessionTokenRestoresSavedSession(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("courant_session"); err == nil {
			seen = ck.Value
		}
		json.NewEncoder(w).Encode(AuthResponse{Success: true})
	}))
	defer srv.Close()

	c := newClient(t, srv)
	c.SetSessionToken("saved-tok")

	_, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "saved-tok", seen)
}

func TestSessionTokenEmptyWithoutSession(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newClient(t, srv)
	assert.Empty(t, c.SessionToken())
}

func TestDoSendsJSONBodyAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/notifications/send", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in SendNotification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		json.NewEncoder(w).Encode(Notification{ID: "n1", Message: in.Message, Type: in.Type})
	}))
	defer srv.Close()

	c := newClient(t, srv)
	out, err := c.Send(context.Background(), SendNotification{Message: "hello", Type: "INFO"})

	require.NoError(t, err)
	assert.Equal(t, "n1", out.ID)
	assert.Equal(t, "hello", out.Message)
}
