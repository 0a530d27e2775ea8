package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// SessionCookie is the name of the credential cookie.
const SessionCookie = "courant_session"

// AuthResponse is the common response shape of the auth endpoints.
type AuthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type user struct {
	Username     string
	Email        string
	Role         string
	PasswordHash []byte
}

type serverSession struct {
	Username  string
	ExpiresAt time.Time
}

// Auth owns users and server-side sessions and serves the /api/auth
// endpoints. Sessions live in memory; restarting the server logs everyone
// out.
type Auth struct {
	ttl time.Duration
	log zerolog.Logger

	mu       sync.RWMutex
	users    map[string]*user
	sessions map[string]serverSession
}

func NewAuth(sessionTTL time.Duration, log zerolog.Logger) *Auth {
	return &Auth{
		ttl:      sessionTTL,
		log:      log.With().Str("component", "auth").Logger(),
		users:    make(map[string]*user),
		sessions: make(map[string]serverSession),
	}
}

// Seed creates an account, replacing any existing one with the same
// username. Used by the daemon to provision initial users from config.
func (a *Auth) Seed(username, email, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if role == "" {
		role = "USER"
	}
	a.mu.Lock()
	a.users[username] = &user{Username: username, Email: email, Role: role, PasswordHash: hash}
	a.mu.Unlock()
	return nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// HandleLogin authenticates the credentials and establishes the cookie
// session.
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "Requête invalide")
		return
	}

	a.mu.RLock()
	u, ok := a.users[req.Username]
	a.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		a.log.Info().Str("username", req.Username).Msg("login failed")
		writeAuthError(w, http.StatusUnauthorized, "Identifiants invalides")
		return
	}

	token := uuid.NewString()
	a.mu.Lock()
	a.sessions[token] = serverSession{Username: u.Username, ExpiresAt: time.Now().Add(a.ttl)}
	a.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	a.log.Info().Str("username", u.Username).Msg("login succeeded")
	writeJSON(w, http.StatusOK, AuthResponse{
		Success:   true,
		Message:   "Connexion réussie",
		Username:  u.Username,
		Role:      u.Role,
		SessionID: token,
		Timestamp: time.Now().UnixMilli(),
	})
}

// HandleRegister creates the account. No session is established: the user
// still has to log in.
func (a *Auth) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "Requête invalide")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "Nom d'utilisateur et mot de passe requis")
		return
	}

	a.mu.Lock()
	if _, exists := a.users[req.Username]; exists {
		a.mu.Unlock()
		writeAuthError(w, http.StatusConflict, "Ce nom d'utilisateur est déjà pris")
		return
	}
	for _, u := range a.users {
		if req.Email != "" && u.Email == req.Email {
			a.mu.Unlock()
			writeAuthError(w, http.StatusConflict, "Cet email est déjà associé à un compte")
			return
		}
	}
	a.mu.Unlock()

	if err := a.Seed(req.Username, req.Email, req.Password, req.Role); err != nil {
		writeAuthError(w, http.StatusInternalServerError, "Erreur lors de l'enregistrement")
		return
	}

	a.log.Info().Str("username", req.Username).Msg("user registered")
	writeJSON(w, http.StatusCreated, AuthResponse{
		Success:   true,
		Message:   "Inscription réussie ! Vous pouvez maintenant vous connecter.",
		Username:  req.Username,
		Timestamp: time.Now().UnixMilli(),
	})
}

// HandleLogout destroys the server-side session. Always succeeds from the
// client's point of view, even without a session.
func (a *Auth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		a.mu.Lock()
		delete(a.sessions, cookie.Value)
		a.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	writeJSON(w, http.StatusOK, AuthResponse{
		Success:   true,
		Message:   "Déconnexion réussie",
		Timestamp: time.Now().UnixMilli(),
	})
}

// HandleMe reports who the session cookie belongs to.
func (a *Auth) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(r)
	if !ok {
		writeAuthError(w, http.StatusUnauthorized, "Aucun utilisateur authentifié")
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{
		Success:   true,
		Message:   "Utilisateur authentifié",
		Username:  u.Username,
		Role:      u.Role,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (a *Auth) currentUser(r *http.Request) (*user, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, false
	}

	a.mu.RLock()
	sess, ok := a.sessions[cookie.Value]
	a.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(sess.ExpiresAt) {
		a.mu.Lock()
		delete(a.sessions, cookie.Value)
		a.mu.Unlock()
		return nil, false
	}

	a.mu.RLock()
	u, ok := a.users[sess.Username]
	a.mu.RUnlock()
	return u, ok
}

// Require wraps a handler with the session check.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.currentUser(r); !ok {
			writeAuthError(w, http.StatusUnauthorized, "Aucun utilisateur authentifié")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, AuthResponse{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}
