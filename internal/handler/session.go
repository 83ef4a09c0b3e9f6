package handler

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/model"
)

const (
	sessionCookieName  = "interviewer_session"
	sessionHeaderName  = "X-Session-Token"
	sessionTokenIssuer = "interviewer"
)

// SessionClaims is the payload of a session token.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionIssuer signs and verifies session tokens. A token only scopes a
// caller to its own question records; it carries no identity.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionIssuer creates an issuer. An empty secret is replaced by a
// random one, which invalidates all tokens on restart.
func NewSessionIssuer(secret string, ttl time.Duration) (*SessionIssuer, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		secret = generated
	}
	return &SessionIssuer{secret: []byte(secret), ttl: ttl}, nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Issue returns a signed token for sessionID.
func (s *SessionIssuer) Issue(sessionID string) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionTokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// Parse verifies a token and returns its claims.
func (s *SessionIssuer) Parse(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionTokenIssuer),
	)
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || c.SessionID == "" {
		return nil, errors.New("invalid session token")
	}
	return c, nil
}

// sessionMiddleware resolves the caller's session from the session cookie or
// the X-Session-Token header, starting a new session when neither holds a
// valid token. The token is re-issued on every response so that the expiry
// slides with activity.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := ""
		if raw := sessionToken(r); raw != "" {
			claims, err := h.sessions.Parse(raw)
			if err != nil {
				slog.Debug("discarding session token", "error", err)
			} else {
				sessionID = claims.SessionID
			}
		}
		if sessionID == "" {
			sessionID = uuid.New().String()
			slog.Info("new session", "session", sessionID)
		}

		if err := h.service.TouchSession(r.Context(), sessionID); err != nil {
			slog.Error("failed to touch session", "session", sessionID, "error", err)
			h.writeError(w, r, http.StatusInternalServerError, "InternalError")
			return
		}

		token, err := h.sessions.Issue(sessionID)
		if err != nil {
			slog.Error("failed to sign session token", "error", err)
			h.writeError(w, r, http.StatusInternalServerError, "InternalError")
			return
		}
		cookiePath := "/"
		if h.config.BasePath != "" {
			cookiePath = h.config.BasePath + "/"
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    token,
			Path:     cookiePath,
			MaxAge:   int(h.sessions.ttl.Seconds()),
			HttpOnly: true,
			Secure:   h.config.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
		w.Header().Set(sessionHeaderName, token)

		ctx := model.ContextWithSessionID(r.Context(), sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionToken(r *http.Request) string {
	if v := r.Header.Get(sessionHeaderName); v != "" {
		return v
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}
	return ""
}
