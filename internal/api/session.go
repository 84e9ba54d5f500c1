package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
)

type contextKey string

const agentContextKey contextKey = "portalAgent"

const sessionIssuer = "ipap-agent-portal"

// SessionClaims is the portal session. It carries the agent and the upstream
// token the IPAP backend issued at sign-in.
type SessionClaims struct {
	Agent         domain.Agent `json:"agent"`
	UpstreamToken string       `json:"upstream_token"`
	jwt.RegisteredClaims
}

// SessionManager issues and validates HS256 portal sessions.
type SessionManager struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	now        func() time.Time
}

func NewSessionManager(secret string, ttl time.Duration, cookieName string, secure bool) *SessionManager {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	if cookieName == "" {
		cookieName = "ipap_session"
	}
	return &SessionManager{
		secret:     []byte(secret),
		ttl:        ttl,
		cookieName: cookieName,
		secure:     secure,
		now:        time.Now,
	}
}

func (m *SessionManager) CookieName() string {
	return m.cookieName
}

// Issue signs a session for agent.
func (m *SessionManager) Issue(agent domain.Agent, upstreamToken string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := SessionClaims{
		Agent:         agent,
		UpstreamToken: upstreamToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agent.ID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates a session token.
func (m *SessionManager) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Agent.ID == "" {
		return nil, errors.New("invalid session")
	}
	return claims, nil
}

// SetCookie stores the session in an http-only cookie.
func (m *SessionManager) SetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionMiddleware accepts the session from the bearer header or the cookie and
// attaches the agent and the upstream token to the request context.
func SessionMiddleware(m *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := sessionToken(r, m.cookieName)
			if !ok {
				writeErrorMessage(w, http.StatusUnauthorized, "Authorization required")
				return
			}
			claims, err := m.Parse(tokenString)
			if err != nil {
				writeErrorMessage(w, http.StatusUnauthorized, "Invalid session")
				return
			}

			ctx := context.WithValue(r.Context(), agentContextKey, claims.Agent)
			ctx = ipapclient.WithToken(ctx, claims.UpstreamToken)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request, cookieName string) (string, bool) {
	if authHeader := strings.TrimSpace(r.Header.Get("Authorization")); authHeader != "" {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// GetAgent retrieves the signed-in agent from the request context.
func GetAgent(ctx context.Context) (domain.Agent, bool) {
	agent, ok := ctx.Value(agentContextKey).(domain.Agent)
	return agent, ok
}
