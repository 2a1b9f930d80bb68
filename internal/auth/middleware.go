package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sqlc-dev/pqtype"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/pkg/httpapi"
)

const (
	HeaderUserID = "X-User-Id"

	googleDevicePrefix = "google:"
	maxDeviceID        = 64
)

// UserResolver maps a device id to its user row.
type UserResolver interface {
	GetOrCreate(ctx context.Context, deviceID string, settings pqtype.NullRawMessage) (*telemetry.User, error)
}

type Middleware struct {
	requireAuth bool
	verifier    Verifier
	users       UserResolver
	logger      *zap.Logger
}

// NewMiddleware builds the authenticator. verifier may be nil when
// requireAuth is false.
func NewMiddleware(requireAuth bool, verifier Verifier, users UserResolver, logger *zap.Logger) *Middleware {
	return &Middleware{
		requireAuth: requireAuth,
		verifier:    verifier,
		users:       users,
		logger:      logger,
	}
}

// Handler resolves the caller and stores its Identity in the request
// context. Unauthenticated requests get a 401.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var (
			deviceID string
			settings pqtype.NullRawMessage
		)

		if m.requireAuth {
			token, ok := bearerToken(r)
			if !ok {
				httpapi.WriteDetail(rw, http.StatusUnauthorized, "Authorization header required")
				return
			}
			claims, err := m.verifier.Verify(r.Context(), token)
			if err != nil {
				m.logger.Info("token rejected", zap.Error(err))
				detail := "Invalid token"
				if errors.Is(err, ErrInvalidIssuer) {
					detail = "Invalid token issuer"
				}
				httpapi.WriteDetail(rw, http.StatusUnauthorized, detail)
				return
			}
			deviceID = googleDevicePrefix + claims.Subject
			settings = profileSettings(claims)
		} else {
			deviceID = r.Header.Get(HeaderUserID)
			if deviceID == "" {
				httpapi.WriteDetail(rw, http.StatusUnauthorized, "X-User-Id header required (dev mode)")
				return
			}
			if len(deviceID) > maxDeviceID {
				httpapi.WriteDetail(rw, http.StatusUnauthorized, "Invalid X-User-Id header")
				return
			}
		}

		u, err := m.users.GetOrCreate(r.Context(), deviceID, settings)
		if err != nil {
			m.logger.Error("failed to resolve user", zap.String("device_id", deviceID), zap.Error(err))
			httpapi.WriteDetail(rw, http.StatusInternalServerError, "Failed to resolve user")
			return
		}

		ctx := WithIdentity(r.Context(), Identity{UserID: u.ID, DeviceID: u.DeviceID})
		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// profileSettings seeds a new user's settings from the token profile.
func profileSettings(c *Claims) pqtype.NullRawMessage {
	raw, err := json.Marshal(map[string]string{
		"email":   c.Email,
		"name":    c.Name,
		"picture": c.Picture,
	})
	if err != nil {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}
