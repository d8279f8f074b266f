package tokengate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/mkarimv/tokengate/internal/audit"
)

// UserRecord is the full account record returned by [UserProvider]. The
// SerialNumber is the revocation pivot: it is copied into every issued access
// token, and the validator rejects tokens whose embedded serial no longer
// matches the stored one. Rotating it signs the user out everywhere.
type UserRecord struct {
	ID             int64
	Username       string
	DisplayName    string
	PasswordHash   string
	IsActive       bool
	SerialNumber   string
	LastActivityAt time.Time
}

// UserProvider is the primary interface that callers must implement to
// integrate tokengate with their user database. It covers credential lookup,
// role resolution, and last-activity tracking.
type UserProvider interface {
	GetUserByUsername(ctx context.Context, username string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID int64) (UserRecord, error)
	GetRolesForUser(ctx context.Context, userID int64) ([]string, error)
	UpdateLastActivity(ctx context.Context, userID int64, at time.Time) error
}

// AntiForgeryHook lets a web frontend keep its anti-forgery cookies in sync
// with the token lifecycle: cookies are regenerated whenever a pair is issued
// and deleted on logout. Implementations must be safe for concurrent use.
type AntiForgeryHook interface {
	RegenerateCookies(userID int64, roles []string)
	DeleteCookies()
}

// TokenPair is returned by [Engine.Login] and [Engine.Refresh].
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult is returned by [Engine.Validate]. It contains the authenticated
// user's identity as recorded in the validated token claims.
type AuthResult struct {
	UserID      int64
	Username    string
	DisplayName string
	Roles       []string

	SerialNumber string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine’s audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
