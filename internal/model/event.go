package model

// AuthEventKind enumerates auth state change notifications.
type AuthEventKind string

const (
	AuthSignedIn       AuthEventKind = "signed_in"
	AuthSignedOut      AuthEventKind = "signed_out"
	AuthTokenRefreshed AuthEventKind = "token_refreshed"
)

// AuthEvent is one entry in the auth state change stream. Session is nil
// for AuthSignedOut.
type AuthEvent struct {
	Kind    AuthEventKind `json:"kind"`
	UserID  string        `json:"user_id"`
	Session *Session      `json:"session,omitempty"`
}

// ChangeAction enumerates row change notifications.
type ChangeAction string

const (
	ChangeInsert ChangeAction = "insert"
	ChangeUpdate ChangeAction = "update"
	ChangeDelete ChangeAction = "delete"
)

// ChangeEvent says a row matching the subscriber's filter changed. There is
// no payload guarantee beyond the identifiers; consumers re-fetch.
type ChangeEvent struct {
	Table  string       `json:"table"`
	Action ChangeAction `json:"action"`
	ID     int64        `json:"id"`
	UserID string       `json:"user_id"`
}
