package domain

import "time"

// Well-known chat surfaces. Each keeps its own active session unless a
// session id is forced on it.
const (
	SurfaceWidget = "widget"
	SurfacePage   = "page"
)

// SurfaceKey identifies one logical chat surface for one owner.
type SurfaceKey struct {
	Surface string `json:"surface"`
	OwnerID string `json:"ownerId,omitempty"`
}

// String returns the canonical form used as the key-mapping key.
func (k SurfaceKey) String() string {
	if k.OwnerID == "" {
		return k.Surface
	}
	return k.OwnerID + ":" + k.Surface
}

// Session is a persisted, ordered conversation between a user and the assistant.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LastActivity is UpdatedAt, falling back to CreatedAt for records that
// were never touched after creation.
func (s Session) LastActivity() time.Time {
	if s.UpdatedAt.IsZero() {
		return s.CreatedAt
	}
	return s.UpdatedAt
}
