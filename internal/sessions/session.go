package sessions

import "time"

// Session is the server-side state behind the session cookie.
type Session struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	RecordNumber string    `json:"recordNumber" bson:"recordNumber"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt" bson:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
