// Package domain holds the typed records shared by every pipeline stage.
package domain

import "time"

// DefaultTokenSkew is the safety margin applied to expiry checks so a token
// never expires mid-request.
const DefaultTokenSkew = 5 * time.Minute

// Credential is the persisted OAuth2 token record for one athlete session.
// The token store owns these records exclusively; the refresher replaces the
// whole record when it rotates tokens.
type Credential struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    int64    `json:"expires_at"`
	AthleteID    int64    `json:"athlete_id,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	IssuedAt     int64    `json:"issued_at,omitempty"`
}

// Stale reports whether the access token is within skew of its expiry.
// ExpiresAt is authoritative; a record with no expiry is always stale.
func (c Credential) Stale(now time.Time, skew time.Duration) bool {
	return now.Add(skew).Unix() >= c.ExpiresAt
}
