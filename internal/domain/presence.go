package domain

import "time"

// Presence is the externally observable online state of a user, derived
// from the set of live connection ids. Only the empty<->non-empty
// transition of that set is observable.
type Presence struct {
	UserID   string    `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}
