// Package identity talks to the platform's identity service. Users are
// owned there; the chat subsystem only holds references by id.
package identity

import "context"

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Directory resolves user ids. Lookup returns only the users that exist;
// callers compare lengths to detect unknown ids.
type Directory interface {
	Lookup(ctx context.Context, ids []string) ([]User, error)
}
