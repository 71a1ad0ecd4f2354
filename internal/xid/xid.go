package xid

import "github.com/google/uuid"

// New returns a random identifier such as "act-5f0c...".
func New(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
