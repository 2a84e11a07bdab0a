package proxy

import (
	"strings"

	"github.com/google/uuid"
)

const sessionIDLength = 12

// NewStickySession builds a Config whose exit IP stays stable for the given
// number of minutes. A session id is generated when the caller did not supply
// one.
func NewStickySession(c Config, durationMinutes int) (*Config, error) {
	if c.SessionID == "" {
		c.SessionID = newSessionID()
	}
	c.SessionDuration = durationMinutes
	return NewConfig(c)
}

func newSessionID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:sessionIDLength]
}
