package domain

import "time"

// Template is a named, versioned message body with {{VARNAME}} placeholders,
// scoped to one organization and channel.
type Template struct {
	ID        string
	OrgID     string
	Name      string
	Channel   Channel
	Version   int
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
