package domain

import "time"

// Template is tenant-owned content with {{ variable }} placeholders.
// The dispatch core only reads templates; CRUD lives elsewhere.
type Template struct {
	ID        string
	TenantID  string
	Name      string
	Channel   Channel
	Subject   *string
	Body      string
	Variables map[string]any
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
