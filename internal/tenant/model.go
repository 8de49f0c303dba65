package tenant

import (
	"time"

	"github.com/uptrace/bun"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusTrial     Status = "trial"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusTrial, StatusSuspended, StatusPending:
		return true
	}
	return false
}

// Tenant is one school. DatabaseName locates its dedicated store.
type Tenant struct {
	bun.BaseModel `bun:"table:tenants,alias:t"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	Name         string    `bun:"name,notnull" json:"name"`
	Slug         string    `bun:"slug,unique,notnull" json:"slug"`
	Status       Status    `bun:"status,notnull" json:"status"`
	DatabaseName string    `bun:"database_name" json:"databaseName"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// PlatformModels lists the tables of the platform-wide store.
func PlatformModels() []interface{} {
	return []interface{}{(*Tenant)(nil)}
}
