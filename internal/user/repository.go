package user

import (
	"context"
)

// Repository persists users together with their embedded properties.
// Property mutations are atomic per owner.
type Repository interface {
	// Create inserts u and returns the stored copy with ID and timestamps set
	Create(ctx context.Context, u *User) (*User, error)
	FindBy(ctx context.Context, s Subject) (*User, error)
	// List returns every user in store order
	List(ctx context.Context) ([]*User, error)
	// Update replaces the mutable scalar fields of the user with u.ID.
	// Role, uid and properties are not touched.
	Update(ctx context.Context, u *User) (*User, error)

	AddProperty(ctx context.Context, owner Subject, p Property) (*Property, error)
	UpdateProperty(ctx context.Context, owner Subject, propertyID string, patch PropertyPatch) (*Property, error)
	DeleteProperty(ctx context.Context, owner Subject, propertyID string) error

	Close() error
}
