package user

import (
	"slices"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleOwner
}

type PropertyStatus string

const (
	StatusOpen   PropertyStatus = "Open"
	StatusClosed PropertyStatus = "Closed"
)

func (s PropertyStatus) Valid() bool {
	return s == StatusOpen || s == StatusClosed
}

// Property is a rental listing embedded in its owner's document
type Property struct {
	ID          string         `json:"_id"`
	Address     string         `json:"address"`
	Description string         `json:"description"`
	Rent        float64        `json:"rent"`
	Gender      string         `json:"gender"`
	Furnishing  string         `json:"furnishing"`
	Restriction string         `json:"restriction"`
	Images      []string       `json:"images"`
	Status      PropertyStatus `json:"status"`
	WiFi        bool           `json:"wifi"`
	AC          bool           `json:"ac"`
	WaterSupply bool           `json:"waterSupply"`
	PowerBackup bool           `json:"powerBackup"`
	Security    bool           `json:"security"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type User struct {
	ID                string     `json:"_id"`
	ExternalSubjectID string     `json:"uid,omitempty"`
	Name              string     `json:"name,omitempty"`
	Email             string     `json:"email,omitempty"`
	Mobile            string     `json:"mobile,omitempty"`
	PasswordHash      string     `json:"-"` // Never expose password hash in JSON
	Role              Role       `json:"role"`
	IsActive          bool       `json:"isActive"`
	OTPHash           string     `json:"-"`
	OTPExpiresAt      *time.Time `json:"-"`
	Properties        []Property `json:"properties"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// PropertyPatch holds the fields an owner may change on an existing property.
// Nil fields are left untouched.
type PropertyPatch struct {
	Rent   *float64
	Status *PropertyStatus
}

// Apply writes the supplied fields onto p
func (pp PropertyPatch) Apply(p *Property, now time.Time) {
	if pp.Rent != nil {
		p.Rent = *pp.Rent
	}
	if pp.Status != nil {
		p.Status = *pp.Status
	}
	p.UpdatedAt = now
}

// SubjectKind names the field a user is looked up by
type SubjectKind string

const (
	ByID       SubjectKind = "id"
	ByExternal SubjectKind = "external"
	ByEmail    SubjectKind = "email"
	ByMobile   SubjectKind = "mobile"
)

// Subject identifies one user through one of its unique fields
type Subject struct {
	Kind  SubjectKind
	Value string
}

func (p Property) clone() Property {
	p.Images = slices.Clone(p.Images)
	return p
}

func (u *User) clone() *User {
	c := *u
	if u.OTPExpiresAt != nil {
		t := *u.OTPExpiresAt
		c.OTPExpiresAt = &t
	}
	c.Properties = make([]Property, len(u.Properties))
	for i, p := range u.Properties {
		c.Properties[i] = p.clone()
	}
	return &c
}

// validateNew enforces the invariants every store checks before inserting
func validateNew(u *User) error {
	if !u.Role.Valid() {
		return ErrInvalidRole
	}
	hasSubject := u.ExternalSubjectID != ""
	hasPassword := u.PasswordHash != ""
	if hasSubject == hasPassword {
		return ErrAuthMethodConflict
	}
	return nil
}

func newProperty(p Property, id string, now time.Time) Property {
	p = p.clone()
	p.ID = id
	if p.Status == "" {
		p.Status = StatusOpen
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return p
}
