package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// NewBunDB creates a new Bun DB instance from an existing sql.DB connection
func NewBunDB(sqlDB *sql.DB) *bun.DB {
	return bun.NewDB(sqlDB, pgdialect.New())
}

// Unique index names, matched against pq.Error.Constraint on insert
const (
	UsersEmailKey             = "users_email_key"
	UsersExternalSubjectIDKey = "users_external_subject_id_key"
	UsersMobileKey            = "users_mobile_key"
)

// Migrate creates the users table and its unique indexes when missing
func Migrate(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	indexes := []struct {
		name   string
		column string
	}{
		{UsersEmailKey, "email"},
		{UsersExternalSubjectIDKey, "external_subject_id"},
	}

	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().
			Model((*User)(nil)).
			Index(idx.name).
			Unique().
			IfNotExists().
			Column(idx.column).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	// Rows without a mobile stay outside the unique index.
	if _, err := db.NewDropIndex().
		Model((*User)(nil)).
		Index("users_mobile_idx").
		IfExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop index users_mobile_idx: %w", err)
	}

	if _, err := db.NewCreateIndex().
		Model((*User)(nil)).
		Index(UsersMobileKey).
		Unique().
		IfNotExists().
		Column("mobile").
		Where("mobile <> ''").
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create index %s: %w", UsersMobileKey, err)
	}

	return nil
}

// User is the users table row. Properties live in a JSONB column so that an
// owner's listings are read and rewritten together.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                string     `bun:"id,pk,type:uuid"`
	ExternalSubjectID *string    `bun:"external_subject_id"`
	Name              string     `bun:"name,notnull,default:''"`
	Email             *string    `bun:"email"`
	Mobile            string     `bun:"mobile,notnull,default:''"`
	PasswordHash      *string    `bun:"password_hash"`
	Role              string     `bun:"role,notnull"`
	IsActive          bool       `bun:"is_active,notnull,default:false"`
	OTPHash           *string    `bun:"otp_hash"`
	OTPExpiresAt      *time.Time `bun:"otp_expires_at"`
	Properties        []Property `bun:"properties,type:jsonb,notnull,default:'[]'"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Property is the JSON shape of one element of users.properties
type Property struct {
	ID          string    `json:"_id"`
	Address     string    `json:"address"`
	Description string    `json:"description,omitempty"`
	Rent        float64   `json:"rent"`
	Gender      string    `json:"gender,omitempty"`
	Furnishing  string    `json:"furnishing,omitempty"`
	Restriction string    `json:"restriction,omitempty"`
	Images      []string  `json:"images"`
	Status      string    `json:"status"`
	WiFi        bool      `json:"wifi"`
	AC          bool      `json:"ac"`
	WaterSupply bool      `json:"waterSupply"`
	PowerBackup bool      `json:"powerBackup"`
	Security    bool      `json:"security"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
