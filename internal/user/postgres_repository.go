package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/roomkartz/roomkartz-api/internal/database"
)

// PostgresRepository stores users in Postgres through bun
type PostgresRepository struct {
	db *bun.DB
}

func NewPostgresRepository(db *bun.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user into the database
func (r *PostgresRepository) Create(ctx context.Context, u *User) (*User, error) {
	if err := validateNew(u); err != nil {
		return nil, err
	}

	dbUser := mapModelToDBUser(u)
	dbUser.ID = uuid.NewString()
	dbUser.Properties = []database.Property{}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if dupErr := duplicateKeyError(err); dupErr != nil {
			return nil, dupErr
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// FindBy retrieves a user by one of its unique fields
func (r *PostgresRepository) FindBy(ctx context.Context, s Subject) (*User, error) {
	dbUser := new(database.User)
	q, err := whereSubject(r.db.NewSelect().Model(dbUser), s)
	if err != nil {
		return nil, err
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", s.Kind, err)
	}

	return mapDBUserToModel(dbUser), nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*User, error) {
	var dbUsers []database.User
	if err := r.db.NewSelect().
		Model(&dbUsers).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*User, 0, len(dbUsers))
	for i := range dbUsers {
		users = append(users, mapDBUserToModel(&dbUsers[i]))
	}
	return users, nil
}

// Update writes the mutable scalar fields of u
func (r *PostgresRepository) Update(ctx context.Context, u *User) (*User, error) {
	if _, err := uuid.Parse(u.ID); err != nil {
		return nil, ErrNotFound
	}

	dbUser := mapModelToDBUser(u)
	dbUser.ID = u.ID
	dbUser.UpdatedAt = time.Now()

	result, err := r.db.NewUpdate().
		Model(dbUser).
		Column("name", "email", "mobile", "password_hash", "is_active", "otp_hash", "otp_expires_at", "updated_at").
		WherePK().
		Exec(ctx)

	if err != nil {
		if dupErr := duplicateKeyError(err); dupErr != nil {
			return nil, dupErr
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	return r.FindBy(ctx, Subject{Kind: ByID, Value: u.ID})
}

func (r *PostgresRepository) AddProperty(ctx context.Context, owner Subject, p Property) (*Property, error) {
	var created Property
	err := r.mutateProperties(ctx, owner, func(props []database.Property, now time.Time) ([]database.Property, error) {
		created = newProperty(p, uuid.NewString(), now)
		return append(props, mapPropertyToDB(created)), nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *PostgresRepository) UpdateProperty(ctx context.Context, owner Subject, propertyID string, patch PropertyPatch) (*Property, error) {
	var updated Property
	err := r.mutateProperties(ctx, owner, func(props []database.Property, now time.Time) ([]database.Property, error) {
		i := slices.IndexFunc(props, func(p database.Property) bool { return p.ID == propertyID })
		if i < 0 {
			return nil, ErrPropertyNotFound
		}
		updated = mapDBProperty(props[i])
		patch.Apply(&updated, now)
		props[i] = mapPropertyToDB(updated)
		return props, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *PostgresRepository) DeleteProperty(ctx context.Context, owner Subject, propertyID string) error {
	return r.mutateProperties(ctx, owner, func(props []database.Property, _ time.Time) ([]database.Property, error) {
		n := len(props)
		props = slices.DeleteFunc(props, func(p database.Property) bool { return p.ID == propertyID })
		if len(props) == n {
			return nil, ErrPropertyNotFound
		}
		return props, nil
	})
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// mutateProperties locks the owner's row, applies fn to its property list and
// writes the result back in the same transaction
func (r *PostgresRepository) mutateProperties(ctx context.Context, owner Subject, fn func([]database.Property, time.Time) ([]database.Property, error)) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		dbUser := new(database.User)
		q, err := whereSubject(tx.NewSelect().Model(dbUser), owner)
		if err != nil {
			return err
		}

		if err := q.Limit(1).For("UPDATE").Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock user: %w", err)
		}

		now := time.Now()
		props, err := fn(dbUser.Properties, now)
		if err != nil {
			return err
		}
		if props == nil {
			props = []database.Property{}
		}

		dbUser.Properties = props
		dbUser.UpdatedAt = now

		if _, err := tx.NewUpdate().
			Model(dbUser).
			Column("properties", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to save properties: %w", err)
		}

		return nil
	})
}

func whereSubject(q *bun.SelectQuery, s Subject) (*bun.SelectQuery, error) {
	if s.Value == "" {
		return nil, ErrNotFound
	}

	switch s.Kind {
	case ByID:
		if _, err := uuid.Parse(s.Value); err != nil {
			return nil, ErrNotFound
		}
		return q.Where("id = ?", s.Value), nil
	case ByExternal:
		return q.Where("external_subject_id = ?", s.Value), nil
	case ByEmail:
		return q.Where("email = ?", s.Value), nil
	case ByMobile:
		return q.Where("mobile = ?", s.Value), nil
	default:
		return nil, fmt.Errorf("unknown subject kind %q", s.Kind)
	}
}

// duplicateKeyError translates a unique violation into the matching domain error
func duplicateKeyError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}

	switch pqErr.Constraint {
	case database.UsersEmailKey:
		return ErrDuplicateEmail
	case database.UsersMobileKey:
		return ErrDuplicateMobile
	default:
		return ErrDuplicateSubject
	}
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	u := &User{
		ID:           dbu.ID,
		Name:         dbu.Name,
		Mobile:       dbu.Mobile,
		Role:         Role(dbu.Role),
		IsActive:     dbu.IsActive,
		OTPExpiresAt: dbu.OTPExpiresAt,
		Properties:   make([]Property, 0, len(dbu.Properties)),
		CreatedAt:    dbu.CreatedAt,
		UpdatedAt:    dbu.UpdatedAt,
	}
	if dbu.ExternalSubjectID != nil {
		u.ExternalSubjectID = *dbu.ExternalSubjectID
	}
	if dbu.Email != nil {
		u.Email = *dbu.Email
	}
	if dbu.PasswordHash != nil {
		u.PasswordHash = *dbu.PasswordHash
	}
	if dbu.OTPHash != nil {
		u.OTPHash = *dbu.OTPHash
	}
	for _, p := range dbu.Properties {
		u.Properties = append(u.Properties, mapDBProperty(p))
	}
	return u
}

func mapModelToDBUser(u *User) *database.User {
	return &database.User{
		ExternalSubjectID: nullable(u.ExternalSubjectID),
		Name:              u.Name,
		Email:             nullable(u.Email),
		Mobile:            u.Mobile,
		PasswordHash:      nullable(u.PasswordHash),
		Role:              string(u.Role),
		IsActive:          u.IsActive,
		OTPHash:           nullable(u.OTPHash),
		OTPExpiresAt:      u.OTPExpiresAt,
	}
}

func mapDBProperty(p database.Property) Property {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return Property{
		ID:          p.ID,
		Address:     p.Address,
		Description: p.Description,
		Rent:        p.Rent,
		Gender:      p.Gender,
		Furnishing:  p.Furnishing,
		Restriction: p.Restriction,
		Images:      images,
		Status:      PropertyStatus(p.Status),
		WiFi:        p.WiFi,
		AC:          p.AC,
		WaterSupply: p.WaterSupply,
		PowerBackup: p.PowerBackup,
		Security:    p.Security,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func mapPropertyToDB(p Property) database.Property {
	return database.Property{
		ID:          p.ID,
		Address:     p.Address,
		Description: p.Description,
		Rent:        p.Rent,
		Gender:      p.Gender,
		Furnishing:  p.Furnishing,
		Restriction: p.Restriction,
		Images:      p.Images,
		Status:      string(p.Status),
		WiFi:        p.WiFi,
		AC:          p.AC,
		WaterSupply: p.WaterSupply,
		PowerBackup: p.PowerBackup,
		Security:    p.Security,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
