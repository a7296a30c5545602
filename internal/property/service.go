// Package property implements the owner-only listing operations on the
// properties embedded in each user.
package property

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roomkartz/roomkartz-api/internal/apperr"
	"github.com/roomkartz/roomkartz-api/internal/logging"
	"github.com/roomkartz/roomkartz-api/internal/metrics"
	"github.com/roomkartz/roomkartz-api/internal/user"
)

var (
	ErrNotOwner        = apperr.New(apperr.ErrForbidden, "only owners can manage properties")
	ErrAddressRequired = apperr.New(apperr.ErrInvalidArgument, "address is required")
	ErrInvalidRent     = apperr.New(apperr.ErrInvalidArgument, "rent must be a number greater than zero")
	ErrInvalidStatus   = apperr.New(apperr.ErrInvalidArgument, "status must be Open or Closed")
	ErrInvalidImage    = apperr.New(apperr.ErrInvalidArgument, "inline images must be data:image URIs")
	ErrImageUpload     = apperr.New(apperr.ErrInternal, "failed to store image")
)

// ImageStore uploads an inline image and returns the URL to keep instead
type ImageStore interface {
	StoreImage(ctx context.Context, dataURI string) (string, error)
}

// Caller is the authenticated user performing a mutation. Role is empty when
// the token does not carry one, in which case it is read from the store.
type Caller struct {
	Subject user.Subject
	Role    user.Role
}

type Service struct {
	users  user.Repository
	images ImageStore
	logger *logging.Logger
}

// NewService creates the property service. images may be nil, which keeps
// submitted image strings as they are.
func NewService(users user.Repository, images ImageStore, logger *logging.Logger) *Service {
	return &Service{
		users:  users,
		images: images,
		logger: logger,
	}
}

// authorize rejects callers that are not owners before any property is looked up
func (s *Service) authorize(ctx context.Context, c Caller) error {
	role := c.Role
	if role == "" {
		u, err := s.users.FindBy(ctx, c.Subject)
		if err != nil {
			return err
		}
		role = u.Role
	}
	if role != user.RoleOwner {
		return ErrNotOwner
	}
	return nil
}

// Add appends p to the caller's properties. Status defaults to Open.
func (s *Service) Add(ctx context.Context, c Caller, p user.Property) (created *user.Property, err error) {
	defer func() { metrics.PropertyMutationsTotal.WithLabelValues("add", metrics.Result(err)).Inc() }()

	if err := s.authorize(ctx, c); err != nil {
		return nil, err
	}

	p.Address = strings.TrimSpace(p.Address)
	if p.Address == "" {
		return nil, ErrAddressRequired
	}
	if !validRent(p.Rent) {
		return nil, ErrInvalidRent
	}
	if p.Status != "" && !p.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	if p.Images, err = s.storeImages(ctx, p.Images); err != nil {
		return nil, err
	}

	created, err = s.users.AddProperty(ctx, c.Subject, p)
	if err != nil {
		return nil, err
	}

	s.logger.Info("property added", "property_id", created.ID)
	return created, nil
}

// Update applies the non-nil fields of patch to one of the caller's properties
func (s *Service) Update(ctx context.Context, c Caller, propertyID string, patch user.PropertyPatch) (updated *user.Property, err error) {
	defer func() { metrics.PropertyMutationsTotal.WithLabelValues("update", metrics.Result(err)).Inc() }()

	if err := s.authorize(ctx, c); err != nil {
		return nil, err
	}
	if patch.Rent != nil && !validRent(*patch.Rent) {
		return nil, ErrInvalidRent
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	return s.users.UpdateProperty(ctx, c.Subject, propertyID, patch)
}

// Delete removes one of the caller's properties
func (s *Service) Delete(ctx context.Context, c Caller, propertyID string) (err error) {
	defer func() { metrics.PropertyMutationsTotal.WithLabelValues("delete", metrics.Result(err)).Inc() }()

	if err := s.authorize(ctx, c); err != nil {
		return err
	}
	if err := s.users.DeleteProperty(ctx, c.Subject, propertyID); err != nil {
		return err
	}

	s.logger.Info("property deleted", "property_id", propertyID)
	return nil
}

// ListAll flattens every user's properties in store order
func (s *Service) ListAll(ctx context.Context) ([]user.Property, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	out := []user.Property{}
	for _, u := range users {
		out = append(out, u.Properties...)
	}
	return out, nil
}

// ListOwn returns the properties of the user behind subject
func (s *Service) ListOwn(ctx context.Context, subject user.Subject) ([]user.Property, error) {
	u, err := s.users.FindBy(ctx, subject)
	if err != nil {
		return nil, err
	}
	if u.Properties == nil {
		return []user.Property{}, nil
	}
	return u.Properties, nil
}

func validRent(rent float64) bool {
	return rent > 0 && !math.IsInf(rent, 1)
}

func (s *Service) storeImages(ctx context.Context, images []string) ([]string, error) {
	if s.images == nil || len(images) == 0 {
		return images, nil
	}

	out := make([]string, len(images))
	for i, img := range images {
		if !strings.HasPrefix(img, "data:") {
			out[i] = img
			continue
		}
		if !strings.HasPrefix(img, "data:image/") {
			return nil, ErrInvalidImage
		}
		url, err := s.images.StoreImage(ctx, img)
		if err != nil {
			s.logger.Error("image upload failed", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrImageUpload, err)
		}
		out[i] = url
	}
	return out, nil
}
