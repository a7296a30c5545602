package user

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory.
// Every returned value is a copy; callers never share state with the store.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
	order []string
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]*User),
		now:   time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, u *User) (*User, error) {
	if err := validateNew(u); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if u.Email != "" && existing.Email == u.Email {
			return nil, ErrDuplicateEmail
		}
		if u.Mobile != "" && existing.Mobile == u.Mobile {
			return nil, ErrDuplicateMobile
		}
		if u.ExternalSubjectID != "" && existing.ExternalSubjectID == u.ExternalSubjectID {
			return nil, ErrDuplicateSubject
		}
	}

	now := r.now()
	stored := u.clone()
	stored.ID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.users[stored.ID] = stored
	r.order = append(r.order, stored.ID)

	return stored.clone(), nil
}

func (r *MemoryRepository) FindBy(_ context.Context, s Subject) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u := r.lookup(s)
	if u == nil {
		return nil, ErrNotFound
	}
	return u.clone(), nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*User, 0, len(r.order))
	for _, id := range r.order {
		users = append(users, r.users[id].clone())
	}
	return users, nil
}

func (r *MemoryRepository) Update(_ context.Context, u *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[u.ID]
	if !ok {
		return nil, ErrNotFound
	}

	if u.Email != "" && u.Email != stored.Email {
		for id, existing := range r.users {
			if id != u.ID && existing.Email == u.Email {
				return nil, ErrDuplicateEmail
			}
		}
	}
	if u.Mobile != "" && u.Mobile != stored.Mobile {
		for id, existing := range r.users {
			if id != u.ID && existing.Mobile == u.Mobile {
				return nil, ErrDuplicateMobile
			}
		}
	}

	stored.Name = u.Name
	stored.Email = u.Email
	stored.Mobile = u.Mobile
	stored.PasswordHash = u.PasswordHash
	stored.IsActive = u.IsActive
	stored.OTPHash = u.OTPHash
	stored.OTPExpiresAt = nil
	if u.OTPExpiresAt != nil {
		t := *u.OTPExpiresAt
		stored.OTPExpiresAt = &t
	}
	stored.UpdatedAt = r.now()

	return stored.clone(), nil
}

func (r *MemoryRepository) AddProperty(_ context.Context, owner Subject, p Property) (*Property, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.lookup(owner)
	if u == nil {
		return nil, ErrNotFound
	}

	now := r.now()
	created := newProperty(p, uuid.NewString(), now)
	u.Properties = append(u.Properties, created)
	u.UpdatedAt = now

	out := created.clone()
	return &out, nil
}

func (r *MemoryRepository) UpdateProperty(_ context.Context, owner Subject, propertyID string, patch PropertyPatch) (*Property, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.lookup(owner)
	if u == nil {
		return nil, ErrNotFound
	}

	i := slices.IndexFunc(u.Properties, func(p Property) bool { return p.ID == propertyID })
	if i < 0 {
		return nil, ErrPropertyNotFound
	}

	now := r.now()
	patch.Apply(&u.Properties[i], now)
	u.UpdatedAt = now

	out := u.Properties[i].clone()
	return &out, nil
}

func (r *MemoryRepository) DeleteProperty(_ context.Context, owner Subject, propertyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.lookup(owner)
	if u == nil {
		return ErrNotFound
	}

	n := len(u.Properties)
	u.Properties = slices.DeleteFunc(u.Properties, func(p Property) bool { return p.ID == propertyID })
	if len(u.Properties) == n {
		return ErrPropertyNotFound
	}
	u.UpdatedAt = r.now()

	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

// lookup must be called with r.mu held
func (r *MemoryRepository) lookup(s Subject) *User {
	if s.Value == "" {
		return nil
	}
	if s.Kind == ByID {
		return r.users[s.Value]
	}

	for _, id := range r.order {
		u := r.users[id]
		switch s.Kind {
		case ByExternal:
			if u.ExternalSubjectID == s.Value {
				return u
			}
		case ByEmail:
			if u.Email == s.Value {
				return u
			}
		case ByMobile:
			if u.Mobile == s.Value {
				return u
			}
		}
	}
	return nil
}
