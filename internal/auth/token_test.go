package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomkartz/roomkartz-api/internal/apperr"
	"github.com/roomkartz/roomkartz-api/internal/user"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestNewPasetoService_KeyLength(t *testing.T) {
	_, err := NewPasetoService([]byte("short"), time.Hour)
	assert.Error(t, err)
}

func TestPasetoService_IssueVerify(t *testing.T) {
	s, err := NewPasetoService(testKey, 48*time.Hour)
	require.NoError(t, err)

	token, err := s.Issue("user-1", user.RoleOwner)
	require.NoError(t, err)

	id, err := s.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.Subject{Kind: user.ByID, Value: "user-1"}, id.Subject)
	assert.Equal(t, user.RoleOwner, id.Role)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), id.ExpiresAt, time.Minute)
}

func TestPasetoService_Expired(t *testing.T) {
	s, err := NewPasetoService(testKey, 48*time.Hour)
	require.NoError(t, err)

	issuedAt := time.Now()
	s.now = func() time.Time { return issuedAt }
	token, err := s.Issue("user-1", user.RoleUser)
	require.NoError(t, err)

	s.now = func() time.Time { return issuedAt.Add(48 * time.Hour) }
	_, err = s.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestPasetoService_RejectsForeignAndGarbageTokens(t *testing.T) {
	s, err := NewPasetoService(testKey, time.Hour)
	require.NoError(t, err)
	other, err := NewPasetoService([]byte("abcdef0123456789abcdef0123456789"), time.Hour)
	require.NoError(t, err)

	foreign, err := other.Issue("user-1", user.RoleUser)
	require.NoError(t, err)

	for _, token := range []string{foreign, "not-a-token", ""} {
		_, err := s.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestJWTService_IssueVerify(t *testing.T) {
	s, err := NewJWTService([]byte("secret"), 48*time.Hour)
	require.NoError(t, err)

	token, err := s.Issue("user-1", user.RoleUser)
	require.NoError(t, err)

	id, err := s.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.Subject.Value)
	assert.Equal(t, user.ByID, id.Subject.Kind)
	assert.Equal(t, user.RoleUser, id.Role)
}

func TestJWTService_Expired(t *testing.T) {
	s, err := NewJWTService([]byte("secret"), 48*time.Hour)
	require.NoError(t, err)

	issuedAt := time.Now()
	s.now = func() time.Time { return issuedAt }
	token, err := s.Issue("user-1", user.RoleUser)
	require.NoError(t, err)

	s.now = func() time.Time { return issuedAt.Add(49 * time.Hour) }
	_, err = s.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_RejectsWrongSecretAndAlgorithm(t *testing.T) {
	s, err := NewJWTService([]byte("secret"), time.Hour)
	require.NoError(t, err)

	other, err := NewJWTService([]byte("other"), time.Hour)
	require.NoError(t, err)
	wrongSecret, err := other.Issue("user-1", user.RoleUser)
	require.NoError(t, err)

	claims := Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	for _, token := range []string{wrongSecret, hs512, "a.b.c"} {
		_, err := s.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

type fakeIDTokenVerifier struct {
	token *fbauth.Token
	err   error
}

func (f *fakeIDTokenVerifier) VerifyIDToken(context.Context, string) (*fbauth.Token, error) {
	return f.token, f.err
}

func TestFirebaseVerifier_Verify(t *testing.T) {
	expires := time.Now().Add(time.Hour).Unix()
	v := &FirebaseVerifier{client: &fakeIDTokenVerifier{token: &fbauth.Token{
		UID:     "o1",
		Expires: expires,
		Claims:  map[string]interface{}{"phone_number": "+919999999999", "email": "o@b.com"},
	}}}

	id, err := v.Verify(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, user.Subject{Kind: user.ByExternal, Value: "o1"}, id.Subject)
	assert.Equal(t, "+919999999999", id.Phone)
	assert.Equal(t, "o@b.com", id.Email)
	assert.Empty(t, id.Role)
	assert.Equal(t, expires, id.ExpiresAt.Unix())
}

func TestFirebaseVerifier_Rejects(t *testing.T) {
	v := &FirebaseVerifier{client: &fakeIDTokenVerifier{err: errors.New("signature mismatch")}}

	_, err := v.Verify(context.Background(), "id-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword_HashAndVerify(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, VerifyPassword(hash, "correct horse"))
	assert.False(t, VerifyPassword(hash, "wrong horse"))
	assert.False(t, VerifyPassword("not-a-hash", "correct horse"))

	other, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salted")
}
