// Package auth is the identity collaborator: it issues and verifies session
// tokens and resolves them to principals. Everything downstream re-derives
// access from the principal it produces; authorization itself lives in the
// policy predicates.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

var (
	// ErrInvalidCredentials is returned on a failed login attempt.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")

	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
)

// UserDirectory is the view of the tenant store the auth service needs.
type UserDirectory interface {
	GetUserByEmail(ctx context.Context, email string) (*tenant.User, error)
	GetUser(ctx context.Context, id string) (*tenant.User, error)
	InEffectAssignments(ctx context.Context, userID string) ([]*tenant.SiteAssignment, error)
}

// Service provides login and token verification backed by the tenant store.
type Service struct {
	users  UserDirectory
	secret []byte
	ttl    time.Duration
	now    func() time.Time // injectable clock for testing
}

// NewService creates an auth service. Tokens are HS256 JWTs signed with the
// given secret and valid for ttl.
func NewService(users UserDirectory, secret string, ttl time.Duration) *Service {
	return &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Login verifies the credentials and returns a signed session token together
// with the user record.
func (s *Service) Login(ctx context.Context, email, password string) (string, *tenant.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		// Do not reveal whether the account exists.
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return token, u, nil
}

// Authenticate verifies a bearer token and resolves it to a principal with
// the user's current in-effect assignments loaded. The principal is rebuilt
// from the authorization store on every call, so revocations take effect on
// the next request.
func (s *Service) Authenticate(ctx context.Context, token string) (*scope.Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	u, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	assignments, err := s.users.InEffectAssignments(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("loading assignments: %w", err)
	}

	p := &scope.Principal{
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		Admin:          u.Admin,
		Name:           u.Name,
		Assignments:    make([]tenant.SiteAssignment, len(assignments)),
	}
	for i, a := range assignments {
		p.Assignments[i] = *a
	}
	return p, nil
}
