package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired    = errors.New("user: id is required")
	ErrEmailRequired = errors.New("user: email is required")
	ErrInvalidRole   = errors.New("user: invalid role")
	ErrNotFound      = errors.New("user: not found")
)

type ID string

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleProfessional Role = "professional"
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleProfessional:
		return RoleProfessional, nil
	default:
		return "", ErrInvalidRole
	}
}

// Profile is the stored identity of a professional or administrator. Role and
// IsAdmin move together; role checks on money relevant operations always read
// this record, never a client token.
type Profile struct {
	ID        ID        `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      Role      `json:"role"`
	Admin     bool      `json:"is_admin"`
	PriceSeen string    `json:"price_seen,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) IsAdmin() bool {
	return p != nil && (p.Admin || p.Role == RoleAdmin)
}

// DisplayName joins first and last name; empty when neither is set.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// AssignRole updates role and the admin flag together.
func (p *Profile) AssignRole(role Role, at time.Time) {
	p.Role = role
	p.Admin = role == RoleAdmin
	p.UpdatedAt = at.UTC()
}

func (p *Profile) Claims() Claims {
	return Claims{Role: p.Role, Admin: p.IsAdmin()}
}

// NormalizeEmail is used for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Profile, error)
	ByEmail(ctx context.Context, email string) (*Profile, error)
	Save(ctx context.Context, profile *Profile) error
}

// Claims are the role flags mirrored onto the identity provider record.
type Claims struct {
	Role  Role `json:"role"`
	Admin bool `json:"admin"`
}

type ClaimsSyncer interface {
	SyncClaims(ctx context.Context, id ID, claims Claims) error
}
