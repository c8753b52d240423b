package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	authdomain "github.com/smallbiznis/frostclub/internal/auth/domain"
	"github.com/smallbiznis/frostclub/pkg/db/pagination"
)

type ListProfileRequest struct {
	pagination.Pagination
	Email   string `form:"email"`
	Tier    string `form:"tier"`
	IsAdmin *bool  `form:"is_admin"`
}

type ListProfileResponse struct {
	pagination.PageInfo
	Profiles []Profile `json:"profiles"`
}

type UpdateAdminRequest struct {
	Tier    *string `json:"tier"`
	IsAdmin *bool   `json:"is_admin"`
}

type Service interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	// ResolveAuthenticated finds the caller's profile, linking a profile created
	// at reconciliation time by email on first sign-in, or creating one.
	ResolveAuthenticated(ctx context.Context, principal authdomain.Principal) (*Profile, error)
	EnsureByEmail(ctx context.Context, email string) (*Profile, bool, error)
	// ApplyMembership returns ErrStaleMembership when a newer checkout session
	// already set the tier.
	ApplyMembership(ctx context.Context, email string, tier string, customerID string, sessionCreated time.Time) (*Profile, bool, error)
	SetStripeCustomerID(ctx context.Context, id string, customerID string) error
	List(ctx context.Context, req ListProfileRequest) (ListProfileResponse, error)
	UpdateAdmin(ctx context.Context, id string, req UpdateAdminRequest) (*Profile, error)
}

var (
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidTier      = errors.New("invalid_tier")
	ErrNotFound         = errors.New("profile_not_found")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrStaleMembership  = errors.New("membership_superseded")
)

// NormalizeEmail trims and lowercases; the address must contain "@" with a
// "." somewhere after it.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	at := strings.Index(email, "@")
	if at <= 0 {
		return "", ErrInvalidEmail
	}
	domainPart := email[at+1:]
	dot := strings.Index(domainPart, ".")
	if dot <= 0 || dot == len(domainPart)-1 || strings.ContainsAny(email, " \t") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
