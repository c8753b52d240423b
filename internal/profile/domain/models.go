package domain

import "time"

type Profile struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	AuthUserID       *string   `json:"auth_user_id,omitempty"`
	Email            string    `json:"email"`
	FullName         *string   `json:"full_name,omitempty"`
	Tier             string    `json:"tier"`
	IsAdmin          bool      `json:"is_admin"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty"`
	// MembershipSessionAt is the creation time of the checkout session whose
	// tier is currently applied.
	MembershipSessionAt *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }
