package model

import (
	"time"
)

// Participant represents a customer who filled the redemption form
type Participant struct {
	ID        string    `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Participation binds one participant to one campaign and one code.
// Usage is not stored here; it is read from the referenced code.
type Participation struct {
	ID            string     `db:"id" json:"id"`
	ParticipantID string     `db:"participant_id" json:"participant_id"`
	CampaignID    string     `db:"campaign_id" json:"campaign_id"`
	CodeID        string     `db:"code_id" json:"code_id"`
	RevertedAt    *time.Time `db:"reverted_at" json:"reverted_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// ParticipationView is a participation joined with its participant, campaign and code
type ParticipationView struct {
	Participation
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Email        string     `db:"email" json:"email"`
	Phone        string     `db:"phone" json:"phone"`
	CampaignName string     `db:"campaign_name" json:"campaign_name"`
	CodeSlug     string     `db:"code_slug" json:"code_slug"`
	IsUsed       bool       `db:"is_used" json:"is_used"`
	UsedAt       *time.Time `db:"used_at" json:"used_at,omitempty"`
}

// Consumed reports whether the participation holds a unit of campaign budget.
// A reverted participation keeps its unit: reversal never refunds.
func (v *ParticipationView) Consumed() bool {
	return v.IsUsed || v.RevertedAt != nil
}
