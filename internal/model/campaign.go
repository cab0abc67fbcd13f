package model

import (
	"time"
)

// CampaignState is the administrative switch of a campaign
type CampaignState string

const (
	CampaignStateActive   CampaignState = "active"
	CampaignStateInactive CampaignState = "inactive"
)

// Valid reports whether s is a known campaign state
func (s CampaignState) Valid() bool {
	return s == CampaignStateActive || s == CampaignStateInactive
}

// CampaignStatus is the derived lifecycle status of a campaign
type CampaignStatus string

const (
	CampaignStatusActive   CampaignStatus = "active"
	CampaignStatusExpired  CampaignStatus = "expired"
	CampaignStatusDepleted CampaignStatus = "depleted"
	CampaignStatusInactive CampaignStatus = "inactive"
)

// Campaign represents a discount campaign in the database
type Campaign struct {
	ID                string        `db:"id" json:"id"`
	Name              string        `db:"name" json:"name"`
	Description       string        `db:"description" json:"description"`
	DiscountRate      float64       `db:"discount_rate" json:"discount_rate"`
	MinPurchaseAmount float64       `db:"min_purchase_amount" json:"min_purchase_amount"`
	MaxDiscountAmount float64       `db:"max_discount_amount" json:"max_discount_amount"`
	TotalUses         int           `db:"total_uses" json:"total_uses"`
	RemainingUses     int           `db:"remaining_uses" json:"remaining_uses"`
	ExpiryDate        time.Time     `db:"expiry_date" json:"expiry_date"`
	State             CampaignState `db:"state" json:"state"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// Status derives the campaign status at the given instant.
// An inactive state wins over everything else, then an empty budget, then expiry.
func (c *Campaign) Status(now time.Time) CampaignStatus {
	switch {
	case c.State == CampaignStateInactive:
		return CampaignStatusInactive
	case c.RemainingUses <= 0:
		return CampaignStatusDepleted
	case !c.ExpiryDate.After(now):
		return CampaignStatusExpired
	default:
		return CampaignStatusActive
	}
}

// IsActive reports whether the campaign accepts redemptions at the given instant
func (c *Campaign) IsActive(now time.Time) bool {
	return c.Status(now) == CampaignStatusActive
}
