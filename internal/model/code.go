package model

import (
	"time"
)

// Code represents an issued one-time QR code in the database
type Code struct {
	ID         string     `db:"id" json:"id"`
	CampaignID string     `db:"campaign_id" json:"campaign_id"`
	Slug       string     `db:"slug" json:"slug"`
	IsUsed     bool       `db:"is_used" json:"is_used"`
	UsedAt     *time.Time `db:"used_at" json:"used_at,omitempty"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the code is past its validity window
func (c *Code) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// CodeState is the public landing state of a scanned code
type CodeState string

const (
	CodeStateValid            CodeState = "valid_unused"
	CodeStateAlreadyUsed      CodeState = "already_used"
	CodeStateExpired          CodeState = "expired"
	CodeStateCampaignInactive CodeState = "campaign_inactive"
	CodeStateNotFound         CodeState = "not_found"
)

// CodeFilter selects codes by usage
type CodeFilter string

const (
	CodeFilterAll    CodeFilter = "all"
	CodeFilterUsed   CodeFilter = "used"
	CodeFilterUnused CodeFilter = "unused"
)

// Match reports whether the code passes the filter
func (f CodeFilter) Match(c *Code) bool {
	switch f {
	case CodeFilterUsed:
		return c.IsUsed
	case CodeFilterUnused:
		return !c.IsUsed
	default:
		return true
	}
}
