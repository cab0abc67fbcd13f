// Package store declares the storage collaborator consumed by the redemption engine.
//
// Implementations must provide the conditional writes (DecrementRemaining,
// IncrementRemaining, ClaimCode, UnclaimCode) as single atomic steps: the
// boolean result reports whether the predicate held and the row changed.
// Nothing else about cross-call atomicity is assumed unless the
// implementation also satisfies Transactor.
package store

import (
	"context"
	"time"

	"github.com/kkkkikiki/redemption/internal/model"
)

// Campaigns stores campaigns and their usage budget
type Campaigns interface {
	CreateCampaign(ctx context.Context, campaign *model.Campaign) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	// GetCampaignForUpdate reads a campaign and, inside a transaction, locks its row until commit.
	GetCampaignForUpdate(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)
	// UpdateCampaign rewrites descriptive fields, terms, expiry and state; counters are untouched.
	UpdateCampaign(ctx context.Context, campaign *model.Campaign) error
	// DeleteCampaign removes a campaign whose creation could not be completed.
	DeleteCampaign(ctx context.Context, id string) error

	// DecrementRemaining decrements remaining_uses by one iff it is positive,
	// the campaign is in the active state and its expiry is after now.
	DecrementRemaining(ctx context.Context, id string, now time.Time) (bool, error)
	// IncrementRemaining increments remaining_uses by one iff it is below total_uses.
	IncrementRemaining(ctx context.Context, id string) (bool, error)
	// AddUses grows total_uses and remaining_uses by n.
	AddUses(ctx context.Context, id string, n int) error
	// SetRemaining overwrites remaining_uses, clamped to [0, total_uses].
	SetRemaining(ctx context.Context, id string, remaining int) error
}

// Codes stores issued codes
type Codes interface {
	// InsertCodes inserts codes, skipping any whose slug is already taken,
	// and returns the ids that were inserted.
	InsertCodes(ctx context.Context, codes []model.Code) ([]string, error)
	GetCode(ctx context.Context, id string) (*model.Code, error)
	GetCodeBySlug(ctx context.Context, slug string) (*model.Code, error)
	ListCodes(ctx context.Context, campaignID string, filter model.CodeFilter) ([]model.Code, error)
	// ClaimCode sets is_used and used_at iff the code is unused and expires after now.
	ClaimCode(ctx context.Context, id string, now time.Time) (bool, error)
	// UnclaimCode clears is_used and used_at iff the code is used.
	UnclaimCode(ctx context.Context, id string) (bool, error)
	CountCodes(ctx context.Context) (total int, used int, err error)
}

// Participants stores participant contact records
type Participants interface {
	CreateParticipant(ctx context.Context, participant *model.Participant) error
	DeleteParticipant(ctx context.Context, id string) error
	CountParticipants(ctx context.Context) (int, error)
}

// CampaignUsage aggregates participations of one campaign
type CampaignUsage struct {
	CampaignID     string `db:"campaign_id"`
	Participations int    `db:"participations"`
	Used           int    `db:"used"`
	// Reverted counts participations reverted by an admin whose code is currently unused.
	Reverted int `db:"reverted"`
}

// Consumed is the number of budget units held by the campaign's participations
func (u CampaignUsage) Consumed() int {
	return u.Used + u.Reverted
}

// Participations stores participation records
type Participations interface {
	// CreateParticipation fails with model.ErrAlreadyUsed if the code is already referenced.
	CreateParticipation(ctx context.Context, participation *model.Participation) error
	DeleteParticipation(ctx context.Context, id string) error
	GetParticipation(ctx context.Context, id string) (*model.ParticipationView, error)
	// GetParticipationByCode returns the participation referencing the code, or ErrNotFound.
	GetParticipationByCode(ctx context.Context, codeID string) (*model.Participation, error)
	// ListParticipations lists all participations, or those of one campaign when campaignID is set.
	ListParticipations(ctx context.Context, campaignID string) ([]model.ParticipationView, error)
	SetReverted(ctx context.Context, id string, at *time.Time) error
	UsageByCampaign(ctx context.Context) ([]CampaignUsage, error)
	// ListOrphans lists participations created before the cutoff whose code is
	// unused and which were never reverted.
	ListOrphans(ctx context.Context, campaignID string, createdBefore time.Time) ([]model.Participation, error)
}

// Store groups the repositories of one storage backend
type Store interface {
	Campaigns() Campaigns
	Codes() Codes
	Participants() Participants
	Participations() Participations
}

// Transactor is implemented by stores that can run several calls as one atomic commit
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Pinger is implemented by stores with a reachable backend
type Pinger interface {
	Ping(ctx context.Context) error
}
