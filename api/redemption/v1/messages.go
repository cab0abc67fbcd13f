// Package redemptionv1 holds the request and response messages of the
// redemption.v1 services.
package redemptionv1

import (
	"time"
)

// Code is an issued one-time code
type Code struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id"`
	Slug       string     `json:"slug"`
	URL        string     `json:"url"`
	IsUsed     bool       `json:"is_used"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CampaignTerms is the public face of a campaign
type CampaignTerms struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	DiscountRate      float64   `json:"discount_rate"`
	MinPurchaseAmount float64   `json:"min_purchase_amount"`
	MaxDiscountAmount float64   `json:"max_discount_amount"`
	ExpiryDate        time.Time `json:"expiry_date"`
}

// Campaign is the administrative view of a campaign
type Campaign struct {
	CampaignTerms
	TotalUses     int       `json:"total_uses"`
	RemainingUses int       `json:"remaining_uses"`
	State         string    `json:"state"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Participation is a participation joined with its participant and code
type Participation struct {
	ID            string     `json:"id"`
	ParticipantID string     `json:"participant_id"`
	CampaignID    string     `json:"campaign_id"`
	CampaignName  string     `json:"campaign_name"`
	CodeID        string     `json:"code_id"`
	CodeSlug      string     `json:"code_slug"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	IsUsed        bool       `json:"is_used"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
	RevertedAt    *time.Time `json:"reverted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type GetCodeRequest struct {
	Slug string `json:"slug"`
}

type GetCodeResponse struct {
	// State is one of valid_unused, already_used, expired, campaign_inactive, not_found
	State    string         `json:"state"`
	Code     *Code          `json:"code,omitempty"`
	Campaign *CampaignTerms `json:"campaign,omitempty"`
}

type RedeemRequest struct {
	CodeSlug   string `json:"code_slug,omitempty"`
	CodeID     string `json:"code_id,omitempty"`
	CampaignID string `json:"campaign_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

type RedeemResponse struct {
	ParticipationID string `json:"participation_id"`
}

type CreateCampaignRequest struct {
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	DiscountRate      float64   `json:"discount_rate"`
	MinPurchaseAmount float64   `json:"min_purchase_amount"`
	MaxDiscountAmount float64   `json:"max_discount_amount"`
	TotalUses         int       `json:"total_uses"`
	ExpiryDate        time.Time `json:"expiry_date"`
}

type CreateCampaignResponse struct {
	Campaign *Campaign `json:"campaign"`
}

type GetCampaignRequest struct {
	CampaignID string `json:"campaign_id"`
}

type GetCampaignResponse struct {
	Campaign *Campaign `json:"campaign"`
}

type ListCampaignsRequest struct{}

type ListCampaignsResponse struct {
	Campaigns []*Campaign `json:"campaigns"`
}

type UpdateCampaignRequest struct {
	CampaignID        string    `json:"campaign_id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	DiscountRate      float64   `json:"discount_rate"`
	MinPurchaseAmount float64   `json:"min_purchase_amount"`
	MaxDiscountAmount float64   `json:"max_discount_amount"`
	ExpiryDate        time.Time `json:"expiry_date"`
	State             string    `json:"state"`
}

type UpdateCampaignResponse struct {
	Campaign *Campaign `json:"campaign"`
}

type IssueCodesRequest struct {
	CampaignID string `json:"campaign_id"`
	Quantity   int    `json:"quantity"`
}

type IssueCodesResponse struct {
	Codes []*Code `json:"codes"`
}

type ListCodesRequest struct {
	CampaignID string `json:"campaign_id"`
	// Filter is one of all, used, unused; empty means all
	Filter string `json:"filter,omitempty"`
}

type ListCodesResponse struct {
	Codes []*Code `json:"codes"`
}

type ListParticipationsRequest struct {
	CampaignID string `json:"campaign_id,omitempty"`
	// Query matches participant name, email or phone
	Query string `json:"query,omitempty"`
}

type ListParticipationsResponse struct {
	Participations []*Participation `json:"participations"`
}

type RevertParticipationRequest struct {
	ParticipationID string `json:"participation_id"`
}

type RevertParticipationResponse struct {
	Participation *Participation `json:"participation"`
}

type RestoreParticipationRequest struct {
	ParticipationID string `json:"participation_id"`
}

type RestoreParticipationResponse struct {
	Participation *Participation `json:"participation"`
}

type GetDashboardStatsRequest struct{}

type PopularCampaign struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Participations int    `json:"participations"`
}

type GetDashboardStatsResponse struct {
	TotalCampaigns       int              `json:"total_campaigns"`
	ActiveCampaigns      int              `json:"active_campaigns"`
	TotalParticipants    int              `json:"total_participants"`
	TotalCodes           int              `json:"total_codes"`
	UsedCodes            int              `json:"used_codes"`
	UnusedCodes          int              `json:"unused_codes"`
	UsedParticipations   int              `json:"used_participations"`
	UnusedParticipations int              `json:"unused_participations"`
	AverageDiscountRate  float64          `json:"average_discount_rate"`
	MostPopularCampaign  *PopularCampaign `json:"most_popular_campaign,omitempty"`
}

type ReconcileRequest struct {
	CampaignID string `json:"campaign_id,omitempty"`
	Repair     bool   `json:"repair"`
}

type CampaignDrift struct {
	CampaignID    string `json:"campaign_id"`
	Name          string `json:"name"`
	TotalUses     int    `json:"total_uses"`
	RemainingUses int    `json:"remaining_uses"`
	Consumed      int    `json:"consumed"`
	InFlight      int    `json:"in_flight"`
	Drift         int    `json:"drift"`
	Orphans       int    `json:"orphans"`
	StrayClaims   int    `json:"stray_claims"`
}

type ReconcileResponse struct {
	Campaigns []*CampaignDrift `json:"campaigns"`
	Repaired  bool             `json:"repaired"`
}
