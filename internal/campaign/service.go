// Package campaign implements campaign administration: creating campaigns,
// minting their codes and editing their terms.
package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/kkkkikiki/redemption/internal/event"
	"github.com/kkkkikiki/redemption/internal/idgen"
	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store"
	"github.com/kkkkikiki/redemption/internal/validation"
)

const (
	// MaxIssue caps the number of codes minted by one call
	MaxIssue = 100000

	cleanupTimeout = 10 * time.Second
)

// CreateInput describes a new campaign
type CreateInput struct {
	Name              string    `json:"name" validate:"required,min=3,max=50"`
	Description       string    `json:"description" validate:"required,min=10,max=200"`
	DiscountRate      float64   `json:"discount_rate" validate:"gte=1,lte=100"`
	MinPurchaseAmount float64   `json:"min_purchase_amount" validate:"gte=0"`
	MaxDiscountAmount float64   `json:"max_discount_amount" validate:"gte=0"`
	TotalUses         int       `json:"total_uses" validate:"gte=1,lte=100000"`
	ExpiryDate        time.Time `json:"expiry_date" validate:"required"`
}

// UpdateInput replaces the editable fields of a campaign
type UpdateInput struct {
	ID                string              `json:"id" validate:"required"`
	Name              string              `json:"name" validate:"required,min=3,max=50"`
	Description       string              `json:"description" validate:"required,min=10,max=200"`
	DiscountRate      float64             `json:"discount_rate" validate:"gte=1,lte=100"`
	MinPurchaseAmount float64             `json:"min_purchase_amount" validate:"gte=0"`
	MaxDiscountAmount float64             `json:"max_discount_amount" validate:"gte=0"`
	ExpiryDate        time.Time           `json:"expiry_date" validate:"required"`
	State             model.CampaignState `json:"state" validate:"required,oneof=active inactive"`
}

// Service administers campaigns
type Service struct {
	store    store.Store
	tx       store.Transactor
	ids      idgen.Generator
	minter   *Minter
	events   event.Publisher
	logger   *zap.Logger
	validate *validation.Validator
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMinter replaces the code minter
func WithMinter(m *Minter) Option {
	return func(s *Service) { s.minter = m }
}

// New creates a campaign service. Campaign creation and code issuance run in
// one transaction when the store supports it.
func New(s store.Store, ids idgen.Generator, events event.Publisher, logger *zap.Logger, slugLength int, opts ...Option) *Service {
	svc := &Service{
		store:    s,
		ids:      ids,
		events:   events,
		logger:   logger,
		validate: validation.New(),
		now:      time.Now,
	}
	if tx, ok := s.(store.Transactor); ok {
		svc.tx = tx
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.minter == nil {
		svc.minter = NewMinter(ids, NanoidSlugs(slugLength))
	}
	return svc
}

// Create validates the input, stores the campaign and mints one code per use.
// A campaign is never left behind without its codes.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Campaign, error) {
	if err := s.validate.Check(in); err != nil {
		return nil, err
	}
	now := s.now()
	if !in.ExpiryDate.After(now) {
		return nil, model.ValidationError(model.FieldError{Field: "expiry_date", Message: "must be in the future"})
	}

	campaign := &model.Campaign{
		ID:                s.ids.NewID(),
		Name:              in.Name,
		Description:       in.Description,
		DiscountRate:      in.DiscountRate,
		MinPurchaseAmount: in.MinPurchaseAmount,
		MaxDiscountAmount: in.MaxDiscountAmount,
		TotalUses:         in.TotalUses,
		RemainingUses:     in.TotalUses,
		ExpiryDate:        in.ExpiryDate,
		State:             model.CampaignStateActive,
	}

	create := func(ctx context.Context, st store.Store) error {
		if err := st.Campaigns().CreateCampaign(ctx, campaign); err != nil {
			return fmt.Errorf("failed to create campaign: %w", err)
		}
		if _, err := s.minter.Mint(ctx, st.Codes(), campaign, in.TotalUses, now); err != nil {
			return err
		}
		return nil
	}

	if s.tx != nil {
		if err := s.tx.WithinTx(ctx, create); err != nil {
			return nil, err
		}
	} else if err := create(ctx, s.store); err != nil {
		s.discard(ctx, campaign.ID, err)
		return nil, err
	}

	s.logger.Info("campaign created",
		zap.String("campaign_id", campaign.ID),
		zap.String("name", campaign.Name),
		zap.Int("total_uses", campaign.TotalUses))
	s.events.Publish(ctx, event.Event{Type: event.CampaignCreated, CampaignID: campaign.ID, Count: campaign.TotalUses})

	return s.store.Campaigns().GetCampaign(ctx, campaign.ID)
}

// discard removes a campaign whose codes could not be minted
func (s *Service) discard(ctx context.Context, campaignID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := s.store.Campaigns().DeleteCampaign(ctx, campaignID); err != nil {
		s.logger.Error("failed to discard incomplete campaign",
			zap.String("campaign_id", campaignID),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

// Get fetches one campaign
func (s *Service) Get(ctx context.Context, id string) (*model.Campaign, error) {
	return s.store.Campaigns().GetCampaign(ctx, id)
}

// List returns all campaigns, newest first
func (s *Service) List(ctx context.Context) ([]model.Campaign, error) {
	return s.store.Campaigns().ListCampaigns(ctx)
}

// Update rewrites name, description, terms, expiry and state. Codes keep the
// expiry they were issued with.
func (s *Service) Update(ctx context.Context, in UpdateInput) (*model.Campaign, error) {
	if err := s.validate.Check(in); err != nil {
		return nil, err
	}
	if !in.ExpiryDate.After(s.now()) {
		return nil, model.ValidationError(model.FieldError{Field: "expiry_date", Message: "must be in the future"})
	}

	campaign := &model.Campaign{
		ID:                in.ID,
		Name:              in.Name,
		Description:       in.Description,
		DiscountRate:      in.DiscountRate,
		MinPurchaseAmount: in.MinPurchaseAmount,
		MaxDiscountAmount: in.MaxDiscountAmount,
		ExpiryDate:        in.ExpiryDate,
		State:             in.State,
	}
	if err := s.store.Campaigns().UpdateCampaign(ctx, campaign); err != nil {
		return nil, err
	}

	s.logger.Info("campaign updated",
		zap.String("campaign_id", in.ID),
		zap.String("state", string(in.State)))
	s.events.Publish(ctx, event.Event{Type: event.CampaignUpdated, CampaignID: in.ID})

	return s.store.Campaigns().GetCampaign(ctx, in.ID)
}

// IssueCodes mints quantity more codes for an active campaign and grows its
// budget by the same amount.
func (s *Service) IssueCodes(ctx context.Context, campaignID string, quantity int) ([]model.Code, error) {
	if quantity < 1 || quantity > MaxIssue {
		return nil, model.ValidationError(model.FieldError{
			Field:   "quantity",
			Message: fmt.Sprintf("must be between 1 and %d", MaxIssue),
		})
	}
	now := s.now()

	var issued []model.Code
	issue := func(ctx context.Context, st store.Store) error {
		campaign, err := st.Campaigns().GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.State != model.CampaignStateActive {
			return model.NewError(model.ReasonInactive, fmt.Sprintf("campaign %s is not active", campaignID))
		}
		if !campaign.ExpiryDate.After(now) {
			return model.NewError(model.ReasonExpired, fmt.Sprintf("campaign %s has expired", campaignID))
		}

		issued, err = s.minter.Mint(ctx, st.Codes(), campaign, quantity, now)
		if err != nil {
			return err
		}
		if err := st.Campaigns().AddUses(ctx, campaignID, quantity); err != nil {
			return fmt.Errorf("failed to add uses: %w", err)
		}
		return nil
	}

	var err error
	if s.tx != nil {
		err = s.tx.WithinTx(ctx, issue)
	} else {
		err = issue(ctx, s.store)
	}
	if err != nil {
		if len(issued) > 0 && s.tx == nil {
			// minted codes without budget only compete for existing uses
			s.logger.Error("codes issued without budget",
				zap.String("campaign_id", campaignID),
				zap.Int("codes", len(issued)),
				zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("codes issued",
		zap.String("campaign_id", campaignID),
		zap.Int("quantity", quantity))
	s.events.Publish(ctx, event.Event{Type: event.CodesIssued, CampaignID: campaignID, Count: quantity})
	return issued, nil
}

// ListCodes lists the codes of a campaign
func (s *Service) ListCodes(ctx context.Context, campaignID string, filter model.CodeFilter) ([]model.Code, error) {
	switch filter {
	case "":
		filter = model.CodeFilterAll
	case model.CodeFilterAll, model.CodeFilterUsed, model.CodeFilterUnused:
	default:
		return nil, model.ValidationError(model.FieldError{Field: "filter", Message: "must be one of all, used, unused"})
	}
	if _, err := s.store.Campaigns().GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.store.Codes().ListCodes(ctx, campaignID, filter)
}

// ListParticipations lists the participations of one campaign, or of all
// campaigns when campaignID is empty. A non-empty query keeps those whose
// participant name, email or phone contains it, ignoring case.
func (s *Service) ListParticipations(ctx context.Context, campaignID, query string) ([]model.ParticipationView, error) {
	views, err := s.store.Participations().ListParticipations(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return views, nil
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, query)

	matched := views[:0]
	for _, v := range views {
		name := strings.ToLower(v.FirstName + " " + v.LastName)
		switch {
		case strings.Contains(name, query),
			strings.Contains(strings.ToLower(v.Email), query),
			strings.Contains(v.Phone, query),
			digits != "" && strings.Contains(v.Phone, digits):
			matched = append(matched, v)
		}
	}
	return matched, nil
}
