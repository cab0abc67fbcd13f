package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/redemption/internal/model"
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

const campaignColumns = `id, name, description, discount_rate, min_purchase_amount, max_discount_amount,
		total_uses, remaining_uses, expiry_date, state, created_at, updated_at`

// CampaignRepository handles campaign data operations
type CampaignRepository struct {
	db DBExecutor
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db DBExecutor) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// CreateCampaign creates a new campaign
func (r *CampaignRepository) CreateCampaign(ctx context.Context, campaign *model.Campaign) error {
	query := `
		INSERT INTO campaigns (id, name, description, discount_rate, min_purchase_amount, max_discount_amount,
			total_uses, remaining_uses, expiry_date, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	now := time.Now()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		campaign.ID, campaign.Name, campaign.Description, campaign.DiscountRate,
		campaign.MinPurchaseAmount, campaign.MaxDiscountAmount, campaign.TotalUses,
		campaign.RemainingUses, campaign.ExpiryDate, campaign.State,
		campaign.CreatedAt, campaign.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetCampaign retrieves a campaign by ID
func (r *CampaignRepository) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	var campaign model.Campaign
	err := r.db.GetContext(ctx, &campaign, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("campaign %s not found", id))
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

// GetCampaignForUpdate retrieves a campaign using SELECT FOR UPDATE
func (r *CampaignRepository) GetCampaignForUpdate(ctx context.Context, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1 FOR UPDATE`

	var campaign model.Campaign
	err := r.db.GetContext(ctx, &campaign, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("campaign %s not found", id))
		}
		return nil, fmt.Errorf("failed to lock campaign: %w", err)
	}

	return &campaign, nil
}

// ListCampaigns retrieves all campaigns, newest first
func (r *CampaignRepository) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at DESC, id DESC`

	campaigns := []model.Campaign{}
	if err := r.db.SelectContext(ctx, &campaigns, query); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	return campaigns, nil
}

// UpdateCampaign rewrites the editable fields of a campaign
func (r *CampaignRepository) UpdateCampaign(ctx context.Context, campaign *model.Campaign) error {
	query := `
		UPDATE campaigns
		SET name = $1, description = $2, discount_rate = $3, min_purchase_amount = $4,
			max_discount_amount = $5, expiry_date = $6, state = $7, updated_at = $8
		WHERE id = $9
	`

	campaign.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query,
		campaign.Name, campaign.Description, campaign.DiscountRate, campaign.MinPurchaseAmount,
		campaign.MaxDiscountAmount, campaign.ExpiryDate, campaign.State, campaign.UpdatedAt,
		campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}

	changed, err := changedOne(result)
	if err != nil {
		return err
	}
	if !changed {
		return model.NewError(model.ReasonNotFound, fmt.Sprintf("campaign %s not found", campaign.ID))
	}

	return nil
}

// DeleteCampaign removes a campaign together with its codes
func (r *CampaignRepository) DeleteCampaign(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM codes WHERE campaign_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete campaign codes: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	return nil
}

// DecrementRemaining takes one unit of budget if the campaign can still be redeemed
func (r *CampaignRepository) DecrementRemaining(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE campaigns
		SET remaining_uses = remaining_uses - 1, updated_at = $1
		WHERE id = $2 AND remaining_uses > 0 AND state = 'active' AND expiry_date > $1
	`

	result, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to decrement remaining uses: %w", err)
	}

	return changedOne(result)
}

// IncrementRemaining gives back one unit of budget without exceeding total_uses
func (r *CampaignRepository) IncrementRemaining(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE campaigns
		SET remaining_uses = remaining_uses + 1, updated_at = $1
		WHERE id = $2 AND remaining_uses < total_uses
	`

	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to increment remaining uses: %w", err)
	}

	return changedOne(result)
}

// AddUses grows both counters, used when extra codes are issued
func (r *CampaignRepository) AddUses(ctx context.Context, id string, n int) error {
	query := `
		UPDATE campaigns
		SET total_uses = total_uses + $1, remaining_uses = remaining_uses + $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, n, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to add campaign uses: %w", err)
	}

	changed, err := changedOne(result)
	if err != nil {
		return err
	}
	if !changed {
		return model.NewError(model.ReasonNotFound, fmt.Sprintf("campaign %s not found", id))
	}

	return nil
}

// SetRemaining overwrites remaining_uses, clamped to the campaign's total
func (r *CampaignRepository) SetRemaining(ctx context.Context, id string, remaining int) error {
	query := `
		UPDATE campaigns
		SET remaining_uses = LEAST(GREATEST($1, 0), total_uses), updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, remaining, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set remaining uses: %w", err)
	}

	changed, err := changedOne(result)
	if err != nil {
		return err
	}
	if !changed {
		return model.NewError(model.ReasonNotFound, fmt.Sprintf("campaign %s not found", id))
	}

	return nil
}

// changedOne reports whether the statement touched a row
func changedOne(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
