package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// ParticipantRepository handles participant data operations
type ParticipantRepository struct {
	db DBExecutor
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(db DBExecutor) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// CreateParticipant creates a new participant
func (r *ParticipantRepository) CreateParticipant(ctx context.Context, participant *model.Participant) error {
	query := `
		INSERT INTO participants (id, first_name, last_name, email, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if participant.CreatedAt.IsZero() {
		participant.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		participant.ID, participant.FirstName, participant.LastName,
		participant.Email, participant.Phone, participant.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}

	return nil
}

// DeleteParticipant removes a participant; deleting a missing row is not an error
func (r *ParticipantRepository) DeleteParticipant(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}

	return nil
}

// CountParticipants counts all participants
func (r *ParticipantRepository) CountParticipants(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM participants`); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}

	return count, nil
}

const participationViewQuery = `
		SELECT p.id, p.participant_id, p.campaign_id, p.code_id, p.reverted_at, p.created_at,
			pt.first_name, pt.last_name, pt.email, pt.phone,
			c.name AS campaign_name, q.slug AS code_slug, q.is_used, q.used_at
		FROM participations p
		JOIN participants pt ON pt.id = p.participant_id
		JOIN campaigns c ON c.id = p.campaign_id
		JOIN codes q ON q.id = p.code_id
`

// ParticipationRepository handles participation data operations
type ParticipationRepository struct {
	db DBExecutor
}

// NewParticipationRepository creates a new participation repository
func NewParticipationRepository(db DBExecutor) *ParticipationRepository {
	return &ParticipationRepository{db: db}
}

// CreateParticipation links a participant to a campaign and a code
func (r *ParticipationRepository) CreateParticipation(ctx context.Context, participation *model.Participation) error {
	query := `
		INSERT INTO participations (id, participant_id, campaign_id, code_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if participation.CreatedAt.IsZero() {
		participation.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		participation.ID, participation.ParticipantID, participation.CampaignID,
		participation.CodeID, participation.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.WrapError(model.ReasonAlreadyUsed,
				fmt.Sprintf("code %s already has a participation", participation.CodeID), err)
		}
		return fmt.Errorf("failed to create participation: %w", err)
	}

	return nil
}

// DeleteParticipation removes a participation; deleting a missing row is not an error
func (r *ParticipationRepository) DeleteParticipation(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM participations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete participation: %w", err)
	}

	return nil
}

// GetParticipation retrieves a participation with its joined details
func (r *ParticipationRepository) GetParticipation(ctx context.Context, id string) (*model.ParticipationView, error) {
	query := participationViewQuery + ` WHERE p.id = $1`

	var view model.ParticipationView
	err := r.db.GetContext(ctx, &view, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("participation %s not found", id))
		}
		return nil, fmt.Errorf("failed to get participation: %w", err)
	}

	return &view, nil
}

// GetParticipationByCode retrieves the participation that references a code
func (r *ParticipationRepository) GetParticipationByCode(ctx context.Context, codeID string) (*model.Participation, error) {
	query := `
		SELECT id, participant_id, campaign_id, code_id, reverted_at, created_at
		FROM participations
		WHERE code_id = $1
	`

	var participation model.Participation
	err := r.db.GetContext(ctx, &participation, query, codeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("no participation for code %s", codeID))
		}
		return nil, fmt.Errorf("failed to get participation by code: %w", err)
	}

	return &participation, nil
}

// ListParticipations retrieves participations newest first, optionally for one campaign
func (r *ParticipationRepository) ListParticipations(ctx context.Context, campaignID string) ([]model.ParticipationView, error) {
	views := []model.ParticipationView{}

	var err error
	if campaignID == "" {
		err = r.db.SelectContext(ctx, &views, participationViewQuery+` ORDER BY p.created_at DESC, p.id DESC`)
	} else {
		err = r.db.SelectContext(ctx, &views,
			participationViewQuery+` WHERE p.campaign_id = $1 ORDER BY p.created_at DESC, p.id DESC`, campaignID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list participations: %w", err)
	}

	return views, nil
}

// SetReverted stamps or clears the reversal time of a participation
func (r *ParticipationRepository) SetReverted(ctx context.Context, id string, at *time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE participations SET reverted_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to update participation: %w", err)
	}

	changed, err := changedOne(result)
	if err != nil {
		return err
	}
	if !changed {
		return model.NewError(model.ReasonNotFound, fmt.Sprintf("participation %s not found", id))
	}

	return nil
}

// UsageByCampaign aggregates participation usage per campaign
func (r *ParticipationRepository) UsageByCampaign(ctx context.Context) ([]store.CampaignUsage, error) {
	query := `
		SELECT p.campaign_id,
			COUNT(*) AS participations,
			COUNT(*) FILTER (WHERE q.is_used) AS used,
			COUNT(*) FILTER (WHERE NOT q.is_used AND p.reverted_at IS NOT NULL) AS reverted
		FROM participations p
		JOIN codes q ON q.id = p.code_id
		GROUP BY p.campaign_id
		ORDER BY p.campaign_id
	`

	usage := []store.CampaignUsage{}
	if err := r.db.SelectContext(ctx, &usage, query); err != nil {
		return nil, fmt.Errorf("failed to aggregate participations: %w", err)
	}

	return usage, nil
}

// ListOrphans retrieves unreverted participations whose code was never claimed
func (r *ParticipationRepository) ListOrphans(ctx context.Context, campaignID string, createdBefore time.Time) ([]model.Participation, error) {
	query := `
		SELECT p.id, p.participant_id, p.campaign_id, p.code_id, p.reverted_at, p.created_at
		FROM participations p
		JOIN codes q ON q.id = p.code_id
		WHERE p.campaign_id = $1 AND q.is_used = FALSE AND p.reverted_at IS NULL AND p.created_at < $2
		ORDER BY p.id
	`

	orphans := []model.Participation{}
	if err := r.db.SelectContext(ctx, &orphans, query, campaignID, createdBefore); err != nil {
		return nil, fmt.Errorf("failed to list orphan participations: %w", err)
	}

	return orphans, nil
}
