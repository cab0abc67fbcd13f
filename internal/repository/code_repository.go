package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kkkkikiki/redemption/internal/model"
)

const codeColumns = `id, campaign_id, slug, is_used, used_at, expires_at, created_at`

// CodeRepository handles code data operations
type CodeRepository struct {
	db DBExecutor
}

// NewCodeRepository creates a new code repository
func NewCodeRepository(db DBExecutor) *CodeRepository {
	return &CodeRepository{db: db}
}

// InsertCodes creates codes in batches, skipping slugs that already exist
func (r *CodeRepository) InsertCodes(ctx context.Context, codes []model.Code) ([]string, error) {
	now := time.Now()

	// Stay well below the PostgreSQL bind parameter limit
	batchSize := 1000

	inserted := make([]string, 0, len(codes))
	for i := 0; i < len(codes); i += batchSize {
		end := i + batchSize
		if end > len(codes) {
			end = len(codes)
		}

		ids, err := r.insertCodeBatch(ctx, codes[i:end], now)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert code batch: %w", err)
		}
		inserted = append(inserted, ids...)
	}

	return inserted, nil
}

// insertCodeBatch inserts a batch of codes using a single query
func (r *CodeRepository) insertCodeBatch(ctx context.Context, codes []model.Code, createdAt time.Time) ([]string, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	valuesClause := make([]string, len(codes))
	args := make([]interface{}, 0, len(codes)*5)

	for i, code := range codes {
		valuesClause[i] = fmt.Sprintf("($%d, $%d, $%d, FALSE, $%d, $%d)",
			i*5+1, i*5+2, i*5+3, i*5+4, i*5+5)
		args = append(args, code.ID, code.CampaignID, code.Slug, code.ExpiresAt, createdAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO codes (id, campaign_id, slug, is_used, expires_at, created_at)
		VALUES %s
		ON CONFLICT (slug) DO NOTHING
		RETURNING id
	`, strings.Join(valuesClause, ", "))

	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to execute batch insert: %w", err)
	}

	return ids, nil
}

// GetCode retrieves a code by ID
func (r *CodeRepository) GetCode(ctx context.Context, id string) (*model.Code, error) {
	return r.getCode(ctx, `SELECT `+codeColumns+` FROM codes WHERE id = $1`, id)
}

// GetCodeBySlug retrieves a code by its public slug
func (r *CodeRepository) GetCodeBySlug(ctx context.Context, slug string) (*model.Code, error) {
	return r.getCode(ctx, `SELECT `+codeColumns+` FROM codes WHERE slug = $1`, slug)
}

func (r *CodeRepository) getCode(ctx context.Context, query string, key string) (*model.Code, error) {
	var code model.Code
	err := r.db.GetContext(ctx, &code, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("code %q not found", key))
		}
		return nil, fmt.Errorf("failed to get code: %w", err)
	}

	return &code, nil
}

// ListCodes retrieves the codes of a campaign in issuance order
func (r *CodeRepository) ListCodes(ctx context.Context, campaignID string, filter model.CodeFilter) ([]model.Code, error) {
	query := `SELECT ` + codeColumns + ` FROM codes WHERE campaign_id = $1`
	switch filter {
	case model.CodeFilterUsed:
		query += ` AND is_used = TRUE`
	case model.CodeFilterUnused:
		query += ` AND is_used = FALSE`
	}
	query += ` ORDER BY created_at ASC, slug ASC`

	codes := []model.Code{}
	if err := r.db.SelectContext(ctx, &codes, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}

	return codes, nil
}

// ClaimCode flips a code from unused to used if it has not expired
func (r *CodeRepository) ClaimCode(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE codes
		SET is_used = TRUE, used_at = $1
		WHERE id = $2 AND is_used = FALSE AND expires_at > $1
	`

	result, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim code: %w", err)
	}

	return changedOne(result)
}

// UnclaimCode flips a code from used back to unused
func (r *CodeRepository) UnclaimCode(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE codes
		SET is_used = FALSE, used_at = NULL
		WHERE id = $1 AND is_used = TRUE
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to unclaim code: %w", err)
	}

	return changedOne(result)
}

// CountCodes counts all codes and the used ones
func (r *CodeRepository) CountCodes(ctx context.Context) (int, int, error) {
	query := `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE is_used) AS used FROM codes`

	var counts struct {
		Total int `db:"total"`
		Used  int `db:"used"`
	}
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		return 0, 0, fmt.Errorf("failed to count codes: %w", err)
	}

	return counts.Total, counts.Used, nil
}
