package campaign

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/kkkkikiki/redemption/internal/idgen"
	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store"
)

// SlugAlphabet leaves out characters that read alike: 0/O, 1/I/L
const SlugAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const (
	insertBatch    = 1000
	maxSlugRetries = 5
)

// SlugFunc returns a fresh candidate slug
type SlugFunc func() (string, error)

// NanoidSlugs draws slugs of the given length from SlugAlphabet
func NanoidSlugs(length int) SlugFunc {
	return func() (string, error) {
		return gonanoid.Generate(SlugAlphabet, length)
	}
}

// Minter creates codes with unique slugs
type Minter struct {
	ids   idgen.Generator
	slugs SlugFunc
}

// NewMinter creates a minter
func NewMinter(ids idgen.Generator, slugs SlugFunc) *Minter {
	return &Minter{ids: ids, slugs: slugs}
}

// Mint inserts n unused codes for the campaign, each expiring with the
// campaign's current expiry. Slugs that collide with existing codes are
// drawn again.
func (m *Minter) Mint(ctx context.Context, codes store.Codes, campaign *model.Campaign, n int, now time.Time) ([]model.Code, error) {
	minted := make([]model.Code, 0, n)

	for start := 0; start < n; start += insertBatch {
		size := min(insertBatch, n-start)
		batch, err := m.mintBatch(ctx, codes, campaign, size, now)
		if err != nil {
			return minted, err
		}
		minted = append(minted, batch...)
	}
	return minted, nil
}

func (m *Minter) mintBatch(ctx context.Context, codes store.Codes, campaign *model.Campaign, size int, now time.Time) ([]model.Code, error) {
	minted := make([]model.Code, 0, size)
	pending := size

	for attempt := 0; pending > 0; attempt++ {
		if attempt == maxSlugRetries {
			return minted, fmt.Errorf("failed to mint %d codes for campaign %s: slugs kept colliding", pending, campaign.ID)
		}

		candidates, err := m.candidates(campaign, pending, now)
		if err != nil {
			return minted, err
		}
		inserted, err := codes.InsertCodes(ctx, candidates)
		if err != nil {
			return minted, fmt.Errorf("failed to insert codes: %w", err)
		}

		ok := make(map[string]bool, len(inserted))
		for _, id := range inserted {
			ok[id] = true
		}
		for _, c := range candidates {
			if ok[c.ID] {
				minted = append(minted, c)
			}
		}
		pending -= len(inserted)
	}
	return minted, nil
}

// candidates draws n codes whose slugs are distinct from each other
func (m *Minter) candidates(campaign *model.Campaign, n int, now time.Time) ([]model.Code, error) {
	seen := make(map[string]bool, n)
	out := make([]model.Code, 0, n)

	for draws := 0; len(out) < n; draws++ {
		if draws > 10*n+10 {
			return nil, fmt.Errorf("failed to generate %d distinct slugs", n)
		}
		slug, err := m.slugs()
		if err != nil {
			return nil, fmt.Errorf("failed to generate slug: %w", err)
		}
		if seen[slug] {
			continue
		}
		seen[slug] = true
		out = append(out, model.Code{
			ID:         m.ids.NewID(),
			CampaignID: campaign.ID,
			Slug:       slug,
			ExpiresAt:  campaign.ExpiryDate,
			CreatedAt:  now,
		})
	}
	return out, nil
}
