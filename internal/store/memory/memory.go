// Package memory implements the storage collaborator in process memory.
//
// Every method takes one lock for its whole duration, so the conditional
// writes are atomic relative to each other. The store has no transactions;
// the redemption coordinator falls back to compensation on top of it.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store"
)

// Store holds all redemption state in memory
type Store struct {
	mu sync.RWMutex

	campaigns      map[string]*model.Campaign
	codes          map[string]*model.Code
	slugs          map[string]string
	participants   map[string]*model.Participant
	participations map[string]*model.Participation
	codeRefs       map[string]string
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store
func New() *Store {
	return &Store{
		campaigns:      make(map[string]*model.Campaign),
		codes:          make(map[string]*model.Code),
		slugs:          make(map[string]string),
		participants:   make(map[string]*model.Participant),
		participations: make(map[string]*model.Participation),
		codeRefs:       make(map[string]string),
	}
}

func (s *Store) Campaigns() store.Campaigns           { return campaigns{s} }
func (s *Store) Codes() store.Codes                   { return codes{s} }
func (s *Store) Participants() store.Participants     { return participants{s} }
func (s *Store) Participations() store.Participations { return participations{s} }

type campaigns struct{ s *Store }

func (r campaigns) CreateCampaign(_ context.Context, campaign *model.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.campaigns[campaign.ID]; ok {
		return fmt.Errorf("campaign %s already exists", campaign.ID)
	}
	now := time.Now()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	c := *campaign
	r.s.campaigns[c.ID] = &c
	return nil
}

func (r campaigns) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("campaign %s not found", id))
	}
	out := *c
	return &out, nil
}

// GetCampaignForUpdate is GetCampaign; the store has no row locks
func (r campaigns) GetCampaignForUpdate(ctx context.Context, id string) (*model.Campaign, error) {
	return r.GetCampaign(ctx, id)
}

func (r campaigns) ListCampaigns(_ context.Context) ([]model.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]model.Campaign, 0, len(r.s.campaigns))
	for _, c := range r.s.campaigns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r campaigns) UpdateCampaign(_ context.Context, campaign *model.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[campaign.ID]
	if !ok {
		return model.NewError(model.ReasonNotFound, fmt.Sprintf("campaign %s not found", campaign.ID))
	}
	c.Name = campaign.Name
	c.Description = campaign.Description
	c.DiscountRate = campaign.DiscountRate
	c.MinPurchaseAmount = campaign.MinPurchaseAmount
	c.MaxDiscountAmount = campaign.MaxDiscountAmount
	c.ExpiryDate = campaign.ExpiryDate
	c.State = campaign.State
	c.UpdatedAt = time.Now()
	return nil
}

func (r campaigns) DeleteCampaign(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.campaigns, id)
	for codeID, code := range r.s.codes {
		if code.CampaignID == id {
			delete(r.s.slugs, code.Slug)
			delete(r.s.codes, codeID)
		}
	}
	return nil
}

func (r campaigns) DecrementRemaining(_ context.Context, id string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok || c.RemainingUses <= 0 || c.State != model.CampaignStateActive || !c.ExpiryDate.After(now) {
		return false, nil
	}
	c.RemainingUses--
	c.UpdatedAt = time.Now()
	return true, nil
}

func (r campaigns) IncrementRemaining(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok || c.RemainingUses >= c.TotalUses {
		return false, nil
	}
	c.RemainingUses++
	c.UpdatedAt = time.Now()
	return true, nil
}

func (r campaigns) AddUses(_ context.Context, id string, n int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return model.NewError(model.ReasonNotFound, fmt.Sprintf("campaign %s not found", id))
	}
	c.TotalUses += n
	c.RemainingUses += n
	c.UpdatedAt = time.Now()
	return nil
}

func (r campaigns) SetRemaining(_ context.Context, id string, remaining int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return model.NewError(model.ReasonNotFound, fmt.Sprintf("campaign %s not found", id))
	}
	c.RemainingUses = min(max(remaining, 0), c.TotalUses)
	c.UpdatedAt = time.Now()
	return nil
}

type codes struct{ s *Store }

func (r codes) InsertCodes(_ context.Context, batch []model.Code) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inserted := make([]string, 0, len(batch))
	now := time.Now()
	for _, code := range batch {
		if _, taken := r.s.slugs[code.Slug]; taken {
			continue
		}
		if _, ok := r.s.campaigns[code.CampaignID]; !ok {
			return inserted, model.NewError(model.ReasonNotFound, fmt.Sprintf("campaign %s not found", code.CampaignID))
		}
		c := code
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		r.s.codes[c.ID] = &c
		r.s.slugs[c.Slug] = c.ID
		inserted = append(inserted, c.ID)
	}
	return inserted, nil
}

func (r codes) GetCode(_ context.Context, id string) (*model.Code, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.codes[id]
	if !ok {
		return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("code %s not found", id))
	}
	return copyCode(c), nil
}

func (r codes) GetCodeBySlug(_ context.Context, slug string) (*model.Code, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.slugs[slug]
	if !ok {
		return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("code %q not found", slug))
	}
	return copyCode(r.s.codes[id]), nil
}

func (r codes) ListCodes(_ context.Context, campaignID string, filter model.CodeFilter) ([]model.Code, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]model.Code, 0)
	for _, c := range r.s.codes {
		if c.CampaignID == campaignID && filter.Match(c) {
			out = append(out, *copyCode(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Slug < out[j].Slug
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r codes) ClaimCode(_ context.Context, id string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.codes[id]
	if !ok || c.IsUsed || !c.ExpiresAt.After(now) {
		return false, nil
	}
	usedAt := now
	c.IsUsed = true
	c.UsedAt = &usedAt
	return true, nil
}

func (r codes) UnclaimCode(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.codes[id]
	if !ok || !c.IsUsed {
		return false, nil
	}
	c.IsUsed = false
	c.UsedAt = nil
	return true, nil
}

func (r codes) CountCodes(_ context.Context) (int, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	used := 0
	for _, c := range r.s.codes {
		if c.IsUsed {
			used++
		}
	}
	return len(r.s.codes), used, nil
}

type participants struct{ s *Store }

func (r participants) CreateParticipant(_ context.Context, participant *model.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if participant.CreatedAt.IsZero() {
		participant.CreatedAt = time.Now()
	}
	p := *participant
	r.s.participants[p.ID] = &p
	return nil
}

func (r participants) DeleteParticipant(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.participants, id)
	return nil
}

func (r participants) CountParticipants(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return len(r.s.participants), nil
}

type participations struct{ s *Store }

func (r participations) CreateParticipation(_ context.Context, participation *model.Participation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.s.codeRefs[participation.CodeID]; taken {
		return model.NewError(model.ReasonAlreadyUsed, fmt.Sprintf("code %s already has a participation", participation.CodeID))
	}
	if _, ok := r.s.participants[participation.ParticipantID]; !ok {
		return fmt.Errorf("participant %s does not exist", participation.ParticipantID)
	}
	if _, ok := r.s.codes[participation.CodeID]; !ok {
		return fmt.Errorf("code %s does not exist", participation.CodeID)
	}
	if participation.CreatedAt.IsZero() {
		participation.CreatedAt = time.Now()
	}
	p := *participation
	r.s.participations[p.ID] = &p
	r.s.codeRefs[p.CodeID] = p.ID
	return nil
}

func (r participations) DeleteParticipation(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if p, ok := r.s.participations[id]; ok {
		delete(r.s.codeRefs, p.CodeID)
		delete(r.s.participations, id)
	}
	return nil
}

func (r participations) GetParticipation(_ context.Context, id string) (*model.ParticipationView, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.participations[id]
	if !ok {
		return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("participation %s not found", id))
	}
	v := r.view(p)
	return &v, nil
}

func (r participations) GetParticipationByCode(_ context.Context, codeID string) (*model.Participation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.codeRefs[codeID]
	if !ok {
		return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("no participation for code %s", codeID))
	}
	p := *r.s.participations[id]
	return &p, nil
}

func (r participations) ListParticipations(_ context.Context, campaignID string) ([]model.ParticipationView, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]model.ParticipationView, 0)
	for _, p := range r.s.participations {
		if campaignID == "" || p.CampaignID == campaignID {
			out = append(out, r.view(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r participations) SetReverted(_ context.Context, id string, at *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.participations[id]
	if !ok {
		return model.NewError(model.ReasonNotFound, fmt.Sprintf("participation %s not found", id))
	}
	if at == nil {
		p.RevertedAt = nil
		return nil
	}
	t := *at
	p.RevertedAt = &t
	return nil
}

func (r participations) UsageByCampaign(_ context.Context) ([]store.CampaignUsage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byCampaign := make(map[string]*store.CampaignUsage)
	for _, p := range r.s.participations {
		u, ok := byCampaign[p.CampaignID]
		if !ok {
			u = &store.CampaignUsage{CampaignID: p.CampaignID}
			byCampaign[p.CampaignID] = u
		}
		u.Participations++
		code := r.s.codes[p.CodeID]
		switch {
		case code != nil && code.IsUsed:
			u.Used++
		case p.RevertedAt != nil:
			u.Reverted++
		}
	}
	out := make([]store.CampaignUsage, 0, len(byCampaign))
	for _, u := range byCampaign {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out, nil
}

func (r participations) ListOrphans(_ context.Context, campaignID string, createdBefore time.Time) ([]model.Participation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]model.Participation, 0)
	for _, p := range r.s.participations {
		if p.CampaignID != campaignID || p.RevertedAt != nil || !p.CreatedAt.Before(createdBefore) {
			continue
		}
		if code := r.s.codes[p.CodeID]; code != nil && code.IsUsed {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// view joins a participation with its participant, campaign and code; callers hold the lock.
func (r participations) view(p *model.Participation) model.ParticipationView {
	v := model.ParticipationView{Participation: *p}
	if person, ok := r.s.participants[p.ParticipantID]; ok {
		v.FirstName = person.FirstName
		v.LastName = person.LastName
		v.Email = person.Email
		v.Phone = person.Phone
	}
	if c, ok := r.s.campaigns[p.CampaignID]; ok {
		v.CampaignName = c.Name
	}
	if code, ok := r.s.codes[p.CodeID]; ok {
		v.CodeSlug = code.Slug
		v.IsUsed = code.IsUsed
		if code.UsedAt != nil {
			t := *code.UsedAt
			v.UsedAt = &t
		}
	}
	return v
}

func copyCode(c *model.Code) *model.Code {
	out := *c
	if c.UsedAt != nil {
		t := *c.UsedAt
		out.UsedAt = &t
	}
	return &out
}
