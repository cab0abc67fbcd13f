package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBusDispatchesByType(t *testing.T) {
	bus := NewBus()

	var created, all []Event
	bus.Subscribe(CampaignCreated, func(_ context.Context, e Event) { created = append(created, e) })
	bus.SubscribeAll(func(_ context.Context, e Event) { all = append(all, e) })

	bus.Publish(context.Background(), Event{Type: CampaignCreated, CampaignID: "c1"})
	bus.Publish(context.Background(), Event{Type: CodeRedeemed, CampaignID: "c1", CodeID: "q1"})

	assert.Len(t, created, 1)
	assert.Equal(t, "c1", created[0].CampaignID)
	assert.False(t, created[0].At.IsZero())
	assert.Len(t, all, 2)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	unsubscribe := bus.Subscribe(CodeRedeemed, func(context.Context, Event) { calls++ })
	bus.Publish(context.Background(), Event{Type: CodeRedeemed})
	unsubscribe()
	bus.Publish(context.Background(), Event{Type: CodeRedeemed})

	assert.Equal(t, 1, calls)
}

func TestLogHandler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := LogHandler(zap.New(core))

	h(context.Background(), Event{Type: CodeRedeemed, CampaignID: "c1", CodeID: "q1"})
	h(context.Background(), Event{Type: CompensationFailed, CampaignID: "c1", Reason: "EXHAUSTED"})

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, "q1", entries[0].ContextMap()["code_id"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, "EXHAUSTED", entries[1].ContextMap()["reason"])
}
