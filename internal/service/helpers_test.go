package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-relay/internal/config"
	"github.com/spec-kit/support-relay/internal/domain"
	"github.com/spec-kit/support-relay/internal/events"
	"github.com/spec-kit/support-relay/internal/gateway"
	"github.com/spec-kit/support-relay/internal/observability"
	"github.com/spec-kit/support-relay/internal/repository"
)

// fakeGateway records everything the engine tries to send.
type fakeGateway struct {
	mu            sync.Mutex
	delivered     []fakeDelivery
	announcements []gateway.Announcement
	updates       []fakeUpdate
	failDeliver   bool
	nextRef       int
}

type fakeDelivery struct {
	RecipientID string
	Message     gateway.OutboundMessage
}

type fakeUpdate struct {
	ChannelID  string
	Ref        string
	Affordance domain.AnnouncementAffordance
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{}
}

func (g *fakeGateway) Deliver(ctx context.Context, recipientID string, msg gateway.OutboundMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failDeliver {
		return errors.New("gateway unreachable")
	}
	g.delivered = append(g.delivered, fakeDelivery{RecipientID: recipientID, Message: msg})
	return nil
}

func (g *fakeGateway) PostAnnouncement(ctx context.Context, ann gateway.Announcement) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.announcements = append(g.announcements, ann)
	g.nextRef++
	return fmt.Sprintf("ann-%d", g.nextRef), nil
}

func (g *fakeGateway) UpdateAnnouncement(ctx context.Context, channelID, ref string, aff domain.AnnouncementAffordance) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates = append(g.updates, fakeUpdate{ChannelID: channelID, Ref: ref, Affordance: aff})
	return nil
}

func (g *fakeGateway) deliveriesTo(recipientID string) []fakeDelivery {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []fakeDelivery
	for _, d := range g.delivered {
		if d.RecipientID == recipientID {
			out = append(out, d)
		}
	}
	return out
}

// eventRecorder keeps published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func recordEvents(dispatcher events.Dispatcher, types ...events.EventType) *eventRecorder {
	rec := &eventRecorder{}
	for _, t := range types {
		dispatcher.Subscribe(t, func(ctx context.Context, ev events.Event) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.events = append(rec.events, ev)
			return nil
		})
	}
	return rec
}

func (r *eventRecorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func zapNop() *zap.Logger {
	return zap.NewNop()
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testGatewayConfig(adminIDs ...string) config.GatewayConfig {
	return config.GatewayConfig{
		SupportChannelID:   "support-channel",
		FeedbackChannelID:  "feedback-channel",
		TicketNumberPrefix: "BH",
		AdminIDs:           adminIDs,
	}
}

func newTicketService(repo repository.TicketRepository, staff repository.StaffRepository, dispatcher events.Dispatcher, clock func() time.Time) *TicketService {
	return NewTicketService(TicketDependencies{
		TicketRepo:   repo,
		StaffRepo:    staff,
		Dispatcher:   dispatcher,
		NumberPrefix: "BH",
		Clock:        clock,
	})
}

func newRelayService(repo repository.TicketRepository, responses repository.ResponseRepository, gw gateway.Gateway, dispatcher events.Dispatcher) *RelayService {
	return NewRelayService(RelayDependencies{
		TicketRepo:   repo,
		ResponseRepo: responses,
		Gateway:      gw,
		Dispatcher:   dispatcher,
		Metrics:      observability.NewMetrics(),
		Logger:       zap.NewNop(),
	})
}
