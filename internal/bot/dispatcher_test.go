package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-relay/internal/config"
	"github.com/spec-kit/support-relay/internal/domain"
	"github.com/spec-kit/support-relay/internal/events"
	"github.com/spec-kit/support-relay/internal/gateway"
	"github.com/spec-kit/support-relay/internal/observability"
	"github.com/spec-kit/support-relay/internal/repository"
	"github.com/spec-kit/support-relay/internal/service"
	"github.com/spec-kit/support-relay/internal/session"
)

type recordingGateway struct {
	mu        sync.Mutex
	delivered map[string][]gateway.OutboundMessage
	nextRef   int
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{delivered: make(map[string][]gateway.OutboundMessage)}
}

func (g *recordingGateway) Deliver(ctx context.Context, recipientID string, msg gateway.OutboundMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delivered[recipientID] = append(g.delivered[recipientID], msg)
	return nil
}

func (g *recordingGateway) PostAnnouncement(ctx context.Context, ann gateway.Announcement) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextRef++
	return fmt.Sprintf("ann-%d", g.nextRef), nil
}

func (g *recordingGateway) UpdateAnnouncement(ctx context.Context, channelID, ref string, aff domain.AnnouncementAffordance) error {
	return nil
}

func (g *recordingGateway) lastTo(recipientID string) (gateway.OutboundMessage, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msgs := g.delivered[recipientID]
	if len(msgs) == 0 {
		return gateway.OutboundMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

type fixture struct {
	dispatcher *Dispatcher
	gateway    *recordingGateway
	sessions   *session.MemoryStore
	tickets    *repository.MemoryTicketRepository
	staffRepo  *repository.MemoryStaffRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := newRecordingGateway()
	sessions := session.NewMemoryStore(30*time.Minute, 100)
	ticketRepo := repository.NewMemoryTicketRepository()
	responseRepo := repository.NewMemoryResponseRepository()
	staffRepo := repository.NewMemoryStaffRepository()
	bus := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	cfg := config.GatewayConfig{
		SupportChannelID:   "support-channel",
		FeedbackChannelID:  "feedback-channel",
		TicketNumberPrefix: "BH",
		AdminIDs:           []string{"admin-1"},
	}

	staffService := service.NewStaffService(staffRepo, gw, cfg, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		StaffRepo:    staffRepo,
		Dispatcher:   bus,
		NumberPrefix: cfg.TicketNumberPrefix,
		Clock:        func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) },
	})
	claimService := service.NewClaimService(ticketRepo, staffService, bus)
	relayService := service.NewRelayService(service.RelayDependencies{
		TicketRepo:   ticketRepo,
		ResponseRepo: responseRepo,
		Gateway:      gw,
		Dispatcher:   bus,
		Metrics:      metrics,
		Logger:       logger,
	})
	lifecycleService := service.NewLifecycleService(ticketRepo, bus, nil)
	feedbackService := service.NewFeedbackService(ticketRepo, bus)

	notifier := service.NewNotifierService(ticketRepo, gw, cfg, logger)
	notifier.RegisterHandlers(bus)

	d := NewDispatcher(Dependencies{
		Sessions:  sessions,
		Tickets:   ticketService,
		Claims:    claimService,
		Relay:     relayService,
		Lifecycle: lifecycleService,
		Feedback:  feedbackService,
		Staff:     staffService,
		Gateway:   gw,
		Metrics:   metrics,
		Logger:    logger,
	})
	return &fixture{dispatcher: d, gateway: gw, sessions: sessions, tickets: ticketRepo, staffRepo: staffRepo}
}

func textEvent(senderID, text string) gateway.InboundEvent {
	return gateway.InboundEvent{
		SenderID:   senderID,
		SenderName: "Dana",
		Content:    domain.Content{Kind: domain.ContentText, Text: text},
	}
}

func TestClassify_Precedence(t *testing.T) {
	waiting := session.NewIdle("u")
	waiting.State = session.StateAwaitingIssueText

	cases := []struct {
		name string
		ev   gateway.InboundEvent
		sess *session.Session
		want EventClass
	}{
		{
			name: "action beats command text",
			ev: gateway.InboundEvent{
				SenderID: "u",
				Content:  domain.Content{Kind: domain.ContentText, Text: "/close"},
				Action:   &gateway.Action{Kind: gateway.ActionClaim, TicketID: "t1"},
			},
			sess: waiting,
			want: ClassAction,
		},
		{
			name: "command beats wait state",
			ev:   textEvent("u", "/cancel"),
			sess: waiting,
			want: ClassCommand,
		},
		{
			name: "wait state beats relay",
			ev:   textEvent("u", "my app keeps crashing"),
			sess: waiting,
			want: ClassWaitState,
		},
		{
			name: "idle text is relay traffic",
			ev:   textEvent("u", "hello"),
			sess: session.NewIdle("u"),
			want: ClassRelay,
		},
		{
			name: "media can carry no command",
			ev: gateway.InboundEvent{
				SenderID: "u",
				Content:  domain.Content{Kind: domain.ContentImage, MediaRef: "m1"},
			},
			sess: session.NewIdle("u"),
			want: ClassRelay,
		},
		{
			name: "unsupported kind is still relay traffic",
			ev: gateway.InboundEvent{
				SenderID: "u",
				Content:  domain.Content{Kind: "POLL"},
			},
			sess: session.NewIdle("u"),
			want: ClassRelay,
		},
		{
			name: "empty event gets the help text",
			ev:   gateway.InboundEvent{SenderID: "u"},
			sess: session.NewIdle("u"),
			want: ClassHelp,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.ev, tc.sess))
		})
	}
}

func TestParseCommand(t *testing.T) {
	cmd, args, ok := ParseCommand(domain.Content{Kind: domain.ContentText, Text: "  /enroll agent-7 Sam  "})
	require.True(t, ok)
	assert.Equal(t, "/enroll", cmd)
	assert.Equal(t, "agent-7 Sam", args)

	_, _, ok = ParseCommand(domain.Content{Kind: domain.ContentText, Text: "no slash here"})
	assert.False(t, ok)

	_, _, ok = ParseCommand(domain.Content{Kind: domain.ContentImage, Caption: "/close"})
	assert.False(t, ok)
}

func TestDispatcher_GuidedTicketCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "/new")))
	reply, ok := f.gateway.lastTo("user-1")
	require.True(t, ok)
	assert.Contains(t, reply.Content.Text, "category")

	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "error")))
	reply, _ = f.gateway.lastTo("user-1")
	assert.Contains(t, reply.Content.Text, "urgent")

	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "high")))
	reply, _ = f.gateway.lastTo("user-1")
	assert.Contains(t, reply.Content.Text, "Describe")

	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "login page loops forever")))
	reply, _ = f.gateway.lastTo("user-1")
	assert.Contains(t, reply.Content.Text, "BH-20240301-0001")

	sess, err := f.sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, sess.State)

	created, err := f.tickets.UnresolvedByRequester(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketCategoryError, created.Category)
	assert.Equal(t, domain.TicketPriorityHigh, created.Priority)
	assert.Equal(t, "login page loops forever", created.Issue)
}

func TestDispatcher_InvalidCategoryRepromptsWithoutLosingState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "/new")))
	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "urgent")))

	sess, err := f.sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateSelectingCategory, sess.State)
}

func TestDispatcher_CancelAbortsDialogue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "/new")))
	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "/cancel")))

	sess, err := f.sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, sess.State)
}

func TestDispatcher_ClaimActionThenRelayBothWays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket := &domain.Ticket{
		RequesterID: "user-1",
		Number:      "BH-20240301-0001",
		Status:      domain.TicketStatusOpen,
		CreatedAt:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.tickets.Seed(ticket)

	claim := gateway.InboundEvent{
		SenderID: "admin-1",
		Content:  domain.Content{Kind: domain.ContentText},
		Action:   &gateway.Action{Kind: gateway.ActionClaim, TicketID: ticket.ID},
	}
	require.NoError(t, f.dispatcher.HandleEvent(ctx, claim))

	briefing, ok := f.gateway.lastTo("admin-1")
	require.True(t, ok)
	assert.Contains(t, briefing.Content.Text, ticket.Number)

	// agent replies, requester receives
	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("admin-1", "looking into it")))
	toRequester, ok := f.gateway.lastTo("user-1")
	require.True(t, ok)
	assert.Contains(t, toRequester.Content.Text, "looking into it")

	// requester replies, agent receives
	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "thank you")))
	toAgent, _ := f.gateway.lastTo("admin-1")
	assert.Contains(t, toAgent.Content.Text, "thank you")
}

func TestDispatcher_UnsupportedKindOnActiveTicketReportsRefusal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claimant := "admin-1"
	f.tickets.Seed(&domain.Ticket{
		RequesterID:       "user-1",
		Number:            "BH-20240301-0001",
		Status:            domain.TicketStatusInProgress,
		ClaimantID:        &claimant,
		CanRequesterClose: true,
		CreatedAt:         time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	})

	poll := gateway.InboundEvent{
		SenderID: "user-1",
		Content:  domain.Content{Kind: "POLL"},
	}
	require.NoError(t, f.dispatcher.HandleEvent(ctx, poll))

	reply, ok := f.gateway.lastTo("user-1")
	require.True(t, ok)
	assert.Contains(t, reply.Content.Text, "no forwarding mapping")

	// Nothing crossed over to the agent.
	_, delivered := f.gateway.lastTo("admin-1")
	assert.False(t, delivered)
}

func TestDispatcher_UnsupportedKindWithoutTicketSuggestsNew(t *testing.T) {
	f := newFixture(t)

	poll := gateway.InboundEvent{
		SenderID: "user-1",
		Content:  domain.Content{Kind: "POLL"},
	}
	require.NoError(t, f.dispatcher.HandleEvent(context.Background(), poll))

	reply, ok := f.gateway.lastTo("user-1")
	require.True(t, ok)
	assert.Contains(t, reply.Content.Text, "/new")
}

func TestDispatcher_RelayWithoutTicketSuggestsNew(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.dispatcher.HandleEvent(context.Background(), textEvent("user-1", "is anyone there")))
	reply, ok := f.gateway.lastTo("user-1")
	require.True(t, ok)
	assert.Contains(t, reply.Content.Text, "/new")
}

func TestDispatcher_RateActionThenComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closedAt := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{
		RequesterID:   "user-1",
		RequesterName: "Dana",
		Number:        "BH-20240301-0001",
		Status:        domain.TicketStatusClosed,
		CreatedAt:     closedAt.Add(-time.Hour),
		ClosedAt:      &closedAt,
	}
	f.tickets.Seed(ticket)

	rate := gateway.InboundEvent{
		SenderID: "user-1",
		Content:  domain.Content{Kind: domain.ContentText},
		Action:   &gateway.Action{Kind: gateway.ActionRate, TicketID: ticket.ID, Rating: 8},
	}
	require.NoError(t, f.dispatcher.HandleEvent(ctx, rate))

	sess, err := f.sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingFeedbackComment, sess.State)
	assert.Equal(t, 8, sess.FeedbackRating)

	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "quick and friendly")))

	review, ok := f.gateway.lastTo("feedback-channel")
	require.True(t, ok)
	assert.Contains(t, review.Content.Text, "8/10")
	assert.Contains(t, review.Content.Text, "quick and friendly")

	stored, err := f.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, stored.FeedbackProvided)
}

func TestDispatcher_SkipInsideCommentStatePublishesRatingOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closedAt := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{
		RequesterID: "user-1",
		Number:      "BH-20240301-0001",
		Status:      domain.TicketStatusClosed,
		CreatedAt:   closedAt.Add(-time.Hour),
		ClosedAt:    &closedAt,
	}
	f.tickets.Seed(ticket)

	rate := gateway.InboundEvent{
		SenderID: "user-1",
		Content:  domain.Content{Kind: domain.ContentText},
		Action:   &gateway.Action{Kind: gateway.ActionRate, TicketID: ticket.ID, Rating: 6},
	}
	require.NoError(t, f.dispatcher.HandleEvent(ctx, rate))
	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "/skip")))

	review, ok := f.gateway.lastTo("feedback-channel")
	require.True(t, ok)
	assert.Contains(t, review.Content.Text, "6/10")

	sess, err := f.sessions.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, sess.State)
}

func TestDispatcher_CloseCommandByRequester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claimant := "admin-1"
	ticket := &domain.Ticket{
		RequesterID:       "user-1",
		Number:            "BH-20240301-0001",
		Status:            domain.TicketStatusInProgress,
		ClaimantID:        &claimant,
		CanRequesterClose: true,
		CreatedAt:         time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.tickets.Seed(ticket)

	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("user-1", "/close")))

	stored, err := f.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status)

	// close confirmation plus the rating prompt
	msgs := f.gateway.delivered["user-1"]
	require.NotEmpty(t, msgs)
	var sawClosed bool
	for _, m := range msgs {
		if strings.Contains(m.Content.Text, "closed") {
			sawClosed = true
		}
	}
	assert.True(t, sawClosed)
}

func TestDispatcher_EnrollFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("admin-1", "/enroll")))
	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("admin-1", "agent-7 Sam Miller")))

	exists, err := f.staffRepo.Exists(ctx, "agent-7")
	require.NoError(t, err)
	assert.True(t, exists)

	staff, err := f.staffRepo.GetByID(ctx, "agent-7")
	require.NoError(t, err)
	assert.Equal(t, "Sam Miller", staff.DisplayName)
}

func TestDispatcher_EnrollRejectedForNonAdmin(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.dispatcher.HandleEvent(context.Background(), textEvent("user-1", "/enroll")))
	reply, ok := f.gateway.lastTo("user-1")
	require.True(t, ok)
	assert.Contains(t, reply.Content.Text, "admins")
}

func TestDispatcher_SolvedAndUnsolvedQueues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	rating := 9
	closedAt := base.Add(time.Hour)
	f.tickets.Seed(&domain.Ticket{
		RequesterID:   "user-1",
		RequesterName: "Dana",
		Number:        "BH-20240301-0001",
		Category:      domain.TicketCategoryError,
		Status:        domain.TicketStatusClosed,
		CreatedAt:     base,
		ClosedAt:      &closedAt,
		Rating:        &rating,
	})
	f.tickets.Seed(&domain.Ticket{
		RequesterID:   "user-2",
		RequesterName: "Lee",
		Number:        "BH-20240301-0002",
		Priority:      domain.TicketPriorityLow,
		Status:        domain.TicketStatusOpen,
		CreatedAt:     base.Add(time.Minute),
	})
	f.tickets.Seed(&domain.Ticket{
		RequesterID:   "user-3",
		RequesterName: "Kim",
		Number:        "BH-20240301-0003",
		Priority:      domain.TicketPriorityCritical,
		Status:        domain.TicketStatusInProgress,
		CreatedAt:     base.Add(2 * time.Minute),
	})

	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("admin-1", "/solved")))
	reply, ok := f.gateway.lastTo("admin-1")
	require.True(t, ok)
	assert.Contains(t, reply.Content.Text, "BH-20240301-0001")
	assert.Contains(t, reply.Content.Text, "rated 9/10")
	assert.NotContains(t, reply.Content.Text, "BH-20240301-0002")

	require.NoError(t, f.dispatcher.HandleEvent(ctx, textEvent("admin-1", "/unsolved")))
	reply, _ = f.gateway.lastTo("admin-1")
	critical := strings.Index(reply.Content.Text, "BH-20240301-0003")
	low := strings.Index(reply.Content.Text, "BH-20240301-0002")
	require.GreaterOrEqual(t, critical, 0)
	require.GreaterOrEqual(t, low, 0)
	assert.Less(t, critical, low)
	assert.NotContains(t, reply.Content.Text, "BH-20240301-0001")
}

func TestDispatcher_QueueCommandsRequireStaff(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.dispatcher.HandleEvent(context.Background(), textEvent("user-1", "/unsolved")))
	reply, ok := f.gateway.lastTo("user-1")
	require.True(t, ok)
	assert.Contains(t, reply.Content.Text, "support staff")
}
