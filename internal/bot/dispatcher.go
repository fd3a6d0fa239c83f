package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-relay/internal/domain"
	"github.com/spec-kit/support-relay/internal/gateway"
	"github.com/spec-kit/support-relay/internal/observability"
	"github.com/spec-kit/support-relay/internal/service"
	"github.com/spec-kit/support-relay/internal/session"
	apperrors "github.com/spec-kit/support-relay/pkg/util"
)

// EventClass labels how an inbound event was routed. Exposed for
// request metrics.
type EventClass string

const (
	ClassAction    EventClass = "action"
	ClassCommand   EventClass = "command"
	ClassWaitState EventClass = "wait_state"
	ClassRelay     EventClass = "relay"
	ClassHelp      EventClass = "help"
)

// Classify decides how an inbound event should be routed. Structured
// actions win over commands, commands win over the session wait state,
// and any remaining content is relay traffic. Unsupported kinds still
// route to the relay so the sender hears a precise refusal instead of
// the command list; only an empty event gets the help text.
func Classify(ev gateway.InboundEvent, sess *session.Session) EventClass {
	if ev.Action != nil {
		return ClassAction
	}
	if _, _, ok := ParseCommand(ev.Content); ok {
		return ClassCommand
	}
	if sess != nil && sess.State != session.StateIdle {
		return ClassWaitState
	}
	if ev.Content.Kind != "" {
		return ClassRelay
	}
	return ClassHelp
}

// ParseCommand extracts a slash command and its argument tail from
// text content. Only text content can carry commands.
func ParseCommand(content domain.Content) (cmd string, args string, ok bool) {
	if content.Kind != domain.ContentText {
		return "", "", false
	}
	text := strings.TrimSpace(content.Text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	parts := strings.SplitN(text, " ", 2)
	cmd = strings.ToLower(parts[0])
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return cmd, args, true
}

// Dispatcher routes inbound gateway events to the domain services and
// sends the resulting replies back through the gateway.
type Dispatcher struct {
	sessions  session.Store
	tickets   *service.TicketService
	claims    *service.ClaimService
	relay     *service.RelayService
	lifecycle *service.LifecycleService
	feedback  *service.FeedbackService
	staff     *service.StaffService
	gateway   gateway.Gateway
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// Dependencies bundles dispatcher collaborators.
type Dependencies struct {
	Sessions  session.Store
	Tickets   *service.TicketService
	Claims    *service.ClaimService
	Relay     *service.RelayService
	Lifecycle *service.LifecycleService
	Feedback  *service.FeedbackService
	Staff     *service.StaffService
	Gateway   gateway.Gateway
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(deps Dependencies) *Dispatcher {
	return &Dispatcher{
		sessions:  deps.Sessions,
		tickets:   deps.Tickets,
		claims:    deps.Claims,
		relay:     deps.Relay,
		lifecycle: deps.Lifecycle,
		feedback:  deps.Feedback,
		staff:     deps.Staff,
		gateway:   deps.Gateway,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

const helpText = "Commands:\n" +
	"/new - open a support ticket\n" +
	"/tickets - list your recent tickets\n" +
	"/stats - your ticket statistics\n" +
	"/close - close your active ticket\n" +
	"/cancel - abort the current dialogue\n\n" +
	"While a ticket is being handled, anything you send here is relayed to the other side."

// HandleEvent processes one inbound event end to end.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev gateway.InboundEvent) error {
	sess, err := d.sessions.Get(ctx, ev.SenderID)
	if err != nil {
		d.logger.Warn("session lookup failed", zap.String("sender_id", ev.SenderID), zap.Error(err))
		sess = session.NewIdle(ev.SenderID)
	}

	class := Classify(ev, sess)
	if d.metrics != nil {
		d.metrics.RecordEvent(string(class))
	}

	switch class {
	case ClassAction:
		err = d.handleAction(ctx, ev, sess)
	case ClassCommand:
		cmd, args, _ := ParseCommand(ev.Content)
		err = d.handleCommand(ctx, ev, sess, cmd, args)
	case ClassWaitState:
		err = d.handleWaitState(ctx, ev, sess)
	case ClassRelay:
		err = d.handleRelay(ctx, ev)
	default:
		d.reply(ctx, ev.SenderID, helpText)
	}

	if err != nil {
		d.replyError(ctx, ev.SenderID, err)
	}
	return nil
}

func (d *Dispatcher) handleAction(ctx context.Context, ev gateway.InboundEvent, sess *session.Session) error {
	action := ev.Action
	switch action.Kind {
	case gateway.ActionClaim:
		// the briefing is delivered by the notification handlers
		_, err := d.claims.ClaimTicket(ctx, action.TicketID, ev.SenderID)
		return err
	case gateway.ActionRate:
		ticket, err := d.feedback.Rate(ctx, action.TicketID, ev.SenderID, action.Rating)
		if err != nil {
			return err
		}
		sess.State = session.StateAwaitingFeedbackComment
		sess.FeedbackTicketID = ticket.ID
		sess.FeedbackRating = action.Rating
		if err := d.sessions.Put(ctx, sess); err != nil {
			d.logger.Warn("session save failed", zap.String("sender_id", ev.SenderID), zap.Error(err))
		}
		d.reply(ctx, ev.SenderID, "Thanks! Add a short comment about the support you received, or send /skip.")
		return nil
	case gateway.ActionSkipFeedback:
		if err := d.feedback.Skip(ctx, action.TicketID, ev.SenderID); err != nil {
			return err
		}
		d.clearSession(ctx, ev.SenderID)
		d.reply(ctx, ev.SenderID, "All right, no feedback recorded. Thanks for reaching out!")
		return nil
	case gateway.ActionNoop:
		return nil
	default:
		d.logger.Warn("unknown action kind", zap.String("kind", string(action.Kind)))
		return nil
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, ev gateway.InboundEvent, sess *session.Session, cmd, args string) error {
	// A command aborts whatever dialogue was in flight, except /skip
	// which is only meaningful inside the feedback comment state.
	if cmd == "/skip" {
		if sess.State == session.StateAwaitingFeedbackComment {
			return d.finishFeedback(ctx, ev.SenderID, sess, "")
		}
		d.reply(ctx, ev.SenderID, "Nothing to skip right now.")
		return nil
	}
	if sess.State != session.StateIdle {
		d.clearSession(ctx, ev.SenderID)
	}

	switch cmd {
	case "/start", "/help":
		d.reply(ctx, ev.SenderID, "Hi "+ev.SenderName+"! This is the support line.\n\n"+helpText)
		return nil
	case "/new":
		sess = session.NewIdle(ev.SenderID)
		sess.State = session.StateSelectingCategory
		if err := d.sessions.Put(ctx, sess); err != nil {
			return apperrors.NewInternalError(err)
		}
		d.reply(ctx, ev.SenderID, "Let's open a ticket. Pick a category: error, feature, question or other.")
		return nil
	case "/tickets":
		return d.listTickets(ctx, ev.SenderID)
	case "/stats":
		return d.requesterStats(ctx, ev.SenderID)
	case "/adminstats":
		return d.overallStats(ctx, ev.SenderID)
	case "/solved":
		return d.solvedTickets(ctx, ev.SenderID)
	case "/unsolved":
		return d.unsolvedTickets(ctx, ev.SenderID)
	case "/enroll":
		if !d.staff.IsAdmin(ev.SenderID) {
			return apperrors.NewUnauthorized("only admins can enroll support staff")
		}
		sess = session.NewIdle(ev.SenderID)
		sess.State = session.StateAwaitingAgentIDInput
		if err := d.sessions.Put(ctx, sess); err != nil {
			return apperrors.NewInternalError(err)
		}
		d.reply(ctx, ev.SenderID, "Send the new agent as: <id> <display name>")
		return nil
	case "/close":
		return d.closeActive(ctx, ev.SenderID)
	case "/cancel":
		d.reply(ctx, ev.SenderID, "Cancelled.")
		return nil
	default:
		d.reply(ctx, ev.SenderID, "Unknown command.\n\n"+helpText)
		return nil
	}
}

func (d *Dispatcher) handleWaitState(ctx context.Context, ev gateway.InboundEvent, sess *session.Session) error {
	if ev.Content.Kind != domain.ContentText {
		d.reply(ctx, ev.SenderID, "Please answer with text, or send /cancel.")
		return nil
	}
	text := strings.TrimSpace(ev.Content.Text)

	switch sess.State {
	case session.StateSelectingCategory:
		category := domain.TicketCategory(strings.ToUpper(text))
		if !domain.ValidCategory(category) {
			d.reply(ctx, ev.SenderID, "Pick one of: error, feature, question, other.")
			return nil
		}
		sess.Category = category
		sess.State = session.StateSelectingPriority
		if err := d.sessions.Put(ctx, sess); err != nil {
			return apperrors.NewInternalError(err)
		}
		d.reply(ctx, ev.SenderID, "How urgent is it? low, medium, high or critical.")
		return nil

	case session.StateSelectingPriority:
		priority := domain.TicketPriority(strings.ToUpper(text))
		if !domain.ValidPriority(priority) {
			d.reply(ctx, ev.SenderID, "Pick one of: low, medium, high, critical.")
			return nil
		}
		sess.Priority = priority
		sess.State = session.StateAwaitingIssueText
		if err := d.sessions.Put(ctx, sess); err != nil {
			return apperrors.NewInternalError(err)
		}
		d.reply(ctx, ev.SenderID, "Describe the issue in one message.")
		return nil

	case session.StateAwaitingIssueText:
		handle := handlePtr(ev.SenderHandle)
		ticket, err := d.tickets.OpenTicket(ctx, service.TicketCreateInput{
			RequesterID:     ev.SenderID,
			RequesterName:   ev.SenderName,
			RequesterHandle: handle,
			Category:        sess.Category,
			Priority:        sess.Priority,
			Issue:           text,
		})
		if err != nil {
			d.clearSession(ctx, ev.SenderID)
			return err
		}
		d.clearSession(ctx, ev.SenderID)
		d.reply(ctx, ev.SenderID, fmt.Sprintf(
			"Ticket #%s created. Support has been notified; replies will arrive right here.", ticket.Number))
		return nil

	case session.StateAwaitingAgentIDInput:
		parts := strings.SplitN(text, " ", 2)
		agentID := parts[0]
		displayName := agentID
		if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
			displayName = strings.TrimSpace(parts[1])
		}
		staff, err := d.staff.Enroll(ctx, ev.SenderID, agentID, displayName)
		if err != nil {
			d.clearSession(ctx, ev.SenderID)
			return err
		}
		d.clearSession(ctx, ev.SenderID)
		d.reply(ctx, ev.SenderID, fmt.Sprintf("%s (%s) is enrolled as support staff.", staff.DisplayName, staff.AgentID))
		return nil

	case session.StateAwaitingFeedbackComment:
		return d.finishFeedback(ctx, ev.SenderID, sess, text)

	default:
		d.clearSession(ctx, ev.SenderID)
		d.reply(ctx, ev.SenderID, helpText)
		return nil
	}
}

// handleRelay treats plain content as a message inside the sender's
// active conversation. Agents are resolved before requesters so a
// staff member who also filed a ticket relays as the claimant first.
func (d *Dispatcher) handleRelay(ctx context.Context, ev gateway.InboundEvent) error {
	isAgent, err := d.staff.IsAuthorizedAgent(ctx, ev.SenderID)
	if err != nil {
		return err
	}
	if isAgent {
		if _, err := d.relay.RelayFromActive(ctx, domain.RoleAgent, ev.SenderID, ev.Content); err == nil {
			return nil
		} else if !apperrors.IsCode(err, "NO_ACTIVE_TICKET") {
			return err
		}
	}

	_, err = d.relay.RelayFromActive(ctx, domain.RoleRequester, ev.SenderID, ev.Content)
	if apperrors.IsCode(err, "NO_ACTIVE_TICKET") {
		d.reply(ctx, ev.SenderID, "You have no ticket being handled right now. Use /new to open one.")
		return nil
	}
	return err
}

func (d *Dispatcher) finishFeedback(ctx context.Context, senderID string, sess *session.Session, comment string) error {
	ticketID := sess.FeedbackTicketID
	rating := sess.FeedbackRating
	d.clearSession(ctx, senderID)
	if ticketID == "" {
		d.reply(ctx, senderID, "Nothing to skip right now.")
		return nil
	}
	if err := d.feedback.SubmitComment(ctx, ticketID, senderID, rating, comment); err != nil {
		return err
	}
	d.reply(ctx, senderID, "Thanks for the feedback!")
	return nil
}

func (d *Dispatcher) closeActive(ctx context.Context, senderID string) error {
	isAgent, err := d.staff.IsAuthorizedAgent(ctx, senderID)
	if err != nil {
		return err
	}
	if isAgent {
		ticket, err := d.lifecycle.CloseActive(ctx, domain.RoleAgent, senderID)
		if err == nil {
			d.reply(ctx, senderID, fmt.Sprintf("Ticket #%s closed.", ticket.Number))
			return nil
		}
		if !apperrors.IsCode(err, "NO_ACTIVE_TICKET") {
			return err
		}
	}

	ticket, err := d.lifecycle.CloseActive(ctx, domain.RoleRequester, senderID)
	if err != nil {
		if apperrors.IsCode(err, "NO_ACTIVE_TICKET") {
			d.reply(ctx, senderID, "You have no ticket to close.")
			return nil
		}
		return err
	}
	d.reply(ctx, senderID, fmt.Sprintf("Ticket #%s closed.", ticket.Number))
	return nil
}

func (d *Dispatcher) listTickets(ctx context.Context, senderID string) error {
	tickets, err := d.tickets.ListRequesterTickets(ctx, senderID, 10)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		d.reply(ctx, senderID, "You have no tickets yet. Use /new to open one.")
		return nil
	}
	var b strings.Builder
	b.WriteString("Your recent tickets:\n")
	for _, t := range tickets {
		fmt.Fprintf(&b, "#%s  %s  %s/%s  %s\n",
			t.Number, t.Status, t.Category, t.Priority, t.CreatedAt.Format("2006-01-02"))
	}
	d.reply(ctx, senderID, b.String())
	return nil
}

func (d *Dispatcher) requesterStats(ctx context.Context, senderID string) error {
	stats, err := d.tickets.RequesterStats(ctx, senderID)
	if err != nil {
		return err
	}
	d.reply(ctx, senderID, fmt.Sprintf(
		"Your tickets: %d total, %d closed.\nAverage rating you gave: %.1f",
		stats.Total, stats.Closed, stats.AvgRating))
	return nil
}

func (d *Dispatcher) overallStats(ctx context.Context, senderID string) error {
	if !d.staff.IsAdmin(senderID) {
		return apperrors.NewUnauthorized("only admins can view overall statistics")
	}
	stats, staffCount, err := d.tickets.OverallStats(ctx)
	if err != nil {
		return err
	}
	d.reply(ctx, senderID, fmt.Sprintf(
		"Tickets: %d total, %d active, %d closed\nUnique requesters: %d\nSupport staff: %d\nFeedback: %d entries, avg rating %.1f\nAvg time to close: %.0f min",
		stats.Total, stats.Active, stats.Closed, stats.UniqueRequesters, staffCount,
		stats.FeedbackCount, stats.AvgRating, stats.AvgCloseMinutes))
	return nil
}

// solvedTickets shows the latest closed tickets with their ratings.
// Like the rest of the admin panel, the view is open to admins and
// enrolled staff.
func (d *Dispatcher) solvedTickets(ctx context.Context, senderID string) error {
	if err := d.requireAdminPanel(ctx, senderID); err != nil {
		return err
	}
	tickets, err := d.tickets.ListSolved(ctx, 10)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		d.reply(ctx, senderID, "No solved tickets yet.")
		return nil
	}
	var b strings.Builder
	b.WriteString("Recently solved tickets:\n")
	for _, t := range tickets {
		rating := "no feedback"
		if t.Rating != nil {
			rating = fmt.Sprintf("rated %d/10", *t.Rating)
		}
		fmt.Fprintf(&b, "#%s  %s  %s  %s  %s\n",
			t.Number, t.RequesterName, t.Category, rating, t.CreatedAt.Format("2006-01-02"))
	}
	d.reply(ctx, senderID, b.String())
	return nil
}

// unsolvedTickets shows the open queue, most urgent first.
func (d *Dispatcher) unsolvedTickets(ctx context.Context, senderID string) error {
	if err := d.requireAdminPanel(ctx, senderID); err != nil {
		return err
	}
	tickets, err := d.tickets.ListUnsolved(ctx, 10)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		d.reply(ctx, senderID, "All tickets are solved.")
		return nil
	}
	var b strings.Builder
	b.WriteString("Tickets awaiting resolution:\n")
	for _, t := range tickets {
		fmt.Fprintf(&b, "#%s  %s  %s/%s  %s  %s\n",
			t.Number, t.RequesterName, t.Category, t.Priority, t.Status, t.CreatedAt.Format("2006-01-02"))
	}
	d.reply(ctx, senderID, b.String())
	return nil
}

func (d *Dispatcher) requireAdminPanel(ctx context.Context, senderID string) error {
	ok, err := d.staff.IsAuthorizedAgent(ctx, senderID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewUnauthorized("only support staff can view the ticket queues")
	}
	return nil
}

func (d *Dispatcher) clearSession(ctx context.Context, senderID string) {
	if err := d.sessions.Clear(ctx, senderID); err != nil {
		d.logger.Warn("session clear failed", zap.String("sender_id", senderID), zap.Error(err))
	}
}

func (d *Dispatcher) reply(ctx context.Context, recipientID, text string) {
	msg := gateway.OutboundMessage{Content: domain.Content{Kind: domain.ContentText, Text: text}}
	if err := d.gateway.Deliver(ctx, recipientID, msg); err != nil {
		d.logger.Warn("reply delivery failed", zap.String("recipient_id", recipientID), zap.Error(err))
	}
}

func (d *Dispatcher) replyError(ctx context.Context, recipientID string, err error) {
	domainErr := apperrors.ToDomainError(err)
	text := domainErr.Message
	if domainErr.Code == "INTERNAL_ERROR" {
		text = "Something went wrong, please try again."
		d.logger.Error("dispatcher failure", zap.String("recipient_id", recipientID), zap.Error(err))
	}
	d.reply(ctx, recipientID, text)
}

func handlePtr(handle string) *string {
	if handle == "" {
		return nil
	}
	return &handle
}
