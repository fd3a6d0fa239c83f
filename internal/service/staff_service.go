package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-relay/internal/config"
	"github.com/spec-kit/support-relay/internal/domain"
	"github.com/spec-kit/support-relay/internal/gateway"
	"github.com/spec-kit/support-relay/internal/repository"
	apperrors "github.com/spec-kit/support-relay/pkg/util"
)

// StaffService manages agent enrollment and the authorization check
// that gates claim and admin operations. Top-level administrators come
// from static configuration, enrolled staff from the store.
type StaffService struct {
	staff   repository.StaffRepository
	gateway gateway.Gateway
	cfg     config.GatewayConfig
	logger  *zap.Logger
}

// NewStaffService constructs the service.
func NewStaffService(staff repository.StaffRepository, gw gateway.Gateway, cfg config.GatewayConfig, logger *zap.Logger) *StaffService {
	return &StaffService{staff: staff, gateway: gw, cfg: cfg, logger: logger}
}

// IsAdmin reports whether id is a configured administrator.
func (s *StaffService) IsAdmin(id string) bool {
	return s.cfg.IsAdmin(id)
}

// IsAuthorizedAgent reports whether id may claim tickets and use the
// admin panel: a configured administrator or an enrolled staff member.
func (s *StaffService) IsAuthorizedAgent(ctx context.Context, id string) (bool, error) {
	if s.cfg.IsAdmin(id) {
		return true, nil
	}
	exists, err := s.staff.Exists(ctx, id)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	return exists, nil
}

// Enroll registers an agent as support staff. Restricted to top-level
// administrators; enrolling a configured admin is a no-op conflict.
func (s *StaffService) Enroll(ctx context.Context, adminID, agentID, displayName string) (*domain.SupportStaff, error) {
	if !s.cfg.IsAdmin(adminID) {
		return nil, apperrors.NewUnauthorized("only administrators can enroll support staff")
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, apperrors.NewValidationError("agent id is required", nil)
	}
	if s.cfg.IsAdmin(agentID) {
		return nil, apperrors.NewDomainError("ALREADY_ADMIN",
			"this user is already a top-level administrator", 409, nil)
	}

	staff := &domain.SupportStaff{
		AgentID:     agentID,
		DisplayName: strings.TrimSpace(displayName),
		EnrolledBy:  adminID,
	}
	if err := s.staff.Upsert(ctx, staff); err != nil {
		return nil, apperrors.MapError(err)
	}

	// Welcome note is best-effort; enrollment stands regardless.
	if s.gateway != nil {
		err := s.gateway.Deliver(ctx, agentID, gateway.OutboundMessage{
			Content: domain.Content{
				Kind: domain.ContentText,
				Text: "You have been enrolled as support staff. You can now claim and answer tickets.",
			},
		})
		if err != nil {
			s.logger.Warn("enrollment notification failed",
				zap.String("agent_id", agentID), zap.Error(err))
		}
	}
	return staff, nil
}
