package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/audit"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/database"
)

// AuditService records administrative actions in the append-only trail.
type AuditService struct {
	store database.Store
}

// NewAuditService creates a new audit service.
func NewAuditService(store database.Store) *AuditService {
	return &AuditService{store: store}
}

// Record appends one audit entry. Failures are logged, never propagated: an
// audit miss must not fail the action it describes.
func (s *AuditService) Record(ctx context.Context, claims *user.TokenClaims, action, resourceType, resourceID string, payload any, ip, userAgent string) {
	e := &audit.Entry{
		ID:           uuid.NewString(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ip,
		UserAgent:    userAgent,
	}
	if claims != nil {
		e.UserID = &claims.UserID
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			e.Payload = data
		}
	}

	if err := s.store.AppendAudit(ctx, e); err != nil {
		slog.Error("audit append failed", "action", action, "resource_type", resourceType, "error", err)
	}
}

// List returns a filtered page of audit entries, newest first.
func (s *AuditService) List(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	return s.store.ListAudit(ctx, f)
}
