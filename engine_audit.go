package authcore

import (
	"context"
	"errors"
)

const (
	auditEventVerifyDenied       = "verify_denied"
	auditEventAccessExpired      = "access_expired"
	auditEventRefreshExpired     = "refresh_expired"
	auditEventReplayDetected     = "replay_detected"
	auditEventClaimMismatchBurn  = "claim_mismatch_burn"
	auditEventBurnIncomplete     = "burn_incomplete"
	auditEventInitialIssue       = "initial_issue"
	auditEventRotation           = "rotation"
	auditEventRevoke             = "revoke_current"
	auditEventBackendUnavailable = "backend_unavailable"
)

// AuditErrorCode is the stable machine-readable reason attached to events.
type AuditErrorCode string

const (
	auditErrMalformed     AuditErrorCode = "token_malformed"
	auditErrClaimSet      AuditErrorCode = "claim_set_invalid"
	auditErrClaimMismatch AuditErrorCode = "claim_mismatch"
	auditErrAccessExpired AuditErrorCode = "access_expired"
	auditErrRefreshExp    AuditErrorCode = "refresh_expired"
	auditErrReplay        AuditErrorCode = "replay_detected"
	auditErrUntracked     AuditErrorCode = "refresh_untracked"
	auditErrUnavailable   AuditErrorCode = "backend_unavailable"
	auditErrInternal      AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	accessJTI string,
	refreshJTI string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  e.clock().UTC(),
		EventType:  eventType,
		Subject:    subject,
		AccessJTI:  accessJTI,
		RefreshJTI: refreshJTI,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenMalformed):
		return auditErrMalformed
	case errors.Is(err, ErrClaimSetInvalid):
		return auditErrClaimSet
	case errors.Is(err, ErrClaimMismatch):
		return auditErrClaimMismatch
	case errors.Is(err, ErrAccessExpired):
		return auditErrAccessExpired
	case errors.Is(err, ErrRefreshExpired):
		return auditErrRefreshExp
	case errors.Is(err, ErrReplayDetected):
		return auditErrReplay
	case errors.Is(err, ErrRefreshUnknown):
		return auditErrUntracked
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
