package interceptors

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"orgscope/internal/access"
	"orgscope/internal/guard"
	"orgscope/internal/security"
)

const (
	// OrgHintHeader names the organization a client wants to act in.
	OrgHintHeader = "x-org-id"
	// RedirectTrailer carries guard.Decision.Redirect on denials.
	RedirectTrailer = "x-redirect"
)

// AccessUnary returns a unary server interceptor that opens an access session for the
// authenticated caller and runs the guard chain described by rules[info.FullMethod].
// It must run after AuthUnary. Methods in publicMethods skip the chain; any other method
// without a rule is denied. An x-org-id header selects the organization for the call;
// without it the saved selection applies, then the token's org claim.
func AccessUnary(manager *access.Manager, rules map[string]access.Requirement, publicMethods map[string]bool, log *zap.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		rule, ok := rules[info.FullMethod]
		if !ok {
			return nil, status.Error(codes.PermissionDenied, "method is not access mapped")
		}
		userID, _ := GetUserID(ctx)
		if userID == "" {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		orgID, _ := GetOrgID(ctx)
		sessionID, _ := GetSessionID(ctx)
		hint := firstMetadata(ctx, OrgHintHeader)

		sess, err := manager.Open(ctx, security.Principal{UserID: userID, OrgID: orgID, SessionID: sessionID}, hint)
		defer sess.Close()
		if err != nil {
			log.Debug("access: session load incomplete", zap.String("method", info.FullMethod), zap.Error(err))
		}

		d, err := sess.Authorize(ctx, rule)
		if err != nil {
			return nil, status.Error(codes.DeadlineExceeded, "organization data is still loading")
		}
		if !d.Allowed() {
			return nil, decisionError(ctx, d)
		}
		return handler(WithSession(ctx, sess), req)
	}
}

// decisionError maps a non-allow decision to a gRPC status and sets the redirect trailer.
func decisionError(ctx context.Context, d guard.Decision) error {
	if d.Redirect != "" {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(RedirectTrailer, d.Redirect))
	}
	return status.Error(DecisionCode(d), decisionMessage(d))
}

// DecisionCode returns the gRPC code for a guard decision.
func DecisionCode(d guard.Decision) codes.Code {
	if d.Outcome == guard.OutcomeLoading {
		return codes.DeadlineExceeded
	}
	switch d.Reason {
	case guard.ReasonNone:
		return codes.OK
	case guard.ReasonAuthRequired:
		return codes.Unauthenticated
	case guard.ReasonNoOrganization:
		return codes.FailedPrecondition
	case guard.ReasonFetchFailure:
		return codes.Unavailable
	default:
		return codes.PermissionDenied
	}
}

func decisionMessage(d guard.Decision) string {
	switch {
	case d.Message != "":
		return d.Message
	case d.Reason == guard.ReasonNoOrganization:
		return "no organization; create one first"
	case d.Reason == guard.ReasonFetchFailure:
		return "organization data unavailable; retry"
	case d.Reason == guard.ReasonAuthRequired:
		return "authentication required"
	default:
		return string(d.Reason)
	}
}
