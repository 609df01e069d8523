package authgate

import "context"

type contextKey int

const (
	clientIPContextKey contextKey = iota
	userAgentContextKey
	actorContextKey
)

// WithClientIP describes the withclientip operation and its observable behavior.
//
// WithClientIP may return an error when input validation, dependency calls, or security checks fail.
// WithClientIP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPContextKey, ip)
}

// ClientIPFromContext describes the clientipfromcontext operation and its observable behavior.
//
// ClientIPFromContext may return an error when input validation, dependency calls, or security checks fail.
// ClientIPFromContext does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func ClientIPFromContext(ctx context.Context) string {
	v, _ := ctx.Value(clientIPContextKey).(string)
	return v
}

// WithUserAgent describes the withuseragent operation and its observable behavior.
//
// WithUserAgent may return an error when input validation, dependency calls, or security checks fail.
// WithUserAgent does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	if ua == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentContextKey, ua)
}

// UserAgentFromContext describes the useragentfromcontext operation and its observable behavior.
//
// UserAgentFromContext may return an error when input validation, dependency calls, or security checks fail.
// UserAgentFromContext does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func UserAgentFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userAgentContextKey).(string)
	return v
}

// WithActor describes the withactor operation and its observable behavior.
//
// WithActor may return an error when input validation, dependency calls, or security checks fail.
// WithActor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The actor is the administrative user id recorded against role and account
// status changes in audit events.
func WithActor(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey, userID)
}

// ActorFromContext describes the actorfromcontext operation and its observable behavior.
//
// ActorFromContext may return an error when input validation, dependency calls, or security checks fail.
// ActorFromContext does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func ActorFromContext(ctx context.Context) string {
	v, _ := ctx.Value(actorContextKey).(string)
	return v
}
