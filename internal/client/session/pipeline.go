package session

import (
	"context"
	"net/http"
	"sync"
)

// Outcome classifies how a request ended, independent of the transport.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeUnauthorized is an explicit 401 / Unauthenticated from the server.
	OutcomeUnauthorized
	// OutcomeRejected covers other client errors: bad request, not found,
	// validation.
	OutcomeRejected
	OutcomeServerError
	// OutcomeTransportError means no response was received (timeout,
	// connection refused, cancelled context).
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeRejected:
		return "rejected"
	case OutcomeServerError:
		return "server_error"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// OutcomeForStatus maps an HTTP status code to an Outcome.
func OutcomeForStatus(code int) Outcome {
	switch {
	case code == http.StatusUnauthorized:
		return OutcomeUnauthorized
	case code >= 500:
		return OutcomeServerError
	case code >= 400:
		return OutcomeRejected
	default:
		return OutcomeOK
	}
}

// Exchange is one request/response pair as seen by pipeline stages.
// Transports fill Operation before BeforeSend, send Token if set, and fill
// Outcome and Err before AfterReceive.
type Exchange struct {
	Operation string
	Token     string
	Outcome   Outcome
	Err       error
}

// Stage observes every request a transport sends. BeforeSend runs just before
// dispatch and must not block; AfterReceive runs once the outcome is known.
type Stage interface {
	BeforeSend(ctx context.Context, ex *Exchange)
	AfterReceive(ctx context.Context, ex *Exchange)
}

// Pipeline runs stages in order on BeforeSend and in reverse on AfterReceive.
type Pipeline struct {
	mu     sync.RWMutex
	stages []Stage
}

func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Use appends stages. Requests already in flight keep the stages they
// started with.
func (p *Pipeline) Use(stages ...Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = append(p.stages[:len(p.stages):len(p.stages)], stages...)
}

func (p *Pipeline) snapshot() []Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stages
}

func (p *Pipeline) BeforeSend(ctx context.Context, ex *Exchange) {
	for _, s := range p.snapshot() {
		s.BeforeSend(ctx, ex)
	}
}

func (p *Pipeline) AfterReceive(ctx context.Context, ex *Exchange) {
	stages := p.snapshot()
	for i := len(stages) - 1; i >= 0; i-- {
		stages[i].AfterReceive(ctx, ex)
	}
}

type tokenKey struct{}

// WithToken makes requests issued with ctx carry token instead of the
// current session token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey{}).(string)
	return t, ok
}
