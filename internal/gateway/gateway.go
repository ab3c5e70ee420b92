package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/roomgate/internal/infrastructure/logging"
	"github.com/nerrad567/roomgate/internal/store"
)

// notifyTimeout bounds a single notifier call.
const notifyTimeout = 5 * time.Second

// Config holds the gateway settings, built once from the loaded config.
type Config struct {
	Secrets       Secrets
	SessionSecret string        // admin session signing secret; empty disables sessions
	OpenDownlink  bool          // serve the snapshot without a read credential
	Maintenance   bool          // engage the kill switch for write routes
	StoreTimeout  time.Duration // per outbound call
}

// Gateway wires the pipeline stages together.
type Gateway struct {
	creds        *CredentialGate
	avail        *AvailabilityGate
	router       *PathRouter
	forwarder    *StoreForwarder
	reader       *SnapshotReader
	openDownlink bool
	notifiers    []Notifier
	logger       *logging.Logger
	stats        Stats
	pending      sync.WaitGroup
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger. Without it the gateway uses logging.Default().
func WithLogger(logger *logging.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger.With("component", "gateway")
		}
	}
}

// WithNotifier adds an event receiver. Nil notifiers are ignored.
func WithNotifier(n Notifier) Option {
	return func(g *Gateway) {
		if n != nil {
			g.notifiers = append(g.notifiers, n)
		}
	}
}

// New builds a Gateway in front of st.
func New(st store.Store, cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		creds:        NewCredentialGate(cfg.Secrets, JWTSessions(cfg.SessionSecret)),
		avail:        NewAvailabilityGate(cfg.Maintenance),
		router:       NewPathRouter(),
		forwarder:    NewStoreForwarder(st, cfg.StoreTimeout),
		reader:       NewSnapshotReader(st, cfg.StoreTimeout),
		openDownlink: cfg.OpenDownlink,
		logger:       logging.Default().With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// UplinkResult reports a forwarded uplink.
type UplinkResult struct {
	Shape  Shape
	RoomID string
	Result
}

// CommandResult reports a forwarded command.
type CommandResult struct {
	IssuedCommand
	Result
}

// Uplink runs the write pipeline for a device payload.
//
// Parameters:
//   - ctx: Request context; each store call is further bounded by the store timeout
//   - authorization: Raw Authorization header
//   - body: Raw request body
//
// Returns:
//   - UplinkResult: Shape and per-field outcome (valid with ErrUpstreamPartial too)
//   - error: ErrUnavailable, ErrAuthDenied, ErrMalformedRequest,
//     ErrUpstreamFailure or ErrUpstreamPartial
func (g *Gateway) Uplink(ctx context.Context, authorization string, body []byte) (UplinkResult, error) {
	g.stats.uplinks.Add(1)

	if err := g.admit(ClassWrite, authorization, ""); err != nil {
		return UplinkResult{}, err
	}

	u, err := ValidateUplink(body)
	if err != nil {
		g.stats.record(err)
		return UplinkResult{}, err
	}

	res, err := g.forwarder.Forward(ctx, g.router.Route(u))
	g.stats.record(err)

	out := UplinkResult{Shape: u.Shape, Result: res}
	if u.Shape == ShapeReading {
		out.RoomID = u.Reading.RoomID
	}

	g.logForward("uplink", res, err, "shape", u.Shape, "room_id", out.RoomID)
	g.notify(ctx, Event{
		Kind:    EventUplink,
		Shape:   u.Shape,
		RoomID:  out.RoomID,
		Written: res.Written,
		Failed:  res.Failed,
		Outcome: outcomeOf(err),
		At:      time.Now().UTC(),
	})
	return out, err
}

// Command runs the write pipeline for an operator instruction. The admin
// credential may come from the Authorization header (static secret or
// session token) or from the body "password" field.
func (g *Gateway) Command(ctx context.Context, authorization string, body []byte) (CommandResult, error) {
	g.stats.commands.Add(1)

	if err := g.admit(ClassAdmin, authorization, bodyPassword(body)); err != nil {
		return CommandResult{}, err
	}

	c, err := ValidateCommand(body)
	if err != nil {
		g.stats.record(err)
		return CommandResult{}, err
	}

	issued, writes := g.router.RouteCommand(c)
	res, err := g.forwarder.Forward(ctx, writes)
	g.stats.record(err)

	g.logForward("command", res, err, "command_id", issued.ID)
	g.notify(ctx, Event{
		Kind:      EventCommand,
		CommandID: issued.ID,
		Command:   c.Instruction,
		Written:   res.Written,
		Failed:    res.Failed,
		Outcome:   outcomeOf(err),
		At:        issued.IssuedAt,
	})
	return CommandResult{IssuedCommand: issued, Result: res}, err
}

// Downlink returns the full tree snapshot, or {} when the store is empty.
// The kill switch does not apply to reads.
func (g *Gateway) Downlink(ctx context.Context, authorization string) (json.RawMessage, error) {
	g.stats.downlinks.Add(1)

	if !g.openDownlink && !g.creds.Authorize(ClassRead, authorization) {
		g.stats.record(ErrAuthDenied)
		return nil, ErrAuthDenied
	}

	tree, err := g.reader.ReadAll(ctx)
	if err != nil {
		g.stats.record(err)
		g.logger.Warn("snapshot read failed", "error", err)
		return nil, err
	}
	return tree, nil
}

// Authorize checks a raw Authorization header for class without running a
// pipeline. The HTTP layer uses it for auxiliary read-token routes.
func (g *Gateway) Authorize(class Class, authorization string) bool {
	return g.creds.Authorize(class, authorization)
}

// AuthorizeAdminSecret checks a bare admin secret, as presented at login.
func (g *Gateway) AuthorizeAdminSecret(secret string) bool {
	return g.creds.AuthorizeSecret(ClassAdmin, secret)
}

// Available reports whether the kill switch is released.
func (g *Gateway) Available() bool {
	return g.avail.Available()
}

// Stats returns the request counters.
func (g *Gateway) Stats() StatsSnapshot {
	return g.stats.Snapshot()
}

// Wait blocks until in-flight notifications have finished.
func (g *Gateway) Wait() {
	g.pending.Wait()
}

// admit applies the kill switch and then the credential check for a write route.
func (g *Gateway) admit(class Class, authorization, secret string) error {
	if !g.avail.Available() {
		g.stats.record(ErrUnavailable)
		return ErrUnavailable
	}
	if g.creds.Authorize(class, authorization) {
		return nil
	}
	if secret != "" && g.creds.AuthorizeSecret(class, secret) {
		return nil
	}
	g.stats.record(ErrAuthDenied)
	return ErrAuthDenied
}

func (g *Gateway) logForward(kind string, res Result, err error, args ...any) {
	args = append(args, "written", res.Written)
	switch {
	case err == nil:
		g.logger.Debug(kind+" forwarded", args...)
	case isPartial(err):
		g.logger.Warn(kind+" partially forwarded", append(args, "failed", res.Failed, "error", err)...)
	default:
		g.logger.Error(kind+" forward failed", append(args, "error", err)...)
	}
}

// notify hands ev to every notifier in the background. The request context
// is detached so a finished response does not cancel delivery.
func (g *Gateway) notify(ctx context.Context, ev Event) {
	if len(g.notifiers) == 0 {
		return
	}
	base := context.WithoutCancel(ctx)
	for _, n := range g.notifiers {
		g.pending.Add(1)
		go func(n Notifier) {
			defer g.pending.Done()
			notifyCtx, cancel := context.WithTimeout(base, notifyTimeout)
			defer cancel()
			if err := n.Notify(notifyCtx, ev); err != nil {
				g.stats.notifyFailures.Add(1)
				g.logger.Warn("event notification failed", "kind", ev.Kind, "error", err)
			}
		}(n)
	}
}
