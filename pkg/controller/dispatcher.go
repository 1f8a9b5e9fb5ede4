package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rslogger/rsaudio/pkg/bus"
	"github.com/rslogger/rsaudio/pkg/log"
	"github.com/rslogger/rsaudio/pkg/wire"
)

// DefaultCommandTimeout bounds the wait for a module's response.
const DefaultCommandTimeout = 5 * time.Second

const usedRequestIDs = 4096

// Dispatch errors, reported in Outcome.Error.
var (
	ErrDuplicateRequestID = errors.New("request_id already used")
	ErrUnknownModule      = errors.New("unknown module")
)

// OutcomeKind classifies how a command ended.
type OutcomeKind uint8

const (
	OutcomeOK OutcomeKind = iota
	OutcomeError
	OutcomeTimeout
)

// String returns the outcome name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeError:
		return "error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("outcome(%d)", k)
	}
}

// MarshalText encodes the kind by name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ok":
		*k = OutcomeOK
	case "error":
		*k = OutcomeError
	case "timeout":
		*k = OutcomeTimeout
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}
	return nil
}

// Outcome is the result of one command to one module.
type Outcome struct {
	ModuleID  string        `json:"module_id"`
	RequestID string        `json:"request_id"`
	Kind      OutcomeKind   `json:"outcome"`
	Result    *wire.Result  `json:"result,omitempty"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// OK returns true if the module accepted the command.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeOK
}

type pendingKey struct {
	moduleID  string
	requestID string
}

// Dispatcher sends commands and pairs them with their responses.
type Dispatcher struct {
	client  bus.Client
	topics  wire.Topics
	timeout time.Duration
	logger  *slog.Logger
	rec     *log.Recorder
	tracer  trace.Tracer

	mu      sync.Mutex
	pending map[pendingKey]chan *wire.Response
	used    *lru.Cache[pendingKey, struct{}]

	discarded atomic.Uint64
}

// NewDispatcher creates a dispatcher publishing through client. A
// non-positive timeout selects DefaultCommandTimeout.
func NewDispatcher(client bus.Client, topics wire.Topics, timeout time.Duration, logger *slog.Logger, rec *log.Recorder) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if rec == nil {
		rec = log.NewRecorder(nil, log.RoleController, "")
	}
	used, _ := lru.New[pendingKey, struct{}](usedRequestIDs)
	return &Dispatcher{
		client:  client,
		topics:  topics,
		timeout: timeout,
		logger:  logger,
		rec:     rec,
		tracer:  otel.Tracer("github.com/rslogger/rsaudio/pkg/controller"),
		pending: make(map[pendingKey]chan *wire.Response),
		used:    used,
	}
}

// Timeout returns the per-command timeout.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Discarded returns how many responses arrived with no one waiting.
func (d *Dispatcher) Discarded() uint64 {
	return d.discarded.Load()
}

// Pending returns the number of commands awaiting a response.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Send publishes cmd to a module and waits for the correlated response.
// A request id is generated unless cmd carries one. The wait ends when the
// response arrives or at the earlier of the dispatcher timeout and the ctx
// deadline; cancelling ctx without a deadline does not end it early.
func (d *Dispatcher) Send(ctx context.Context, moduleID string, cmd wire.Command) Outcome {
	start := time.Now()
	deadline := start.Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}
	out := Outcome{ModuleID: moduleID, RequestID: cmd.RequestID}

	ctx, span := d.tracer.Start(ctx, "dispatch "+string(cmd.Command),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rsaudio.module_id", moduleID),
			attribute.String("rsaudio.request_id", cmd.RequestID),
			attribute.String("rsaudio.command", string(cmd.Command)),
		))
	defer func() {
		span.SetAttributes(attribute.String("rsaudio.outcome", out.Kind.String()))
		if out.Kind != OutcomeOK {
			span.SetStatus(codes.Error, out.Error)
		}
		span.End()
	}()

	fail := func(err error) Outcome {
		out.Kind = OutcomeError
		out.Error = err.Error()
		out.Latency = time.Since(start)
		return out
	}

	if !wire.ValidModuleID(moduleID) {
		return fail(fmt.Errorf("%w: %q", ErrUnknownModule, moduleID))
	}
	data, err := wire.EncodeCommand(&cmd)
	if err != nil {
		return fail(err)
	}

	key := pendingKey{moduleID: moduleID, requestID: cmd.RequestID}
	respCh := make(chan *wire.Response, 1)

	d.mu.Lock()
	if _, busy := d.pending[key]; busy || d.used.Contains(key) {
		d.mu.Unlock()
		return fail(fmt.Errorf("%w: %s", ErrDuplicateRequestID, cmd.RequestID))
	}
	d.pending[key] = respCh
	d.used.Add(key, struct{}{})
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
	}()

	topic := d.topics.Command(moduleID)
	pubCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	err = d.client.Publish(pubCtx, topic, data)
	cancel()
	if err != nil {
		d.logger.Warn("command publish failed", "module_id", moduleID, "command", cmd.Command, "error", err)
		return fail(fmt.Errorf("publish failed: %w", err))
	}
	d.rec.Command(log.DirectionOut, moduleID, topic, &cmd, data)

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case resp := <-respCh:
		out.Latency = time.Since(start)
		out.Result = resp.Result
		out.Message = resp.Message
		if resp.IsSuccess() {
			out.Kind = OutcomeOK
		} else {
			out.Kind = OutcomeError
			out.Error = resp.Error
		}
		d.logger.Debug("command answered", "module_id", moduleID, "command", cmd.Command,
			"request_id", cmd.RequestID, "outcome", out.Kind, "latency", out.Latency)
		return out

	case <-timer.C:
		out.Kind = OutcomeTimeout
		out.Error = "no response before deadline"
		out.Latency = time.Since(start)
		d.logger.Warn("command timed out", "module_id", moduleID, "command", cmd.Command, "request_id", cmd.RequestID)
		return out
	}
}

// HandleResponse delivers a response received on moduleID's response topic.
// It returns false if no one is waiting for it.
func (d *Dispatcher) HandleResponse(moduleID string, resp *wire.Response) bool {
	key := pendingKey{moduleID: moduleID, requestID: resp.RequestID}

	d.mu.Lock()
	ch, ok := d.pending[key]
	d.mu.Unlock()

	if ok {
		select {
		case ch <- resp:
			return true
		default:
		}
	}
	// Late, duplicate, or addressed to another controller.
	d.discarded.Add(1)
	d.logger.Debug("discarding unmatched response", "module_id", moduleID, "request_id", resp.RequestID)
	return false
}
