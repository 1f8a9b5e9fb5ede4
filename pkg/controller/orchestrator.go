package controller

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rslogger/rsaudio/pkg/wire"
)

// BroadcastResult holds one Outcome per targeted module.
type BroadcastResult map[string]Outcome

// Modules returns the sorted ids whose outcome is kind.
func (r BroadcastResult) Modules(kind OutcomeKind) []string {
	var ids []string
	for id, o := range r {
		if o.Kind == kind {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// AllOK returns true if every target accepted the command.
func (r BroadcastResult) AllOK() bool {
	for _, o := range r {
		if !o.OK() {
			return false
		}
	}
	return true
}

// Broadcast sends cmd to every module in ids concurrently. Each target gets
// its own request id; all share one deadline. It returns once every target
// has an outcome, which is no later than the deadline. Duplicate ids are
// sent once.
func (d *Dispatcher) Broadcast(ctx context.Context, ids []string, cmd wire.Command) BroadcastResult {
	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	targets := slices.Clone(ids)
	slices.Sort(targets)
	targets = slices.Compact(targets)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(BroadcastResult, len(targets))
	)
	for _, id := range targets {
		c := cmd
		c.RequestID = ""
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := d.Send(ctx, id, c)
			mu.Lock()
			out[id] = o
			mu.Unlock()
		}()
	}
	wg.Wait()

	d.logger.Info("broadcast complete",
		"command", cmd.Command,
		"targets", len(targets),
		"ok", len(out.Modules(OutcomeOK)),
		"error", len(out.Modules(OutcomeError)),
		"timeout", len(out.Modules(OutcomeTimeout)))
	return out
}
