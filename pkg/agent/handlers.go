package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/rslogger/rsaudio/pkg/bus"
	"github.com/rslogger/rsaudio/pkg/log"
	"github.com/rslogger/rsaudio/pkg/wire"
)

// handleMessage decodes and executes one command. It returns ErrShutdown
// once a shutdown command has been answered.
func (a *Agent) handleMessage(ctx context.Context, msg bus.Message) error {
	cmd, err := wire.DecodeCommand(msg.Payload)
	if err != nil {
		var perr *wire.ProtocolError
		if !errors.As(err, &perr) || !perr.Answerable() {
			a.logger.Warn("dropping malformed command", "topic", msg.Topic, "error", err)
			a.rec.Error(a.cfg.ModuleID, msg.Topic, "", "decode command", err)
			return nil
		}
		a.rec.Command(log.DirectionIn, a.cfg.ModuleID, msg.Topic, cmd, msg.Payload)
		if a.replayed(ctx, perr.RequestID) {
			return nil
		}
		a.logger.Info("rejecting invalid command", "request_id", perr.RequestID, "error", perr.Err)
		a.respond(ctx, a.reject(perr.RequestID, perr.Err.Error()))
		return nil
	}

	a.rec.Command(log.DirectionIn, a.cfg.ModuleID, msg.Topic, cmd, msg.Payload)
	if a.replayed(ctx, cmd.RequestID) {
		return nil
	}

	a.logger.Debug("command received", "command", cmd.Command, "request_id", cmd.RequestID)

	var resp *wire.Response
	switch cmd.Command {
	case wire.CommandStart:
		resp = a.handleStart(ctx, cmd)
	case wire.CommandStop:
		resp = a.handleStop(ctx, cmd)
	case wire.CommandStatus:
		resp = a.ok(cmd.RequestID, "", a.result())
	case wire.CommandConfig:
		resp = a.handleConfig(ctx, cmd)
	case wire.CommandShutdown:
		resp = a.handleShutdown(ctx, cmd)
		a.respond(ctx, resp)
		return ErrShutdown
	default:
		resp = a.reject(cmd.RequestID, fmt.Sprintf("%s: %s", wire.ReasonUnknownCommand, cmd.Command))
	}
	a.respond(ctx, resp)
	return nil
}

func (a *Agent) handleStart(ctx context.Context, cmd *wire.Command) *wire.Response {
	if a.state == wire.StateRecording {
		return a.reject(cmd.RequestID, wire.ReasonAlreadyRecording)
	}
	if _, err := a.beginRecording(ctx, cmd); err != nil {
		return a.reject(cmd.RequestID, err.Error())
	}
	return a.ok(cmd.RequestID, "recording started", a.result())
}

func (a *Agent) handleStop(ctx context.Context, cmd *wire.Command) *wire.Response {
	if a.session == nil {
		return a.ok(cmd.RequestID, "not recording", a.result())
	}
	s, art, err := a.finishRecording(ctx, "stop command")
	if err != nil {
		return a.reject(cmd.RequestID, fmt.Sprintf("%s: %v", wire.ReasonCaptureFailed, err))
	}
	r := a.result()
	r.RecordingID = s.RecordingID
	r.FilePath = art.Path
	r.Duration = art.Duration.Seconds()
	return a.ok(cmd.RequestID, "recording stopped", r)
}

func (a *Agent) handleConfig(ctx context.Context, cmd *wire.Command) *wire.Response {
	if a.state == wire.StateRecording {
		return a.reject(cmd.RequestID, wire.ReasonConfigWhileActive)
	}
	if !cmd.Config.IsEmpty() {
		applied, err := cmd.Config.Apply(a.audio)
		if err != nil {
			return a.reject(cmd.RequestID, fmt.Sprintf("%s: %v", wire.ReasonInvalidConfig, err))
		}
		a.audio = applied
		a.publishSnapshot()
		a.logger.Info("config updated", "version", applied.Version)
		a.publishStatus(ctx, wire.EventStateChange, nil)
	}
	if cmd.Save {
		a.save(a.audio)
	}
	return a.ok(cmd.RequestID, "config updated", a.result())
}

// save persists cfg in the background; failures are only logged.
func (a *Agent) save(cfg wire.AudioConfig) {
	if a.store == nil {
		a.logger.Warn("config save requested but no store configured")
		return
	}
	go func() {
		if err := a.store.Save(cfg); err != nil {
			a.logger.Error("config save failed", "error", err)
			return
		}
		a.logger.Info("config saved", "version", cfg.Version)
	}()
}

func (a *Agent) handleShutdown(ctx context.Context, cmd *wire.Command) *wire.Response {
	a.logger.Info("shutdown command received", "request_id", cmd.RequestID)
	if a.session != nil {
		if _, _, err := a.finishRecording(ctx, "shutdown"); err != nil {
			return a.reject(cmd.RequestID, fmt.Sprintf("%s: %v", wire.ReasonCaptureFailed, err))
		}
	}
	return a.ok(cmd.RequestID, "shutting down", a.result())
}

// replayed republishes the cached response for a request already handled.
func (a *Agent) replayed(ctx context.Context, requestID string) bool {
	data, ok := a.replay.Get(requestID)
	if !ok {
		return false
	}
	a.logger.Debug("duplicate command, replaying response", "request_id", requestID)
	_ = a.publish(ctx, a.topics.Response(a.cfg.ModuleID), data)
	return true
}

func (a *Agent) ok(requestID, message string, result *wire.Result) *wire.Response {
	return &wire.Response{
		RequestID: requestID,
		ModuleID:  a.cfg.ModuleID,
		Status:    wire.ResponseOK,
		Message:   message,
		Result:    result,
		Timestamp: a.cfg.Now(),
	}
}

func (a *Agent) reject(requestID, reason string) *wire.Response {
	return &wire.Response{
		RequestID: requestID,
		ModuleID:  a.cfg.ModuleID,
		Status:    wire.ResponseError,
		Error:     reason,
		Timestamp: a.cfg.Now(),
	}
}

func (a *Agent) respond(ctx context.Context, resp *wire.Response) {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		a.logger.Error("encode response", "request_id", resp.RequestID, "error", err)
		return
	}
	a.replay.Add(resp.RequestID, data)

	topic := a.topics.Response(a.cfg.ModuleID)
	if a.publish(ctx, topic, data) == nil {
		a.rec.Response(log.DirectionOut, a.cfg.ModuleID, topic, resp, data, nil)
	}
}
