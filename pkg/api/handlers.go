package api

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rslogger/rsaudio/pkg/controller"
	"github.com/rslogger/rsaudio/pkg/wire"
)

// Module is the JSON view of a module.
type Module struct {
	ModuleID      string            `json:"module_id"`
	State         wire.State        `json:"state"`
	ReportedState wire.State        `json:"reported_state"`
	Online        bool              `json:"online"`
	RecordingID   string            `json:"recording_id,omitempty"`
	Config        *wire.AudioConfig `json:"config,omitempty"`
	Version       string            `json:"version,omitempty"`
	Error         string            `json:"error,omitempty"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	LastRecording *Recording        `json:"last_recording,omitempty"`
}

// Recording is the JSON view of a completed recording.
type Recording struct {
	RecordingID string    `json:"recording_id"`
	Filename    string    `json:"filename"`
	Duration    float64   `json:"duration"`
	CompletedAt time.Time `json:"completed_at"`
}

// StartRequest is the body of start requests. All fields are optional.
type StartRequest struct {
	Duration    float64              `json:"duration,omitempty"`
	RecordingID string               `json:"recording_id,omitempty"`
	Config      *wire.ConfigOverride `json:"config,omitempty"`
}

// ConfigRequest is the body of a config request.
type ConfigRequest struct {
	Config *wire.ConfigOverride `json:"config"`
	Save   bool                 `json:"save,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

var errBadDuration = errors.New("duration must not be negative")

func moduleView(m controller.ModuleStatus) Module {
	v := Module{
		ModuleID:      m.ModuleID,
		State:         m.State,
		ReportedState: m.ReportedState,
		Online:        m.Online(),
		RecordingID:   m.RecordingID,
		Config:        m.Config,
		Version:       m.Version,
		Error:         m.Error,
		LastHeartbeat: m.LastHeartbeat,
	}
	if r := m.LastRecording; r != nil {
		v.LastRecording = &Recording{
			RecordingID: r.RecordingID,
			Filename:    r.Filename,
			Duration:    r.Duration.Seconds(),
			CompletedAt: r.CompletedAt,
		}
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// outcomeStatus maps an outcome to an HTTP status.
func outcomeStatus(o controller.Outcome) int {
	switch o.Kind {
	case controller.OutcomeOK:
		return http.StatusOK
	case controller.OutcomeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusConflict
	}
}

func (s *Server) listModules(w http.ResponseWriter, _ *http.Request) {
	snap := s.fleet.ModuleStatus()
	out := make([]Module, 0, len(snap))
	for _, m := range snap {
		out = append(out, moduleView(m))
	}
	slices.SortFunc(out, func(a, b Module) int {
		return cmp.Compare(a.ModuleID, b.ModuleID)
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getModule(w http.ResponseWriter, r *http.Request) {
	m, ok := s.fleet.Module(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, controller.ErrUnknownModule)
		return
	}
	writeJSON(w, http.StatusOK, moduleView(m))
}

func (req StartRequest) options() (controller.StartOptions, error) {
	if req.Duration < 0 {
		return controller.StartOptions{}, errBadDuration
	}
	return controller.StartOptions{
		Duration:    time.Duration(req.Duration * float64(time.Second)),
		RecordingID: req.RecordingID,
		Config:      req.Config,
	}, nil
}

func (s *Server) startModule(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts, err := req.options()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	o := s.fleet.Start(r.Context(), chi.URLParam(r, "id"), opts)
	writeJSON(w, outcomeStatus(o), o)
}

func (s *Server) moduleCommand(fn func(Fleet, context.Context, string) controller.Outcome) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o := fn(s.fleet, r.Context(), chi.URLParam(r, "id"))
		writeJSON(w, outcomeStatus(o), o)
	}
}

func (s *Server) configureModule(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	o := s.fleet.Configure(r.Context(), chi.URLParam(r, "id"), req.Config, req.Save)
	writeJSON(w, outcomeStatus(o), o)
}

func (s *Server) startAll(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts, err := req.options()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.fleet.StartAll(r.Context(), opts))
}

func (s *Server) stopAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.StopAll(r.Context()))
}
