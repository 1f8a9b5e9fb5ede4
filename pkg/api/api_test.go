package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rslogger/rsaudio/pkg/controller"
	"github.com/rslogger/rsaudio/pkg/wire"
)

type mockFleet struct {
	mock.Mock
}

func (m *mockFleet) ModuleStatus() map[string]controller.ModuleStatus {
	return m.Called().Get(0).(map[string]controller.ModuleStatus)
}

func (m *mockFleet) Module(id string) (controller.ModuleStatus, bool) {
	args := m.Called(id)
	return args.Get(0).(controller.ModuleStatus), args.Bool(1)
}

func (m *mockFleet) StartAll(ctx context.Context, opts controller.StartOptions) controller.BroadcastResult {
	return m.Called(ctx, opts).Get(0).(controller.BroadcastResult)
}

func (m *mockFleet) StopAll(ctx context.Context) controller.BroadcastResult {
	return m.Called(ctx).Get(0).(controller.BroadcastResult)
}

func (m *mockFleet) Start(ctx context.Context, id string, opts controller.StartOptions) controller.Outcome {
	return m.Called(ctx, id, opts).Get(0).(controller.Outcome)
}

func (m *mockFleet) Stop(ctx context.Context, id string) controller.Outcome {
	return m.Called(ctx, id).Get(0).(controller.Outcome)
}

func (m *mockFleet) Status(ctx context.Context, id string) controller.Outcome {
	return m.Called(ctx, id).Get(0).(controller.Outcome)
}

func (m *mockFleet) Configure(ctx context.Context, id string, override *wire.ConfigOverride, save bool) controller.Outcome {
	return m.Called(ctx, id, override, save).Get(0).(controller.Outcome)
}

func (m *mockFleet) Shutdown(ctx context.Context, id string) controller.Outcome {
	return m.Called(ctx, id).Get(0).(controller.Outcome)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestListModules(t *testing.T) {
	fleet := &mockFleet{}
	hb := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fleet.On("ModuleStatus").Return(map[string]controller.ModuleStatus{
		"b": {ModuleID: "b", State: wire.StateDisconnected, ReportedState: wire.StateRecording, LastHeartbeat: hb},
		"a": {ModuleID: "a", State: wire.StateIdle, ReportedState: wire.StateIdle, LastHeartbeat: hb,
			LastRecording: &controller.Recording{RecordingID: "r", Filename: "f.wav", Duration: 2 * time.Second}},
	})

	rec := do(t, New(fleet, nil), http.MethodGet, "/api/v1/modules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var mods []Module
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mods))
	require.Len(t, mods, 2)
	assert.Equal(t, "a", mods[0].ModuleID)
	assert.True(t, mods[0].Online)
	assert.Equal(t, 2.0, mods[0].LastRecording.Duration)
	assert.Equal(t, wire.StateDisconnected, mods[1].State)
	assert.False(t, mods[1].Online)
}

func TestGetModule(t *testing.T) {
	fleet := &mockFleet{}
	fleet.On("Module", "a").Return(controller.ModuleStatus{ModuleID: "a", State: wire.StateRecording, RecordingID: "r1"}, true)
	fleet.On("Module", "zzz").Return(controller.ModuleStatus{}, false)
	s := New(fleet, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/modules/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m Module
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "r1", m.RecordingID)

	rec = do(t, s, http.MethodGet, "/api/v1/modules/zzz", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartModule(t *testing.T) {
	fleet := &mockFleet{}
	fleet.On("Start", mock.Anything, "a", controller.StartOptions{Duration: 1500 * time.Millisecond, RecordingID: "take"}).
		Return(controller.Outcome{ModuleID: "a", Kind: controller.OutcomeOK})
	fleet.On("Start", mock.Anything, "b", controller.StartOptions{}).
		Return(controller.Outcome{ModuleID: "b", Kind: controller.OutcomeError, Error: wire.ReasonAlreadyRecording})
	fleet.On("Start", mock.Anything, "c", controller.StartOptions{}).
		Return(controller.Outcome{ModuleID: "c", Kind: controller.OutcomeTimeout})
	s := New(fleet, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/modules/a/start", `{"duration":1.5,"recording_id":"take"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"ok"`)

	rec = do(t, s, http.MethodPost, "/api/v1/modules/b/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), wire.ReasonAlreadyRecording)

	rec = do(t, s, http.MethodPost, "/api/v1/modules/c/start", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/modules/a/start", `{"duration":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/modules/a/start", `{bad`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fleet.AssertExpectations(t)
}

func TestModuleCommands(t *testing.T) {
	fleet := &mockFleet{}
	ok := controller.Outcome{Kind: controller.OutcomeOK}
	fleet.On("Stop", mock.Anything, "a").Return(ok).Once()
	fleet.On("Status", mock.Anything, "a").Return(ok).Once()
	fleet.On("Shutdown", mock.Anything, "a").Return(ok).Once()
	s := New(fleet, nil)

	for _, cmd := range []string{"stop", "status", "shutdown"} {
		rec := do(t, s, http.MethodPost, "/api/v1/modules/a/"+cmd, "")
		assert.Equal(t, http.StatusOK, rec.Code, cmd)
	}
	fleet.AssertExpectations(t)
}

func TestConfigureModule(t *testing.T) {
	fleet := &mockFleet{}
	fleet.On("Configure", mock.Anything, "a", mock.MatchedBy(func(o *wire.ConfigOverride) bool {
		return o != nil && o.SampleRate != nil && *o.SampleRate == 48000
	}), true).Return(controller.Outcome{Kind: controller.OutcomeOK})

	rec := do(t, New(fleet, nil), http.MethodPost, "/api/v1/modules/a/config", `{"config":{"samplerate":48000},"save":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	fleet.AssertExpectations(t)
}

func TestRecordings(t *testing.T) {
	fleet := &mockFleet{}
	fleet.On("StartAll", mock.Anything, controller.StartOptions{Duration: 10 * time.Second}).
		Return(controller.BroadcastResult{
			"a": {ModuleID: "a", Kind: controller.OutcomeOK},
			"b": {ModuleID: "b", Kind: controller.OutcomeTimeout},
		})
	fleet.On("StopAll", mock.Anything).Return(controller.BroadcastResult{})
	s := New(fleet, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/recordings/start", `{"duration":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res map[string]controller.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res, 2)

	rec = do(t, s, http.MethodPost, "/api/v1/recordings/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
	fleet.AssertExpectations(t)
}

func TestListModules_Empty(t *testing.T) {
	fleet := &mockFleet{}
	fleet.On("ModuleStatus").Return(map[string]controller.ModuleStatus{})

	rec := do(t, New(fleet, nil), http.MethodGet, "/api/v1/modules", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
