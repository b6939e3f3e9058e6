package health

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeModeSetter struct {
	mode string
	fail bool
}

func (f *fakeModeSetter) Mode() string { return f.mode }

func (f *fakeModeSetter) SetMode(mode string) error {
	if f.fail {
		return fmt.Errorf("switch refused")
	}
	f.mode = mode
	return nil
}

func newTestServer(t *testing.T, setter ModeSetter) (*Server, *httptest.Server) {
	s := New("execution", ":0")
	if setter != nil {
		s.RegisterModeSetter(setter, "paper", "live")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	if setter != nil {
		mux.HandleFunc("/mode", s.handleMode)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv
}

func TestServer_HealthReportsCounters(t *testing.T) {
	s, srv := newTestServer(t, nil)
	s.Incr("processed", 3)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, int64(3), body.Counters["processed"])
	require.Equal(t, StatusHealthy, body.Status)
}

func TestServer_ModeSwitchSucceeds(t *testing.T) {
	setter := &fakeModeSetter{mode: "paper"}
	_, srv := newTestServer(t, setter)

	resp, err := http.Post(srv.URL+"/mode", "application/json", bytes.NewBufferString(`{"mode":"live"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ModeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "live", body.Mode)
}

func TestServer_ModeSwitchRejectedSurfacesConflict(t *testing.T) {
	setter := &fakeModeSetter{mode: "paper", fail: true}
	_, srv := newTestServer(t, setter)

	resp, err := http.Post(srv.URL+"/mode", "application/json", bytes.NewBufferString(`{"mode":"live"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_ModeSwitchRejectsUnknownMode(t *testing.T) {
	setter := &fakeModeSetter{mode: "paper"}
	_, srv := newTestServer(t, setter)

	resp, err := http.Post(srv.URL+"/mode", "application/json", bytes.NewBufferString(`{"mode":"replay"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
