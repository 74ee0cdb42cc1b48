package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reelgrab/internal/retriever"
)

type fakeRunner struct {
	mu         sync.Mutex
	batchLinks [][]string
	profiles   []string
	summary    retriever.BatchSummary
	started    chan struct{}
}

func newFakeRunner(summary retriever.BatchSummary) *fakeRunner {
	return &fakeRunner{summary: summary, started: make(chan struct{}, 8)}
}

func (f *fakeRunner) RunBatch(_ context.Context, links []string, _ string) retriever.BatchSummary {
	f.mu.Lock()
	f.batchLinks = append(f.batchLinks, links)
	f.mu.Unlock()
	f.started <- struct{}{}
	return f.summary
}

func (f *fakeRunner) RunProfile(_ context.Context, handle, _ string) retriever.BatchSummary {
	f.mu.Lock()
	f.profiles = append(f.profiles, handle)
	f.mu.Unlock()
	f.started <- struct{}{}
	return f.summary
}

type stubLedger struct {
	mu         sync.Mutex
	stats      retriever.Stats
	statsErr   error
	recipients map[string]string
}

func newStubLedger() *stubLedger {
	return &stubLedger{recipients: make(map[string]string)}
}

func (l *stubLedger) IsDone(context.Context, string) (bool, error) { return false, nil }

func (l *stubLedger) Record(context.Context, retriever.Record) error { return nil }

func (l *stubLedger) Stats(context.Context) (retriever.Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats, l.statsErr
}

func (l *stubLedger) UpsertRecipient(_ context.Context, id, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recipients[id] = name
	return nil
}

func newTestServer(t *testing.T, runner BatchRunner, ledger retriever.Ledger) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(runner, ledger, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func awaitDone(t *testing.T, srv *httptest.Server, batchID string) BatchRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/v1/batches/" + batchID)
		require.NoError(t, err)
		rec := decode[BatchRecord](t, resp)
		if rec.State == BatchDone {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("batch never finished")
	return BatchRecord{}
}

func TestSubmitBatch_AcceptedAndPollable(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner(retriever.BatchSummary{Total: 2, Succeeded: 2})
	ledger := newStubLedger()
	srv := newTestServer(t, runner, ledger)

	resp := postJSON(t, srv.URL+"/v1/batches", batchRequest{
		Links:       []string{"https://x/@a/video/1", "https://x/@a/video/2"},
		RecipientID: "chat-1",
		DisplayName: "Ada",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decode[map[string]string](t, resp)
	require.NotEmpty(t, accepted["batch_id"])

	rec := awaitDone(t, srv, accepted["batch_id"])
	require.Equal(t, "batch", rec.Kind)
	require.NotNil(t, rec.Summary)
	require.Equal(t, 2, rec.Summary.Succeeded)
	require.Equal(t, "Ada", ledger.recipients["chat-1"])
}

func TestSubmitBatch_RejectsEmptyLinks(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeRunner(retriever.BatchSummary{}), newStubLedger())

	resp := postJSON(t, srv.URL+"/v1/batches", batchRequest{RecipientID: "chat-1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitProfile(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner(retriever.BatchSummary{Total: 3, Succeeded: 3})
	srv := newTestServer(t, runner, newStubLedger())

	resp := postJSON(t, srv.URL+"/v1/profiles", profileRequest{Handle: "creator", RecipientID: "chat-1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decode[map[string]string](t, resp)

	rec := awaitDone(t, srv, accepted["batch_id"])
	require.Equal(t, "profile", rec.Kind)
	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Equal(t, []string{"creator"}, runner.profiles)
}

func TestSubmitProfile_RequiresHandle(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeRunner(retriever.BatchSummary{}), newStubLedger())

	resp := postJSON(t, srv.URL+"/v1/profiles", profileRequest{RecipientID: "chat-1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetBatch_NotFound(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeRunner(retriever.BatchSummary{}), newStubLedger())

	resp, err := http.Get(srv.URL + "/v1/batches/nope")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestGetStats(t *testing.T) {
	t.Parallel()
	ledger := newStubLedger()
	ledger.stats = retriever.Stats{Succeeded: 10, Failed: 2}
	srv := newTestServer(t, newFakeRunner(retriever.BatchSummary{}), ledger)

	resp, err := http.Get(srv.URL + "/v1/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[retriever.Stats](t, resp)
	require.Equal(t, int64(10), stats.Succeeded)
	require.Equal(t, int64(2), stats.Failed)
}

func TestReadyz_ReflectsLedgerHealth(t *testing.T) {
	t.Parallel()
	ledger := newStubLedger()
	srv := newTestServer(t, newFakeRunner(retriever.BatchSummary{}), ledger)

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	ledger.mu.Lock()
	ledger.statsErr = errors.New("down")
	ledger.mu.Unlock()

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthzAndRequestID(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeRunner(retriever.BatchSummary{}), newStubLedger())

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	resp.Body.Close()
}
