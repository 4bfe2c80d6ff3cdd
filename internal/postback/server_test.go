package postback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/internal/segment"
	"github.com/m3rciful/funnelbot/internal/store"
)

func TestMain(m *testing.M) {
	_ = logger.InitLogger(&coreconfig.Config{
		Logging: coreconfig.LoggingConfig{Level: "error", Format: "text"},
	})
	os.Exit(m.Run())
}

type recordedCall struct {
	kind string
	uid  int64
}

type fakeFunnel struct {
	calls []recordedCall
	err   error
}

func (f *fakeFunnel) Registered(_ context.Context, uid int64) error {
	f.calls = append(f.calls, recordedCall{kind: "registered", uid: uid})
	return f.err
}

func (f *fakeFunnel) Deposited(_ context.Context, uid int64) error {
	f.calls = append(f.calls, recordedCall{kind: "deposited", uid: uid})
	return f.err
}

func newTestServer(funnel *fakeFunnel, secret string) *httptest.Server {
	idx := segment.NewMemory()
	_ = idx.Rebuild(context.Background(), 1, store.StageRegistered)
	_ = idx.Rebuild(context.Background(), 2, store.StageDeposited)
	s := NewServer(funnel, idx, secret, "127.0.0.1", "0")
	return httptest.NewServer(s.Router())
}

func postJSON(t *testing.T, url, secret, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeOK(t *testing.T, resp *http.Response) bool {
	t.Helper()
	defer resp.Body.Close()
	var out struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out.OK
}

func TestRegisteredPostback(t *testing.T) {
	funnel := &fakeFunnel{}
	ts := newTestServer(funnel, "s3cret")
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/postback/registered", "s3cret", `{"uid": 42}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !decodeOK(t, resp) {
		t.Fatal("ok = false")
	}
	if len(funnel.calls) != 1 || funnel.calls[0] != (recordedCall{kind: "registered", uid: 42}) {
		t.Fatalf("calls = %v", funnel.calls)
	}
}

func TestDepositedPostbackWithStringUID(t *testing.T) {
	funnel := &fakeFunnel{}
	ts := newTestServer(funnel, "s3cret")
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/postback/deposited", "s3cret", `{"uid": "42"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(funnel.calls) != 1 || funnel.calls[0] != (recordedCall{kind: "deposited", uid: 42}) {
		t.Fatalf("calls = %v", funnel.calls)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	funnel := &fakeFunnel{}
	ts := newTestServer(funnel, "s3cret")
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/postback/registered", "wrong", `{"uid": 42}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if decodeOK(t, resp) {
		t.Fatal("ok = true on auth failure")
	}
	if len(funnel.calls) != 0 {
		t.Fatalf("funnel called despite auth failure: %v", funnel.calls)
	}
}

func TestMissingSecretRejected(t *testing.T) {
	funnel := &fakeFunnel{}
	ts := newTestServer(funnel, "s3cret")
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/postback/registered", "", `{"uid": 42}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestEmptyConfiguredSecretDisablesAuth(t *testing.T) {
	funnel := &fakeFunnel{}
	ts := newTestServer(funnel, "")
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/postback/registered", "", `{"uid": 42}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(funnel.calls) != 1 {
		t.Fatalf("calls = %v", funnel.calls)
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	funnel := &fakeFunnel{}
	ts := newTestServer(funnel, "s3cret")
	defer ts.Close()

	for _, body := range []string{``, `{`, `{"uid": "abc"}`, `{"other": 1}`} {
		resp := postJSON(t, ts.URL+"/postback/registered", "s3cret", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
		resp.Body.Close()
	}
	if len(funnel.calls) != 0 {
		t.Fatalf("funnel called for malformed bodies: %v", funnel.calls)
	}
}

func TestInternalErrorStillAnswersOK(t *testing.T) {
	funnel := &fakeFunnel{err: context.DeadlineExceeded}
	ts := newTestServer(funnel, "s3cret")
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/postback/registered", "s3cret", `{"uid": 42}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite internal error", resp.StatusCode)
	}
	if !decodeOK(t, resp) {
		t.Fatal("ok = false")
	}
}

func TestSegmentsEndpoint(t *testing.T) {
	funnel := &fakeFunnel{}
	ts := newTestServer(funnel, "s3cret")
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/segments", nil)
	req.Header.Set(secretHeader, "s3cret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out struct {
		OK       bool           `json:"ok"`
		Segments map[string]int `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.OK {
		t.Fatal("ok = false")
	}
	if out.Segments["registered"] != 1 || out.Segments["deposited"] != 1 {
		t.Fatalf("segments = %v", out.Segments)
	}
}

func TestLiveness(t *testing.T) {
	ts := newTestServer(&fakeFunnel{}, "s3cret")
	defer ts.Close()

	for _, path := range []string{"/", "/healthz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
