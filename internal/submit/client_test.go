package submit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPayload() Payload {
	return Payload{
		Identity:  "T1",
		Kind:      "LOGIN",
		Selfie:    "aGVsbG8=",
		Latitude:  12.97,
		Longitude: 77.59,
		Timestamp: "2024-07-01T09:00:00Z",
	}
}

func newTestClient(url string, deadline time.Duration) *Client {
	c := New(url, deadline)
	return c
}

func TestSubmit_Success(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","message":"login tracked"}`))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, time.Second).Submit(context.Background(), testPayload())
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "login tracked", res.Message)
	require.Equal(t, "/api/staff/app/loginTrack", gotPath)
}

func TestSubmit_LogoutUsesLogoutPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	p := testPayload()
	p.Kind = "LOGOUT"
	res := newTestClient(srv.URL, time.Second).Submit(context.Background(), p)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, "/api/staff/app/logoutTrack", gotPath)
}

func TestSubmit_ServerRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"unknown identity"}`))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, time.Second).Submit(context.Background(), testPayload())
	require.Equal(t, OutcomeServerRejected, res.Outcome)
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	require.Equal(t, "unknown identity", res.Message)
}

func TestSubmit_ServerRejectedNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>upstream down</html>"))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, time.Second).Submit(context.Background(), testPayload())
	require.Equal(t, OutcomeServerRejected, res.Outcome)
	require.Equal(t, "<html>upstream down</html>", res.Message)
}

func TestSubmit_ProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, time.Second).Submit(context.Background(), testPayload())
	require.Equal(t, OutcomeProtocolError, res.Outcome)
}

func TestSubmit_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	res := newTestClient(srv.URL, time.Second).Submit(context.Background(), testPayload())
	require.Equal(t, OutcomeTransportError, res.Outcome)
}

func TestSubmit_DeadlineWinsOverLateResponse(t *testing.T) {
	cancelled := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			// the client cancelled the request at the transport
			cancelled <- struct{}{}
		case <-time.After(2 * time.Second):
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}
	}))
	defer srv.Close()

	start := time.Now()
	res := newTestClient(srv.URL, 50*time.Millisecond).Submit(context.Background(), testPayload())
	require.Equal(t, OutcomeTimeout, res.Outcome)
	require.Less(t, time.Since(start), time.Second, "must not wait for the late response")

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("server never observed request cancellation")
	}
}

func TestSubmit_BearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	c.Token = "abc123"
	res := c.Submit(context.Background(), testPayload())
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, "Bearer abc123", gotAuth)
}
