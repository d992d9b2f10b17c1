package salesforce

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type recordingTransport struct {
	lastAuth   string
	lastCookie string
	resp       *http.Response
	err        error
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.lastAuth = req.Header.Get("Authorization")
	t.lastCookie = req.Header.Get("Cookie")
	return t.resp, t.err
}

func newResponse(cookies ...*http.Cookie) *http.Response {
	recorder := httptest.NewRecorder()
	for _, c := range cookies {
		http.SetCookie(recorder, c)
	}
	resp := recorder.Result()
	return resp
}

func TestRoundTrip_AttachesBearerTokenForSalesforceHost(t *testing.T) {
	inner := &recordingTransport{resp: newResponse()}
	authenticator := &StaticTokenAuthenticator{Token: "abc123", Transport: inner}

	req, _ := http.NewRequest(http.MethodGet, "https://my-org.my.salesforce.com/cometd/58.0", nil)
	if _, err := authenticator.RoundTrip(req); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if inner.lastAuth != "Bearer abc123" {
		t.Fatalf("expected Authorization header to be set, got %q", inner.lastAuth)
	}
}

func TestRoundTrip_PassesThroughForOtherHosts(t *testing.T) {
	inner := &recordingTransport{resp: newResponse()}
	authenticator := &StaticTokenAuthenticator{Token: "abc123", Transport: inner}

	req, _ := http.NewRequest(http.MethodGet, "https://example.com/cometd", nil)
	if _, err := authenticator.RoundTrip(req); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if inner.lastAuth != "" {
		t.Fatalf("expected no Authorization header for a non-Salesforce host, got %q", inner.lastAuth)
	}
}

func TestRoundTrip_ErrorsWithoutAToken(t *testing.T) {
	authenticator := &StaticTokenAuthenticator{Transport: &recordingTransport{}}
	req, _ := http.NewRequest(http.MethodGet, "https://my-org.my.salesforce.com/cometd/58.0", nil)
	if _, err := authenticator.RoundTrip(req); err == nil {
		t.Fatal("expected an error when no token is configured")
	}
}

func TestRoundTrip_RepliesCookiesOnSubsequentRequests(t *testing.T) {
	cookie := &http.Cookie{Name: "sid", Value: "xyz"}
	inner := &recordingTransport{resp: newResponse(cookie)}
	authenticator := &StaticTokenAuthenticator{Token: "abc123", Transport: inner}

	req, _ := http.NewRequest(http.MethodGet, "https://my-org.my.salesforce.com/cometd/58.0", nil)
	if _, err := authenticator.RoundTrip(req); err != nil {
		t.Fatalf("first RoundTrip: %v", err)
	}

	req2, _ := http.NewRequest(http.MethodGet, "https://my-org.my.salesforce.com/cometd/58.0", nil)
	if _, err := authenticator.RoundTrip(req2); err != nil {
		t.Fatalf("second RoundTrip: %v", err)
	}
	if inner.lastCookie == "" {
		t.Fatal("expected the session cookie from the first response to be replayed")
	}
}
