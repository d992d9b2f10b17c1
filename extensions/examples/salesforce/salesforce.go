// Package salesforce provides an http.RoundTripper that authenticates
// requests to Salesforce.com's Bayeux-powered Streaming API with a bearer
// token, for use with bayeux.WithHTTPTransport.
//
//	client, err := bayeux.NewClient(serverAddress, bayeux.WithHTTPTransport(
//		&salesforce.StaticTokenAuthenticator{Token: myToken, Transport: http.DefaultTransport},
//	))
package salesforce

import (
	"errors"
	"net/http"
	"strings"
)

// StaticTokenAuthenticator adds a Salesforce access token to every request
// bound for a salesforce.com host, and replays any cookies the server
// issued in prior responses.
type StaticTokenAuthenticator struct {
	// Token is the bearer token obtained out of band, e.g. via the OAuth
	// username-password or JWT bearer flows.
	Token string
	// Transport performs the actual round trip once the token and cookies
	// are attached.
	Transport http.RoundTripper

	cookies []*http.Cookie
}

// RoundTrip implements http.RoundTripper.
func (t *StaticTokenAuthenticator) RoundTrip(request *http.Request) (*http.Response, error) {
	if !strings.HasSuffix(request.URL.Hostname(), "salesforce.com") {
		return t.Transport.RoundTrip(request)
	}
	if t.Token == "" {
		return nil, errors.New("salesforce: no token provided to StaticTokenAuthenticator")
	}

	authenticated := cloneRequestWithHeaders(request)
	authenticated.Header.Set("Authorization", "Bearer "+t.Token)
	for _, cookie := range t.cookies {
		authenticated.AddCookie(cookie)
	}

	resp, err := t.Transport.RoundTrip(authenticated)
	if err != nil {
		return resp, err
	}
	t.cookies = resp.Cookies()
	return resp, nil
}

func cloneRequestWithHeaders(request *http.Request) *http.Request {
	clone := new(http.Request)
	*clone = *request
	clone.Header = make(http.Header, len(request.Header))
	for header, values := range request.Header {
		clone.Header[header] = append([]string(nil), values...)
	}
	return clone
}
