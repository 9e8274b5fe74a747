package net

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/oauth2"
)

const (
	maxIdleConns   = 10
	DefaultTimeout = 60 * time.Second
	clientAgent    = "biasprobe"
)

func newTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConns,
		IdleConnTimeout:       timeout,
		DisableKeepAlives:     false,
		ResponseHeaderTimeout: timeout,
	}
}

// GetHTTPClient returns a client with its own transport. Timeouts below
// one second fall back to DefaultTimeout.
func GetHTTPClient(timeout time.Duration) (*http.Client, error) {
	if timeout < time.Second {
		timeout = DefaultTimeout
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(timeout),
		Jar:       jar,
	}, nil
}

// GetOAuthClient returns a client that sends token as a bearer credential.
// An empty token yields a plain client.
func GetOAuthClient(ctx context.Context, token string, timeout time.Duration) (*http.Client, error) {
	base, err := GetHTTPClient(timeout)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return base, nil
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{
			TokenType:   "Bearer",
			AccessToken: token,
		},
	)
	tc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
	tc.Timeout = base.Timeout

	return tc, nil
}
