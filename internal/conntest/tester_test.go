package conntest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"journal-core/pkg/metaapi"
)

type fakeProvider struct {
	servers    []metaapi.BrokerServer
	searchErr  error
	searchHits int
	credErr    error
	credHits   int
}

func (f *fakeProvider) SearchServers(ctx context.Context, query string, platform metaapi.Platform) ([]metaapi.BrokerServer, error) {
	f.searchHits++
	return f.servers, f.searchErr
}

func (f *fakeProvider) ValidateCredentials(ctx context.Context, login, password, server string, platform metaapi.Platform) error {
	f.credHits++
	return f.credErr
}

func newTestTester(t *testing.T, provider *fakeProvider, handshake Handshaker, online bool) *Tester {
	t.Helper()
	tester := New(provider, handshake)
	tester.sleep = func(time.Duration) {}

	if online {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		t.Cleanup(srv.Close)
		tester.probeURL = srv.URL
	} else {
		tester.probeURL = "http://127.0.0.1:1"
	}
	return tester
}

func okHandshake(ctx context.Context) (time.Duration, error) {
	return 25 * time.Millisecond, nil
}

var testReq = Request{
	Login:    "100234",
	Password: "secret",
	Server:   "ICMarkets-Demo02",
	Platform: metaapi.PlatformMT5,
}

func TestNoInternetShortCircuits(t *testing.T) {
	provider := &fakeProvider{}
	tester := newTestTester(t, provider, okHandshake, false)

	res := tester.Run(context.Background(), testReq)
	if res.Passed() {
		t.Fatal("expected failure")
	}
	if res.Internet || res.Broker || res.Credentials || res.Socket {
		t.Fatalf("all stages must be false, got %+v", res)
	}
	if provider.searchHits != 0 || provider.credHits != 0 {
		t.Fatal("later stages must not run after internet failure")
	}
	if res.Reason == "" {
		t.Fatal("expected a failure reason")
	}
}

func TestBrokerMatchIsCaseInsensitive(t *testing.T) {
	provider := &fakeProvider{servers: []metaapi.BrokerServer{
		{Name: "icmarkets-demo02", Address: "demo02.icmarkets.com"},
	}}
	tester := newTestTester(t, provider, okHandshake, true)

	res := tester.Run(context.Background(), testReq)
	if !res.Passed() {
		t.Fatalf("expected pass, got %+v", res)
	}
	if res.RTT != 25*time.Millisecond {
		t.Errorf("expected rtt surfaced, got %v", res.RTT)
	}
}

func TestBrokerLookupRetriesThenFails(t *testing.T) {
	provider := &fakeProvider{searchErr: errors.New("search unavailable")}
	tester := newTestTester(t, provider, okHandshake, true)

	res := tester.Run(context.Background(), testReq)
	if res.Broker {
		t.Fatal("broker stage must fail")
	}
	if !res.Internet {
		t.Fatal("internet stage should have passed")
	}
	if provider.searchHits != 3 {
		t.Fatalf("expected 3 lookup attempts, got %d", provider.searchHits)
	}
	if provider.credHits != 0 {
		t.Fatal("credential stage must not run after broker failure")
	}
}

func TestCredentialFailureStopsBeforeSocket(t *testing.T) {
	provider := &fakeProvider{
		servers: []metaapi.BrokerServer{{Name: "ICMarkets-Demo02"}},
		credErr: &metaapi.AuthenticationError{Message: "invalid credentials"},
	}
	handshakeCalled := false
	tester := newTestTester(t, provider, func(ctx context.Context) (time.Duration, error) {
		handshakeCalled = true
		return 0, nil
	}, true)

	res := tester.Run(context.Background(), testReq)
	if res.Credentials || res.Socket {
		t.Fatalf("expected credential failure, got %+v", res)
	}
	if !res.Internet || !res.Broker {
		t.Fatalf("earlier stages should pass, got %+v", res)
	}
	if handshakeCalled {
		t.Fatal("socket stage must not run after credential failure")
	}
}

func TestSocketHandshakeFailure(t *testing.T) {
	provider := &fakeProvider{servers: []metaapi.BrokerServer{{Name: "ICMarkets-Demo02"}}}
	tester := newTestTester(t, provider, func(ctx context.Context) (time.Duration, error) {
		return 0, errors.New("dial refused")
	}, true)

	res := tester.Run(context.Background(), testReq)
	if res.Socket {
		t.Fatal("socket stage must fail")
	}
	if !res.Internet || !res.Broker || !res.Credentials {
		t.Fatalf("earlier stages should pass, got %+v", res)
	}
}
