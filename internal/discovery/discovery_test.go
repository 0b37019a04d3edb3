package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"journal-core/pkg/metaapi"
)

type fakeProvider struct {
	searches    int
	servers     []metaapi.BrokerServer
	err         error
	validateErr error
}

func (f *fakeProvider) SearchServers(ctx context.Context, query string, platform metaapi.Platform) ([]metaapi.BrokerServer, error) {
	f.searches++
	return f.servers, f.err
}

func (f *fakeProvider) ValidateCredentials(ctx context.Context, login, password, server string, platform metaapi.Platform) error {
	return f.validateErr
}

func TestRegionInference(t *testing.T) {
	tests := []struct {
		name   string
		region string
	}{
		{"ICMarkets-Demo02", "demo"},
		{"Pepperstone-ECN", "ecn"},
		{"FTMO-Pro3", "pro"},
		{"Exness-Real7", "default"},
	}
	for _, tt := range tests {
		if got := inferRegion(tt.name); got != tt.region {
			t.Errorf("inferRegion(%q) = %q, want %q", tt.name, got, tt.region)
		}
	}
}

func TestGetBrokerServersCachesAndTags(t *testing.T) {
	provider := &fakeProvider{servers: []metaapi.BrokerServer{
		{Name: "ICMarkets-Demo02", Address: "demo.icmarkets.com", Platform: metaapi.PlatformMT5},
		{Name: "ICMarkets-Live01", Address: "live.icmarkets.com", Platform: metaapi.PlatformMT5},
	}}
	d := New(provider)

	first, err := d.GetBrokerServers(context.Background(), "ICMarkets", metaapi.PlatformMT5, "")
	if err != nil {
		t.Fatalf("GetBrokerServers: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(first))
	}
	if first[0].Region != "demo" || first[1].Region != "default" {
		t.Fatalf("unexpected regions: %q, %q", first[0].Region, first[1].Region)
	}

	if _, err := d.GetBrokerServers(context.Background(), "ICMarkets", metaapi.PlatformMT5, ""); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if provider.searches != 1 {
		t.Fatalf("expected 1 remote search, got %d", provider.searches)
	}
}

func TestRegionFilterAppliesToCachedResult(t *testing.T) {
	provider := &fakeProvider{servers: []metaapi.BrokerServer{
		{Name: "Broker-Demo", Platform: metaapi.PlatformMT4},
		{Name: "Broker-Live", Platform: metaapi.PlatformMT4},
	}}
	d := New(provider)

	// Warm the cache with an unfiltered lookup, then filter.
	if _, err := d.GetBrokerServers(context.Background(), "Broker", metaapi.PlatformMT4, ""); err != nil {
		t.Fatal(err)
	}
	demo, err := d.GetBrokerServers(context.Background(), "Broker", metaapi.PlatformMT4, "demo")
	if err != nil {
		t.Fatal(err)
	}
	if len(demo) != 1 || demo[0].Name != "Broker-Demo" {
		t.Fatalf("unexpected filtered result: %+v", demo)
	}
	if provider.searches != 1 {
		t.Fatalf("filter should not trigger a new search, got %d", provider.searches)
	}
}

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name        string
		validateErr error
		wantErr     bool
	}{
		{"accepted outright", nil, false},
		{"credential rejection proves the server exists", &metaapi.AuthenticationError{Message: "invalid login"}, false},
		{"unknown server fails", &metaapi.ValidationError{Field: "server", Message: "not found"}, true},
		{"transport failure fails", &metaapi.ConnectionError{Message: "dial timeout"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(&fakeProvider{validateErr: tt.validateErr})
			err := d.ValidateServer(context.Background(), "Broker-Demo", metaapi.PlatformMT5)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateServer: %v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestPingServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
	}))
	defer srv.Close()

	d := New(&fakeProvider{})
	if !d.PingServer(context.Background(), srv.URL) {
		t.Fatal("expected live server to ping true")
	}
	if d.PingServer(context.Background(), "http://127.0.0.1:1") {
		t.Fatal("expected unreachable server to ping false")
	}
	if d.PingServer(context.Background(), "") {
		t.Fatal("expected empty address to ping false")
	}
}
