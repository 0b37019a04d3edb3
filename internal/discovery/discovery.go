// Package discovery resolves broker names to candidate connection servers
// and tags them with a coarse region for the account creation form.
package discovery

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"journal-core/pkg/cache"
	"journal-core/pkg/metaapi"
)

const (
	serverCacheTTL = time.Hour
	pingTimeout    = 5 * time.Second
)

// Provider is the subset of the remote client discovery depends on.
type Provider interface {
	SearchServers(ctx context.Context, query string, platform metaapi.Platform) ([]metaapi.BrokerServer, error)
	ValidateCredentials(ctx context.Context, login, password, server string, platform metaapi.Platform) error
}

// ServerDiscovery looks up broker servers with a 1-hour cache in front of
// the remote search endpoint.
type ServerDiscovery struct {
	provider Provider
	cache    *cache.Cache[[]metaapi.BrokerServer]
	httpc    *http.Client
}

// New creates a ServerDiscovery backed by the given provider.
func New(provider Provider) *ServerDiscovery {
	return &ServerDiscovery{
		provider: provider,
		cache:    cache.New[[]metaapi.BrokerServer](serverCacheTTL),
		httpc:    &http.Client{Timeout: pingTimeout},
	}
}

// GetBrokerServers returns candidate servers for a broker, tagged with a
// region inferred from the server name. If region is non-empty the result is
// filtered to that region, from cached or fresh data alike.
func (d *ServerDiscovery) GetBrokerServers(ctx context.Context, brokerName string, platform metaapi.Platform, region string) ([]metaapi.BrokerServer, error) {
	key := brokerName + ":" + string(platform)

	servers, ok := d.cache.Get(key)
	if !ok {
		fresh, err := d.provider.SearchServers(ctx, brokerName, platform)
		if err != nil {
			return nil, err
		}
		servers = make([]metaapi.BrokerServer, len(fresh))
		for i, s := range fresh {
			if s.Region == "" {
				s.Region = inferRegion(s.Name)
			}
			servers[i] = s
		}
		d.cache.Set(key, servers)
	}

	if region == "" {
		return servers, nil
	}
	filtered := make([]metaapi.BrokerServer, 0, len(servers))
	for _, s := range servers {
		if s.Region == region {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

// ValidateServer checks that the remote service recognizes the server name.
// It uses throwaway credentials; a credential rejection still proves the
// server exists, so only validation errors about the server itself count.
func (d *ServerDiscovery) ValidateServer(ctx context.Context, server string, platform metaapi.Platform) error {
	err := d.provider.ValidateCredentials(ctx, "100000", "probe", server, platform)
	var authErr *metaapi.AuthenticationError
	if errors.As(err, &authErr) {
		return nil
	}
	return err
}

// PingServer probes an address with a short HEAD request. It reports
// liveness as a boolean and never returns an error.
func (d *ServerDiscovery) PingServer(ctx context.Context, address string) bool {
	if address == "" {
		return false
	}
	if !strings.Contains(address, "://") {
		address = "https://" + address
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, address, nil)
	if err != nil {
		return false
	}
	resp, err := d.httpc.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}

// inferRegion guesses a coarse region from substrings in the server name.
// The mapping is deliberately narrow; unknown names fall back to "default".
func inferRegion(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "demo"):
		return "demo"
	case strings.Contains(lower, "ecn"):
		return "ecn"
	case strings.Contains(lower, "pro"):
		return "pro"
	default:
		return "default"
	}
}
