package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonwraymond/botops/secret"
	"github.com/jonwraymond/botops/session"
)

// Tenant is one bot the daemon may run.
type Tenant struct {
	session.TenantConfig

	// Autostart starts the bot when the daemon boots.
	Autostart bool
}

type tenantsFile struct {
	Tenants []tenantEntry `json:"tenants"`
}

type tenantEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Token     string `json:"token"`
	Autostart bool   `json:"autostart"`
}

// LoadTenants reads a tenants file. Tokens may be secret references and are
// resolved with r.
//
//	{"tenants": [{"id": "acme", "name": "Acme", "token": "secretref:env:ACME_TOKEN", "autostart": true}]}
func LoadTenants(ctx context.Context, path string, r *secret.Resolver) ([]Tenant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read tenants file: %w", err)
	}
	var file tenantsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse tenants file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Tenants))
	out := make([]Tenant, 0, len(file.Tenants))
	for i, e := range file.Tenants {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: tenant %d has no id", ErrInvalid, i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: duplicate tenant %q", ErrInvalid, e.ID)
		}
		seen[e.ID] = true

		token, err := r.ResolveValue(ctx, e.Token)
		if err != nil {
			return nil, fmt.Errorf("config: tenant %q token: %w", e.ID, err)
		}
		if token == "" {
			return nil, fmt.Errorf("%w: tenant %q has no token", ErrInvalid, e.ID)
		}
		name := e.Name
		if name == "" {
			name = e.ID
		}
		out = append(out, Tenant{
			TenantConfig: session.TenantConfig{
				ID:          e.ID,
				Name:        name,
				Credentials: session.Credentials{Token: token},
			},
			Autostart: e.Autostart,
		})
	}
	return out, nil
}

// Catalog indexes tenants by id.
func Catalog(tenants []Tenant) map[string]session.TenantConfig {
	m := make(map[string]session.TenantConfig, len(tenants))
	for _, t := range tenants {
		m[t.ID] = t.TenantConfig
	}
	return m
}
