package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// CredentialProvider resolves the credential set for a polling cycle. Stored
// credentials win; the fallbacks, typically read from the environment, fill
// in vendors with nothing stored. Fallbacks can be swapped at runtime.
type CredentialProvider struct {
	store driven.CredentialStore

	mu        sync.RWMutex
	fallbacks map[model.Vendor]string
}

// NewCredentialProvider creates a CredentialProvider. store may be nil when
// no encryption key is configured; only fallbacks are used then.
func NewCredentialProvider(store driven.CredentialStore, fallbacks map[model.Vendor]string) *CredentialProvider {
	p := &CredentialProvider{store: store}
	p.Replace(fallbacks)
	return p
}

// Replace swaps the fallback secrets. Empty values are dropped.
func (p *CredentialProvider) Replace(fallbacks map[model.Vendor]string) {
	cleaned := make(map[model.Vendor]string, len(fallbacks))
	for v, secret := range fallbacks {
		if secret != "" {
			cleaned[v] = secret
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallbacks = cleaned
}

// Resolve returns one credential per configured vendor in model.Vendors
// order. A store failure is logged and the fallbacks are still returned, so
// one unreadable credential never stops the other vendors from polling.
func (p *CredentialProvider) Resolve(ctx context.Context) []model.Credential {
	stored := map[model.Vendor]model.Credential{}
	if p.store != nil {
		creds, err := p.store.List(ctx)
		switch {
		case errors.Is(err, driven.ErrEncryptionKeyNotSet):
			slog.Debug("credential store disabled, using environment credentials only")
		case err != nil:
			slog.Error("list stored credentials failed", "error", err)
		default:
			for _, c := range creds {
				stored[c.Vendor] = c
			}
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	resolved := make([]model.Credential, 0, len(model.Vendors))
	for _, v := range model.Vendors {
		if c, ok := stored[v]; ok && c.Secret != "" {
			resolved = append(resolved, c)
			continue
		}
		if secret, ok := p.fallbacks[v]; ok {
			resolved = append(resolved, model.Credential{Vendor: v, Secret: secret})
		}
	}
	return resolved
}

// HasAny reports whether at least one vendor has a credential.
func (p *CredentialProvider) HasAny(ctx context.Context) bool {
	return len(p.Resolve(ctx)) > 0
}
