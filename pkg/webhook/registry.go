package webhook

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var (
	ErrNoWebhook       = errors.New("no webhook URL set")
	ErrUnknownCategory = errors.New("unknown webhook type")
	ErrInvalidURL      = errors.New("invalid webhook URL")
)

// Registry maps each category to at most one destination URL. Writes are
// last-write-wins; nothing is persisted.
type Registry struct {
	mu   sync.RWMutex
	urls map[Category]string
}

func NewRegistry() *Registry {
	return &Registry{urls: make(map[Category]string)}
}

// Set registers rawURL for category. An empty URL unsets the category.
func (r *Registry) Set(category Category, rawURL string) error {
	category, err := ParseCategory(string(category))
	if err != nil {
		return err
	}
	rawURL = strings.TrimSpace(rawURL)
	if rawURL != "" {
		if err := validateURL(rawURL); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rawURL == "" {
		delete(r.urls, category)
	} else {
		r.urls[category] = rawURL
	}
	return nil
}

// Get returns the URL registered for category, if any.
func (r *Registry) Get(category Category) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.urls[category]
	return u, ok
}

// Snapshot returns every category, with nil for unset ones.
func (r *Registry) Snapshot() map[Category]*string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Category]*string, len(Categories))
	for _, c := range Categories {
		if u, ok := r.urls[c]; ok {
			u := u
			out[c] = &u
		} else {
			out[c] = nil
		}
	}
	return out
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q must be an absolute http(s) URL", ErrInvalidURL, raw)
	}
	return nil
}
