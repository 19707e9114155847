package lor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Jar is a persistent cookie jar for the forum host. Unlike
// net/http/cookiejar it keeps cookie expiry times accessible and ignores
// the discard attribute: session cookies survive process exit, which is
// what lets lorpost reuse a login across invocations.
type Jar struct {
	mu      sync.Mutex
	path    string
	cookies map[string]*http.Cookie
}

// storedCookie is the on-disk representation of one cookie.
type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain,omitempty"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// LoadJar reads the jar file; a missing file yields an empty jar.
func LoadJar(path string) (*Jar, error) {
	j := &Jar{path: path, cookies: make(map[string]*http.Cookie)}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return j, nil
		}
		return nil, fmt.Errorf("read cookies %s: %w", path, err)
	}
	var stored []storedCookie
	if err := json.Unmarshal(b, &stored); err != nil {
		return nil, fmt.Errorf("parse cookies %s: %w", path, err)
	}
	for _, s := range stored {
		j.cookies[s.Name] = &http.Cookie{
			Name:    s.Name,
			Value:   s.Value,
			Domain:  s.Domain,
			Path:    s.Path,
			Expires: s.Expires,
		}
	}
	return j, nil
}

// Save persists the jar with user-private permissions.
func (j *Jar) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	stored := make([]storedCookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		stored = append(stored, storedCookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: c.Expires,
		})
	}
	b, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	if err := os.WriteFile(j.path, b, 0o600); err != nil {
		return fmt.Errorf("write cookies %s: %w", j.path, err)
	}
	return nil
}

// SetCookies merges response cookies into the jar. Implements
// http.CookieJar.
func (j *Jar) SetCookies(_ *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if c.MaxAge < 0 || (c.MaxAge == 0 && !c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			delete(j.cookies, c.Name)
			continue
		}
		cc := *c
		if cc.MaxAge > 0 && cc.Expires.IsZero() {
			cc.Expires = time.Now().Add(time.Duration(cc.MaxAge) * time.Second)
		}
		j.cookies[c.Name] = &cc
	}
}

// Cookies returns the live cookies. Implements http.CookieJar.
func (j *Jar) Cookies(_ *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*http.Cookie
	for _, c := range j.cookies {
		if !c.Expires.IsZero() && c.Expires.Before(time.Now()) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Get returns the named cookie, expired or not, or nil.
func (j *Jar) Get(name string) *http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cookies[name]
}

// ExpiresWithin reports whether any cookie with a known expiry will lapse
// within d. The poster uses it to decide between a fresh login and a
// session touch.
func (j *Jar) ExpiresWithin(d time.Duration) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	deadline := time.Now().Add(d)
	for _, c := range j.cookies {
		if !c.Expires.IsZero() && c.Expires.Before(deadline) {
			return true
		}
	}
	return false
}

// Empty reports whether the jar holds no cookies at all.
func (j *Jar) Empty() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cookies) == 0
}
