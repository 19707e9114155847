// Package lor is the HTTP client layer for the forum: a cookie-jar-backed
// fetcher shared by the puller and the poster.
package lor

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/logger"
	"github.com/dmaluka/lornews/pkg/telemetry"
)

// Client talks to the forum. All requests carry the jar's cookies and the
// lornews User-Agent; responses update the jar.
type Client struct {
	base    *url.URL
	hc      *http.Client
	jar     *Jar
	limiter *rate.Limiter
}

// StatusError is a non-2xx forum response. The poster surfaces its text as
// the HTTP status line.
type StatusError struct {
	Status string
}

func (e *StatusError) Error() string { return e.Status }

// New builds a client for the given base URL and timeout. The jar may be
// nil for anonymous fetching (the puller).
func New(baseURL string, timeout time.Duration, jar *Jar) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("forum base url: %w", err)
	}
	c := &Client{
		base: base,
		jar:  jar,
		hc:   &http.Client{Timeout: timeout},
	}
	if jar != nil {
		c.hc.Jar = jar
	}
	return c, nil
}

// SetRateLimit caps the request rate. The puller enables this to stay
// polite while paging through listings.
func (c *Client) SetRateLimit(rps float64, burst int) {
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

func (c *Client) url(path string, query url.Values) string {
	u := *c.base
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	req.Header.Set("User-Agent", "lornews/"+config.Version)
	telemetry.ForumRequests.WithLabelValues(req.URL.Path).Inc()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forum request %s: %w", req.URL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("forum response %s: %w", req.URL, err)
	}
	logger.Debug("forum_request", "url", req.URL.String(), "status", resp.StatusCode, "bytes", len(body))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, &StatusError{Status: resp.Status}
	}
	return body, nil
}

// Get fetches a forum page.
func (c *Client) Get(path string, query url.Values) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.url(path, query), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// PostForm submits an urlencoded form.
func (c *Client) PostForm(path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, c.url(path, nil),
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// PostMultipart submits a form with an attached file under the given field
// name.
func (c *Client) PostMultipart(path string, form url.Values, fileField, filePath string) ([]byte, error) {
	var buf strings.Builder
	w := multipart.NewWriter(&buf)
	for k, vs := range form {
		for _, v := range vs {
			if err := w.WriteField(k, v); err != nil {
				return nil, err
			}
		}
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", filePath, err)
	}
	defer f.Close()
	part, err := w.CreateFormFile(fileField, filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.url(path, nil), strings.NewReader(buf.String()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req)
}
