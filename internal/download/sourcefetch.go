package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vaultshelf/orchestrator/internal/logging"
)

// DirectProviderSession is a session credential for a provider that gates
// torrent file downloads behind an authenticated cookie.
type DirectProviderSession struct {
	Host    string
	Token   string
	BaseURL string
}

// SessionRefresher reloads a DirectProviderSession's token when the
// provider has rotated it, e.g. by re-authenticating against BaseURL.
type SessionRefresher func(ctx context.Context, session DirectProviderSession) (DirectProviderSession, error)

// Fetcher performs the single non-redirecting GET the orchestrator issues
// to retrieve a torrent payload (or discover a magnet redirect) on behalf
// of a client that cannot reach the origin directly.
type Fetcher struct {
	httpClient *http.Client
	sessions   map[string]DirectProviderSession
	refresh    SessionRefresher
	log        *logging.Logger
}

// NewFetcher builds a Fetcher. timeout bounds the whole call per spec's
// default adapter-call timeout.
func NewFetcher(sessions map[string]DirectProviderSession, refresh SessionRefresher, timeout time.Duration, log *logging.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		sessions: sessions,
		refresh:  refresh,
		log:      log,
	}
}

// Result is what Fetch hands back to the caller: either a magnet URI or
// raw torrent-file bytes, never both.
type Result struct {
	MagnetURI string
	Bytes     []byte
}

// Fetch retrieves sourceURL. Magnet URIs pass through unchanged. Otherwise
// it performs a non-redirect-following GET; a 3xx pointing at a magnet URI
// short-circuits to that magnet; a direct-provider 401/403 triggers one
// session reload and retry before failing permanently.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL string) (Result, error) {
	if strings.HasPrefix(sourceURL, "magnet:") {
		return Result{MagnetURI: sourceURL}, nil
	}

	result, err := f.fetchOnce(ctx, sourceURL)
	if err == nil {
		return result, nil
	}

	if statusErr, ok := err.(*statusError); ok && (statusErr.code == http.StatusUnauthorized || statusErr.code == http.StatusForbidden) {
		if session, refreshed := f.refreshSessionFor(ctx, sourceURL); refreshed {
			f.sessions[session.Host] = session
			return f.fetchOnce(ctx, sourceURL)
		}
	}
	return Result{}, err
}

func (f *Fetcher) refreshSessionFor(ctx context.Context, sourceURL string) (DirectProviderSession, bool) {
	u, err := url.Parse(sourceURL)
	if err != nil || f.refresh == nil {
		return DirectProviderSession{}, false
	}
	session, ok := f.sessions[u.Host]
	if !ok {
		return DirectProviderSession{}, false
	}
	refreshed, err := f.refresh(ctx, session)
	if err != nil {
		f.log.WithError(err).Warn("failed to refresh direct-provider session")
		return DirectProviderSession{}, false
	}
	return refreshed, true
}

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("source fetch: unexpected status %d", e.code) }

func (f *Fetcher) fetchOnce(ctx context.Context, sourceURL string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("source fetch: build request: %w", err)
	}
	req.Header.Set("Accept", "application/x-bittorrent")

	if u, err := url.Parse(sourceURL); err == nil {
		if session, ok := f.sessions[u.Host]; ok {
			req.AddCookie(&http.Cookie{Name: "session", Value: session.Token})
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("source fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		if strings.HasPrefix(loc, "magnet:") {
			return Result{MagnetURI: loc}, nil
		}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Result{}, &statusError{code: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("source fetch: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return Result{}, fmt.Errorf("source fetch: read body: %w", err)
	}
	if bytes.HasPrefix(body, []byte("magnet:")) {
		return Result{MagnetURI: string(bytes.TrimSpace(body))}, nil
	}
	return Result{Bytes: body}, nil
}

// RewriteLoopback rewrites sourceURL's host with externalBaseOverride when
// it resolves to a loopback address, preserving path/query/fragment. If
// the URL is loopback and no override is configured, ok is false — the
// caller must treat the submission as a failed dispatch.
func RewriteLoopback(sourceURL, externalBaseOverride string) (rewritten string, ok bool) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return sourceURL, true
	}
	host := u.Hostname()
	if !isLoopback(host) {
		return sourceURL, true
	}
	if externalBaseOverride == "" {
		return "", false
	}
	base, err := url.Parse(externalBaseOverride)
	if err != nil {
		return "", false
	}
	u.Scheme = base.Scheme
	u.Host = base.Host
	return u.String(), true
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
