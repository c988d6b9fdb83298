package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	maxRedirects     = 10
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Resolver follows redirect chains to obtain the final URL behind shortened
// or tracking links. It never fails: any error yields the input unchanged.
type Resolver struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// New creates a resolver with the given request timeout.
func New(timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: defaultUserAgent,
		logger:    logger,
	}
}

// Resolve follows redirects with a HEAD request, falling back to a GET whose
// body is discarded immediately when the target rejects HEAD. A URL that does
// not redirect is returned byte-identical to the input.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) string {
	final, err := r.follow(ctx, http.MethodHead, rawURL)
	if err == nil {
		return final
	}

	final, err = r.follow(ctx, http.MethodGet, rawURL)
	if err != nil {
		r.logger.Debug("redirect resolution failed", "url", rawURL, "error", err)
		return rawURL
	}
	return final
}

func (r *Resolver) follow(ctx context.Context, method, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	// Abandon the body without reading it.
	resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode >= 500 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// No redirect happened: hand back the caller's exact string to keep
	// resolution idempotent (no re-encoding).
	if resp.Request == req {
		return rawURL, nil
	}
	return resp.Request.URL.String(), nil
}
