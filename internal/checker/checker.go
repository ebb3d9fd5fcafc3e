package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/config"
)

// Result is the normalized outcome of checking one URL. Network failures are
// folded in here, never returned as errors to the caller.
type Result struct {
	URL           string
	StatusCode    int
	StatusText    string
	Broken        bool
	Warning       bool
	Skipped       bool
	RedirectURL   string
	RedirectCount int
	ResponseTime  time.Duration
	ErrorMessage  string
}

// maxBodyRead caps how much of a GET body is drained. Draining keeps
// connections reusable without downloading whole pages.
const maxBodyRead int64 = 1 << 20

var errTooManyRedirects = errors.New("too many redirects")

// Checker performs HTTP liveness checks. It is safe for concurrent use; each
// check carries its own redirect state on a per-request client sharing one
// transport.
type Checker struct {
	transport *http.Transport
	cfg       config.CheckerConfig
	excluded  []string
	logger    *zap.Logger
}

func NewChecker(cfg config.CheckerConfig, logger *zap.Logger) *Checker {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: !cfg.VerifySSL}, //nolint:gosec // explicit operator opt-out
	}

	excluded := make([]string, 0, len(cfg.ExcludedDomains))
	for _, d := range cfg.ExcludedDomains {
		excluded = append(excluded, strings.ToLower(strings.TrimSpace(d)))
	}

	return &Checker{
		transport: transport,
		cfg:       cfg,
		excluded:  excluded,
		logger:    logger.Named("checker"),
	}
}

// Check verifies one URL. Excluded domains never reach the network and come
// back as Skipped. Transient network failures are retried with backoff before
// being reported as broken.
func (c *Checker) Check(ctx context.Context, rawURL string) Result {
	if c.isExcluded(rawURL) {
		return Result{URL: rawURL, Skipped: true}
	}

	var res Result
	_ = retry.Do(
		func() error {
			res = c.checkOnce(ctx, rawURL)
			if res.Broken && res.StatusCode == 0 {
				// Network-level failure; worth another attempt.
				return errors.New(res.ErrorMessage)
			}
			return nil
		},
		retry.Attempts(c.cfg.RetryAttempts+1),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	return res
}

func (c *Checker) isExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range c.excluded {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// checkOnce issues a HEAD first, falling back to a full GET when the target
// rejects or fumbles the lightweight method. Many real servers reject HEAD,
// so skipping the fallback would manufacture false brokens.
func (c *Checker) checkOnce(ctx context.Context, rawURL string) Result {
	res := c.do(ctx, http.MethodHead, rawURL)
	if res.ErrorMessage != "" && res.StatusCode == 0 && res.RedirectCount == 0 {
		return res
	}
	if res.StatusCode >= http.StatusBadRequest {
		return c.do(ctx, http.MethodGet, rawURL)
	}
	return res
}

func (c *Checker) do(ctx context.Context, method, rawURL string) Result {
	res := Result{URL: rawURL}

	// Redirect state is local to this check so one Checker can serve many
	// goroutines.
	var mu sync.Mutex
	var hops int
	var firstRedirectStatus int
	var lastLocation string

	client := &http.Client{
		Transport: c.transport,
		Timeout:   c.cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			mu.Lock()
			defer mu.Unlock()
			hops = len(via)
			if firstRedirectStatus == 0 && req.Response != nil {
				firstRedirectStatus = req.Response.StatusCode
			}
			lastLocation = req.URL.String()
			if len(via) >= c.cfg.MaxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		res.Broken = true
		res.ErrorMessage = fmt.Sprintf("invalid URL: %v", err)
		return res
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := client.Do(req)
	res.ResponseTime = time.Since(start)

	if err != nil {
		if errors.Is(err, errTooManyRedirects) {
			// An unresolved redirect chain is a warning, not a silent
			// success and not a hard failure.
			res.Warning = true
			res.StatusCode = firstRedirectStatus
			res.StatusText = http.StatusText(firstRedirectStatus)
			res.RedirectURL = lastLocation
			res.RedirectCount = hops
			res.ErrorMessage = fmt.Sprintf("redirect chain not resolved within %d hops", c.cfg.MaxRedirects)
			return res
		}
		res.Broken = true
		res.ErrorMessage = classifyNetworkError(err, c.cfg.Timeout)
		return res
	}
	defer resp.Body.Close()

	if method == http.MethodGet {
		// Drain a little body so keep-alive connections stay healthy.
		_, _ = io.CopyN(io.Discard, resp.Body, maxBodyRead)
	}

	res.StatusCode = resp.StatusCode
	res.StatusText = http.StatusText(resp.StatusCode)

	if hops > 0 {
		res.Warning = true
		res.RedirectURL = resp.Request.URL.String()
		res.RedirectCount = hops
		if firstRedirectStatus != 0 {
			res.StatusCode = firstRedirectStatus
			res.StatusText = http.StatusText(firstRedirectStatus)
		}
	}

	switch {
	case resp.StatusCode >= http.StatusBadRequest:
		res.Broken = true
		res.Warning = false
	case res.ResponseTime > c.cfg.SlowThreshold && c.cfg.SlowThreshold > 0:
		res.Warning = true
		if res.ErrorMessage == "" {
			res.ErrorMessage = fmt.Sprintf("slow response: %s", res.ResponseTime.Round(time.Millisecond))
		}
	}
	return res
}

// classifyNetworkError maps transport failures onto the operator-facing
// taxonomy: timeout, DNS, TLS, connection refused, generic.
func classifyNetworkError(err error, timeout time.Duration) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("DNS lookup failed for %s", dnsErr.Name)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("request timed out after %s", timeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("request timed out after %s", timeout)
	}

	var certErr *x509.CertificateInvalidError
	var unknownAuthErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthErr) ||
		errors.As(err, &hostErr) || errors.As(err, &tlsErr) ||
		strings.Contains(err.Error(), "tls:") {
		return fmt.Sprintf("TLS handshake failed: %v", unwrapURLError(err))
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && strings.Contains(opErr.Error(), "connection refused") {
		return "connection refused"
	}

	return fmt.Sprintf("connection error: %v", unwrapURLError(err))
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
