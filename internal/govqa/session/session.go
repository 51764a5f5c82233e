package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"govqa/internal/components/assert"
	"govqa/internal/components/telemetry"
	"govqa/pkg/restyutil"
	"govqa/pkg/webforms"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_session_open     = "session.open"
	report_session_request  = "session.request"
	report_session_login    = "session.login"
	report_session_classify = "session.classify"
)

const (
	PageSupportHome  = "SupportHome.aspx"
	PageLogin        = "Login.aspx"
	PageCustomerHome = "CustomerHome.aspx"
)

const (
	defaultUserAgent     = "Mozilla/5.0 (X11; Linux x86_64; rv:12.0) Gecko/20100101 Firefox/12.0"
	defaultRetryAttempts = 3
	defaultRetryWait     = time.Second
	defaultTimeout       = 30 * time.Second
	maxRedirects         = 10
)

// failure banners the portal renders instead of (or on top of) a 5xx status
var failureBanners = []struct {
	text   string
	status int
}{
	{text: "There was a problem serving the requested page", status: 500},
	{text: "Page Temporarily Unavailable", status: 503},
}

// LoginFields names the postback keys of the login form.
type LoginFields struct {
	Username string
	Password string
	Button   string
}

var DefaultLoginFields = LoginFields{
	Username: "ASPxFormLayout1$txtUsername",
	Password: "ASPxFormLayout1$txtPassword",
	Button:   "ASPxFormLayout1$btnLogin",
}

type Options struct {
	// BaseAddress is the portal's root, e.g. https://example.govqa.us
	BaseAddress string
	// RetryAttempts bounds the retries of idempotent requests that fail with
	// a 5xx or a failure banner. Negative disables retries, zero uses the default.
	RetryAttempts int
	RetryWait     time.Duration
	Timeout       time.Duration
	UserAgent     string
	// RequestsPerSecond paces requests when > 0.
	RequestsPerSecond float64
	BypassCloudflare  bool
	LoginFields       LoginFields
	// DumpDir, when set, receives a file for every http exchange.
	DumpDir string
}

// Session is a single connection to one portal instance. Cookies set by the
// portal persist across every request made through it.
//
// A Session issues one request at a time, it is not meant to be shared by
// concurrent callers.
type Session struct {
	origin *url.URL
	// base is the directory of the landing page, including the session
	// segment the portal rewrites into its urls.
	base        *url.URL
	http        *resty.Client
	loginFields LoginFields
	tel         telemetry.API

	mu            sync.Mutex
	referer       string
	authenticated bool
	customerId    string
}

func newHttpClient(origin *url.URL, opts Options, tel telemetry.API) (*resty.Client, error) {
	httpClient := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.BypassCloudflare {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient.SetHeaders(map[string]string{
		"User-Agent":      userAgent,
		"Accept-Language": "en-US",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	})
	httpClient.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(maxRedirects),
		sameHostRedirectPolicy(origin.Hostname()),
	)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	httpClient.SetTimeout(timeout)

	retries := opts.RetryAttempts
	if retries == 0 {
		retries = defaultRetryAttempts
	}
	if retries > 0 {
		wait := opts.RetryWait
		if wait == 0 {
			wait = defaultRetryWait
		}
		httpClient.SetRetryCount(retries)
		httpClient.SetRetryWaitTime(wait)
		httpClient.SetRetryMaxWaitTime(wait * 4)
		httpClient.AddRetryCondition(shouldRetry)
	}

	if opts.RequestsPerSecond > 0 {
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	if opts.DumpDir != "" {
		dump, err := restyutil.NewDump(opts.DumpDir)
		if err != nil {
			return nil, fmt.Errorf("dump dir: %w", err)
		}
		dump.Attach(httpClient)
	}

	telemetry.InstrumentResty(httpClient, tel)
	return httpClient, nil
}

// offHostRedirectError stops a redirect that would leave the portal's host.
type offHostRedirectError struct {
	target *url.URL
}

func (e *offHostRedirectError) Error() string {
	return fmt.Sprintf("redirect off the portal to %s", e.target)
}

func sameHostRedirectPolicy(hostname string) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
		if !strings.EqualFold(req.URL.Hostname(), hostname) {
			return &offHostRedirectError{target: req.URL}
		}
		return nil
	})
}

// shouldRetry retries idempotent requests only. A postback that failed after
// reaching the server may still have been applied, resending it could create
// a record twice.
func shouldRetry(res *resty.Response, err error) bool {
	var offHost *offHostRedirectError
	if errors.As(err, &offHost) {
		return false
	}
	if res == nil || res.Request == nil {
		return err != nil
	}
	if res.Request.Method != resty.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	status, _ := classify(res.StatusCode(), res.Body())
	return status != 0
}

// classify returns the status a response should be treated as failing with,
// or 0 if it is not a failure.
func classify(status int, body []byte) (int, string) {
	text := string(body)
	for _, banner := range failureBanners {
		if strings.Contains(text, banner.text) {
			return banner.status, banner.text
		}
	}
	if status >= 500 {
		return status, fmt.Sprintf("status %d", status)
	}
	return 0, ""
}

// Open connects to the portal at opts.BaseAddress and checks that it is one.
func Open(ctx context.Context, opts Options, tel telemetry.API) (*Session, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("govqa_session", tel)

	origin, err := url.Parse(strings.TrimRight(opts.BaseAddress, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base address: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, &UnsupportedSiteError{Address: opts.BaseAddress, Landed: "<invalid address>"}
	}

	httpClient, err := newHttpClient(origin, opts, tel)
	if err != nil {
		return nil, err
	}

	loginFields := opts.LoginFields
	if loginFields == (LoginFields{}) {
		loginFields = DefaultLoginFields
	}

	s := &Session{
		origin:      origin,
		base:        origin,
		http:        httpClient,
		loginFields: loginFields,
		tel:         tel,
	}

	landing, err := s.Get(ctx, origin.String(), nil)
	var offHost *offHostRedirectError
	if errors.As(err, &offHost) {
		tel.ReportWarning(report_session_open, "redirected off host", offHost.target.String())
		return nil, &UnsupportedSiteError{Address: opts.BaseAddress, Landed: offHost.target.String()}
	}
	if err != nil {
		tel.ReportBroken(report_session_open, err, opts.BaseAddress)
		return nil, err
	}
	if !landing.Is(PageSupportHome) {
		tel.ReportWarning(report_session_open, "unexpected landing page", landing.URL.String())
		return nil, &UnsupportedSiteError{Address: opts.BaseAddress, Landed: landing.URL.String()}
	}

	// resolving "./" keeps the raw form of the session segment, the portal
	// does not accept it percent-encoded
	s.base = landing.URL.ResolveReference(&url.URL{Path: "./"})

	tel.ReportDebug(report_session_open, s.base.String())
	return s, nil
}

// URL resolves an endpoint (e.g. "Login.aspx") against the portal base.
// Absolute paths and full urls are resolved the usual way.
func (s *Session) URL(endpoint string) (*url.URL, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	return s.base.ResolveReference(ref), nil
}

// Base is the portal base all endpoints are resolved against.
func (s *Session) Base() *url.URL {
	out := *s.base
	return &out
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// CustomerId is the identifier the portal assigned to the logged in user.
func (s *Session) CustomerId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customerId
}

func (s *Session) setReferer(u *url.URL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referer = u.String()
}

func (s *Session) newRequest(ctx context.Context) *resty.Request {
	s.mu.Lock()
	referer := s.referer
	s.mu.Unlock()

	req := s.http.R().SetContext(ctx)
	if referer != "" {
		req.SetHeader("Referer", referer)
	}
	return req
}

func (s *Session) execute(req *resty.Request, method, endpoint string) (*Page, error) {
	target, err := s.URL(endpoint)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", endpoint, err)
	}

	res, err := req.Execute(method, target.String())
	if err != nil {
		s.tel.ReportBroken(report_session_request, fmt.Errorf("%s %s: %w", method, target, err))
		return nil, err
	}

	finalUrl := target
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL
	}

	if status, reason := classify(res.StatusCode(), res.Body()); status != 0 {
		s.tel.ReportWarning(report_session_classify, method, finalUrl.String(), status, reason)
		return nil, &TransportError{Status: status, URL: finalUrl, Reason: reason}
	}

	page, err := newPage(finalUrl, res.StatusCode(), res.Header(), res.Body())
	if err != nil {
		s.tel.ReportBroken(report_session_request, fmt.Errorf("parse %s: %w", finalUrl, err))
		return nil, err
	}
	s.setReferer(finalUrl)
	return page, nil
}

// Get fetches and parses a page.
func (s *Session) Get(ctx context.Context, endpoint string, query url.Values) (*Page, error) {
	req := s.newRequest(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	return s.execute(req, resty.MethodGet, endpoint)
}

// Post sends a postback. The payload is encoded in its own order.
func (s *Session) Post(ctx context.Context, endpoint string, payload *webforms.Payload) (*Page, error) {
	req := s.newRequest(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(payload.Encode())
	return s.execute(req, resty.MethodPost, endpoint)
}

// Fetch downloads a resource without parsing it, for captcha images and
// audio. It returns the body and its content type.
func (s *Session) Fetch(ctx context.Context, target *url.URL) ([]byte, string, error) {
	res, err := s.newRequest(ctx).Get(target.String())
	if err != nil {
		s.tel.ReportBroken(report_session_request, fmt.Errorf("fetch %s: %w", target, err))
		return nil, "", err
	}
	if status, reason := classify(res.StatusCode(), nil); status != 0 {
		return nil, "", &TransportError{Status: status, URL: target, Reason: reason}
	}
	return res.Body(), res.Header().Get("Content-Type"), nil
}

// IsTransportError reports whether err is a TransportError for a response
// that landed on the given page.
func IsTransportError(err error, landed string) bool {
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		return false
	}
	return transportErr.Landed(landed)
}
