package session

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"govqa/pkg/htmlutil"
	"govqa/pkg/webforms"
)

// the portal identifies the logged in customer to its client scripts, an
// anonymous visitor gets an empty or zero id
var identityRegex = regexp.MustCompile(`(?i)customerid['"]?\s*[:=]\s*['"]?([\w@.\-]*)`)

func identify(page *Page) string {
	for _, script := range page.Doc.Find("script").Nodes {
		text := htmlutil.GetText(script)
		groups := identityRegex.FindStringSubmatch(text)
		if len(groups) < 2 {
			continue
		}
		id := strings.TrimSpace(groups[1])
		if id == "" || id == "0" || strings.EqualFold(id, "null") {
			continue
		}
		return id
	}
	return ""
}

// Login authenticates the session. Credentials the portal rejects yield
// ErrUnauthenticated.
func (s *Session) Login(ctx context.Context, username, password string) error {
	loginError := func(err error) error {
		return fmt.Errorf("govqa session: login failed: %w", err)
	}

	s.setReferer(s.mustURL(PageSupportHome))
	loginPage, err := s.Get(ctx, PageLogin, nil)
	if err != nil {
		s.tel.ReportBroken(report_session_login, fmt.Errorf("login page request: %w", err))
		return loginError(err)
	}

	payload, err := webforms.SecretsPayload(loginPage.Doc)
	if err != nil {
		s.tel.ReportBroken(report_session_login, fmt.Errorf("extract secrets: %w", err))
		return loginError(err)
	}
	payload.Set(s.loginFields.Username, username)
	payload.Set(s.loginFields.Password, password)
	payload.Set(s.loginFields.Button, "Submit")

	result, err := s.Post(ctx, PageLogin, payload)
	if IsTransportError(err, PageCustomerHome) {
		// the redirect to the home page went through, the home page itself
		// failed to render
		result, err = s.Get(ctx, PageCustomerHome, nil)
	}
	if err != nil {
		s.tel.ReportBroken(report_session_login, fmt.Errorf("login request: %w", err))
		return loginError(err)
	}

	err = s.Identify(ctx, result)
	if err != nil {
		return loginError(err)
	}
	return nil
}

// Identify updates who the session is logged in as from a page the portal
// served, the customer home page when page is nil. Pages that identify no
// customer yield ErrUnauthenticated.
func (s *Session) Identify(ctx context.Context, page *Page) error {
	if page == nil {
		var err error
		page, err = s.Get(ctx, PageCustomerHome, nil)
		if err != nil {
			return err
		}
	}

	customerId := identify(page)
	s.mu.Lock()
	s.authenticated = customerId != ""
	s.customerId = customerId
	s.mu.Unlock()

	if customerId == "" {
		s.tel.ReportWarning(report_session_login, "could not identify customer", page.URL.String())
		return ErrUnauthenticated
	}
	s.tel.ReportDebug(report_session_login, "logged in", customerId)
	return nil
}

func (s *Session) mustURL(endpoint string) *url.URL {
	u, err := s.URL(endpoint)
	if err != nil {
		panic(err)
	}
	return u
}
