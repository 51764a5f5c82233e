// Package portaltest serves a fake records portal for tests. It renders the
// pages the client scrapes, validates postbacks the way the real portal does
// and records what it was sent.
package portaltest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

const (
	SessionSegment = "(S(k2x4dq1v5yqyf0wz))"
	// Base is the url-rewritten directory every portal page is served from.
	Base = "/WEBAPP/_rs/" + SessionSegment + "/"

	Username   = "jdoe@example.com"
	Password   = "correct horse battery"
	CustomerId = "4242"

	PageSupportHome     = "SupportHome.aspx"
	PageLogin           = "Login.aspx"
	PageCustomerHome    = "CustomerHome.aspx"
	PageAccount         = "CustomerDetails.aspx"
	PageRequest         = "RequestOpen.aspx"
	PageIssues          = "CustomerIssues.aspx"
	PageRequestEdit     = "RequestEdit.aspx"
	PageRequestMessage  = "RequestEditMessage.aspx"
	PageCaptchaResource = "BotDetectCaptcha.ashx"

	// RequestType is the only request form type the portal offers.
	RequestType = "1"

	sessionCookie = "ASP.NET_SessionId"
	failureBanner = "There was a problem serving the requested page"
)

type visitor struct {
	loggedIn bool
	flash    string
}

// Portal is a running fake portal. The zero value is not usable, create one
// with New.
type Portal struct {
	*httptest.Server

	mu             sync.Mutex
	viewstateParts int
	failGets       int
	homeBanners    int
	serial         int
	issued         map[string]int
	captchaSerial  int
	captchas       map[string]string
	visitors       map[string]*visitor
	accounts       map[string]string
	records        []*record
	hits           map[string]int
	posts          map[string][]url.Values
}

// New starts a portal that is shut down when the test ends.
func New(t testing.TB) *Portal {
	p := &Portal{
		viewstateParts: 1,
		issued:         map[string]int{},
		captchas:       map[string]string{},
		visitors:       map[string]*visitor{},
		accounts:       map[string]string{Username: Password},
		records:        fixtureRecords(),
		hits:           map[string]int{},
		posts:          map[string][]url.Values{},
	}
	p.Server = httptest.NewServer(p.router())
	t.Cleanup(p.Server.Close)
	return p
}

// SplitViewstate makes every page render its viewstate across n fields.
func (p *Portal) SplitViewstate(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewstateParts = n
}

// FailGets answers the next n GET requests with a 503.
func (p *Portal) FailGets(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failGets = n
}

// BannerOnHome renders the failure banner on the next n customer home pages,
// with a 200 status.
func (p *Portal) BannerOnHome(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.homeBanners = n
}

// Hits is the number of requests made for a page with the given method.
func (p *Portal) Hits(method, page string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[method+" "+page]
}

// Posts returns the decoded bodies posted to a page, oldest first.
func (p *Portal) Posts(page string) []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.posts[page]...)
}

// CaptchaToken is the verification token of the captcha last rendered on a
// form page.
func (p *Portal) CaptchaToken(page string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captchas[page]
}

// CaptchaCode is the answer to the captcha last rendered on a form page.
func (p *Portal) CaptchaCode(page string) string {
	return CaptchaAnswer(p.CaptchaToken(page))
}

// CaptchaAnswer is the code a captcha token's image shows.
func CaptchaAnswer(token string) string {
	return strings.ToUpper(strings.TrimPrefix(token, "tok"))
}

// CaptchaImage is the image served for a captcha token.
func CaptchaImage(token string) []byte {
	return []byte("JFIF:" + token)
}

// CaptchaAudio is the audio served for a captcha token.
func CaptchaAudio(token string) []byte {
	return []byte("RIFF:" + token)
}

// ReferenceNumbers lists the reference numbers of every record, oldest first.
func (p *Portal) ReferenceNumbers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.records))
	for i, r := range p.records {
		out[i] = r.referenceNo
	}
	return out
}

// HasAccount reports whether an account was registered for email.
func (p *Portal) HasAccount(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.accounts[email]
	return ok
}

func (p *Portal) router() http.Handler {
	r := chi.NewRouter()
	r.Use(p.track)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, Base+PageSupportHome, http.StatusFound)
	})
	r.Route(strings.TrimSuffix(Base, "/"), func(r chi.Router) {
		r.Get("/"+PageSupportHome, p.supportHome)
		r.Get("/"+PageLogin, p.loginPage)
		r.Post("/"+PageLogin, p.loginPost)
		r.Get("/"+PageCustomerHome, p.customerHome)
		r.Get("/"+PageAccount, p.accountPage)
		r.Post("/"+PageAccount, p.accountPost)
		r.Get("/"+PageRequest, p.requestPage)
		r.Post("/"+PageRequest, p.requestPost)
		r.Get("/"+PageIssues, p.issuesPage)
		r.Get("/"+PageRequestEdit, p.requestEditPage)
		r.Get("/"+PageRequestMessage, p.requestMessagePage)
		r.Get("/"+PageCaptchaResource, p.captchaResource)
	})
	return r
}

// track counts hits, hands out session cookies, records postbacks and
// injects the configured GET failures.
func (p *Portal) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := path.Base(r.URL.Path)

		if r.Method == http.MethodPost {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			values, err := url.ParseQuery(string(body))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			r.PostForm = values
			r.Form = values
		}

		p.mu.Lock()
		p.hits[r.Method+" "+page]++
		if r.Method == http.MethodPost {
			p.posts[page] = append(p.posts[page], r.PostForm)
		}
		failing := r.Method == http.MethodGet && p.failGets > 0
		if failing {
			p.failGets--
		}
		if _, err := r.Cookie(sessionCookie); err != nil {
			id := fmt.Sprintf("sess%04d", len(p.visitors)+1)
			p.visitors[id] = &visitor{}
			http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true})
			r.AddCookie(&http.Cookie{Name: sessionCookie, Value: id})
		}
		p.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, layout("Unavailable", "#", "<h1>Page Temporarily Unavailable</h1>"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// visitor must be called with p.mu held.
func (p *Portal) visitor(r *http.Request) *visitor {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return &visitor{}
	}
	v, ok := p.visitors[cookie.Value]
	if !ok {
		v = &visitor{}
		p.visitors[cookie.Value] = v
	}
	return v
}

func (p *Portal) loggedIn(r *http.Request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visitor(r).loggedIn
}

// issue renders fresh secrets for a page, invalidating the previous ones.
func (p *Portal) issue(page string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.serial++
	p.issued[page] = p.serial
	return secretsHTML(p.serial, p.viewstateParts)
}

// issueCaptcha renders a new captcha for a page.
func (p *Portal) issueCaptcha(page string, ids CaptchaIds) string {
	p.mu.Lock()
	p.captchaSerial++
	token := fmt.Sprintf("tok%04dq", p.captchaSerial)
	p.captchas[page] = token
	p.mu.Unlock()
	return captchaHTML(ids, token)
}

func (p *Portal) validSecrets(page string, form url.Values) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	serial, ok := p.issued[page]
	if !ok {
		return false
	}
	if p.viewstateParts > 1 && form.Get("__VIEWSTATEFIELDCOUNT") != strconv.Itoa(p.viewstateParts) {
		return false
	}
	for i := 0; i < p.viewstateParts; i++ {
		name := "__VIEWSTATE"
		if i > 0 {
			name = fmt.Sprintf("__VIEWSTATE%d", i)
		}
		if form.Get(name) != viewstateValue(serial, i) {
			return false
		}
	}
	return form.Get("__VIEWSTATEGENERATOR") == "C2EE9ABB" &&
		form.Get("__RequestVerificationToken") == verificationToken(serial)
}

func (p *Portal) validCaptcha(page string, ids CaptchaIds, form url.Values) bool {
	token := p.CaptchaToken(page)
	return token != "" &&
		form.Get(ids.HashInput) == token &&
		form.Get(ids.WorkaroundName) == "1" &&
		form.Get(ids.InputName) == CaptchaAnswer(token)
}

func write(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, body)
}

// invalidPostback mimics the portal's answer to a postback with stale or
// incomplete viewstate.
func invalidPostback(w http.ResponseWriter) {
	write(w, layout("Error", "#", `<div class="error"><h2>`+failureBanner+`.</h2><p>Validation of viewstate MAC failed.</p></div>`))
}

func identityScript(loggedIn bool) string {
	if loggedIn {
		return scriptBlock(fmt.Sprintf("var customerID = '%s';", CustomerId))
	}
	return scriptBlock("var customerID = 0;")
}

func (p *Portal) supportHome(w http.ResponseWriter, r *http.Request) {
	body := identityScript(p.loggedIn(r)) +
		`<h1>Public Records Center</h1><a href="Login.aspx">Log In</a> <a href="CustomerDetails.aspx">Create Account</a>`
	write(w, layout("Support Home", PageSupportHome, body))
}

func (p *Portal) renderLogin(w http.ResponseWriter, errs []string) {
	body := p.issue(PageLogin) +
		validationSummary(errs) +
		requiredGroup("Email Address", textInput("ASPxFormLayout1$txtUsername", "text")) +
		requiredGroup("Password", textInput("ASPxFormLayout1$txtPassword", "password")) +
		`<input type="submit" name="ASPxFormLayout1$btnLogin" value="Log In" />`
	write(w, layout("Log In", "./"+PageLogin, body))
}

func (p *Portal) loginPage(w http.ResponseWriter, r *http.Request) {
	p.renderLogin(w, nil)
}

func (p *Portal) loginPost(w http.ResponseWriter, r *http.Request) {
	if !p.validSecrets(PageLogin, r.PostForm) {
		invalidPostback(w)
		return
	}
	username := r.PostForm.Get("ASPxFormLayout1$txtUsername")
	password := r.PostForm.Get("ASPxFormLayout1$txtPassword")

	p.mu.Lock()
	expected, ok := p.accounts[username]
	ok = ok && expected == password && r.PostForm.Get("ASPxFormLayout1$btnLogin") != ""
	if ok {
		p.visitor(r).loggedIn = true
	}
	p.mu.Unlock()

	if !ok {
		p.renderLogin(w, []string{"Invalid username or password."})
		return
	}
	http.Redirect(w, r, Base+PageCustomerHome, http.StatusFound)
}

func (p *Portal) customerHome(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	v := p.visitor(r)
	banner := p.homeBanners > 0
	if banner {
		p.homeBanners--
	}
	flash := ""
	if !banner {
		flash = v.flash
		v.flash = ""
	}
	loggedIn := v.loggedIn
	p.mu.Unlock()

	if banner {
		invalidPostback(w)
		return
	}
	body := identityScript(loggedIn) + `<h1>My Records Center</h1>`
	if flash != "" {
		body += fmt.Sprintf(`<div id="divMessage" class="alert-success"><span id="lblMessage">%s</span></div>`, flash)
	}
	body += `<a href="CustomerIssues.aspx">View My Requests</a>`
	write(w, layout("Customer Home", PageCustomerHome, body))
}
