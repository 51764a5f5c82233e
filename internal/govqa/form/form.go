// Package form discovers the required fields of a portal form, validates
// values against the schema built from them and drives the postback.
package form

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"govqa/internal/components/assert"
	"govqa/internal/components/telemetry"
	"govqa/internal/govqa/fields"
	"govqa/internal/govqa/session"
	"govqa/pkg/htmlutil"
	"govqa/pkg/webforms"

	"github.com/PuerkitoBio/goquery"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	report_form_discover = "form.discover"
	report_form_submit   = "form.submit"
	report_form_refresh  = "form.refresh"
	report_form_fields   = "form.fields"
)

// Config describes one kind of form on the portal.
type Config struct {
	// Page is the endpoint serving the form, e.g. "CustomerDetails.aspx".
	Page string `json:"page"`
	// Namespace prefixes the postback names of the form's own controls.
	Namespace string `json:"namespace"`
	// SaveButton is posted as the event target.
	SaveButton string               `json:"save_button"`
	Captcha    fields.CaptchaConfig `json:"captcha"`
	// SuccessPage is where the portal redirects after an accepted postback.
	SuccessPage string `json:"success_page"`
	// ReferencePattern finds the reference number of a created record on the
	// success page. Empty for forms that do not create records.
	ReferencePattern string `json:"reference_pattern"`
	// Classifiers overrides fields.Classifiers.
	Classifiers []fields.Classifier `json:"-"`
}

type State int

const (
	// Ready accepts a submission.
	Ready State = iota
	// Posting has a submission in flight.
	Posting
	// Succeeded and Failed are terminal.
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Posting:
		return "posting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// attempt is everything that is only valid for a single postback.
type attempt struct {
	payload *webforms.Payload
	captcha *fields.Captcha
}

// Result of an accepted submission.
type Result struct {
	// Page is the page the portal answered with, nil when it failed to
	// render it.
	Page            *session.Page
	ReferenceNumber string
}

// Form is one discovered form. A Form takes one submission at a time, a
// rejected submission leaves it ready for another with a fresh captcha.
type Form struct {
	session   *session.Session
	config    Config
	tel       telemetry.API
	action    *url.URL
	reference *regexp.Regexp

	fields   []fields.Field
	byLabel  map[string]fields.Field
	schema   Schema
	compiled *jsonschema.Schema

	mu      sync.Mutex
	state   State
	current *attempt
}

// New fetches and discovers the form described by config.
func New(ctx context.Context, s *session.Session, config Config, tel telemetry.API) (*Form, error) {
	assert.NotNil(s)
	assert.NotNil(tel)
	assert.NotEmptyStr(config.Page)
	tel = telemetry.NewScopedAPI("govqa_form", tel)

	f := &Form{
		session: s,
		config:  config,
		tel:     tel,
		byLabel: map[string]fields.Field{},
	}
	if config.ReferencePattern != "" {
		reference, err := regexp.Compile(config.ReferencePattern)
		if err != nil {
			return nil, fmt.Errorf("reference pattern: %w", err)
		}
		f.reference = reference
	}

	page, err := s.Get(ctx, config.Page, nil)
	if err != nil {
		tel.ReportBroken(report_form_discover, fmt.Errorf("get %s: %w", config.Page, err))
		return nil, err
	}
	if page.Is(session.PageLogin) {
		return nil, fmt.Errorf("%s: %w", config.Page, session.ErrUnauthenticated)
	}

	f.action = actionUrl(page)
	err = f.discover(page)
	if err != nil {
		tel.ReportBroken(report_form_discover, fmt.Errorf("%s: %w", config.Page, err))
		return nil, err
	}

	f.current, err = f.newAttempt(ctx, page)
	if err != nil {
		tel.ReportBroken(report_form_discover, fmt.Errorf("%s: %w", config.Page, err))
		return nil, err
	}

	f.schema = buildSchema(f.fields, f.current.captcha != nil)
	f.compiled, err = compileSchema(f.schema)
	if err != nil {
		tel.ReportBroken(report_form_discover, fmt.Errorf("compile schema: %w", err))
		return nil, err
	}

	tel.ReportCount(report_form_fields, int64(len(f.fields)))
	return f, nil
}

// actionUrl is where the page's form posts to, the page itself if it does
// not say.
func actionUrl(page *session.Page) *url.URL {
	action, ok := page.Doc.Find("form").First().Attr("action")
	if !ok || action == "" {
		return page.URL
	}
	ref, err := url.Parse(action)
	if err != nil {
		return page.URL
	}
	return page.URL.ResolveReference(ref)
}

func (f *Form) captchaGroup(group fields.Group) bool {
	if f.config.Captcha.InputName == "" {
		return false
	}
	return htmlutil.FilterAttr(group.Table.Find("input"), "name", f.config.Captcha.InputName).Length() > 0
}

func (f *Form) discover(page *session.Page) error {
	groups, err := fields.DiscoverGroups(page.Doc.Selection, page.Source())
	if err != nil {
		return err
	}

	classifiers := f.config.Classifiers
	if classifiers == nil {
		classifiers = fields.Classifiers
	}

	var confirmations []fields.Field
	for _, group := range groups {
		if f.captchaGroup(group) {
			continue
		}
		field, err := fields.Classify(classifiers, group)
		if err != nil {
			return err
		}
		if _, ok := field.(*fields.Password); ok && fields.IsConfirmation(group) {
			confirmations = append(confirmations, field)
			continue
		}
		f.fields = append(f.fields, field)
	}

	for _, confirmation := range confirmations {
		attached := false
		for _, field := range f.fields {
			password, ok := field.(*fields.Password)
			if ok && !password.Confirmed() {
				password.AddConfirmation(confirmation.Keys()[0])
				attached = true
				break
			}
		}
		if !attached {
			f.fields = append(f.fields, confirmation)
		}
	}

	if len(f.fields) == 0 {
		return ErrNoFields
	}
	for _, field := range f.fields {
		if _, exists := f.byLabel[field.Label()]; exists {
			return fmt.Errorf("%w: %s", fields.ErrDuplicateLabel, field.Label())
		}
		f.byLabel[field.Label()] = field
	}
	return nil
}

// seedPayload defaults every visible control of the form, the portal
// expects to see them echoed back even when they are left empty.
func seedPayload(scope *goquery.Selection, namespace string) *webforms.Payload {
	payload := webforms.NewPayload()
	scope.Find("input:not([type='hidden']), textarea").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || !strings.HasPrefix(name, namespace) {
			return
		}
		if inputType, _ := s.Attr("type"); strings.EqualFold(inputType, "radio") {
			payload.SetDefault(name, fields.Unchecked)
			return
		}
		payload.SetDefault(name, "")
		payload.SetDefault(name+"$State", "")
	})
	return payload
}

func (f *Form) newAttempt(ctx context.Context, page *session.Page) (*attempt, error) {
	payload, err := webforms.SecretsPayload(page.Doc)
	if err != nil {
		return nil, err
	}
	payload.Set(webforms.FieldEventTarget, f.config.SaveButton)

	seeds := seedPayload(page.Doc.Selection, f.config.Namespace)
	for _, key := range seeds.Keys() {
		value, _ := seeds.Get(key)
		payload.SetDefault(key, value)
	}

	captcha, err := fields.FindCaptcha(ctx, f.session, page, f.config.Captcha)
	if err != nil {
		return nil, err
	}
	return &attempt{payload: payload, captcha: captcha}, nil
}

// Schema is the json schema submitted values must satisfy.
func (f *Form) Schema() Schema {
	return f.schema
}

// Fields lists the labels of the discovered fields in page order.
func (f *Form) Fields() []string {
	labels := make([]string, len(f.fields))
	for i, field := range f.fields {
		labels[i] = field.Label()
	}
	return labels
}

func (f *Form) Field(label string) (fields.Field, bool) {
	field, ok := f.byLabel[label]
	return field, ok
}

// Captcha is the current challenge, nil if the form has none.
func (f *Form) Captcha() *fields.Captcha {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil
	}
	return f.current.captcha
}

func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Action is the address the form posts to.
func (f *Form) Action() *url.URL {
	out := *f.action
	return &out
}

// Payload is the postback the given values would produce.
func (f *Form) Payload(values map[string]string) (*webforms.Payload, error) {
	f.mu.Lock()
	current := f.current
	f.mu.Unlock()
	if current == nil {
		return nil, ErrFormClosed
	}
	return f.fill(current, values)
}

func (f *Form) fill(current *attempt, values map[string]string) (*webforms.Payload, error) {
	if err := f.validate(values); err != nil {
		return nil, err
	}

	payload := current.payload.Clone()
	for _, field := range f.fields {
		filled, err := field.Fill(values[field.Label()])
		if err != nil {
			return nil, &FormValidationError{Message: err.Error(), Messages: []string{err.Error()}}
		}
		payload.Merge(filled)
	}
	if current.captcha != nil {
		filled, err := current.captcha.Fill(values[fields.CaptchaLabel])
		if err != nil {
			return nil, err
		}
		payload.Merge(filled)
	}
	return payload, nil
}

// Submit validates values and posts them. Values that fail validation are
// never sent. When the portal rejects the values the form is refreshed and
// can be submitted again.
func (f *Form) Submit(ctx context.Context, values map[string]string) (Result, error) {
	f.mu.Lock()
	switch f.state {
	case Posting:
		f.mu.Unlock()
		return Result{}, ErrSubmissionInFlight
	case Succeeded, Failed:
		f.mu.Unlock()
		return Result{}, ErrFormClosed
	}
	current := f.current
	payload, err := f.fill(current, values)
	if err != nil {
		f.mu.Unlock()
		return Result{}, err
	}
	f.state = Posting
	f.mu.Unlock()

	page, err := f.session.Post(ctx, f.action.String(), payload)
	if err != nil && session.IsTransportError(err, f.config.SuccessPage) {
		// the redirect after an accepted postback went through, only the
		// page it led to failed
		return f.succeed(ctx, nil)
	}
	if err != nil {
		f.tel.ReportBroken(report_form_submit, fmt.Errorf("post %s: %w", f.action, err))
		f.refresh(ctx, nil, current)
		return Result{}, err
	}
	if page.Is(f.config.SuccessPage) {
		return f.succeed(ctx, page)
	}

	rejected := rejection(validationMessages(page))
	f.tel.ReportWarning(report_form_submit, "rejected", f.config.Page, rejected.Error())
	if refreshErr := f.refresh(ctx, page, current); refreshErr != nil {
		return Result{}, fmt.Errorf("%w (refresh failed: %s)", rejected, refreshErr)
	}
	return Result{}, rejected
}

func (f *Form) succeed(ctx context.Context, page *session.Page) (Result, error) {
	result := Result{Page: page}
	var err error
	if f.reference != nil {
		result.ReferenceNumber, err = f.findReference(ctx, page)
		if err != nil {
			f.tel.ReportBroken(report_form_submit, err)
		}
	}

	f.mu.Lock()
	f.state = Succeeded
	f.current = nil
	f.mu.Unlock()

	f.tel.ReportDebug(report_form_submit, "accepted", f.config.Page, result.ReferenceNumber)
	return result, err
}

func (f *Form) findReference(ctx context.Context, page *session.Page) (string, error) {
	if page != nil {
		if found := f.reference.FindString(htmlutil.Text(page.Doc.Selection)); found != "" {
			return found, nil
		}
	}
	// the success page failed to render, the portal still shows the
	// confirmation on its next render
	page, err := f.session.Get(ctx, f.config.SuccessPage, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrReferenceNotFound, err)
	}
	if found := f.reference.FindString(htmlutil.Text(page.Doc.Selection)); found != "" {
		return found, nil
	}
	return "", ErrReferenceNotFound
}

// refresh prepares a new attempt after a failed one. The rejection page is
// used when it carries the form, otherwise the form is fetched again. A
// captcha is never reused.
func (f *Form) refresh(ctx context.Context, page *session.Page, previous *attempt) error {
	next, err := f.attemptFrom(ctx, page, previous)
	if err != nil && page != nil {
		next, err = f.attemptFrom(ctx, nil, previous)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.tel.ReportBroken(report_form_refresh, fmt.Errorf("%s: %w", f.config.Page, err))
		f.state = Failed
		f.current = nil
		return err
	}
	f.current = next
	f.state = Ready
	return nil
}

func (f *Form) attemptFrom(ctx context.Context, page *session.Page, previous *attempt) (*attempt, error) {
	if page == nil {
		var err error
		page, err = f.session.Get(ctx, f.config.Page, nil)
		if err != nil {
			return nil, err
		}
	}
	next, err := f.newAttempt(ctx, page)
	if err != nil {
		return nil, err
	}
	if previous.captcha != nil {
		if next.captcha == nil {
			return nil, fmt.Errorf("%w: captcha missing from %s", fields.ErrMalformed, page.URL)
		}
		if next.captcha.Hash == previous.captcha.Hash {
			return nil, fmt.Errorf("%w: captcha was not renewed", fields.ErrMalformed)
		}
	}
	return next, nil
}

var validationSelectors = []string{
	".dxvsE",
	".validation-summary-errors li",
}

// validationMessages is the portal's list of rejected values.
func validationMessages(page *session.Page) []string {
	var messages []string
	seen := map[string]bool{}
	for _, selector := range validationSelectors {
		page.Doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := htmlutil.Text(s)
			if text == "" || seen[text] {
				return
			}
			seen[text] = true
			messages = append(messages, text)
		})
	}
	return messages
}
