package form

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"govqa/internal/components/telemetry"
	"govqa/internal/govqa/fields"
	"govqa/internal/govqa/portaltest"
	"govqa/internal/govqa/session"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func captchaConfig(ids portaltest.CaptchaIds) fields.CaptchaConfig {
	return fields.CaptchaConfig{
		ImageID:             ids.ImageId,
		AudioLinkID:         ids.AudioLinkId,
		InputName:           ids.InputName,
		HashInputName:       ids.HashInput,
		WorkaroundInputName: ids.WorkaroundName,
	}
}

var accountConfig = Config{
	Page:        portaltest.PageAccount,
	Namespace:   portaltest.AccountNamespace,
	SaveButton:  portaltest.AccountSave,
	Captcha:     captchaConfig(portaltest.AccountCaptcha),
	SuccessPage: portaltest.PageCustomerHome,
}

var requestConfig = Config{
	Page:             portaltest.PageRequest + "?rqst=" + portaltest.RequestType,
	Namespace:        portaltest.RequestNamespace,
	SaveButton:       portaltest.RequestSave,
	Captcha:          captchaConfig(portaltest.RequestCaptcha),
	SuccessPage:      portaltest.PageCustomerHome,
	ReferencePattern: `[A-Z]\d{6}-\d{6}`,
}

func openSession(t *testing.T, portal *portaltest.Portal) *session.Session {
	s, err := session.Open(context.Background(), session.Options{
		BaseAddress:   portal.URL,
		RetryAttempts: 2,
		RetryWait:     time.Millisecond,
		Timeout:       5 * time.Second,
	}, telemetry.NopAPI{})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newForm(t *testing.T, s *session.Session, config Config) *Form {
	f, err := New(context.Background(), s, config, telemetry.NopAPI{})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func accountValues(portal *portaltest.Portal, email string) map[string]string {
	return map[string]string{
		"email_address":               email,
		"password":                    "hunter22",
		"phone":                       "3125550100",
		"mailing_address":             "1 Main St\nSpringfield",
		"preferred_contact_method":    "Postal Mail",
		"state":                       "WI",
		"i_agree_to_the_terms_of_use": fields.Checked,
		"captcha":                     portal.CaptchaCode(portaltest.PageAccount),
	}
}

func TestDiscoverAccountForm(t *testing.T) {
	portal := portaltest.New(t)
	f := newForm(t, openSession(t, portal), accountConfig)

	labels := []string{
		"email_address",
		"password",
		"phone",
		"mailing_address",
		"preferred_contact_method",
		"state",
		"i_agree_to_the_terms_of_use",
	}
	diff := cmp.Diff(labels, f.Fields())
	if diff != "" {
		t.Fatal(diff)
	}

	schema := f.Schema()
	require.Equal(t, "object", schema.Type)
	require.False(t, schema.AdditionalProperties)
	require.Equal(t, append(labels, fields.CaptchaLabel), schema.Required)
	require.Len(t, schema.Properties, len(labels)+1)
	require.Equal(t, portaltest.ContactMethods, schema.Properties["preferred_contact_method"].Enum)
	require.Equal(t, portaltest.StateValues, schema.Properties["state"].Enum)
	require.Equal(t, fields.PhonePattern, schema.Properties["phone"].Pattern)

	password, ok := f.Field("password")
	require.True(t, ok)
	require.Equal(t, []string{"ASPxFormLayout1$txtPassword", "ASPxFormLayout1$txtConfirmPassword"}, password.Keys())

	captcha := f.Captcha()
	require.NotNil(t, captcha)
	token := portal.CaptchaToken(portaltest.PageAccount)
	require.Equal(t, token, captcha.Hash)
	require.Equal(t, portaltest.CaptchaImage(token), captcha.Image)
	require.Equal(t, portaltest.CaptchaAudio(token), captcha.Audio)

	require.Equal(t, Ready, f.State())
	require.True(t, strings.HasSuffix(f.Action().Path, portaltest.SessionSegment+"/"+portaltest.PageAccount), f.Action().String())
}

func TestPayload(t *testing.T) {
	portal := portaltest.New(t)
	f := newForm(t, openSession(t, portal), accountConfig)

	payload, err := f.Payload(accountValues(portal, "new@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	keys := payload.Keys()
	require.Equal(t, "__EVENTTARGET", keys[0])
	value, _ := payload.Get("__EVENTTARGET")
	require.Equal(t, portaltest.AccountSave, value)

	expected := map[string]string{
		"ASPxFormLayout1$txtCompany":             "",
		"ASPxFormLayout1$txtCompany$State":       "",
		"ASPxFormLayout1$rblContactMethod$RB0":   fields.Unchecked,
		"ASPxFormLayout1$rblContactMethod$RB1":   fields.Checked,
		"ASPxFormLayout1$rblContactMethod":       "1",
		"ASPxFormLayout1$txtPhone$State":         `{"rawValue":"3125550100","validationState":""}`,
		"ASPxFormLayout1$txtConfirmPassword":     "hunter22",
		"ASPxFormLayout1$cboState$VI":            "WI",
		portaltest.AccountCaptcha.WorkaroundName: "1",
		portaltest.AccountCaptcha.HashInput:      portal.CaptchaToken(portaltest.PageAccount),
	}
	for key, want := range expected {
		got, ok := payload.Get(key)
		require.True(t, ok, key)
		require.Equal(t, want, got, key)
	}
}

func TestLocalValidation(t *testing.T) {
	portal := portaltest.New(t)
	f := newForm(t, openSession(t, portal), accountConfig)

	testCases := []struct {
		name        string
		edit        func(values map[string]string)
		suggestions map[string]string
	}{
		{
			name: "missing field",
			edit: func(values map[string]string) { delete(values, "phone") },
		},
		{
			name: "phone pattern",
			edit: func(values map[string]string) { values["phone"] = "312-555-0100" },
		},
		{
			name:        "enum",
			edit:        func(values map[string]string) { values["preferred_contact_method"] = "postal mail" },
			suggestions: map[string]string{"postal mail": "Postal Mail"},
		},
		{
			name: "unknown key",
			edit: func(values map[string]string) {
				values["emial_address"] = values["email_address"]
				delete(values, "email_address")
			},
			suggestions: map[string]string{"emial_address": "email_address"},
		},
		{
			name: "missing captcha",
			edit: func(values map[string]string) { delete(values, "captcha") },
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			values := accountValues(portal, "new@example.com")
			test.edit(values)

			_, err := f.Submit(context.Background(), values)
			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			var validationErr *FormValidationError
			require.ErrorAs(t, err, &validationErr)
			require.NotEmpty(t, schemaErr.Messages)
			if test.suggestions != nil {
				require.Equal(t, test.suggestions, schemaErr.Suggestions)
			}
			require.Equal(t, Ready, f.State())
		})
	}
	require.Equal(t, 0, portal.Hits(http.MethodPost, portaltest.PageAccount))
}

func TestIncorrectCaptcha(t *testing.T) {
	portal := portaltest.New(t)
	f := newForm(t, openSession(t, portal), accountConfig)

	before := f.Captcha()
	values := accountValues(portal, "new@example.com")
	values["captcha"] = "WRONG"

	_, err := f.Submit(context.Background(), values)
	var captchaErr *IncorrectCaptchaError
	require.ErrorAs(t, err, &captchaErr)
	var validationErr *FormValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, portaltest.IncorrectCodeMessage, captchaErr.Message)

	after := f.Captcha()
	require.NotNil(t, after)
	require.NotSame(t, before, after)
	require.NotEqual(t, before.Hash, after.Hash)
	require.Equal(t, portaltest.CaptchaImage(after.Hash), after.Image)
	require.Equal(t, Ready, f.State())

	_, err = f.Submit(context.Background(), accountValues(portal, "new@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, Succeeded, f.State())
	require.True(t, portal.HasAccount("new@example.com"))
	require.Equal(t, 2, portal.Hits(http.MethodPost, portaltest.PageAccount))

	_, err = f.Submit(context.Background(), accountValues(portal, "other@example.com"))
	require.ErrorIs(t, err, ErrFormClosed)
}

func TestEmailAlreadyExists(t *testing.T) {
	portal := portaltest.New(t)
	f := newForm(t, openSession(t, portal), accountConfig)

	_, err := f.Submit(context.Background(), accountValues(portal, portaltest.Username))
	var existsErr *EmailAlreadyExistsError
	require.ErrorAs(t, err, &existsErr)
	require.Equal(t, Ready, f.State())
}

func TestGenericRejection(t *testing.T) {
	portal := portaltest.New(t)
	f := newForm(t, openSession(t, portal), accountConfig)

	values := accountValues(portal, "new@example.com")
	values["i_agree_to_the_terms_of_use"] = fields.Unchecked
	_, err := f.Submit(context.Background(), values)

	var validationErr *FormValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, []string{"You must agree to the terms of use."}, validationErr.Messages)
	var captchaErr *IncorrectCaptchaError
	require.False(t, errors.As(err, &captchaErr))
	var existsErr *EmailAlreadyExistsError
	require.False(t, errors.As(err, &existsErr))
}

func TestSplitViewstateSubmission(t *testing.T) {
	portal := portaltest.New(t)
	portal.SplitViewstate(3)
	f := newForm(t, openSession(t, portal), accountConfig)

	_, err := f.Submit(context.Background(), accountValues(portal, "split@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	posts := portal.Posts(portaltest.PageAccount)
	require.Len(t, posts, 1)
	require.Equal(t, "3", posts[0].Get("__VIEWSTATEFIELDCOUNT"))
	for _, key := range []string{"__VIEWSTATE", "__VIEWSTATE1", "__VIEWSTATE2"} {
		require.NotEmpty(t, posts[0].Get(key), key)
	}
}

func login(t *testing.T, s *session.Session) {
	err := s.Login(context.Background(), portaltest.Username, portaltest.Password)
	if err != nil {
		t.Fatal(err)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	portal := portaltest.New(t)
	s := openSession(t, portal)
	login(t, s)
	f := newForm(t, s, requestConfig)

	diff := cmp.Diff([]string{"subject", "preferred_format"}, f.Fields())
	if diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, []string{"subject", "preferred_format", "captcha"}, f.Schema().Required)

	result, err := f.Submit(context.Background(), map[string]string{
		"subject":          "Building permits for 1 Main St",
		"preferred_format": "Electronic Copy",
		"captcha":          portal.CaptchaCode(portaltest.PageRequest),
	})
	if err != nil {
		t.Fatal(err)
	}
	references := portal.ReferenceNumbers()
	require.Equal(t, references[len(references)-1], result.ReferenceNumber)
	require.NotNil(t, result.Page)
	require.Equal(t, 1, portal.Hits(http.MethodPost, portaltest.PageRequest))
}

func TestRequestSuccessBehindBanner(t *testing.T) {
	portal := portaltest.New(t)
	s := openSession(t, portal)
	login(t, s)
	f := newForm(t, s, requestConfig)
	portal.BannerOnHome(1)

	result, err := f.Submit(context.Background(), map[string]string{
		"subject":          "Police reports, October",
		"preferred_format": "Paper Copy",
		"captcha":          portal.CaptchaCode(portaltest.PageRequest),
	})
	if err != nil {
		t.Fatal(err)
	}
	references := portal.ReferenceNumbers()
	require.Equal(t, references[len(references)-1], result.ReferenceNumber)
	require.Nil(t, result.Page)
	require.Equal(t, Succeeded, f.State())
	require.Equal(t, 1, portal.Hits(http.MethodPost, portaltest.PageRequest))
}

func TestRequestFormNeedsLogin(t *testing.T) {
	portal := portaltest.New(t)
	_, err := New(context.Background(), openSession(t, portal), requestConfig, telemetry.NopAPI{})
	require.ErrorIs(t, err, session.ErrUnauthenticated)
}

func TestSubmissionInFlight(t *testing.T) {
	portal := portaltest.New(t)
	f := newForm(t, openSession(t, portal), accountConfig)

	f.mu.Lock()
	f.state = Posting
	f.mu.Unlock()

	_, err := f.Submit(context.Background(), accountValues(portal, "new@example.com"))
	require.ErrorIs(t, err, ErrSubmissionInFlight)
	require.Equal(t, 0, portal.Hits(http.MethodPost, portaltest.PageAccount))
}

func TestRejection(t *testing.T) {
	testCases := []struct {
		messages []string
		check    func(t *testing.T, err error)
	}{
		{
			messages: nil,
			check: func(t *testing.T, err error) {
				require.Equal(t, "govqa form: unknown reason", err.Error())
			},
		},
		{
			messages: []string{"Incorrect Code, please try again."},
			check: func(t *testing.T, err error) {
				var target *IncorrectCaptchaError
				require.ErrorAs(t, err, &target)
			},
		},
		{
			messages: []string{"Incorrect code.", "Email address already exists in our system."},
			check: func(t *testing.T, err error) {
				var target *EmailAlreadyExistsError
				require.ErrorAs(t, err, &target)
			},
		},
		{
			messages: []string{"Zip is required.", "Phone is invalid."},
			check: func(t *testing.T, err error) {
				var target *FormValidationError
				require.ErrorAs(t, err, &target)
				require.Equal(t, "Zip is required.; Phone is invalid.", target.Message)
			},
		},
	}
	for _, test := range testCases {
		test.check(t, rejection(test.messages))
	}
}
