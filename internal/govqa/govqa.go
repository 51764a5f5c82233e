// Package govqa is a client for GovQA public records portals. It logs in,
// fills the account and request forms and reads back submitted requests.
package govqa

import (
	"context"
	"net/url"

	"govqa/internal/components/assert"
	"govqa/internal/components/chrono"
	"govqa/internal/components/telemetry"
	"govqa/internal/govqa/fields"
	"govqa/internal/govqa/form"
	"govqa/internal/govqa/records"
	"govqa/internal/govqa/session"
)

const (
	report_client_login   = "client.login"
	report_client_account = "client.account"
	report_client_request = "client.request"
)

type (
	Options    = session.Options
	FormConfig = form.Config
	Summary    = records.Summary
	Request    = records.Request
	Message    = records.Message
	Attachment = records.Attachment
)

const (
	pageAccount = "CustomerDetails.aspx"
	pageRequest = "RequestOpen.aspx"
)

// AccountFormConfig locates the new account form.
var AccountFormConfig = FormConfig{
	Page:       pageAccount,
	Namespace:  "ASPxFormLayout1$",
	SaveButton: "ASPxFormLayout1$btnSave",
	Captcha: fields.CaptchaConfig{
		ImageID:             "c_customerdetails_aspxformlayout1_captcha_CaptchaImage",
		AudioLinkID:         "c_customerdetails_aspxformlayout1_captcha_SoundLink",
		InputName:           "ASPxFormLayout1$txtCaptchaCode",
		HashInputName:       "BDC_VCID_c_customerdetails_aspxformlayout1_captcha",
		WorkaroundInputName: "BDC_BackWorkaround_c_customerdetails_aspxformlayout1_captcha",
	},
	SuccessPage: session.PageCustomerHome,
}

// ReferencePattern matches the reference numbers the portal assigns to
// requests, e.g. R000104-101729.
const ReferencePattern = `[A-Z]\d{6}-\d{6}`

// RequestFormConfig locates the form of one request type.
func RequestFormConfig(requestType string) FormConfig {
	return FormConfig{
		Page:       pageRequest + "?" + url.Values{"rqst": {requestType}}.Encode(),
		Namespace:  "RequestOpenFormLayout$",
		SaveButton: "RequestOpenFormLayout$btnSaveData",
		Captcha: fields.CaptchaConfig{
			ImageID:             "c_requestopen_captchaformlayout_reqstopencaptcha_CaptchaImage",
			AudioLinkID:         "c_requestopen_captchaformlayout_reqstopencaptcha_SoundLink",
			InputName:           "CaptchaFormLayout$reqstOpenCaptchaTextBox",
			HashInputName:       "BDC_VCID_c_requestopen_captchaformlayout_reqstopencaptcha",
			WorkaroundInputName: "BDC_BackWorkaround_c_requestopen_captchaformlayout_reqstopencaptcha",
		},
		SuccessPage:      session.PageCustomerHome,
		ReferencePattern: ReferencePattern,
	}
}

type Client struct {
	session *session.Session
	scraper *records.Scraper
	tel     telemetry.API

	// AccountFormConfig and RequestFormConfig override the default form
	// layouts.
	AccountFormConfig FormConfig
	RequestFormConfig func(requestType string) FormConfig
}

// Open connects to the portal at opts.BaseAddress. Dates read from the
// portal are interpreted in the clock's location.
func Open(ctx context.Context, opts Options, tel telemetry.API, clock chrono.API) (*Client, error) {
	assert.NotNil(tel)
	assert.NotNil(clock)

	s, err := session.Open(ctx, opts, tel)
	if err != nil {
		return nil, err
	}
	return &Client{
		session:           s,
		scraper:           records.NewScraper(s, tel, clock),
		tel:               telemetry.NewScopedAPI("govqa", tel),
		AccountFormConfig: AccountFormConfig,
		RequestFormConfig: RequestFormConfig,
	}, nil
}

// Session is the connection every operation of the client goes through.
func (c *Client) Session() *session.Session {
	return c.session
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	err := c.session.Login(ctx, username, password)
	if err != nil {
		c.tel.ReportWarning(report_client_login, "login failed", username, err.Error())
		return err
	}
	c.tel.ReportDebug(report_client_login, username, c.session.CustomerId())
	return nil
}

// AccountForm creates a customer account. A successful submission also
// logs the session in as the new customer.
type AccountForm struct {
	*form.Form
	session *session.Session
	tel     telemetry.API
}

// Submit reports whether the portal accepted the new account.
func (f AccountForm) Submit(ctx context.Context, values map[string]string) (bool, error) {
	result, err := f.Form.Submit(ctx, values)
	if err != nil {
		return false, err
	}
	err = f.session.Identify(ctx, result.Page)
	if err != nil {
		f.tel.ReportWarning(report_client_account, "account created but not logged in", err.Error())
	}
	return true, nil
}

func (c *Client) NewAccountForm(ctx context.Context) (AccountForm, error) {
	f, err := form.New(ctx, c.session, c.AccountFormConfig, c.tel)
	if err != nil {
		c.tel.ReportBroken(report_client_account, err)
		return AccountForm{}, err
	}
	return AccountForm{Form: f, session: c.session, tel: c.tel}, nil
}

// RequestForm submits one type of records request, it needs a logged in
// session.
type RequestForm struct {
	*form.Form
}

// Submit returns the reference number the portal assigned to the request.
func (f RequestForm) Submit(ctx context.Context, values map[string]string) (string, error) {
	result, err := f.Form.Submit(ctx, values)
	if err != nil {
		return "", err
	}
	return result.ReferenceNumber, nil
}

func (c *Client) RequestForm(ctx context.Context, requestType string) (RequestForm, error) {
	assert.NotEmptyStr(requestType)
	f, err := form.New(ctx, c.session, c.RequestFormConfig(requestType), c.tel)
	if err != nil {
		c.tel.ReportBroken(report_client_request, err, requestType)
		return RequestForm{}, err
	}
	return RequestForm{Form: f}, nil
}

func (c *Client) ListRequests(ctx context.Context) ([]Summary, error) {
	return c.scraper.ListRequests(ctx)
}

func (c *Client) GetRequest(ctx context.Context, id string) (Request, error) {
	return c.scraper.GetRequest(ctx, id)
}
