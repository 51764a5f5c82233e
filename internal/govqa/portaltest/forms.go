package portaltest

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

var (
	ContactMethods = []string{"Email", "Postal Mail", "Telephone"}
	StateValues    = []string{"IL", "IN", "WI"}
	stateTexts     = []string{"Illinois", "Indiana", "Wisconsin"}
	Formats        = []string{"Electronic Copy", "Paper Copy"}
)

const (
	AccountNamespace = "ASPxFormLayout1$"
	AccountSave      = "ASPxFormLayout1$btnSave"
	RequestNamespace = "RequestOpenFormLayout$"
	RequestSave      = "RequestOpenFormLayout$btnSaveData"

	IncorrectCodeMessage = "Incorrect code, please try again."
	EmailExistsMessage   = "A user with this email address already exists."
)

func echoed(form url.Values, keys ...string) bool {
	for _, key := range keys {
		if _, ok := form[key]; !ok {
			return false
		}
	}
	return true
}

// checkRadio validates the index and checked marker of a radio list.
func checkRadio(form url.Values, name string, options []string) bool {
	index, err := strconv.Atoi(form.Get(name))
	if err != nil || index < 0 || index >= len(options) {
		return false
	}
	for i := range options {
		marker := form.Get(fmt.Sprintf("%s$RB%d", name, i))
		if (i == index) != (marker == "C") {
			return false
		}
	}
	return true
}

func (p *Portal) renderAccount(w http.ResponseWriter, errs []string) {
	body := p.issue(PageAccount) +
		validationSummary(errs) +
		requiredGroup("Email Address", textInput("ASPxFormLayout1$txtEmail", "text")) +
		requiredGroup("Password", textInput("ASPxFormLayout1$txtPassword", "password")) +
		requiredGroup("Confirm Password", textInput("ASPxFormLayout1$txtConfirmPassword", "password")) +
		requiredGroup("Phone", textInput("ASPxFormLayout1$txtPhone", "text")) +
		requiredGroup("Mailing Address", textArea("ASPxFormLayout1$txtAddress")) +
		requiredGroup("Preferred Contact Method", radioList("ASPxFormLayout1$rblContactMethod", ContactMethods)) +
		requiredGroup("State", comboBox("ASPxFormLayout1$cboState")) +
		requiredSpanGroup("I Agree To The Terms Of Use", checkBox("ASPxFormLayout1$chkTerms")) +
		optionalGroup("Company", textInput("ASPxFormLayout1$txtCompany", "text")) +
		p.issueCaptcha(PageAccount, AccountCaptcha) +
		saveButton(AccountSave, "Save") +
		scriptBlock(
			radioScript("ASPxFormLayout1$rblContactMethod", ContactMethods),
			comboScript("ASPxFormLayout1$cboState", StateValues, stateTexts),
		)
	write(w, layout("Create Account", "./"+PageAccount, body))
}

func (p *Portal) accountPage(w http.ResponseWriter, r *http.Request) {
	p.renderAccount(w, nil)
}

func (p *Portal) accountPost(w http.ResponseWriter, r *http.Request) {
	form := r.PostForm
	if !p.validSecrets(PageAccount, form) ||
		form.Get("__EVENTTARGET") != AccountSave ||
		!echoed(form, "ASPxFormLayout1$txtCompany", "ASPxFormLayout1$txtCompany$State") {
		invalidPostback(w)
		return
	}

	var errs []string
	email := form.Get("ASPxFormLayout1$txtEmail")
	password := form.Get("ASPxFormLayout1$txtPassword")
	phone := form.Get("ASPxFormLayout1$txtPhone")
	if email == "" {
		errs = append(errs, "Email Address is required.")
	}
	if password == "" {
		errs = append(errs, "Password is required.")
	}
	if password != form.Get("ASPxFormLayout1$txtConfirmPassword") {
		errs = append(errs, "Passwords do not match.")
	}
	if form.Get("ASPxFormLayout1$txtAddress") == "" {
		errs = append(errs, "Mailing Address is required.")
	}
	if !strings.Contains(form.Get("ASPxFormLayout1$txtPhone$State"), fmt.Sprintf(`"rawValue":"%s"`, phone)) {
		errs = append(errs, "Phone is invalid.")
	}
	if !checkRadio(form, "ASPxFormLayout1$rblContactMethod", ContactMethods) {
		errs = append(errs, "Preferred Contact Method is required.")
	}
	state := form.Get("ASPxFormLayout1$cboState")
	if !slices.Contains(StateValues, state) || form.Get("ASPxFormLayout1$cboState$VI") != state {
		errs = append(errs, "State is required.")
	}
	if form.Get("ASPxFormLayout1$chkTerms") != "C" {
		errs = append(errs, "You must agree to the terms of use.")
	}
	if p.HasAccount(email) {
		errs = append(errs, EmailExistsMessage)
	}
	if !p.validCaptcha(PageAccount, AccountCaptcha, form) {
		errs = append(errs, IncorrectCodeMessage)
	}
	if len(errs) > 0 {
		p.renderAccount(w, errs)
		return
	}

	p.mu.Lock()
	p.accounts[email] = password
	p.visitor(r).loggedIn = true
	p.mu.Unlock()
	http.Redirect(w, r, Base+PageCustomerHome, http.StatusFound)
}

func (p *Portal) renderRequest(w http.ResponseWriter, errs []string) {
	body := p.issue(PageRequest) +
		validationSummary(errs) +
		requiredGroup("Subject", textInput("RequestOpenFormLayout$txtSubject", "text")) +
		requiredGroup("Preferred Format", radioList("RequestOpenFormLayout$rblFormat", Formats)) +
		optionalGroup("Additional Details", textArea("RequestOpenFormLayout$txtDetails")) +
		p.issueCaptcha(PageRequest, RequestCaptcha) +
		saveButton(RequestSave, "Submit") +
		scriptBlock(radioScript("RequestOpenFormLayout$rblFormat", Formats))
	write(w, layout("Submit a Request", "./"+PageRequest+"?rqst="+RequestType, body))
}

func (p *Portal) requestPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("rqst") != RequestType {
		http.Redirect(w, r, Base+PageSupportHome, http.StatusFound)
		return
	}
	if !p.loggedIn(r) {
		http.Redirect(w, r, Base+PageLogin, http.StatusFound)
		return
	}
	p.renderRequest(w, nil)
}

func (p *Portal) requestPost(w http.ResponseWriter, r *http.Request) {
	if !p.loggedIn(r) {
		http.Redirect(w, r, Base+PageLogin, http.StatusFound)
		return
	}
	form := r.PostForm
	if !p.validSecrets(PageRequest, form) ||
		form.Get("__EVENTTARGET") != RequestSave ||
		!echoed(form, "RequestOpenFormLayout$txtDetails") {
		invalidPostback(w)
		return
	}

	var errs []string
	subject := form.Get("RequestOpenFormLayout$txtSubject")
	if subject == "" {
		errs = append(errs, "Subject is required.")
	}
	if !checkRadio(form, "RequestOpenFormLayout$rblFormat", Formats) {
		errs = append(errs, "Preferred Format is required.")
	}
	if !p.validCaptcha(PageRequest, RequestCaptcha, form) {
		errs = append(errs, IncorrectCodeMessage)
	}
	if len(errs) > 0 {
		p.renderRequest(w, errs)
		return
	}

	p.mu.Lock()
	rec := newRecord(len(p.records))
	p.records = append(p.records, rec)
	p.visitor(r).flash = fmt.Sprintf(
		"Thank you. Your request has been received. Your reference number is %s.",
		rec.referenceNo,
	)
	p.mu.Unlock()
	http.Redirect(w, r, Base+PageCustomerHome, http.StatusFound)
}
