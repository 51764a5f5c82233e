package webforms

import (
	"errors"
	"fmt"
	"strconv"

	"govqa/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	FieldEventTarget          = "__EVENTTARGET"
	FieldEventArgument        = "__EVENTARGUMENT"
	FieldViewstate            = "__VIEWSTATE"
	FieldViewstateFieldCount  = "__VIEWSTATEFIELDCOUNT"
	FieldViewstateGenerator   = "__VIEWSTATEGENERATOR"
	FieldEventValidation      = "__EVENTVALIDATION"
	FieldRequestVerification  = "__RequestVerificationToken"
	viewstatePartFieldPattern = "__VIEWSTATE%d"
)

var ErrMissingSecret = errors.New("webforms: missing postback secret")

// Secrets is the postback bookkeeping rendered into one page. It is only good
// for a single postback, the server issues a new set with every response.
type Secrets struct {
	// Viewstate holds every viewstate part in order. Pages that do not split
	// their viewstate have exactly one part.
	Viewstate         []string
	Generator         string
	EventValidation   string
	VerificationToken string
}

// Split reports whether the viewstate was spread over several hidden fields.
func (s Secrets) Split() bool {
	return len(s.Viewstate) > 1
}

func hiddenValue(doc *goquery.Selection, name string) (string, bool) {
	input := htmlutil.FilterAttr(doc.Find("input"), "name", name).First()
	if input.Length() == 0 {
		return "", false
	}
	return input.AttrOr("value", ""), true
}

// ExtractSecrets reads the hidden postback state out of a rendered page.
//
// When __VIEWSTATEFIELDCOUNT is present the viewstate is split into that many
// parts: __VIEWSTATE followed by __VIEWSTATE1 .. __VIEWSTATE{count-1}. Every
// part must be present, a postback with a missing part is rejected by the
// server.
func ExtractSecrets(doc *goquery.Document) (Secrets, error) {
	root := doc.Selection

	first, ok := hiddenValue(root, FieldViewstate)
	if !ok {
		return Secrets{}, fmt.Errorf("%w: %s", ErrMissingSecret, FieldViewstate)
	}
	secrets := Secrets{Viewstate: []string{first}}

	if countStr, ok := hiddenValue(root, FieldViewstateFieldCount); ok {
		count, err := strconv.Atoi(countStr)
		if err != nil || count < 1 {
			return Secrets{}, fmt.Errorf(
				"%w: invalid %s %q",
				ErrMissingSecret, FieldViewstateFieldCount, countStr,
			)
		}
		for i := 1; i < count; i++ {
			name := fmt.Sprintf(viewstatePartFieldPattern, i)
			part, ok := hiddenValue(root, name)
			if !ok {
				return Secrets{}, fmt.Errorf("%w: %s (of %d parts)", ErrMissingSecret, name, count)
			}
			secrets.Viewstate = append(secrets.Viewstate, part)
		}
	}

	secrets.Generator, _ = hiddenValue(root, FieldViewstateGenerator)
	secrets.EventValidation, _ = hiddenValue(root, FieldEventValidation)
	secrets.VerificationToken, _ = hiddenValue(root, FieldRequestVerification)
	return secrets, nil
}

// Payload renders the secrets as a postback fragment with an empty event
// target and argument.
func (s Secrets) Payload() *Payload {
	out := NewPayload()
	out.Set(FieldEventTarget, "")
	out.Set(FieldEventArgument, "")
	if s.Split() {
		out.Set(FieldViewstateFieldCount, strconv.Itoa(len(s.Viewstate)))
	}
	for i, part := range s.Viewstate {
		if i == 0 {
			out.Set(FieldViewstate, part)
			continue
		}
		out.Set(fmt.Sprintf(viewstatePartFieldPattern, i), part)
	}
	if s.Generator != "" {
		out.Set(FieldViewstateGenerator, s.Generator)
	}
	if s.EventValidation != "" {
		out.Set(FieldEventValidation, s.EventValidation)
	}
	if s.VerificationToken != "" {
		out.Set(FieldRequestVerification, s.VerificationToken)
	}
	return out
}

// SecretsPayload is ExtractSecrets followed by Payload.
func SecretsPayload(doc *goquery.Document) (*Payload, error) {
	secrets, err := ExtractSecrets(doc)
	if err != nil {
		return nil, err
	}
	return secrets.Payload(), nil
}
