// Package fields models the controls of a portal form. Each field knows the
// schema of the values it accepts and how a value expands into the postback
// keys the portal's control framework expects.
package fields

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"govqa/pkg/htmlutil"
	"govqa/pkg/webforms"

	"github.com/PuerkitoBio/goquery"
)

type Kind string

const (
	KindText       Kind = "text"
	KindTextArea   Kind = "textarea"
	KindPhone      Kind = "phone"
	KindPassword   Kind = "password"
	KindRadioGroup Kind = "radiogroup"
	KindComboBox   Kind = "combobox"
	KindCheckBox   Kind = "checkbox"
	KindCaptcha    Kind = "captcha"
)

const (
	PhonePattern = "^[0-9]{10}$"

	Unchecked = "U"
	Checked   = "C"
)

var (
	ErrInvalidOption = errors.New("fields: value is not one of the options")
	ErrMalformed     = errors.New("fields: malformed control")
)

// Property is the json schema of the value a field accepts.
type Property struct {
	Type    string   `json:"type"`
	Pattern string   `json:"pattern,omitempty"`
	Enum    []string `json:"enum,omitempty"`
}

type Field interface {
	// Label is the key the caller supplies the field's value under.
	Label() string
	Kind() Kind
	Property() Property
	// Keys are the postback names the field writes.
	Keys() []string
	// Fill expands a value into postback key/value pairs.
	Fill(value string) (*webforms.Payload, error)
}

// Enumerated is implemented by fields that only accept a fixed set of values.
type Enumerated interface {
	Field
	Options() []string
}

type input struct {
	label    string
	kind     Kind
	property Property
	keys     []string
}

func (f *input) Label() string {
	return f.label
}

func (f *input) Kind() Kind {
	return f.kind
}

func (f *input) Property() Property {
	out := f.property
	out.Enum = slices.Clone(f.property.Enum)
	return out
}

func (f *input) Keys() []string {
	return slices.Clone(f.keys)
}

func (f *input) Fill(value string) (*webforms.Payload, error) {
	payload := webforms.NewPayload()
	for _, key := range f.keys {
		payload.Set(key, value)
	}
	return payload, nil
}

func (f *input) checkOption(value string) (int, error) {
	index := slices.Index(f.property.Enum, value)
	if index < 0 {
		return -1, fmt.Errorf("%w: %q for %s", ErrInvalidOption, value, f.label)
	}
	return index, nil
}

func (f *input) options() []string {
	return slices.Clone(f.property.Enum)
}

func nameOf(group Group, sel *goquery.Selection, what string) (string, error) {
	name, ok := sel.First().Attr("name")
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %s has no %s", ErrMalformed, group.Label, what)
	}
	return name, nil
}

func newInput(group Group, kind Kind, name string) *input {
	return &input{
		label:    group.Label,
		kind:     kind,
		property: Property{Type: "string"},
		keys:     []string{name},
	}
}

const visibleInputs = "input:not([type='hidden'])"

func NewText(group Group) (Field, error) {
	name, err := nameOf(group, group.Table.Find(visibleInputs), "input")
	if err != nil {
		return nil, err
	}
	return newInput(group, KindText, name), nil
}

func NewTextArea(group Group) (Field, error) {
	name, err := nameOf(group, group.Table.Find("textarea"), "textarea")
	if err != nil {
		return nil, err
	}
	return newInput(group, KindTextArea, name), nil
}

type Phone struct {
	*input
}

func NewPhone(group Group) (Field, error) {
	name, err := nameOf(group, group.Table.Find(visibleInputs), "input")
	if err != nil {
		return nil, err
	}
	f := newInput(group, KindPhone, name)
	f.property.Pattern = PhonePattern
	return Phone{input: f}, nil
}

type controlState struct {
	RawValue        string `json:"rawValue"`
	ValidationState string `json:"validationState"`
}

// Fill writes the raw value and the `$State` sidecar the client framework
// keeps next to it.
func (f Phone) Fill(value string) (*webforms.Payload, error) {
	state, err := json.Marshal(controlState{RawValue: value})
	if err != nil {
		return nil, err
	}
	name := f.keys[0]
	payload := webforms.NewPayload()
	payload.Set(name, value)
	payload.Set(name+"$State", string(state))
	return payload, nil
}

type Password struct {
	*input
}

func NewPassword(group Group) (Field, error) {
	name, err := nameOf(group, group.Table.Find("input[type='password']"), "password input")
	if err != nil {
		return nil, err
	}
	return &Password{input: newInput(group, KindPassword, name)}, nil
}

// AddConfirmation makes the password also fill its confirmation input.
func (f *Password) AddConfirmation(name string) {
	if !slices.Contains(f.keys, name) {
		f.keys = append(f.keys, name)
	}
}

// Confirmed reports whether a confirmation input was attached.
func (f *Password) Confirmed() bool {
	return len(f.keys) > 1
}

// IsConfirmation reports whether a password group is the confirmation of
// another password rather than a field of its own.
func IsConfirmation(group Group) bool {
	name, _ := group.Table.Find("input[type='password']").First().Attr("name")
	return strings.Contains(strings.ToLower(name), "confirm") ||
		strings.HasPrefix(group.Label, "confirm")
}

type RadioGroup struct {
	*input
}

func NewRadioGroup(group Group) (Field, error) {
	name, err := nameOf(group, group.Table.Find("[role='radiogroup'] input"), "radio input")
	if err != nil {
		return nil, err
	}
	options, err := webforms.ParseRadioOptions(group.Source, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", group.Label, err)
	}
	f := newInput(group, KindRadioGroup, name)
	f.property.Enum = options
	return RadioGroup{input: f}, nil
}

func (f RadioGroup) Options() []string {
	return f.options()
}

// Fill writes the option's position and checks its radio button.
func (f RadioGroup) Fill(value string) (*webforms.Payload, error) {
	index, err := f.checkOption(value)
	if err != nil {
		return nil, err
	}
	name := f.keys[0]
	payload := webforms.NewPayload()
	payload.Set(name, strconv.Itoa(index))
	payload.Set(fmt.Sprintf("%s$RB%d", name, index), Checked)
	return payload, nil
}

type ComboBox struct {
	*input
}

func NewComboBox(group Group) (Field, error) {
	name, err := nameOf(group, group.Table.Find("input[role='combobox']"), "combobox input")
	if err != nil {
		return nil, err
	}
	hidden, err := nameOf(group, group.Table.Find("input[type='hidden']"), "hidden value input")
	if err != nil {
		return nil, err
	}
	options, err := webforms.ParseComboOptions(group.Source, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", group.Label, err)
	}
	f := newInput(group, KindComboBox, name)
	f.keys = append(f.keys, hidden)
	f.property.Enum = options
	return ComboBox{input: f}, nil
}

func (f ComboBox) Options() []string {
	return f.options()
}

func (f ComboBox) Fill(value string) (*webforms.Payload, error) {
	if _, err := f.checkOption(value); err != nil {
		return nil, err
	}
	return f.input.Fill(value)
}

type CheckBox struct {
	*input
}

func NewCheckBox(group Group) (Field, error) {
	name, err := nameOf(group, group.Table.Find("input[type='hidden']"), "hidden state input")
	if err != nil {
		return nil, err
	}
	f := newInput(group, KindCheckBox, name)
	f.property.Enum = []string{Unchecked, Checked}
	return CheckBox{input: f}, nil
}

func (f CheckBox) Options() []string {
	return f.options()
}

func (f CheckBox) Fill(value string) (*webforms.Payload, error) {
	if _, err := f.checkOption(value); err != nil {
		return nil, err
	}
	return f.input.Fill(value)
}

// LabelText turns a caption like "Email Address:" into the key "email_address".
func LabelText(caption string) string {
	caption = htmlutil.CollapseWhitespace(caption)
	caption = strings.Trim(caption, ": ")
	return strings.ReplaceAll(strings.ToLower(caption), " ", "_")
}
