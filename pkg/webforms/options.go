package webforms

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/titanous/json5"
)

// Option lists of radio button lists and combo boxes are not in the DOM, the
// controls render them client side from their initialisation scripts. Each
// control is initialised on a single line holding a single-quoted object
// literal that starts with the control's postback name:
//
//	radio list:  {'uniqueID':'<name>', ..., 'items':[['<v>','<text>',...], ...], ...}
//	combo box:   {'uniqueID':'<name>$DDD$L', ..., 'itemsInfo':[{'value':'<v>','text':'<t>'}, ...], ...}
//
// The uniqueID line must occur exactly once in the page source. For radio
// lists the option is the second element of each 'items' tuple. For combo
// boxes it is the 'value' of each 'itemsInfo' entry, skipping the first entry
// which is the empty placeholder. The literals are decoded as JSON5, which
// accepts the single-quoted strings the scripts use.

// ErrOptionsNotFound is returned when a control's option list cannot be
// located unambiguously. Guessing values is not safe, callers must treat
// this as fatal.
var ErrOptionsNotFound = errors.New("webforms: control option list not found")

// ComboListSuffix is appended to a combo box's input name to get the uniqueID
// of its drop-down list.
const ComboListSuffix = "$DDD$L"

var (
	radioItemsRegex = regexp.MustCompile(`'items':(\[\[.*?\]\])`)
	comboItemsRegex = regexp.MustCompile(`'itemsInfo':(\[[^\]]*?\])`)
)

func controlScriptLine(source, uniqueID string) (string, error) {
	pattern, err := regexp.Compile(`'uniqueID':'` + regexp.QuoteMeta(uniqueID) + `'.*`)
	if err != nil {
		return "", err
	}
	lines := pattern.FindAllString(source, -1)
	if len(lines) != 1 {
		return "", fmt.Errorf(
			"%w: %d initialisation scripts for %q",
			ErrOptionsNotFound, len(lines), uniqueID,
		)
	}
	return lines[0], nil
}

// ParseRadioOptions returns the option values of the radio button list with
// the given postback name.
func ParseRadioOptions(source, uniqueID string) ([]string, error) {
	line, err := controlScriptLine(source, uniqueID)
	if err != nil {
		return nil, err
	}
	groups := radioItemsRegex.FindStringSubmatch(line)
	if len(groups) < 2 {
		return nil, fmt.Errorf("%w: no 'items' for %q", ErrOptionsNotFound, uniqueID)
	}

	var items [][]any
	err = json5.Unmarshal([]byte(groups[1]), &items)
	if err != nil {
		return nil, fmt.Errorf("%w: decode 'items' for %q: %s", ErrOptionsNotFound, uniqueID, err)
	}

	options := make([]string, 0, len(items))
	for _, item := range items {
		if len(item) < 2 {
			return nil, fmt.Errorf("%w: short item %v for %q", ErrOptionsNotFound, item, uniqueID)
		}
		text, ok := item[1].(string)
		if !ok {
			return nil, fmt.Errorf("%w: non-string item %v for %q", ErrOptionsNotFound, item, uniqueID)
		}
		options = append(options, text)
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("%w: empty 'items' for %q", ErrOptionsNotFound, uniqueID)
	}
	return options, nil
}

type comboItem struct {
	Value any    `json:"value"`
	Text  string `json:"text"`
}

// ParseComboOptions returns the option values of the combo box whose visible
// input has the given postback name.
func ParseComboOptions(source, inputName string) ([]string, error) {
	uniqueID := inputName + ComboListSuffix
	line, err := controlScriptLine(source, uniqueID)
	if err != nil {
		return nil, err
	}
	groups := comboItemsRegex.FindStringSubmatch(line)
	if len(groups) < 2 {
		return nil, fmt.Errorf("%w: no 'itemsInfo' for %q", ErrOptionsNotFound, uniqueID)
	}

	var items []comboItem
	err = json5.Unmarshal([]byte(groups[1]), &items)
	if err != nil {
		return nil, fmt.Errorf("%w: decode 'itemsInfo' for %q: %s", ErrOptionsNotFound, uniqueID, err)
	}
	if len(items) < 2 {
		return nil, fmt.Errorf("%w: empty 'itemsInfo' for %q", ErrOptionsNotFound, uniqueID)
	}

	options := make([]string, 0, len(items)-1)
	for _, item := range items[1:] {
		options = append(options, fmt.Sprint(item.Value))
	}
	return options, nil
}
