package fields

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var ErrDuplicateLabel = errors.New("fields: duplicate label")

// Group is the layout container of one required control.
type Group struct {
	Label string
	Table *goquery.Selection
	// Source is the raw page, for controls initialised by inline scripts.
	Source string
}

// Classifier turns a group into a field when Match accepts it.
type Classifier struct {
	Kind  Kind
	Match func(group Group) bool
	New   func(group Group) (Field, error)
}

func has(selector string) func(Group) bool {
	return func(group Group) bool {
		return group.Table.Find(selector).Length() > 0
	}
}

func visibleNameContains(fragment string) func(Group) bool {
	return func(group Group) bool {
		found := false
		group.Table.Find(visibleInputs).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			name, _ := s.Attr("name")
			found = strings.Contains(strings.ToLower(name), fragment)
			return !found
		})
		return found
	}
}

// Classifiers is tried in order, the first match decides the kind of a group.
var Classifiers = []Classifier{
	{Kind: KindComboBox, Match: has("input[role='combobox']"), New: NewComboBox},
	{Kind: KindTextArea, Match: has("textarea"), New: NewTextArea},
	{Kind: KindRadioGroup, Match: has("[role='radiogroup']"), New: NewRadioGroup},
	{Kind: KindCheckBox, Match: has("[role='checkbox']"), New: NewCheckBox},
	{Kind: KindPhone, Match: visibleNameContains("phone"), New: NewPhone},
	{Kind: KindPassword, Match: has("input[type='password']"), New: NewPassword},
	{Kind: KindText, Match: has(visibleInputs), New: NewText},
}

// Classify builds the field for a group with the given classifiers.
func Classify(classifiers []Classifier, group Group) (Field, error) {
	for _, c := range classifiers {
		if c.Match(group) {
			return c.New(group)
		}
	}
	return nil, fmt.Errorf("%w: %s has no recognised control", ErrMalformed, group.Label)
}

// requiredMarker selects captions directly followed by the required glyph.
const requiredMarker = "label + em, span + em"

// DiscoverGroups finds the groups of every required control under scope, in
// document order.
func DiscoverGroups(scope *goquery.Selection, source string) ([]Group, error) {
	var groups []Group
	seenTables := map[*html.Node]bool{}
	seenLabels := map[string]bool{}

	var err error
	scope.Find(requiredMarker).EachWithBreak(func(_ int, em *goquery.Selection) bool {
		caption := em.Prev()
		table := caption.Closest("table")
		if table.Length() == 0 {
			err = fmt.Errorf("%w: required marker outside of a layout group", ErrMalformed)
			return false
		}

		label := LabelText(caption.Text())
		if seenTables[table.Get(0)] {
			err = fmt.Errorf("%w: group %s has more than one caption", ErrMalformed, label)
			return false
		}
		if label == "" {
			err = fmt.Errorf("%w: empty caption", ErrMalformed)
			return false
		}
		if seenLabels[label] {
			err = fmt.Errorf("%w: %s", ErrDuplicateLabel, label)
			return false
		}
		seenTables[table.Get(0)] = true
		seenLabels[label] = true

		groups = append(groups, Group{Label: label, Table: table, Source: source})
		return true
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}
