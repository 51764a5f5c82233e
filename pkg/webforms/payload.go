// Package webforms contains the pieces of ASP.NET WebForms postback handling
// that do not depend on a particular portal: the ordered postback payload,
// extraction of the hidden postback state, and parsing of option lists that
// DevExpress controls render from their initialisation scripts.
package webforms

import (
	"net/url"
	"strings"
)

// Payload is an ordered set of postback fields. Keys keep the position they
// were first set at, later writes only replace the value.
//
// The zero value is an empty payload ready to use.
type Payload struct {
	keys   []string
	values map[string]string
}

func NewPayload() *Payload {
	return &Payload{}
}

func (p *Payload) Set(key, value string) {
	if p.values == nil {
		p.values = map[string]string{}
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// SetDefault sets key only if it has not been set yet.
func (p *Payload) SetDefault(key, value string) {
	if p.Has(key) {
		return
	}
	p.Set(key, value)
}

func (p *Payload) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

func (p *Payload) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

func (p *Payload) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Merge writes every field of other into p, other's values win.
func (p *Payload) Merge(other *Payload) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		p.Set(k, other.values[k])
	}
}

func (p *Payload) Clone() *Payload {
	out := &Payload{
		keys:   make([]string, len(p.keys)),
		values: make(map[string]string, len(p.values)),
	}
	copy(out.keys, p.keys)
	for k, v := range p.values {
		out.values[k] = v
	}
	return out
}

// Encode renders the payload as an application/x-www-form-urlencoded body in
// insertion order.
func (p *Payload) Encode() string {
	var out strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			out.WriteByte('&')
		}
		out.WriteString(url.QueryEscape(k))
		out.WriteByte('=')
		out.WriteString(url.QueryEscape(p.values[k]))
	}
	return out.String()
}
