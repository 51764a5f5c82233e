package telemetry

import (
	"fmt"
)

// API is where every package of the client reports what happened while talking
// to a portal. Tests pass NopAPI, the cli passes SlogAPI.
type API interface {
	// ReportBroken reports a portal interaction that failed outright.
	//
	// Ids are `<area>.<operation>` in lowercase, e.g. `session.login` or
	// `records.get`, declared as report_* constants next to their use. The id
	// names the operation, details such as the page or the error go in params.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something the client worked around, like a banner
	// on a page that still rendered or an attachment url it could not read.
	ReportWarning(id string, params ...any)

	// ReportDebug reports progress, only shown with --verbose.
	ReportDebug(msg string, params ...any)

	// ReportCount reports how many of something one operation saw, e.g. the
	// requests listed or the truncated messages expanded.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with the package that reports it, e.g.
// `govqa_session: session.login`.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}

// NopAPI drops every report.
type NopAPI struct{}

func (NopAPI) ReportBroken(string, ...any)  {}
func (NopAPI) ReportWarning(string, ...any) {}
func (NopAPI) ReportDebug(string, ...any)   {}
func (NopAPI) ReportCount(string, int64)    {}
