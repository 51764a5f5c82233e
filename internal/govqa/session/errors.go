package session

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrUnauthenticated is returned when credentials are rejected or when an
// operation that needs a logged in session is attempted without one.
var ErrUnauthenticated = errors.New("govqa: unauthenticated")

// UnsupportedSiteError is returned by Open when the address does not lead to
// a portal landing page.
type UnsupportedSiteError struct {
	Address string
	// Landed is where the request for Address ended up after redirects.
	Landed string
}

func (e *UnsupportedSiteError) Error() string {
	return fmt.Sprintf(
		"govqa: %s is not a supported portal (landed on %s, expected %s)",
		e.Address, e.Landed, PageSupportHome,
	)
}

// TransportError is a response the portal failed to serve. The portal
// sometimes renders its failure banners with a 200, in that case Status is
// synthetic.
type TransportError struct {
	Status int
	// URL is the address of the final response after redirects.
	URL    *url.URL
	Reason string
}

func (e *TransportError) Error() string {
	where := ""
	if e.URL != nil {
		where = e.URL.String()
	}
	return fmt.Sprintf("govqa: transport error %d at %s: %s", e.Status, where, e.Reason)
}

// Landed reports whether the failed response was served for the given page.
func (e *TransportError) Landed(page string) bool {
	return e.URL != nil && pathIs(e.URL, page)
}
