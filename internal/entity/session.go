package entity

import (
	"fmt"
	"time"
)

// Cookie is one cookie of an authenticated session, as exported from the
// browser that performed the login.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time // zero for a session cookie
	HTTPOnly bool
	Secure   bool
	SameSite string // "Strict", "Lax", "None" or ""
}

// Session is the opaque credential bundle attached to outbound requests.
// It is shared read-only between workers.
type Session struct {
	Identity string // user agent the login was performed with
	Cookies  []Cookie
}

// String never prints cookie values.
func (s Session) String() string {
	return fmt.Sprintf("session(identity=%q, cookies=%d)", s.Identity, len(s.Cookies))
}
