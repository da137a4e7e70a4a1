// Package relay moves credentials that only exist in a URL fragment into query
// parameters the server can see.
//
// The browser never sends the fragment to the server, so the conversion runs as a script
// in the page. Ordering is enforced by serial reloads keyed on the auth_pending flag:
//
//	tick 1: fragment has credentials, no auth_pending  -> add auth_pending=1, reload
//	tick 2: auth_pending=1, fragment has credentials   -> fragment into query, reload
//	tick n: auth_pending=1, fragment gone              -> nothing
//
// Advance is the reference model of that protocol and Script is its browser rendition.
package relay

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/ops-portal/credentials"
)

// Phase names the protocol step a page load is in.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFlag
	PhaseConvert
)

func (p Phase) String() string {
	switch p {
	case PhaseFlag:
		return "flag"
	case PhaseConvert:
		return "convert"
	}
	return "idle"
}

// fragmentTriggers are the fragment keys that start the relay.
var fragmentTriggers = []string{
	credentials.ParamAccessToken,
	credentials.ParamRefreshToken,
	credentials.ParamCode,
	credentials.ParamError,
	credentials.ParamErrorCode,
	credentials.ParamErrorDescription,
}

// migrated are the fragment keys copied into the query during conversion.
var migrated = []string{
	credentials.ParamAccessToken,
	credentials.ParamRefreshToken,
	credentials.ParamType,
	credentials.ParamCode,
	credentials.ParamError,
	credentials.ParamErrorCode,
	credentials.ParamErrorDescription,
}

// Location is the part of the browser location the relay reads and writes.
type Location struct {
	Path     string
	Query    url.Values
	Fragment string
}

// ParseLocation splits a raw URL into a Location.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, err
	}
	return Location{Path: u.Path, Query: u.Query(), Fragment: u.Fragment}, nil
}

// String renders the location the way the script writes it back.
func (l Location) String() string {
	s := l.Path
	if s == "" {
		s = "/"
	}
	if q := l.Query.Encode(); q != "" {
		s += "?" + q
	}
	if l.Fragment != "" {
		s += "#" + l.Fragment
	}
	return s
}

// Step is the outcome of running the relay once on a page load.
type Step struct {
	Phase  Phase
	Reload bool
	Next   Location
}

// Advance runs one tick of the relay. A Step without Reload leaves the location as is.
func Advance(loc Location) Step {
	frag := fragmentValues(loc.Fragment)
	if !carriesCredentials(frag) {
		return Step{Phase: PhaseIdle, Next: loc}
	}

	if !credentials.IsPending(loc.Query) {
		next := cloneLocation(loc)
		// Set, never Add: a repeated trigger cannot double the flag.
		next.Query.Set(credentials.ParamAuthPending, "1")
		return Step{Phase: PhaseFlag, Reload: true, Next: next}
	}

	next := cloneLocation(loc)
	for _, key := range migrated {
		if v := frag.Get(key); v != "" {
			next.Query.Set(key, v)
		}
	}
	next.Query.Set(credentials.ParamAuthPending, "1")
	next.Fragment = ""
	return Step{Phase: PhaseConvert, Reload: true, Next: next}
}

// Settle runs Advance until the relay stops asking for reloads. It returns every step
// taken and gives up after limit reloads, which only a broken protocol would reach.
func Settle(loc Location, limit int) ([]Step, bool) {
	var steps []Step
	for i := 0; i <= limit; i++ {
		step := Advance(loc)
		if !step.Reload {
			return steps, true
		}
		steps = append(steps, step)
		loc = step.Next
	}
	return steps, false
}

func fragmentValues(fragment string) url.Values {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return url.Values{}
	}
	values, err := url.ParseQuery(fragment)
	if err != nil {
		// Route fragments such as "#/settings" are not credential carriers.
		return url.Values{}
	}
	return values
}

func carriesCredentials(frag url.Values) bool {
	for _, key := range fragmentTriggers {
		if frag.Get(key) != "" {
			return true
		}
	}
	return false
}

func cloneLocation(loc Location) Location {
	q := make(url.Values, len(loc.Query))
	for k, v := range loc.Query {
		q[k] = append([]string(nil), v...)
	}
	return Location{Path: loc.Path, Query: q, Fragment: loc.Fragment}
}
