package server

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/jrsteele09/ops-portal/auth"
	"github.com/jrsteele09/ops-portal/relay"
	"github.com/rs/zerolog/log"
)

const contentTypeHTML = "text/html; charset=utf-8"

// Pages rendered by the rerun, one per gate outcome.
const (
	pageLoading  = "loading.html"
	pageError    = "error.html"
	pageLogin    = "login.html"
	pageRecovery = "recovery.html"
	pageHome     = "home.html"
)

// PageData is the template model shared by every rerun page.
type PageData struct {
	AppName        string
	RelayScript    template.JS
	WatchdogScript template.JS

	State     auth.State
	Kind      auth.Kind
	Message   string
	Retryable bool
	CleanURL  string
	Session   *auth.Session

	Notice            string
	FormError         string
	MinPasswordLength int
}

// RerunHandler evaluates the auth gate for one page load and renders whatever the
// decision calls for. Redirect decisions answer 303 to the clean URL so the next
// rerun starts without handshake parameters.
func (s *Server) RerunHandler() (http.HandlerFunc, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{pageLoading, pageError, pageLogin, pageRecovery, pageHome} {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	watchdog := relay.WatchdogScript(s.config.GetRelayTimeout())

	return func(w http.ResponseWriter, r *http.Request) {
		rr := auth.NewRerun(r.URL, s.scopeFor(w, r), s.rehydrator.Fresh())
		d := s.gate.Evaluate(r.Context(), rr)

		if d.Redirect {
			http.Redirect(w, r, d.CleanURL, http.StatusSeeOther)
			return
		}

		query := r.URL.Query()
		data := PageData{
			AppName:           s.config.GetAppName(),
			RelayScript:       relay.Script(),
			State:             d.State,
			Kind:              d.Kind,
			Message:           d.Message,
			CleanURL:          d.CleanURL,
			Session:           d.Session,
			Notice:            notices[query.Get(paramNotice)],
			FormError:         s.formErrorMessage(query.Get(paramFormError)),
			MinPasswordLength: s.config.GetMinPasswordLength(),
		}
		if d.Err != nil {
			data.Retryable = d.Err.Retryable()
		}

		name := pageFor(d)
		if name == pageLoading {
			// The relay still needs the handshake parameters.
			data.WatchdogScript = watchdog
			data.CleanURL = ""
		}
		if name != pageLoading && name != pageError {
			data.CleanURL = withoutFormParams(d.CleanURL)
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := pages[name].ExecuteTemplate(w, "layout", data); err != nil {
			log.Err(err).Str("page", name).Msg("Failed to render page")
			http.Error(w, "Failed to render page", http.StatusInternalServerError)
		}
	}, nil
}

func pageFor(d auth.Decision) string {
	switch d.State {
	case auth.StateLoading:
		return pageLoading
	case auth.StateError:
		return pageError
	case auth.StateAuthenticated:
		if d.Session != nil && d.Session.IsRecovery() {
			return pageRecovery
		}
		return pageHome
	}
	return pageLogin
}

// withoutFormParams drops the one-shot notice and form error from a clean URL.
func withoutFormParams(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has(paramNotice) && !q.Has(paramFormError) {
		return raw
	}
	q.Del(paramNotice)
	q.Del(paramFormError)
	u.RawQuery = q.Encode()
	return u.String()
}
