package server

import (
	"fmt"
	"net/http"
	"net/url"
)

const signInPath = "/user/sign-in"

// Authenticator resolves the session of a request. It must not read the
// request body.
type Authenticator interface {
	Authenticate(r *http.Request) (Session, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (Session, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (Session, error) {
	return f(r)
}

type denyFunc func(w http.ResponseWriter, r *http.Request, err error)

// requireAuthenticated runs next only for authenticated sessions. Every
// other request, including one whose authentication failed with an error,
// goes to deny and next never runs.
func requireAuthenticated(authn Authenticator, next http.Handler, deny denyFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authn == nil {
			deny(w, r, fmt.Errorf("no authenticator configured"))
			return
		}
		session, err := authn.Authenticate(r)
		if err != nil || !session.Authenticated || session.User == nil {
			deny(w, r, err)
			return
		}
		noteRequestUser(r.Context(), session.Identity())
		next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), session)))
	})
}

func (s *Server) guard(h http.HandlerFunc) http.Handler {
	return requireAuthenticated(s.authenticator, h, s.denyUnauthenticated)
}

func (s *Server) denyUnauthenticated(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeStoreError(w, r, fmt.Errorf("authenticate request: %w", err))
		return
	}
	if wantsHTML(r) {
		http.Redirect(w, r, signInRedirect(r), http.StatusSeeOther)
		return
	}
	s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("sign in required")))
}

func signInRedirect(r *http.Request) string {
	next := r.URL.Path
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		next = membersPath
	} else if r.URL.RawQuery != "" {
		next += "?" + r.URL.RawQuery
	}
	return signInPath + "?next=" + url.QueryEscape(next)
}

// safeNext keeps post-sign-in redirects on this site.
func safeNext(next string) string {
	if next == "" || next[0] != '/' || len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return membersPath
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return membersPath
	}
	return next
}
