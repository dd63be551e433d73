package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scfingest/internal/api"
	internalauth "scfingest/internal/auth"
	"scfingest/internal/store"
)

func (s *Server) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, "sign_in", pageData{
		Title:             "Sign in",
		Next:              safeNext(r.URL.Query().Get("next")),
		AllowRegistration: s.allowRegistration,
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req api.SignInRequest
	next := membersPath
	asJSON := isJSONRequest(r)
	if asJSON {
		if !s.decodeJSONReq(w, r, &req) {
			return
		}
	} else {
		if !s.parseFormReq(w, r) {
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		next = safeNext(r.PostForm.Get("next"))
	}

	fail := func(status int, err error) {
		if asJSON {
			s.writeErrorReq(w, r, status, err)
			return
		}
		s.renderPage(w, r, status, "sign_in", pageData{
			Title:             "Sign in",
			Error:             err.Error(),
			Next:              next,
			Username:          req.Username,
			AllowRegistration: s.allowRegistration,
		})
	}

	now := time.Now().UTC()
	limiterKey := loginAttemptKey(req.Username, r)
	if ok, wait := s.loginLimiter.Allow(limiterKey, now); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second)/time.Second)))
		fail(http.StatusTooManyRequests, makeAPIError(http.StatusTooManyRequests, "resource_exhausted",
			ErrCodeResourceExhausted, fmt.Errorf("too many sign-in attempts; retry later")))
		return
	}

	result, err := s.auth.SignIn(r.Context(), req.Username, req.Password, now)
	if err != nil {
		if errors.Is(err, internalauth.ErrInvalidCredentials) {
			s.loginLimiter.RegisterFailure(limiterKey, now)
			fail(http.StatusUnauthorized, unauthorized(err))
			return
		}
		s.writeStoreError(w, r, err)
		return
	}
	s.loginLimiter.Reset(limiterKey)
	s.log().Info("user signed in", "user", result.User.Username, "remote_addr", r.RemoteAddr)

	s.setSessionCookie(w, r, result)
	if asJSON {
		s.writeJSON(w, http.StatusOK, meResponse(result.User))
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if !s.allowRegistration {
		s.renderPage(w, r, http.StatusForbidden, "message", pageData{
			Title:   "Registration closed",
			Message: "Self-registration is disabled. Ask an administrator for an account.",
		})
		return
	}
	s.renderPage(w, r, http.StatusOK, "register", pageData{Title: "Register"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	asJSON := isJSONRequest(r)
	if !s.allowRegistration {
		err := forbidden(fmt.Errorf("registration is disabled"))
		if asJSON {
			s.writeErrorReq(w, r, http.StatusForbidden, err)
			return
		}
		s.handleRegisterPage(w, r)
		return
	}

	if asJSON {
		if !s.decodeJSONReq(w, r, &req) {
			return
		}
	} else {
		if !s.parseFormReq(w, r) {
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		req.FirstName = r.PostForm.Get("first_name")
		req.LastName = r.PostForm.Get("last_name")
	}

	now := time.Now().UTC()
	user, err := s.auth.Register(r.Context(), RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, now)
	if err != nil {
		status := httpStatusFromError(err)
		if status >= 500 {
			s.writeStoreError(w, r, err)
			return
		}
		if asJSON {
			s.writeServiceError(w, r, err)
			return
		}
		s.renderPage(w, r, status, "register", pageData{
			Title:     "Register",
			Error:     err.Error(),
			Username:  req.Username,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		return
	}
	s.log().Info("user registered", "user", user.Username)

	result, err := s.auth.startSession(r.Context(), user, now)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.setSessionCookie(w, r, result)
	if asJSON {
		s.writeJSON(w, http.StatusCreated, meResponse(user))
		return
	}
	http.Redirect(w, r, membersPath, http.StatusSeeOther)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := sessionTokenFromRequest(r); token != "" {
		if err := s.auth.SignOut(r.Context(), token, time.Now().UTC()); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	s.writeJSON(w, http.StatusOK, meResponse(session.User))
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, result *signInResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    result.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   max(int(time.Until(result.ExpiresAt)/time.Second), 1),
		Expires:  result.ExpiresAt,
	})
}

func (s *Server) cookieSecure(r *http.Request) bool {
	return s.secureCookies || r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (s *Server) parseFormReq(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, defaultJSONMaxBody)
	if err := r.ParseForm(); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid form body"), ErrCodeInvalidArgument))
		return false
	}
	return true
}

func meResponse(user *store.User) api.MeResponse {
	if user == nil {
		return api.MeResponse{}
	}
	return api.MeResponse{
		Authenticated: true,
		Username:      user.Username,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
	}
}
