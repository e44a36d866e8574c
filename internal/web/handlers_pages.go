package web

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/soedash/internal/core"
	"github.com/JonMunkholm/soedash/internal/dashboard"
	"github.com/JonMunkholm/soedash/internal/logging"
	"github.com/JonMunkholm/soedash/internal/web/middleware"
)

var templateFuncs = map[string]any{
	"join": strings.Join,
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	},
}

// loginPage is the data of login.html.
type loginPage struct {
	Next  string
	Error string
}

// indexPage is the data of index.html.
type indexPage struct {
	Sources    []dashboard.DatasetStatus
	Categories []categoryGroup
	Provinces  []string
	Years      dashboard.YearRange
}

type categoryGroup struct {
	Name       string
	Indicators []string
}

// render executes a page template into a buffer first so template errors
// do not leave a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		logging.FromContext(r.Context()).Error("render page", "template", name, "error", err)
		http.Error(w, "An unexpected error occurred (ERR000)", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// handleLoginPage renders the password form.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login.html", loginPage{Next: safeNext(r.URL.Query().Get("next"))})
}

// handleLogin checks the shared password and issues a session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login.html", loginPage{Error: "Invalid form submission"})
		return
	}
	next := safeNext(r.PostFormValue("next"))

	if !middleware.CheckPassword(r.PostFormValue("password"), s.cfg.Auth.Password) {
		logging.FromContext(r.Context()).Warn("login failed", "ip", middleware.ClientIP(r))
		ue := core.NewUserError(errInvalidPassword)
		s.render(w, r, http.StatusUnauthorized, "login.html", loginPage{Next: next, Error: ue.Error()})
		return
	}

	if n := s.sessions.Sweep(); n > 0 {
		logging.FromContext(r.Context()).Debug("expired sessions removed", "count", n)
	}
	id, expires := s.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    id,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	logging.FromContext(r.Context()).Info("login succeeded", "ip", middleware.ClientIP(r))
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// handleLogout ends the session and returns to the login page.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.cfg.Auth.CookieName); err == nil {
		s.sessions.Delete(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// handleIndex renders the landing page: source status and the indicator
// catalogue with links into the API.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := indexPage{Sources: s.service.Status()}

	if ds, err := s.service.Central(); err == nil {
		for _, cat := range ds.Table.Categories() {
			page.Categories = append(page.Categories, categoryGroup{Name: cat, Indicators: ds.Table.Indicators(cat)})
		}
		page.Years = dashboard.FullRange(ds.Table.Years())
	}
	if sources, err := s.service.ProvinceSources(); err == nil {
		page.Provinces = sources
	}

	s.render(w, r, http.StatusOK, "index.html", page)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
