package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"scfingest/internal/api"
	"scfingest/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"index", "members", "sign_in", "register", "upload_result", "message"}

type pageData struct {
	AppName           string
	Title             string
	User              *store.User
	Error             string
	Message           string
	Next              string
	Username          string
	FirstName         string
	LastName          string
	AllowRegistration bool
	Slots             []slotView
	Recent            []api.IngestSummary
	Result            *api.UploadResponse
	StatusCode        int
}

type slotView struct {
	Name       string
	Required   bool
	Accept     string
	MaxSize    string
	StorageKey string
}

var templateFuncs = template.FuncMap{
	"bytes": formatBytes,
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.writeErrorReq(w, r, http.StatusInternalServerError, fmt.Errorf("unknown page %q", name))
		return
	}
	data.AppName = appName
	data.StatusCode = status

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.writeErrorReq(w, r, http.StatusInternalServerError, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Home", AllowRegistration: s.allowRegistration}
	if session, err := s.authenticator.Authenticate(r); err == nil && session.Authenticated {
		data.User = session.User
	}
	s.renderPage(w, r, http.StatusOK, "index", data)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	data := pageData{Title: "Members", User: session.User}
	for _, slot := range s.manifest.Slots() {
		data.Slots = append(data.Slots, slotView{
			Name:       slot.Name,
			Required:   slot.Required,
			Accept:     strings.Join(slot.Extensions, ","),
			MaxSize:    formatBytes(slot.MaxSizeBytes),
			StorageKey: s.gateway.KeyFor(slot),
		})
	}
	if s.ledger != nil {
		records, err := s.ledger.ListIngests(r.Context(), store.IngestFilter{UserID: session.User.ID, Limit: recentIngests})
		if err != nil {
			s.log().Warn("list recent ingests", "user", session.Identity(), "error", err)
		} else {
			data.Recent = ingestSummaries(records)
		}
	}
	s.renderPage(w, r, http.StatusOK, "members", data)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
