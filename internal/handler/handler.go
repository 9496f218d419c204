// Package handler serves the console pages. GET handlers render; POST
// handlers call the DNS server, then redirect back with a flash message so
// the next GET shows fresh server state.
package handler

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"isotope/internal/auth"
	"isotope/internal/model"
	"isotope/internal/technitium"
	"isotope/internal/util"
)

// AuditLog records console actions. database.DB and database.Memory
// implement it.
type AuditLog interface {
	LogAudit(entry model.AuditEntry) error
	ListAuditLog(limit, offset int) ([]model.AuditEntry, int, error)
}

// Deps are shared by every page handler.
type Deps struct {
	Client   *technitium.Client
	Sessions *auth.SessionManager
	Audit    AuditLog
	// Confirm renders the "are you sure" page for destructive actions.
	Confirm *template.Template
}

type base struct {
	Deps
	tmpl *template.Template
}

// page returns the data every layout render starts from.
func page(r *http.Request, title string) map[string]interface{} {
	data := map[string]interface{}{
		"Title": title,
		"Path":  r.URL.Path,
		"Flash": r.URL.Query().Get("msg"),
		"Error": r.URL.Query().Get("err"),
	}
	if s, ok := auth.SessionFrom(r.Context()); ok {
		data["Username"] = s.Username
		data["DisplayName"] = s.DisplayName
		data["CSRFToken"] = s.CSRFToken
		data["Role"] = s.Role
	}
	return data
}

func render(w http.ResponseWriter, tmpl *template.Template, name string, data map[string]interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("[server] render %s: %v", name, err)
	}
}

func (b *base) render(w http.ResponseWriter, data map[string]interface{}) {
	render(w, b.tmpl, "layout", data)
}

// fail renders the page with err as the error banner. A rejected token
// ends the session instead, since every later call would fail the same way.
func (b *base) fail(w http.ResponseWriter, r *http.Request, data map[string]interface{}, what string, err error) {
	b.failOn(w, r, b.tmpl, data, what, err)
}

func (b *base) failOn(w http.ResponseWriter, r *http.Request, tmpl *template.Template, data map[string]interface{}, what string, err error) {
	if technitium.IsInvalidToken(err) {
		b.Sessions.DestroySession(w, r)
		auth.RedirectToLogin(w, r)
		return
	}
	data["Error"] = fmt.Sprintf("Failed to load %s: %s", what, technitium.Message(err))
	render(w, tmpl, "layout", data)
}

// done redirects to target with the outcome of a mutation.
func (b *base) done(w http.ResponseWriter, r *http.Request, target, success string, err error) {
	if technitium.IsInvalidToken(err) {
		b.Sessions.DestroySession(w, r)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	key, msg := "msg", success
	if err != nil {
		key, msg = "err", technitium.Message(err)
	}
	http.Redirect(w, r, withParam(target, key, msg), http.StatusSeeOther)
}

// invalid redirects with a validation error, before any call was made.
func invalid(w http.ResponseWriter, r *http.Request, target, msg string) {
	http.Redirect(w, r, withParam(target, "err", msg), http.StatusSeeOther)
}

// filterBy keeps the items with a field containing q, ignoring case. Each
// field is matched on its own.
func filterBy[T any](items []T, q string, fields func(T) []string) []T {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return items
	}
	var out []T
	for _, it := range items {
		for _, f := range fields(it) {
			if strings.Contains(strings.ToLower(f), q) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

func withParam(target, key, value string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + key + "=" + url.QueryEscape(value)
}

// audit writes one line to the process log and one entry to the audit
// store.
func (b *base) audit(r *http.Request, action, target, detail string) {
	username := ""
	if s, ok := auth.SessionFrom(r.Context()); ok {
		username = s.Username
	}
	b.record(model.AuditEntry{
		Username:  username,
		Action:    action,
		Target:    target,
		Detail:    detail,
		IPAddress: util.GetClientIP(r),
	})
}

func (b *base) record(e model.AuditEntry) {
	log.Printf("[audit] user=%s action=%s target=%q detail=%q ip=%s", e.Username, e.Action, e.Target, e.Detail, e.IPAddress)
	if b.Audit == nil {
		return
	}
	if err := b.Audit.LogAudit(e); err != nil {
		log.Printf("[audit] store entry: %v", err)
	}
}

// confirmed reports whether a destructive POST carries confirm=yes. If not,
// it renders the confirmation page, which re-posts the same form with
// confirm=yes added.
func (b *base) confirmed(w http.ResponseWriter, r *http.Request, title, message, cancel string) bool {
	_ = r.ParseForm()
	if r.PostForm.Get("confirm") == "yes" {
		return true
	}

	type hidden struct{ Name, Value string }
	var fields []hidden
	for k, vs := range r.PostForm {
		if k == "csrf_token" || k == "confirm" {
			continue
		}
		for _, v := range vs {
			fields = append(fields, hidden{k, v})
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	data := page(r, title)
	data["Message"] = message
	data["Action"] = r.URL.Path
	data["Fields"] = fields
	data["Cancel"] = cancel
	render(w, b.Confirm, "layout", data)
	return false
}
