package handler

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"isotope/internal/auth"
	"isotope/internal/model"
)

const auditPageSize = 50

type AdminTemplates struct {
	Users       *template.Template
	Sessions    *template.Template
	Groups      *template.Template
	Permissions *template.Template
	Audit       *template.Template
}

type AdminHandler struct {
	base
	t AdminTemplates
}

func NewAdminHandler(d Deps, t AdminTemplates) *AdminHandler {
	return &AdminHandler{base: base{Deps: d, tmpl: t.Users}, t: t}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	data := page(r, "Users")
	q := r.URL.Query().Get("q")
	data["Query"] = q

	users, err := h.Client.ListUsers(r.Context())
	if err != nil {
		h.failOn(w, r, h.t.Users, data, "users", err)
		return
	}
	data["Users"] = filterUsers(users, q)
	render(w, h.t.Users, "layout", data)
}

func filterUsers(users []model.User, q string) []model.User {
	return filterBy(users, q, func(u model.User) []string { return []string{u.Username, u.DisplayName} })
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	switch {
	case username == "" || password == "":
		invalid(w, r, "/admin/users", "Username and password are required")
		return
	case password != r.FormValue("confirm_password"):
		invalid(w, r, "/admin/users", "The passwords do not match")
		return
	}

	err := h.Client.CreateUser(r.Context(), username, password, strings.TrimSpace(r.FormValue("display_name")))
	if err == nil {
		h.audit(r, "create_user", username, "")
	}
	h.done(w, r, "/admin/users", fmt.Sprintf("User '%s' created", username), err)
}

func (h *AdminHandler) SetUserDisabled(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	username := r.FormValue("username")
	disabled := r.FormValue("disabled") == "true"
	if s, _ := auth.SessionFrom(r.Context()); disabled && s != nil && s.Username == username {
		invalid(w, r, "/admin/users", "Cannot disable yourself")
		return
	}

	err := h.Client.SetUserDisabled(r.Context(), username, disabled)
	action, verb := "enable_user", "enabled"
	if disabled {
		action, verb = "disable_user", "disabled"
	}
	if err == nil {
		h.audit(r, action, username, "")
	}
	h.done(w, r, "/admin/users", fmt.Sprintf("User '%s' %s", username, verb), err)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	username := r.FormValue("username")
	if s, _ := auth.SessionFrom(r.Context()); s != nil && s.Username == username {
		invalid(w, r, "/admin/users", "Cannot delete yourself")
		return
	}
	if !h.confirmed(w, r, "Delete User", fmt.Sprintf("Delete user '%s'?", username), "/admin/users") {
		return
	}
	err := h.Client.DeleteUser(r.Context(), username)
	if err == nil {
		h.audit(r, "delete_user", username, "")
	}
	h.done(w, r, "/admin/users", fmt.Sprintf("User '%s' deleted", username), err)
}

func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	data := page(r, "Sessions")
	q := r.URL.Query().Get("q")
	data["Query"] = q
	sessions, err := h.Client.ListSessions(r.Context())
	if err != nil {
		h.failOn(w, r, h.t.Sessions, data, "sessions", err)
		return
	}
	data["Sessions"] = filterSessions(sessions, q)
	render(w, h.t.Sessions, "layout", data)
}

func filterSessions(sessions []model.APISession, q string) []model.APISession {
	return filterBy(sessions, q, func(s model.APISession) []string {
		return []string{s.Username, s.TokenName, s.PartialToken, s.LastSeenRemoteAddress}
	})
}

func (h *AdminHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	partial := r.FormValue("partial_token")
	if partial == "" {
		invalid(w, r, "/admin/sessions", "No session selected")
		return
	}
	if !h.confirmed(w, r, "End Session", fmt.Sprintf("End session %s? Its user will have to sign in again.", partial), "/admin/sessions") {
		return
	}
	err := h.Client.DeleteSession(r.Context(), partial)
	if err == nil {
		h.audit(r, "delete_session", partial, "")
	}
	h.done(w, r, "/admin/sessions", "Session ended", err)
}

func (h *AdminHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	data := page(r, "Groups")
	groups, err := h.Client.ListGroups(r.Context())
	if err != nil {
		h.failOn(w, r, h.t.Groups, data, "groups", err)
		return
	}
	data["Groups"] = groups
	render(w, h.t.Groups, "layout", data)
}

func (h *AdminHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		invalid(w, r, "/admin/groups", "Group name is required")
		return
	}
	err := h.Client.CreateGroup(r.Context(), name, strings.TrimSpace(r.FormValue("description")))
	if err == nil {
		h.audit(r, "create_group", name, "")
	}
	h.done(w, r, "/admin/groups", fmt.Sprintf("Group '%s' created", name), err)
}

func (h *AdminHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	name := r.FormValue("name")
	if !h.confirmed(w, r, "Delete Group", fmt.Sprintf("Delete group '%s'?", name), "/admin/groups") {
		return
	}
	err := h.Client.DeleteGroup(r.Context(), name)
	if err == nil {
		h.audit(r, "delete_group", name, "")
	}
	h.done(w, r, "/admin/groups", fmt.Sprintf("Group '%s' deleted", name), err)
}

func (h *AdminHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	data := page(r, "Permissions")
	perms, err := h.Client.ListPermissions(r.Context())
	if err != nil {
		h.failOn(w, r, h.t.Permissions, data, "permissions", err)
		return
	}
	data["Permissions"] = perms
	render(w, h.t.Permissions, "layout", data)
}

func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	data := page(r, "Audit Log")

	pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if pageNum < 1 {
		pageNum = 1
	}
	offset := (pageNum - 1) * auditPageSize

	var (
		entries []model.AuditEntry
		total   int
		err     error
	)
	if h.Audit != nil {
		entries, total, err = h.Audit.ListAuditLog(auditPageSize, offset)
	}
	if err != nil {
		data["Error"] = "Failed to load audit log: " + err.Error()
		render(w, h.t.Audit, "layout", data)
		return
	}

	data["Entries"] = entries
	data["Page"] = pageNum
	data["TotalPages"] = (total + auditPageSize - 1) / auditPageSize
	data["Total"] = total
	render(w, h.t.Audit, "layout", data)
}
