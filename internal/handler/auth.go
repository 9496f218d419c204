package handler

import (
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"

	"isotope/internal/auth"
	"isotope/internal/model"
	"isotope/internal/util"
)

const homePath = "/dashboard"

type AuthHandler struct {
	base
	ldap         *auth.LDAPClient
	serviceToken string
	login        *template.Template
}

// NewAuthHandler serves login, logout and password change. ldap may be nil;
// when set, directory users are signed in with serviceToken.
func NewAuthHandler(d Deps, ldap *auth.LDAPClient, serviceToken string, loginTmpl, passwordTmpl *template.Template) *AuthHandler {
	return &AuthHandler{base: base{Deps: d, tmpl: passwordTmpl}, ldap: ldap, serviceToken: serviceToken, login: loginTmpl}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	next := auth.SafeNext(r.URL.Query().Get("next"), homePath)
	if _, ok := h.Sessions.Current(r); ok {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, next, "", "")
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, next, username, errMsg string) {
	render(w, h.login, "login.html", map[string]interface{}{
		"Next":        next,
		"Username":    username,
		"Error":       errMsg,
		"Flash":       r.URL.Query().Get("msg"),
		"LDAPEnabled": h.ldap != nil,
	})
}

func (h *AuthHandler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	username := r.FormValue("username")
	password := r.FormValue("password")
	next := auth.SafeNext(r.FormValue("next"), homePath)

	id, method, errMsg := h.authenticate(r, username, password)
	if id == nil {
		h.record(model.AuditEntry{
			Username:  username,
			Action:    "login_failed",
			Detail:    errMsg,
			IPAddress: util.GetClientIP(r),
		})
		w.WriteHeader(http.StatusUnauthorized)
		h.renderLogin(w, r, next, username, errMsg)
		return
	}

	if _, err := h.Sessions.CreateSession(w, *id); err != nil {
		log.Printf("[auth] %v", err)
		h.renderLogin(w, r, next, username, "Could not start a session")
		return
	}

	h.record(model.AuditEntry{
		Username:  id.Username,
		Action:    "login",
		Detail:    fmt.Sprintf("auth=%s role=%s", method, id.Role),
		IPAddress: util.GetClientIP(r),
	})
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// authenticate tries the directory first when LDAP is on, then the DNS
// server's own accounts.
func (h *AuthHandler) authenticate(r *http.Request, username, password string) (*auth.Identity, string, string) {
	if h.ldap != nil {
		u, err := h.ldap.Authenticate(username, password)
		if err == nil {
			role, err := h.ldap.ResolveRole(u.Groups)
			if errors.Is(err, auth.ErrNoMappedGroup) {
				return nil, "", "Access denied: you are not in an authorized group"
			}
			return &auth.Identity{
				Username:    u.Username,
				DisplayName: u.DisplayName,
				Role:        role,
				APIToken:    h.serviceToken,
			}, "ldap", ""
		}
		log.Printf("[auth] ldap login for %q: %v", username, err)
	}

	holder := auth.NewHolder(h.Client, "")
	res := holder.Login(r.Context(), username, password)
	if !res.Success {
		return nil, "", res.Error
	}
	u := holder.User()
	return &auth.Identity{
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        auth.RoleAdmin,
		APIToken:    holder.Token(),
	}, "technitium", ""
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Sessions.Current(r)
	h.Sessions.DestroySession(w, r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	// The shared service token of directory logins must stay valid.
	if s.APIToken != h.serviceToken {
		if err := auth.NewHolder(h.Client, s.APIToken).Logout(r.Context()); err != nil {
			log.Printf("[auth] remote logout for %s: %v", s.Username, err)
		}
	}
	h.record(model.AuditEntry{Username: s.Username, Action: "logout", IPAddress: util.GetClientIP(r)})
	http.Redirect(w, r, "/login?msg=Signed+out", http.StatusSeeOther)
}

func (h *AuthHandler) PasswordPage(w http.ResponseWriter, r *http.Request) {
	data := page(r, "Change Password")
	s, _ := auth.SessionFrom(r.Context())
	data["Directory"] = s != nil && h.ldap != nil && s.APIToken == h.serviceToken
	h.render(w, data)
}

func (h *AuthHandler) PasswordSubmit(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	current := r.FormValue("current")
	next := r.FormValue("new")
	confirm := r.FormValue("confirm_new")

	const target = "/account/password"
	switch {
	case current == "" || next == "":
		invalid(w, r, target, "Current and new password are required")
		return
	case next != confirm:
		invalid(w, r, target, "The new passwords do not match")
		return
	case next == current:
		invalid(w, r, target, "The new password must differ from the current one")
		return
	}
	if s, _ := auth.SessionFrom(r.Context()); s != nil && h.ldap != nil && s.APIToken == h.serviceToken {
		invalid(w, r, target, "Directory accounts change their password in the directory")
		return
	}

	err := h.Client.ChangePassword(r.Context(), current, next)
	if err == nil {
		h.audit(r, "change_password", "", "")
	}
	h.done(w, r, target, "Password changed", err)
}
