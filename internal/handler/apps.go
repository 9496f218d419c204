package handler

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"isotope/internal/model"
)

type AppHandler struct {
	base
	config *template.Template
}

func NewAppHandler(d Deps, appsTmpl, configTmpl *template.Template) *AppHandler {
	return &AppHandler{base: base{Deps: d, tmpl: appsTmpl}, config: configTmpl}
}

// List loads installed and store apps concurrently and fails if either
// call fails.
func (h *AppHandler) List(w http.ResponseWriter, r *http.Request) {
	data := page(r, "Apps")
	q := r.URL.Query().Get("q")
	data["Query"] = q

	var (
		installed []model.App
		store     []model.StoreApp
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		installed, err = h.Client.ListApps(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		store, err = h.Client.ListStoreApps(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(w, r, data, "apps", err)
		return
	}

	data["Installed"] = filterInstalled(installed, q)
	data["Store"] = filterStore(store, q)
	h.render(w, data)
}

func filterInstalled(apps []model.App, q string) []model.App {
	return filterBy(apps, q, func(a model.App) []string { return []string{a.Name} })
}

func filterStore(apps []model.StoreApp, q string) []model.StoreApp {
	return filterBy(apps, q, func(a model.StoreApp) []string { return []string{a.Name, a.Description} })
}

func (h *AppHandler) Install(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	name, source := r.FormValue("name"), r.FormValue("url")
	if name == "" || source == "" {
		invalid(w, r, "/apps", "App name and download URL are required")
		return
	}
	err := h.Client.InstallApp(r.Context(), name, source)
	if err == nil {
		h.audit(r, "install_app", name, source)
	}
	h.done(w, r, "/apps", fmt.Sprintf("App '%s' installed", name), err)
}

func (h *AppHandler) Update(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	name, source := r.FormValue("name"), r.FormValue("url")
	if name == "" || source == "" {
		invalid(w, r, "/apps", "App name and download URL are required")
		return
	}
	err := h.Client.UpdateApp(r.Context(), name, source)
	if err == nil {
		h.audit(r, "update_app", name, source)
	}
	h.done(w, r, "/apps", fmt.Sprintf("App '%s' updated", name), err)
}

func (h *AppHandler) Uninstall(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	name := r.FormValue("name")
	if name == "" {
		invalid(w, r, "/apps", "No app selected")
		return
	}
	if !h.confirmed(w, r, "Uninstall App", fmt.Sprintf("Uninstall '%s'? Its configuration is deleted too.", name), "/apps") {
		return
	}
	err := h.Client.UninstallApp(r.Context(), name)
	if err == nil {
		h.audit(r, "uninstall_app", name, "")
	}
	h.done(w, r, "/apps", fmt.Sprintf("App '%s' uninstalled", name), err)
}

func (h *AppHandler) ConfigPage(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	data := page(r, "App Config: "+name)
	data["Name"] = name

	cfg, err := h.Client.AppConfig(r.Context(), name)
	if err != nil {
		h.failOn(w, r, h.config, data, "app config", err)
		return
	}
	data["Config"] = cfg
	render(w, h.config, "layout", data)
}

// ConfigSave stores the text as-is. No JSON validation happens here; the
// app itself decides what its configuration means.
func (h *AppHandler) ConfigSave(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	name := r.FormValue("name")
	back := "/apps/config?name=" + url.QueryEscape(name)
	if name == "" {
		invalid(w, r, "/apps", "No app selected")
		return
	}
	err := h.Client.SetAppConfig(r.Context(), name, r.FormValue("config"))
	if err == nil {
		h.audit(r, "set_app_config", name, "")
	}
	h.done(w, r, back, "Configuration saved", err)
}
