// Package server wires configuration, storage, the DNS server client and
// the page handlers into one HTTP server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"isotope/internal/auth"
	"isotope/internal/config"
	"isotope/internal/database"
	"isotope/internal/handler"
	"isotope/internal/technitium"
	"isotope/web"
)

const sweepInterval = time.Minute

// Store is what the console persists: signed sessions and the audit log.
type Store interface {
	auth.Store
	handler.AuditLog
}

func mustParseTemplates(fsys fs.FS, funcMap template.FuncMap, files ...string) *template.Template {
	tmpl := template.New("").Funcs(funcMap)
	tmpl, err := tmpl.ParseFS(fsys, files...)
	if err != nil {
		log.Fatalf("Failed to parse templates %v: %v", files, err)
	}
	return tmpl
}

func funcMap(version string) template.FuncMap {
	return template.FuncMap{
		"add":        func(a, b int) int { return a + b },
		"subtract":   func(a, b int) int { return a - b },
		"version":    func() string { return version },
		"formatDate": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
		"join":       strings.Join,
		"rdata":      func(b json.RawMessage) string { return string(b) },
	}
}

// NewClient builds the DNS server client from configuration.
func NewClient(cfg config.TechnitiumConfig, m *technitium.Metrics) *technitium.Client {
	opts := []technitium.Option{technitium.WithTimeout(cfg.Timeout), technitium.WithMetrics(m)}
	if cfg.SkipVerify {
		opts = append(opts, technitium.WithInsecureTLS())
	}
	return technitium.New(cfg.URL, opts...)
}

// OpenStore connects to Postgres when a DSN is configured and falls back
// to process memory otherwise.
func OpenStore(cfg config.DatabaseConfig) (Store, func() error, error) {
	if cfg.DSN == "" {
		log.Println("[database] no DSN configured, keeping sessions and audit log in memory")
		return database.NewMemory(database.DefaultAuditCapacity), func() error { return nil }, nil
	}
	db, err := database.Open(cfg.DSN, web.MigrationsFS())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, db.Close, nil
}

// App is an assembled console.
type App struct {
	Handler  http.Handler
	Sessions *auth.SessionManager
}

// New builds the routes. reg receives the console's own metrics; the
// metrics endpoint is mounted when cfg says so.
func New(cfg *config.Config, version string, client *technitium.Client, store Store, reg *prometheus.Registry) (*App, error) {
	sessionMgr, err := auth.NewSessionManager(store, client, auth.Options{
		MaxAge:         cfg.Session.MaxAge,
		VerifyInterval: cfg.Session.VerifyInterval,
		SecureCookies:  cfg.Server.SecureCookies,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init session manager: %w", err)
	}
	_ = store.PurgeExpiredSessions()

	tmplFS := web.TemplateFS()
	fm := funcMap(version)
	page := func(name string) *template.Template {
		return mustParseTemplates(tmplFS, fm, "templates/layout.html", "templates/"+name+".html")
	}

	var ldapClient *auth.LDAPClient
	if cfg.LDAP.Enabled {
		ldapClient = auth.NewLDAPClient(cfg.LDAP)
		log.Println("LDAP authentication enabled")
		log.Printf("LDAP server: %s", cfg.LDAP.URL)
		log.Printf("LDAP groups mapped: %d role(s)", len(cfg.LDAP.GroupMapping))
	}

	deps := handler.Deps{
		Client:   client,
		Sessions: sessionMgr,
		Audit:    store,
		Confirm:  page("confirm"),
	}

	authH := handler.NewAuthHandler(deps, ldapClient, cfg.Technitium.APIToken,
		mustParseTemplates(tmplFS, fm, "templates/login.html"), page("password"))
	dashH := handler.NewDashboardHandler(deps, page("dashboard"))
	zoneH := handler.NewZoneHandler(deps, page("zones"), page("records"))
	cacheH := handler.NewCacheHandler(deps, page("cache"))
	domainsTmpl := page("domains")
	blockedH := handler.NewListHandler(deps, technitium.Blocked, domainsTmpl)
	allowedH := handler.NewListHandler(deps, technitium.Allowed, domainsTmpl)
	appH := handler.NewAppHandler(deps, page("apps"), page("app_config"))
	settingsH := handler.NewSettingsHandler(deps, page("settings"))
	logH := handler.NewLogHandler(deps, page("logs"))
	dhcpH := handler.NewDHCPHandler(deps, page("dhcp"))
	clusterH := handler.NewClusterHandler(deps, page("cluster"))
	adminH := handler.NewAdminHandler(deps, handler.AdminTemplates{
		Users:       page("admin_users"),
		Sessions:    page("admin_sessions"),
		Groups:      page("admin_groups"),
		Permissions: page("admin_permissions"),
		Audit:       page("admin_audit"),
	})

	authed := sessionMgr.RequireAuth
	post := func(h http.HandlerFunc) http.HandlerFunc {
		return sessionMgr.RequireAuth(sessionMgr.ValidateCSRF(h))
	}
	admin := sessionMgr.RequireAdmin
	adminPost := func(h http.HandlerFunc) http.HandlerFunc {
		return sessionMgr.RequireAdmin(sessionMgr.ValidateCSRF(h))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /static/", web.StaticHandler())
	if cfg.Metrics.On() {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /login", authH.LoginPage)
	mux.HandleFunc("POST /login", authH.LoginSubmit)
	mux.HandleFunc("POST /logout", authH.Logout)
	mux.HandleFunc("GET /account/password", authed(authH.PasswordPage))
	mux.HandleFunc("POST /account/password", post(authH.PasswordSubmit))

	mux.HandleFunc("GET /dashboard", authed(dashH.Page))
	mux.HandleFunc("GET /dashboard/ws", authed(dashH.Stream))

	mux.HandleFunc("GET /zones", authed(zoneH.List))
	mux.HandleFunc("POST /zones/create", post(zoneH.Create))
	mux.HandleFunc("POST /zones/{zone}/delete", post(zoneH.Delete))
	mux.HandleFunc("POST /zones/{zone}/enable", post(zoneH.Enable))
	mux.HandleFunc("POST /zones/{zone}/disable", post(zoneH.Disable))
	mux.HandleFunc("GET /zones/{zone}/records", authed(zoneH.Records))

	mux.HandleFunc("GET /cache", authed(cacheH.Browse))
	mux.HandleFunc("POST /cache/delete", post(cacheH.Delete))
	mux.HandleFunc("POST /cache/flush", post(cacheH.Flush))

	for _, lh := range []*handler.ListHandler{blockedH, allowedH} {
		root := lh.Root()
		mux.HandleFunc("GET "+root, authed(lh.Browse))
		mux.HandleFunc("POST "+root+"/add", post(lh.Add))
		mux.HandleFunc("POST "+root+"/delete", post(lh.Delete))
		mux.HandleFunc("POST "+root+"/flush", post(lh.Flush))
		mux.HandleFunc("POST "+root+"/import", handler.LimitUpload(post(lh.Import)))
		mux.HandleFunc("GET "+root+"/export", authed(lh.Export))
	}

	mux.HandleFunc("GET /apps", authed(appH.List))
	mux.HandleFunc("POST /apps/install", post(appH.Install))
	mux.HandleFunc("POST /apps/update", post(appH.Update))
	mux.HandleFunc("POST /apps/uninstall", post(appH.Uninstall))
	mux.HandleFunc("GET /apps/config", authed(appH.ConfigPage))
	mux.HandleFunc("POST /apps/config", post(appH.ConfigSave))

	mux.HandleFunc("GET /settings", authed(settingsH.Index))
	mux.HandleFunc("GET /settings/{section}", authed(settingsH.Section))
	mux.HandleFunc("POST /settings/{section}", post(settingsH.Submit))
	mux.HandleFunc("POST /settings/tsig/keys/add", post(settingsH.AddTSIGKey))
	mux.HandleFunc("POST /settings/tsig/keys/delete", post(settingsH.DeleteTSIGKey))
	mux.HandleFunc("POST /settings/blocking/update-lists", post(settingsH.UpdateBlockLists))
	mux.HandleFunc("POST /settings/blocking/disable", post(settingsH.DisableBlocking))

	mux.HandleFunc("GET /logs", authed(logH.List))
	mux.HandleFunc("GET /logs/{file}", authed(logH.Download))
	mux.HandleFunc("POST /logs/{file}/delete", post(logH.Delete))
	mux.HandleFunc("POST /logs/delete-all", post(logH.DeleteAll))
	mux.HandleFunc("GET /dhcp", authed(dhcpH.List))
	mux.HandleFunc("GET /cluster", authed(clusterH.State))

	mux.HandleFunc("GET /admin/users", admin(adminH.ListUsers))
	mux.HandleFunc("POST /admin/users/create", adminPost(adminH.CreateUser))
	mux.HandleFunc("POST /admin/users/disabled", adminPost(adminH.SetUserDisabled))
	mux.HandleFunc("POST /admin/users/delete", adminPost(adminH.DeleteUser))
	mux.HandleFunc("GET /admin/sessions", admin(adminH.ListSessions))
	mux.HandleFunc("POST /admin/sessions/delete", adminPost(adminH.DeleteSession))
	mux.HandleFunc("GET /admin/groups", admin(adminH.ListGroups))
	mux.HandleFunc("POST /admin/groups/create", adminPost(adminH.CreateGroup))
	mux.HandleFunc("POST /admin/groups/delete", adminPost(adminH.DeleteGroup))
	mux.HandleFunc("GET /admin/permissions", admin(adminH.ListPermissions))
	mux.HandleFunc("GET /admin/audit", admin(adminH.AuditLog))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "isotope_http_requests_total",
		Help: "Console HTTP requests by status code and method",
	}, []string{"code", "method"})
	reg.MustRegister(requests)

	return &App{
		Handler:  promhttp.InstrumentHandlerCounter(requests, mux),
		Sessions: sessionMgr,
	}, nil
}

// Start runs the console until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, version string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	client := NewClient(cfg.Technitium, technitium.NewMetrics(reg))

	store, closeStore, err := OpenStore(cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	app, err := New(cfg, version, client, store, reg)
	if err != nil {
		return err
	}
	defer app.Sessions.Close()
	go app.Sessions.Run(ctx, sweepInterval)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Isotope console starting on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
