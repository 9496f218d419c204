package handler

import (
	"html/template"
	"net/http"

	"golang.org/x/sync/errgroup"

	"isotope/internal/model"
)

type DHCPHandler struct {
	base
}

func NewDHCPHandler(d Deps, tmpl *template.Template) *DHCPHandler {
	return &DHCPHandler{base: base{Deps: d, tmpl: tmpl}}
}

// List shows scopes and leases, fetched together.
func (h *DHCPHandler) List(w http.ResponseWriter, r *http.Request) {
	data := page(r, "DHCP")

	var (
		scopes []model.DHCPScope
		leases []model.DHCPLease
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		scopes, err = h.Client.ListDHCPScopes(ctx)
		return err
	})
	g.Go(func() (err error) {
		leases, err = h.Client.ListDHCPLeases(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(w, r, data, "DHCP", err)
		return
	}
	data["Scopes"] = scopes
	data["Leases"] = leases
	h.render(w, data)
}

type ClusterHandler struct {
	base
}

func NewClusterHandler(d Deps, tmpl *template.Template) *ClusterHandler {
	return &ClusterHandler{base: base{Deps: d, tmpl: tmpl}}
}

func (h *ClusterHandler) State(w http.ResponseWriter, r *http.Request) {
	data := page(r, "Cluster")
	state, err := h.Client.ClusterState(r.Context())
	if err != nil {
		h.fail(w, r, data, "cluster state", err)
		return
	}
	data["Cluster"] = state
	h.render(w, data)
}
