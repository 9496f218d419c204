package handler

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"isotope/internal/domains"
)

type CacheHandler struct {
	base
}

func NewCacheHandler(d Deps, tmpl *template.Template) *CacheHandler {
	return &CacheHandler{base: base{Deps: d, tmpl: tmpl}}
}

func (h *CacheHandler) Browse(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	q := r.URL.Query().Get("q")
	data := page(r, "Cache")
	data["Domain"] = domain
	data["Query"] = q
	data["Parents"] = parents(domain)

	tree, err := h.Client.ListCache(r.Context(), domain)
	if err != nil {
		h.fail(w, r, data, "cache", err)
		return
	}
	data["Total"] = len(tree.Zones)
	data["Zones"] = domains.Filter(tree.Zones, q)
	data["Records"] = tree.Records
	h.render(w, data)
}

func (h *CacheHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	domain := r.FormValue("domain")
	back := "/cache"
	if parent := r.FormValue("parent"); parent != "" {
		back += "?domain=" + url.QueryEscape(parent)
	}
	if domain == "" {
		invalid(w, r, back, "No domain selected")
		return
	}
	if !h.confirmed(w, r, "Delete Cached Domain", fmt.Sprintf("Remove '%s' and its subdomains from the cache?", domain), back) {
		return
	}
	err := h.Client.DeleteCached(r.Context(), domain)
	if err == nil {
		h.audit(r, "delete_cache", domain, "")
	}
	h.done(w, r, back, fmt.Sprintf("'%s' removed from cache", domain), err)
}

func (h *CacheHandler) Flush(w http.ResponseWriter, r *http.Request) {
	if !h.confirmed(w, r, "Flush Cache", "Remove every entry from the DNS cache?", "/cache") {
		return
	}
	err := h.Client.FlushCache(r.Context())
	if err == nil {
		h.audit(r, "flush_cache", "", "")
	}
	h.done(w, r, "/cache", "Cache flushed", err)
}
