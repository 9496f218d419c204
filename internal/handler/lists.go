package handler

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"isotope/internal/domains"
	"isotope/internal/technitium"
)

const maxImportSize = 32 << 20

// LimitUpload caps the request body of an import and parses it before
// anything else reads the form, CSRF validation included.
func LimitUpload(next http.HandlerFunc) http.HandlerFunc {
	return limitBody(maxImportSize, next)
}

func limitBody(limit int64, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		err := r.ParseForm()
		if err == nil {
			err = r.ParseMultipartForm(limit)
		}
		if err != nil && !errors.Is(err, http.ErrNotMultipart) {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		next(w, r)
	}
}

// ListHandler serves one of the blocked and allowed domain lists.
type ListHandler struct {
	base
	kind  technitium.ListKind
	title string
}

func NewListHandler(d Deps, kind technitium.ListKind, tmpl *template.Template) *ListHandler {
	title := "Blocked Domains"
	if kind == technitium.Allowed {
		title = "Allowed Domains"
	}
	return &ListHandler{base: base{Deps: d, tmpl: tmpl}, kind: kind, title: title}
}

// Root is the list's page path, "/blocked" or "/allowed".
func (h *ListHandler) Root() string { return "/" + string(h.kind) }

// back returns to the level the form was posted from.
func (h *ListHandler) back(r *http.Request) string {
	if parent := r.FormValue("parent"); parent != "" {
		return h.Root() + "?domain=" + url.QueryEscape(parent)
	}
	return h.Root()
}

func (h *ListHandler) Browse(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	q := r.URL.Query().Get("q")
	data := page(r, h.title)
	data["Kind"] = string(h.kind)
	data["Root"] = h.Root()
	data["Domain"] = domain
	data["Query"] = q
	data["Parents"] = parents(domain)

	tree, err := h.Client.ListDomains(r.Context(), h.kind, domain)
	if err != nil {
		h.fail(w, r, data, strings.ToLower(h.title), err)
		return
	}
	data["Total"] = len(tree.Zones)
	data["Zones"] = domains.Filter(tree.Zones, q)
	data["Records"] = tree.Records
	h.render(w, data)
}

// parents lists the ancestors of domain from the top, for breadcrumbs.
func parents(domain string) []string {
	if domain == "" {
		return nil
	}
	labels := strings.Split(domain, ".")
	out := make([]string, 0, len(labels))
	for i := len(labels) - 1; i >= 0; i-- {
		out = append(out, strings.Join(labels[i:], "."))
	}
	return out
}

func (h *ListHandler) Add(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	domain := strings.TrimSpace(r.FormValue("domain"))
	if domain == "" {
		invalid(w, r, h.back(r), "Enter a domain")
		return
	}
	err := h.Client.AddDomain(r.Context(), h.kind, domain)
	if err == nil {
		h.audit(r, "add_"+string(h.kind), domain, "")
	}
	h.done(w, r, h.back(r), fmt.Sprintf("'%s' added", domain), err)
}

func (h *ListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	domain := r.FormValue("domain")
	if domain == "" {
		invalid(w, r, h.back(r), "No domain selected")
		return
	}
	if !h.confirmed(w, r, "Delete Domain", fmt.Sprintf("Remove '%s' from the %s list?", domain, h.kind), h.back(r)) {
		return
	}
	err := h.Client.DeleteDomain(r.Context(), h.kind, domain)
	if err == nil {
		h.audit(r, "delete_"+string(h.kind), domain, "")
	}
	h.done(w, r, h.back(r), fmt.Sprintf("'%s' removed", domain), err)
}

func (h *ListHandler) Flush(w http.ResponseWriter, r *http.Request) {
	if !h.confirmed(w, r, "Flush List", fmt.Sprintf("Remove every domain from the %s list?", h.kind), h.Root()) {
		return
	}
	err := h.Client.FlushDomains(r.Context(), h.kind)
	if err == nil {
		h.audit(r, "flush_"+string(h.kind), "", "")
	}
	h.done(w, r, h.Root(), "List flushed", err)
}

// Import takes pasted text or an uploaded .txt or .xlsx file and submits
// the entries as one bulk add.
func (h *ListHandler) Import(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		invalid(w, r, h.Root(), "Could not read the upload: "+err.Error())
		return
	}

	var entries []string
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		entries, err = readUpload(file, header)
		if err != nil {
			invalid(w, r, h.Root(), "Could not read "+header.Filename+": "+err.Error())
			return
		}
	default:
		entries = domains.ParseImport(r.FormValue("domains"))
	}
	if len(entries) == 0 {
		invalid(w, r, h.Root(), "Nothing to import")
		return
	}

	err = h.Client.ImportDomains(r.Context(), h.kind, entries)
	if err == nil {
		h.audit(r, "import_"+string(h.kind), "", fmt.Sprintf("%d domain(s)", len(entries)))
	}
	h.done(w, r, h.Root(), fmt.Sprintf("Imported %d domain(s)", len(entries)), err)
}

func readUpload(f multipart.File, header *multipart.FileHeader) ([]string, error) {
	if strings.EqualFold(path.Ext(header.Filename), ".xlsx") {
		return domains.ParseXLSX(f)
	}
	return domains.ReadImport(f)
}

// Export downloads the list as text, or as a workbook with format=xlsx.
func (h *ListHandler) Export(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Client.ExportDomains(r.Context(), h.kind)
	if err != nil {
		h.done(w, r, h.Root(), "", err)
		return
	}
	defer resp.Body.Close()

	name := string(h.kind) + "-domains"
	if r.URL.Query().Get("format") != "xlsx" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.txt"`)
		if _, err := io.Copy(w, resp.Body); err != nil {
			log.Printf("[server] export %s: %v", h.kind, err)
		}
		return
	}

	entries, err := domains.ReadImport(resp.Body)
	if err != nil {
		h.done(w, r, h.Root(), "", err)
		return
	}
	w.Header().Set("Content-Type", domains.XLSXContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.xlsx"`)
	if err := domains.WriteXLSX(w, h.title, entries); err != nil {
		log.Printf("[server] export %s workbook: %v", h.kind, err)
	}
}
