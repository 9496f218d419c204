package handler

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"path"

	"isotope/internal/domains"
	"isotope/internal/model"
)

type LogHandler struct {
	base
}

func NewLogHandler(d Deps, tmpl *template.Template) *LogHandler {
	return &LogHandler{base: base{Deps: d, tmpl: tmpl}}
}

func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	data := page(r, "Logs")
	q := r.URL.Query().Get("q")
	data["Query"] = q

	logs, err := h.Client.ListLogs(r.Context())
	if err != nil {
		h.fail(w, r, data, "logs", err)
		return
	}
	names := make([]string, len(logs))
	for i, l := range logs {
		names[i] = l.FileName
	}
	keep := map[string]bool{}
	for _, n := range domains.Filter(names, q) {
		keep[n] = true
	}
	var shown []model.LogFile
	for _, l := range logs {
		if keep[l.FileName] {
			shown = append(shown, l)
		}
	}
	data["Logs"] = shown
	data["Total"] = len(logs)
	h.render(w, data)
}

// Download proxies the file from the DNS server so the browser never needs
// the API token.
func (h *LogHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	resp, err := h.Client.DownloadLog(r.Context(), name)
	if err != nil {
		h.done(w, r, "/logs", "", err)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.log"`, path.Base(name)))
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("[server] download log %s: %v", name, err)
	}
}

func (h *LogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if !h.confirmed(w, r, "Delete Log", fmt.Sprintf("Delete log file '%s'?", name), "/logs") {
		return
	}
	err := h.Client.DeleteLog(r.Context(), name)
	if err == nil {
		h.audit(r, "delete_log", name, "")
	}
	h.done(w, r, "/logs", fmt.Sprintf("Log '%s' deleted", name), err)
}

func (h *LogHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if !h.confirmed(w, r, "Delete All Logs", "Delete every log file on the DNS server?", "/logs") {
		return
	}
	err := h.Client.DeleteAllLogs(r.Context())
	if err == nil {
		h.audit(r, "delete_all_logs", "", "")
	}
	h.done(w, r, "/logs", "All logs deleted", err)
}
