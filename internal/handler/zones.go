package handler

import (
	"html/template"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"isotope/internal/domains"
	"isotope/internal/model"
)

var zoneTypes = []string{"Primary", "Secondary", "Stub", "Forwarder"}

type ZoneHandler struct {
	base
	records *template.Template
}

func NewZoneHandler(d Deps, zonesTmpl, recordsTmpl *template.Template) *ZoneHandler {
	return &ZoneHandler{base: base{Deps: d, tmpl: zonesTmpl}, records: recordsTmpl}
}

func (h *ZoneHandler) List(w http.ResponseWriter, r *http.Request) {
	data := page(r, "Zones")
	q := r.URL.Query().Get("q")
	data["Query"] = q
	data["ZoneTypes"] = zoneTypes

	zones, err := h.Client.ListZones(r.Context())
	if err != nil {
		h.fail(w, r, data, "zones", err)
		return
	}
	data["Total"] = len(zones)
	data["Zones"] = filterZones(zones, q)
	h.render(w, data)
}

func filterZones(zones []model.Zone, q string) []model.Zone {
	names := make([]string, len(zones))
	for i, z := range zones {
		names[i] = z.Name
	}
	keep := domains.Filter(names, q)
	if len(keep) == len(zones) {
		return zones
	}
	out := make([]model.Zone, 0, len(keep))
	for _, z := range zones {
		if slices.Contains(keep, z.Name) {
			out = append(out, z)
		}
	}
	return out
}

func (h *ZoneHandler) Create(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	zoneType := r.FormValue("type")
	if !slices.Contains(zoneTypes, zoneType) {
		zoneType = zoneTypes[0]
	}
	zone, err := domains.Validate(r.FormValue("zone"))
	if err != nil {
		invalid(w, r, "/zones", "Enter a valid zone name")
		return
	}

	created, err := h.Client.CreateZone(r.Context(), zone, zoneType)
	if err == nil {
		h.audit(r, "create_zone", created, "type="+zoneType)
	}
	h.done(w, r, "/zones", "Zone '"+zone+"' created", err)
}

func (h *ZoneHandler) Delete(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	if !h.confirmed(w, r, "Delete Zone", "Delete zone '"+zone+"' and all of its records?", "/zones") {
		return
	}
	err := h.Client.DeleteZone(r.Context(), zone)
	if err == nil {
		h.audit(r, "delete_zone", zone, "")
	}
	h.done(w, r, "/zones", "Zone '"+zone+"' deleted", err)
}

func (h *ZoneHandler) Enable(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	err := h.Client.EnableZone(r.Context(), zone)
	if err == nil {
		h.audit(r, "enable_zone", zone, "")
	}
	h.done(w, r, "/zones", "Zone '"+zone+"' enabled", err)
}

func (h *ZoneHandler) Disable(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	err := h.Client.DisableZone(r.Context(), zone)
	if err == nil {
		h.audit(r, "disable_zone", zone, "")
	}
	h.done(w, r, "/zones", "Zone '"+zone+"' disabled", err)
}

func (h *ZoneHandler) Records(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	data := page(r, zone)
	data["Zone"] = zone
	q := r.URL.Query().Get("q")
	data["Query"] = q

	records, err := h.Client.ZoneRecords(r.Context(), zone)
	if err != nil {
		h.failOn(w, r, h.records, data, "records", err)
		return
	}
	if q != "" {
		needle := strings.ToLower(q)
		kept := records[:0]
		for _, rec := range records {
			if strings.Contains(strings.ToLower(rec.Name), needle) || strings.EqualFold(rec.Type, q) {
				kept = append(kept, rec)
			}
		}
		records = kept
	}
	data["Records"] = records
	data["ZonePath"] = "/zones/" + url.PathEscape(zone)
	render(w, h.records, "layout", data)
}
