package handler

import (
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"isotope/internal/auth"
	"isotope/internal/form"
	"isotope/internal/model"
	"isotope/internal/settings"
)

type SettingsHandler struct {
	base
}

func NewSettingsHandler(d Deps, tmpl *template.Template) *SettingsHandler {
	return &SettingsHandler{base: base{Deps: d, tmpl: tmpl}}
}

// fieldView is one input on the settings page.
type fieldView struct {
	form.Field
	Value   string
	Touched bool
	// Inactive fields are shown but not sent, because their parent
	// condition does not hold.
	Inactive bool
}

func (f fieldView) IsBool() bool   { return f.Kind == form.Bool }
func (f fieldView) IsInt() bool    { return f.Kind == form.Int }
func (f fieldView) IsList() bool   { return f.Kind == form.List }
func (f fieldView) IsChoice() bool { return f.Kind == form.Choice }

type sectionLink struct {
	Name, Title string
	Active      bool
	Dirty       bool
}

func sectionPath(name string) string { return "/settings/" + name }

func (h *SettingsHandler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, sectionPath(settings.Order[0]), http.StatusSeeOther)
}

// load fetches the settings bundle and layers the session's draft on it.
func (h *SettingsHandler) load(r *http.Request, schema *form.Schema) (*form.State, error) {
	raw, err := h.Client.Settings(r.Context())
	if err != nil {
		return nil, err
	}
	confirmed, err := form.Snapshot(schema, raw)
	if err != nil {
		return nil, err
	}
	return form.NewState(schema, confirmed, h.draft(r, schema.Name)), nil
}

func (h *SettingsHandler) draft(r *http.Request, section string) form.Overrides {
	s, _ := auth.SessionFrom(r.Context())
	return h.Sessions.Drafts().Get(s.ID, section)
}

func (h *SettingsHandler) saveDraft(r *http.Request, st *form.State) {
	s, _ := auth.SessionFrom(r.Context())
	h.Sessions.Drafts().Put(s.ID, st.Schema.Name, st.Overrides)
}

func (h *SettingsHandler) Section(w http.ResponseWriter, r *http.Request) {
	schema, ok := settings.Section(r.PathValue("section"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	data := page(r, "Settings: "+schema.Title)
	data["Section"] = schema.Name
	data["Sections"] = h.links(r, schema.Name)

	st, err := h.load(r, schema)
	if err != nil {
		h.fail(w, r, data, "settings", err)
		return
	}

	current := st.Current()
	fields := make([]fieldView, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		fields = append(fields, fieldView{
			Field:    f,
			Value:    current[f.Name],
			Touched:  st.Touched(f.Name),
			Inactive: f.When != nil && !f.When(current),
		})
	}
	data["Fields"] = fields
	data["HasChanges"] = st.HasChanges()
	data["Touched"] = st.TouchedFields()

	if schema.Name == settings.TSIG {
		keys, err := settings.ParseTSIGKeys(current["tsigKeys"])
		if err != nil && data["Error"] == "" {
			data["Error"] = err.Error()
		}
		q := r.URL.Query().Get("q")
		data["Query"] = q
		data["Keys"] = filterKeys(keys, q)
		data["Algorithms"] = settings.TSIGAlgorithms
	}
	if schema.Name == settings.Blocking {
		data["BlockingTools"] = true
	}
	h.render(w, data)
}

func filterKeys(keys []model.TSIGKey, q string) []model.TSIGKey {
	return filterBy(keys, q, func(k model.TSIGKey) []string { return []string{k.KeyName, k.AlgorithmName} })
}

func (h *SettingsHandler) links(r *http.Request, active string) []sectionLink {
	s, _ := auth.SessionFrom(r.Context())
	dirty := map[string]bool{}
	for _, name := range h.Sessions.Drafts().Sections(s.ID) {
		dirty[name] = true
	}
	out := make([]sectionLink, 0, len(settings.Order))
	for _, name := range settings.Order {
		schema, _ := settings.Section(name)
		out = append(out, sectionLink{Name: name, Title: schema.Title, Active: name == active, Dirty: dirty[name]})
	}
	return out
}

// Submit handles the three buttons of a settings form: "stage" keeps the
// edits as a draft, "save" sends the whole section, "discard" drops the
// draft.
func (h *SettingsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	schema, ok := settings.Section(r.PathValue("section"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	_ = r.ParseForm()
	back := sectionPath(schema.Name)

	if r.PostForm.Get("action") == "discard" {
		s, _ := auth.SessionFrom(r.Context())
		h.Sessions.Drafts().Discard(s.ID, schema.Name)
		http.Redirect(w, r, withParam(back, "msg", "Changes discarded"), http.StatusSeeOther)
		return
	}

	st, err := h.load(r, schema)
	if err != nil {
		h.done(w, r, back, "", err)
		return
	}
	st.Apply(r.PostForm)

	if r.PostForm.Get("action") != "save" {
		h.saveDraft(r, st)
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	h.save(w, r, st)
}

func (h *SettingsHandler) save(w http.ResponseWriter, r *http.Request, st *form.State) {
	back := sectionPath(st.Schema.Name)
	if !st.HasChanges() {
		http.Redirect(w, r, withParam(back, "msg", "No changes to save"), http.StatusSeeOther)
		return
	}
	if err := settings.Validate(st.Schema.Name, st.Current()); err != nil {
		h.saveDraft(r, st)
		invalid(w, r, back, err.Error())
		return
	}

	touched := st.TouchedFields()
	echo, err := h.Client.SetSettings(r.Context(), st.Payload())
	if err != nil {
		// Keep the edits so nothing typed is lost.
		h.saveDraft(r, st)
		h.done(w, r, back, "", err)
		return
	}

	confirmed, err := form.Snapshot(st.Schema, echo)
	if err == nil {
		st.Commit(confirmed)
	} else {
		st.Reset()
	}
	h.saveDraft(r, st)
	h.audit(r, "save_settings", st.Schema.Name, "fields="+strings.Join(touched, ","))
	h.done(w, r, back, "Settings saved", nil)
}

func (h *SettingsHandler) AddTSIGKey(w http.ResponseWriter, r *http.Request) {
	schema, _ := settings.Section(settings.TSIG)
	back := sectionPath(settings.TSIG)
	_ = r.ParseForm()

	key, err := settings.NewTSIGKey(r.FormValue("name"), r.FormValue("algorithm"), strings.TrimSpace(r.FormValue("secret")))
	if err != nil {
		invalid(w, r, back, err.Error())
		return
	}
	st, err := h.load(r, schema)
	if err != nil {
		h.done(w, r, back, "", err)
		return
	}
	keys, err := settings.AddTSIGKey(st.Value("tsigKeys"), key)
	if err != nil {
		invalid(w, r, back, err.Error())
		return
	}
	_ = st.Set("tsigKeys", keys)
	h.saveDraft(r, st)
	http.Redirect(w, r, withParam(back, "msg", "Key '"+key.KeyName+"' added. Save to apply."), http.StatusSeeOther)
}

func (h *SettingsHandler) DeleteTSIGKey(w http.ResponseWriter, r *http.Request) {
	schema, _ := settings.Section(settings.TSIG)
	back := sectionPath(settings.TSIG)
	_ = r.ParseForm()
	name := r.FormValue("name")
	if !h.confirmed(w, r, "Delete TSIG Key", "Remove key '"+name+"'? Zone transfers using it will fail once saved.", back) {
		return
	}

	st, err := h.load(r, schema)
	if err != nil {
		h.done(w, r, back, "", err)
		return
	}
	keys, found, err := settings.RemoveTSIGKey(st.Value("tsigKeys"), name)
	if err != nil {
		invalid(w, r, back, err.Error())
		return
	}
	if !found {
		invalid(w, r, back, "No key named '"+name+"'")
		return
	}
	_ = st.Set("tsigKeys", keys)
	h.saveDraft(r, st)
	http.Redirect(w, r, withParam(back, "msg", "Key '"+name+"' removed. Save to apply."), http.StatusSeeOther)
}

func (h *SettingsHandler) UpdateBlockLists(w http.ResponseWriter, r *http.Request) {
	err := h.Client.ForceUpdateBlockLists(r.Context())
	if err == nil {
		h.audit(r, "update_block_lists", "", "")
	}
	h.done(w, r, sectionPath(settings.Blocking), "Block list update started", err)
}

func (h *SettingsHandler) DisableBlocking(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	back := sectionPath(settings.Blocking)
	minutes, err := strconv.Atoi(strings.TrimSpace(r.FormValue("minutes")))
	if err != nil || minutes < 1 {
		invalid(w, r, back, "Enter the number of minutes to disable blocking for")
		return
	}
	err = h.Client.TemporaryDisableBlocking(r.Context(), minutes)
	if err == nil {
		h.audit(r, "disable_blocking", "", strconv.Itoa(minutes)+"m")
	}
	h.done(w, r, back, "Blocking disabled for "+strconv.Itoa(minutes)+" minute(s)", err)
}
