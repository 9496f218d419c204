package handler

import (
	"context"
	"html/template"
	"log"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"isotope/internal/auth"
	"isotope/internal/fetch"
	"isotope/internal/model"
	"isotope/internal/technitium"
)

const statsRefresh = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type DashboardHandler struct {
	base
	refresh time.Duration
}

func NewDashboardHandler(d Deps, tmpl *template.Template) *DashboardHandler {
	return &DashboardHandler{base: base{Deps: d, tmpl: tmpl}, refresh: statsRefresh}
}

func statsRange(v string) string {
	if slices.Contains(technitium.StatsRanges, v) {
		return v
	}
	return technitium.StatsRanges[0]
}

func (h *DashboardHandler) Page(w http.ResponseWriter, r *http.Request) {
	rng := statsRange(r.URL.Query().Get("range"))
	data := page(r, "Dashboard")
	data["Range"] = rng
	data["Ranges"] = technitium.StatsRanges

	st := fetch.Once[statsPayload](r.Context(), fetch.Call(h.Client, technitium.StatsEndpoint, technitium.StatsParams(rng)))
	if st.Err != nil {
		h.fail(w, r, data, "statistics", st.Err)
		return
	}
	data["Stats"] = st.Data.Stats
	h.render(w, data)
}

type statsPayload struct {
	Stats model.Stats `json:"stats"`
}

// streamMessage is one frame pushed to the dashboard.
type streamMessage struct {
	Range   string       `json:"range"`
	Loading bool         `json:"loading"`
	Stats   *model.Stats `json:"stats,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Stream pushes statistics over a websocket. The browser sends a range name
// to switch ranges. The stream ends when the browser goes away or the DNS
// server rejects the session's token.
func (h *DashboardHandler) Stream(w http.ResponseWriter, r *http.Request) {
	s, ok := auth.SessionFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	holder := auth.NewHolder(h.Client, s.APIToken)
	unsubscribe := holder.Subscribe()
	defer unsubscribe()

	var current atomic.Value
	current.Store(statsRange(r.URL.Query().Get("range")))
	hook := fetch.New[statsPayload](func(ctx context.Context) (*technitium.Envelope, error) {
		return h.Client.Call(ctx, technitium.StatsEndpoint, technitium.StatsParams(current.Load().(string)))
	})
	defer hook.Close()

	ranges := make(chan string)
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case ranges <- statsRange(string(msg)):
			case <-r.Context().Done():
				return
			}
		}
	}()

	ctx := r.Context()
	ticker := time.NewTicker(h.refresh)
	defer ticker.Stop()

	st := hook.Watch(ctx, current.Load())
	for {
		if err := conn.WriteJSON(frame(current.Load().(string), st)); err != nil {
			return
		}
		select {
		case rng := <-ranges:
			current.Store(rng)
			st = hook.Watch(ctx, rng)
		case <-ticker.C:
			st = hook.Refetch(ctx)
		case <-holder.Invalidated():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired"))
			return
		case <-gone:
			return
		case <-ctx.Done():
			return
		}
	}
}

func frame(rng string, st fetch.State[statsPayload]) streamMessage {
	m := streamMessage{Range: rng, Loading: st.IsLoading, Error: st.ErrorMessage()}
	if st.Data != nil {
		m.Stats = &st.Data.Stats
	}
	return m
}
