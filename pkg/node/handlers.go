package node

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ryandielhenn/lanparty/internal/telemetry"
)

// Routes returns the HTTP control and inspection API.
func (n *Node) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/healthz", telemetry.Instrument("healthz", http.HandlerFunc(n.Healthz)))
	r.Method(http.MethodGet, "/info", telemetry.Instrument("info", http.HandlerFunc(n.Info)))
	r.Method(http.MethodGet, "/metrics", telemetry.MetricsHandler())

	r.Route("/party", func(r chi.Router) {
		r.Method(http.MethodPost, "/join", telemetry.Instrument("join", http.HandlerFunc(n.Join)))
		r.Method(http.MethodPost, "/leave", telemetry.Instrument("leave", http.HandlerFunc(n.Leave)))
		r.Method(http.MethodPost, "/skip", telemetry.Instrument("skip", http.HandlerFunc(n.SkipCountdown)))
		r.Method(http.MethodPost, "/discover", telemetry.Instrument("discover", http.HandlerFunc(n.Discover)))
	})
	return r
}

// Healthz returns 200 OK to indicate the node is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Info writes the node status as JSON.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	n.writeStatus(w)
}

func (n *Node) Join(w http.ResponseWriter, _ *http.Request) {
	n.g.JoinParty()
	n.writeStatus(w)
}

func (n *Node) Leave(w http.ResponseWriter, _ *http.Request) {
	n.g.LeaveParty()
	n.writeStatus(w)
}

func (n *Node) SkipCountdown(w http.ResponseWriter, _ *http.Request) {
	if !n.g.IsInParty() {
		http.Error(w, "not in a party", http.StatusConflict)
		return
	}
	n.Skip()
	n.writeStatus(w)
}

func (n *Node) Discover(w http.ResponseWriter, _ *http.Request) {
	n.g.BroadcastDiscoveryMessage()
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) writeStatus(w http.ResponseWriter) {
	data, err := json.Marshal(n.Status())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
