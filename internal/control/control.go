// Package control implements the broker's operator-facing HTTP surface:
// invoker status, submission results, forced invoker removal, and metrics.
package control

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/summer-54/invoker-manager/internal/broker"
)

// InvokerDeleter performs forced invoker removal; cmd/invokerd passes the
// invoker pool, which forwards to the broker. The status endpoints read
// the broker directly.
type InvokerDeleter interface {
	DeleteInvoker(id uuid.UUID) error
}

// Surface is the control-plane HTTP handler.
type Surface struct {
	broker  *broker.Broker
	invoker InvokerDeleter
}

// New builds a Surface over b, dispatching deletions through invoker.
func New(b *broker.Broker, invoker InvokerDeleter) *Surface {
	return &Surface{broker: b, invoker: invoker}
}

// Router returns the chi router implementing the control-panel routes.
func (s *Surface) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/control-panel/invokers-status", s.invokersStatus)
	r.Get("/control-panel/tests-results", s.testsResults)
	r.Delete("/control-panel/invokers/{uuid}", s.deleteInvoker)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Surface) invokersStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.broker.InvokersSnapshot())
}

func (s *Surface) testsResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.broker.ResultsSnapshot())
}

// deleteInvoker returns HTTP 200 with a plain-text body in every case,
// including a malformed uuid: legacy behaviour carried over unchanged.
func (s *Surface) deleteInvoker(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "uuid")
	id, err := uuid.Parse(raw)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("invalid uuid: " + err.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := s.invoker.DeleteInvoker(id); err != nil {
		w.Write([]byte(err.Error()))
		return
	}
	w.Write([]byte("Succes"))
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
