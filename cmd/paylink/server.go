package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/algox402/x402-go/facilitator"
	httpx402 "github.com/algox402/x402-go/http"
	chix402 "github.com/algox402/x402-go/http/chi"
	"github.com/algox402/x402-go/store"
)

// routerDeps are the collaborators the HTTP surface is built from.
type routerDeps struct {
	Gate     *httpx402.Gate
	Links    store.LinkStore
	Payments store.PaymentRecorder
	Content  store.ContentProvider

	// Facilitator, when set, is served at /facilitator.
	Facilitator     facilitator.Interface
	FacilitatorAuth *httpx402.FacilitatorAuth

	// MCP, when set, is served at /mcp.
	MCP http.Handler

	Registry *prometheus.Registry
	Logger   *slog.Logger
}

func newRouter(d routerDeps) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	api := &linksAPI{links: d.Links, payments: d.Payments, content: d.Content, logger: d.Logger}
	r.Mount("/api/links", api.Routes())

	if err := chix402.MountPayLinks(r, "/pay", httpx402.PayLinkConfig{
		Gate:     d.Gate,
		Links:    d.Links,
		Content:  d.Content,
		Payments: d.Payments,
		Logger:   d.Logger,
	}); err != nil {
		return nil, err
	}

	if d.Facilitator != nil {
		r.Mount("/facilitator", http.StripPrefix("/facilitator", httpx402.NewFacilitatorHandler(d.Facilitator, httpx402.FacilitatorServerConfig{
			Auth:   d.FacilitatorAuth,
			Logger: d.Logger,
		})))
	}
	if d.MCP != nil {
		r.Handle("/mcp", d.MCP)
	}
	if d.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}
	return r, nil
}
