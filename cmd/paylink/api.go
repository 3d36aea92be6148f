package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/store"
	"github.com/algox402/x402-go/validation"
)

// maxUploadSize bounds multipart link uploads.
const maxUploadSize = 100 << 20

// linksAPI serves the creator-facing /api/links endpoints.
type linksAPI struct {
	links    store.LinkStore
	payments store.PaymentRecorder
	content  store.ContentProvider
	logger   *slog.Logger
}

// linkResponse is a link as returned by the API, with its earnings when the
// payments were loaded.
type linkResponse struct {
	ID            string            `json:"id"`
	CreatorWallet string            `json:"creatorWallet"`
	ContentType   store.ContentType `json:"contentType"`
	ContentPath   string            `json:"contentPath,omitempty"`
	Price         string            `json:"price"`
	Network       string            `json:"network"`
	CreatedAt     time.Time         `json:"createdAt"`
	TotalEarnings string            `json:"totalEarnings,omitempty"`
	PaymentCount  *int              `json:"paymentCount,omitempty"`
}

type paymentResponse struct {
	ID           string    `json:"id"`
	PayerAddress string    `json:"payerAddress"`
	Amount       string    `json:"amount"`
	TxnID        string    `json:"txnId"`
	TxnGroupID   string    `json:"txnGroupId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type analyticsResponse struct {
	Link      linkResponse          `json:"link"`
	Stats     statsResponse         `json:"stats"`
	Payments  []paymentResponse     `json:"payments"`
	ChartData []store.DailyEarnings `json:"chartData"`
}

type statsResponse struct {
	TotalEarnings  string `json:"totalEarnings"`
	PaymentCount   int    `json:"paymentCount"`
	AveragePayment string `json:"averagePayment"`
}

func toLinkResponse(l *store.Link) linkResponse {
	return linkResponse{
		ID:            l.ID,
		CreatorWallet: l.CreatorWallet,
		ContentType:   l.ContentType,
		ContentPath:   l.ContentPath,
		Price:         l.Price.String(),
		Network:       l.Network,
		CreatedAt:     l.CreatedAt,
	}
}

func toPaymentResponses(payments []store.PaymentRecord) []paymentResponse {
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentResponse{
			ID:           p.ID,
			PayerAddress: p.PayerAddress,
			Amount:       p.Amount.String(),
			TxnID:        p.TxnID,
			TxnGroupID:   p.TxnGroupID,
			Timestamp:    p.Timestamp,
		})
	}
	return out
}

// Routes mounts the API on a chi router.
func (a *linksAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", a.createLink)
	r.Get("/", a.listLinks)
	r.Route("/{linkId}", func(r chi.Router) {
		r.Get("/", a.getLink)
		r.Get("/payments", a.listPayments)
		r.Get("/analytics", a.analytics)
	})
	return r
}

func (a *linksAPI) createLink(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	wallet := r.FormValue("wallet")
	price := r.FormValue("price")
	contentType := store.ContentType(r.FormValue("contentType"))
	if wallet == "" || price == "" || contentType == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: wallet, price, contentType")
		return
	}
	if !validation.IsAddress(wallet) {
		writeError(w, http.StatusBadRequest, "Invalid Algorand wallet address")
		return
	}
	if contentType != store.ContentFile && contentType != store.ContentURL {
		writeError(w, http.StatusBadRequest, "contentType must be either 'FILE' or 'URL'")
		return
	}
	amount, err := decimal.NewFromString(price)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Price must be a positive number")
		return
	}
	network := r.FormValue("network")
	if network == "" {
		network = x402.NetworkAlgorandTestnet
	}
	chain, err := x402.Chain(network)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Network must be one of: algorand, algorand-testnet")
		return
	}

	link := &store.Link{
		CreatorWallet: wallet,
		ContentType:   contentType,
		Price:         amount,
		Network:       network,
		AssetID:       chain.USDC.ID,
		Decimals:      chain.USDC.Decimals,
	}

	switch contentType {
	case store.ContentFile:
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "File is required for FILE type")
			return
		}
		defer file.Close()
		handle, err := a.content.Save(r.Context(), header.Filename, file)
		if err != nil {
			a.logger.Error("failed to save upload", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		link.ContentPath = handle
	case store.ContentURL:
		raw := r.FormValue("url")
		if raw == "" {
			writeError(w, http.StatusBadRequest, "URL is required for URL type")
			return
		}
		if u, err := url.ParseRequestURI(raw); err != nil || u.Scheme == "" || u.Host == "" {
			writeError(w, http.StatusBadRequest, "Invalid URL format")
			return
		}
		link.ContentPath = raw
	}

	if err := validation.Struct(link); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.links.CreateLink(r.Context(), link); err != nil {
		a.logger.Error("failed to create link", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	a.logger.Info("link created", "link", link.ID, "wallet", wallet, "network", network, "price", link.Price.String())
	resp := toLinkResponse(link)
	resp.ContentPath = ""
	writeJSON(w, http.StatusCreated, resp)
}

func (a *linksAPI) listLinks(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter is required")
		return
	}
	if !validation.IsAddress(wallet) {
		writeError(w, http.StatusBadRequest, "Invalid Algorand wallet address")
		return
	}

	links, err := a.links.ListLinks(r.Context(), wallet)
	if err != nil {
		a.logger.Error("failed to list links", "wallet", wallet, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	out := make([]linkResponse, 0, len(links))
	for i := range links {
		resp, err := a.withEarnings(r, &links[i])
		if err != nil {
			a.logger.Error("failed to load payments", "link", links[i].ID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *linksAPI) getLink(w http.ResponseWriter, r *http.Request) {
	link, ok := a.loadLink(w, r)
	if !ok {
		return
	}
	resp, err := a.withEarnings(r, link)
	if err != nil {
		a.logger.Error("failed to load payments", "link", link.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *linksAPI) listPayments(w http.ResponseWriter, r *http.Request) {
	link, ok := a.loadLink(w, r)
	if !ok {
		return
	}
	payments, err := a.payments.ListPayments(r.Context(), link.ID)
	if err != nil {
		a.logger.Error("failed to list payments", "link", link.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponses(payments))
}

func (a *linksAPI) analytics(w http.ResponseWriter, r *http.Request) {
	link, ok := a.loadLink(w, r)
	if !ok {
		return
	}
	payments, err := a.payments.ListPayments(r.Context(), link.ID)
	if err != nil {
		a.logger.Error("failed to list payments", "link", link.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	earnings := store.Summarize(payments)
	writeJSON(w, http.StatusOK, analyticsResponse{
		Link: toLinkResponse(link),
		Stats: statsResponse{
			TotalEarnings:  earnings.Total.String(),
			PaymentCount:   earnings.Count,
			AveragePayment: earnings.Average.String(),
		},
		Payments:  toPaymentResponses(payments),
		ChartData: store.ByDay(payments),
	})
}

func (a *linksAPI) loadLink(w http.ResponseWriter, r *http.Request) (*store.Link, bool) {
	id := chi.URLParam(r, "linkId")
	link, err := a.links.GetLink(r.Context(), id)
	if errors.Is(err, x402.ErrLinkNotFound) {
		writeError(w, http.StatusNotFound, "Link not found")
		return nil, false
	}
	if err != nil {
		a.logger.Error("failed to load link", "link", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return link, true
}

func (a *linksAPI) withEarnings(r *http.Request, link *store.Link) (linkResponse, error) {
	payments, err := a.payments.ListPayments(r.Context(), link.ID)
	if err != nil {
		return linkResponse{}, err
	}
	earnings := store.Summarize(payments)
	resp := toLinkResponse(link)
	resp.TotalEarnings = earnings.Total.String()
	resp.PaymentCount = &earnings.Count
	return resp, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
