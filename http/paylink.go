package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/http/internal/helpers"
	"github.com/algox402/x402-go/store"
)

// PayLinkConfig configures the handler that gates stored payment links.
type PayLinkConfig struct {
	Gate     *Gate
	Links    store.LinkStore
	Content  store.ContentProvider
	Payments store.PaymentRecorder

	// LinkID extracts the link id from the request. The default reads the
	// "linkId" path value and falls back to the last path segment.
	LinkID func(r *http.Request) string

	Logger *slog.Logger
}

// NewPayLinkHandler returns a handler that charges for each link's content at
// the link's own price and records the payment once it settles.
func NewPayLinkHandler(cfg PayLinkConfig) (http.Handler, error) {
	if cfg.Gate == nil || cfg.Links == nil {
		return nil, errors.New("x402: pay link handler requires a gate and a link store")
	}
	if cfg.LinkID == nil {
		cfg.LinkID = linkIDFromPath
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &payLinkHandler{cfg: cfg}, nil
}

func linkIDFromPath(r *http.Request) string {
	if id := r.PathValue("linkId"); id != "" {
		return id
	}
	if base := path.Base(r.URL.Path); base != "/" && base != "." {
		return base
	}
	return ""
}

type payLinkHandler struct {
	cfg PayLinkConfig
}

func (h *payLinkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.cfg.Logger

	id := h.cfg.LinkID(r)
	if id == "" {
		helpers.SendError(w, http.StatusNotFound, "Link not found")
		return
	}
	link, err := h.cfg.Links.GetLink(r.Context(), id)
	if errors.Is(err, x402.ErrLinkNotFound) {
		helpers.SendError(w, http.StatusNotFound, "Link not found")
		return
	}
	if err != nil {
		logger.Error("failed to load link", "link", id, "error", err)
		helpers.SendError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	requirements, err := h.requirements(r, link)
	if err != nil {
		logger.Error("failed to build payment requirements", "link", id, "error", err)
		helpers.SendError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.cfg.Gate.Serve(w, r, Challenge{
		Requirements: requirements,
		OnSettled:    h.recordPayment(link),
	}, contentHandler(link, h.cfg.Content, logger))
}

func (h *payLinkHandler) requirements(r *http.Request, link *store.Link) ([]x402.PaymentRequirement, error) {
	route := x402.RouteConfig{
		Network:           link.Network,
		Description:       "Payment for content",
		MaxTimeoutSeconds: x402.DefaultMaxTimeoutSeconds,
	}
	if link.ContentType == store.ContentFile {
		route.Description = "Payment for file"
	}
	if link.AssetID != 0 {
		route.Price = x402.TokenAmount{
			Amount: link.Price,
			Asset:  x402.Asset{ID: link.AssetID, Decimals: link.Decimals},
		}
	} else {
		route.Price = x402.Money(link.PriceString())
	}

	return x402.BuildRequirements(x402.RequirementsInput{
		Route:       route,
		PayTo:       link.CreatorWallet,
		ResourceURL: helpers.ResourceURL(r),
		Method:      r.Method,
		FeePayer:    h.cfg.Gate.FeePayers(r.Context())[link.Network],
	})
}

func (h *payLinkHandler) recordPayment(link *store.Link) SettledFunc {
	if h.cfg.Payments == nil {
		return nil
	}
	return func(ctx context.Context, p *Payment, resp *x402.SettlementResponse) error {
		payer := p.Payer
		if payer == "" {
			payer = resp.Payer
		}
		rec, err := store.NewPaymentRecord(link, payer, p.Requirement.MaxAmountRequired, resp.Transaction, p.GroupID)
		if err != nil {
			return err
		}
		if err := h.cfg.Payments.RecordPayment(ctx, rec); err != nil {
			return err
		}
		h.cfg.Logger.Info("payment recorded", "link", link.ID, "payer", payer, "amount", rec.Amount.String(), "transaction", resp.Transaction)
		return nil
	}
}
