package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/facilitator"
	"github.com/algox402/x402-go/http/internal/helpers"
)

// maxFacilitatorBody bounds /verify and /settle request bodies. A full
// 16-transaction group is well under this.
const maxFacilitatorBody = 1 << 20

// FacilitatorServerConfig configures NewFacilitatorHandler.
type FacilitatorServerConfig struct {
	// Auth, when set, requires a bearer token on /verify and /settle.
	Auth   *FacilitatorAuth
	Logger *slog.Logger
}

// NewFacilitatorHandler serves fac over HTTP:
//
//	POST /verify     facilitator.Request -> facilitator.VerifyResponse
//	POST /settle     facilitator.Request -> x402.SettlementResponse
//	GET  /supported  facilitator.SupportedResponse
//
// Rejected payments are 200 responses carrying a reason. Malformed bodies are
// 400 and facilitator faults 500.
func NewFacilitatorHandler(fac facilitator.Interface, cfg FacilitatorServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &facilitatorServer{fac: fac, logger: logger}

	protect := func(h http.HandlerFunc) http.Handler {
		if cfg.Auth == nil {
			return h
		}
		return cfg.Auth.Require(h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /verify", protect(s.verify))
	mux.Handle("POST /settle", protect(s.settle))
	mux.HandleFunc("GET /supported", s.supported)
	return mux
}

type facilitatorServer struct {
	fac    facilitator.Interface
	logger *slog.Logger
}

// decodeRequest reads the body and reports the protocol reason when the
// payload or requirements are unusable.
func (s *facilitatorServer) decodeRequest(w http.ResponseWriter, r *http.Request) (facilitator.Request, x402.ErrorReason, bool) {
	var req facilitator.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFacilitatorBody)).Decode(&req); err != nil {
		helpers.SendError(w, http.StatusBadRequest, "invalid request body")
		return req, "", false
	}
	reason, err := req.Check()
	if reason != "" {
		s.logger.Warn("rejecting malformed facilitator request", "reason", reason, "error", err)
	}
	return req, reason, true
}

func (s *facilitatorServer) verify(w http.ResponseWriter, r *http.Request) {
	req, reason, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if reason != "" {
		helpers.SendJSON(w, http.StatusOK, facilitator.Invalid(reason))
		return
	}

	resp, err := s.fac.Verify(r.Context(), req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		s.logger.Error("verify failed", "network", req.PaymentPayload.Network, "error", err)
		helpers.SendError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	helpers.SendJSON(w, http.StatusOK, resp)
}

func (s *facilitatorServer) settle(w http.ResponseWriter, r *http.Request) {
	req, reason, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if reason != "" {
		helpers.SendJSON(w, http.StatusOK, x402.SettlementResponse{ErrorReason: reason, Network: req.PaymentPayload.Network})
		return
	}

	resp, err := s.fac.Settle(r.Context(), req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		s.logger.Error("settle failed", "network", req.PaymentPayload.Network, "error", err)
		helpers.SendError(w, http.StatusInternalServerError, "settlement failed")
		return
	}
	helpers.SendJSON(w, http.StatusOK, resp)
}

func (s *facilitatorServer) supported(w http.ResponseWriter, r *http.Request) {
	resp, err := s.fac.Supported(r.Context())
	if err != nil {
		s.logger.Error("supported failed", "error", err)
		helpers.SendError(w, http.StatusInternalServerError, "supported kinds unavailable")
		return
	}
	helpers.SendJSON(w, http.StatusOK, resp)
}
