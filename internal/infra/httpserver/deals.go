package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	appdeals "github.com/bryanwahyu/research-market/internal/application/deals"
	"github.com/bryanwahyu/research-market/internal/domain/deals"
	"github.com/bryanwahyu/research-market/internal/domain/errs"
	"github.com/bryanwahyu/research-market/internal/domain/listings"
	"github.com/bryanwahyu/research-market/internal/middleware"
)

// GET /v1/listings?page=&page_size=&domain=&min_cvs=
func (r *Router) handleBrowse(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	minCVS, err := middleware.QueryFloat(q.Get("min_cvs"))
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	page, err := r.listings.Browse(req.Context(),
		listings.Filter{Domain: q.Get("domain"), MinCVS: minCVS},
		middleware.QueryInt(q.Get("page"), 1),
		middleware.ValidateLimit(middleware.QueryInt(q.Get("page_size"), 20)))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, page)
}

// GET /v1/listings/{id}
func (r *Router) handleListing(w http.ResponseWriter, req *http.Request) error {
	lid, err := pathID(req, "id")
	if err != nil {
		return err
	}
	l, err := r.listings.Get(req.Context(), lid)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, l)
}

// POST /v1/listings/{id}/deals
// Body: {"amount": 500000, "instrument": "safe", "timeline": "3-6 months", "message": "..."}
func (r *Router) handleCommit(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	lid, err := pathID(req, "id")
	if err != nil {
		return err
	}
	var body struct {
		Amount     float64 `json:"amount"`
		Instrument string  `json:"instrument"`
		Timeline   string  `json:"timeline"`
		Message    string  `json:"message"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	d, err := r.deals.Commit(req.Context(), appdeals.CommitCommand{
		InvestorID: id.UserID,
		ListingID:  lid,
		Amount:     body.Amount,
		Instrument: deals.Instrument(strings.ToLower(strings.TrimSpace(body.Instrument))),
		Timeline:   middleware.SanitizeString(body.Timeline),
		Message:    middleware.SanitizeString(body.Message),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, d)
}

// GET /v1/deals?limit=
func (r *Router) handleDeals(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	limit := middleware.ValidateLimit(middleware.QueryInt(req.URL.Query().Get("limit"), 50))
	list, err := r.deals.List(req.Context(), id.UserID, limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/deals/{id}
func (r *Router) handleDeal(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	did, err := pathID(req, "id")
	if err != nil {
		return err
	}
	d, err := r.deals.Get(req.Context(), id.UserID, deals.ID(did))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, d)
}

// POST /v1/deals/{id}/status
// Body: {"status": "due_diligence", "note": "..."}
func (r *Router) handleDealStatus(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	did, err := pathID(req, "id")
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	d, err := r.deals.UpdateStatus(req.Context(), id.UserID, deals.ID(did),
		deals.Status(strings.TrimSpace(body.Status)), middleware.SanitizeString(body.Note))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, d)
}

// GET /v1/deals/{id}/invoice
func (r *Router) handleInvoice(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	did, err := pathID(req, "id")
	if err != nil {
		return err
	}
	inv, err := r.deals.Invoice(req.Context(), id.UserID, deals.ID(did))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, inv)
}

// POST /v1/deals/{id}/payment → {"url": "...", "session_id": "...", "invoice": {...}}
func (r *Router) handlePayment(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	did, err := pathID(req, "id")
	if err != nil {
		return err
	}
	co, err := r.deals.InitiatePayment(req.Context(), id.UserID, id.Email, deals.ID(did))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, co)
}

// POST /v1/deals/{id}/documents  (multipart: name, file)
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	id, err := caller(req)
	if err != nil {
		return err
	}
	did, err := pathID(req, "id")
	if err != nil {
		return err
	}
	req.Body = http.MaxBytesReader(w, req.Body, appdeals.MaxDocumentSize+1<<20)
	if err := req.ParseMultipartForm(8 << 20); err != nil {
		return fmt.Errorf("%w: invalid multipart form: %v", errs.ErrValidation, err)
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: file is required", errs.ErrValidation)
	}
	defer file.Close()

	d, err := r.deals.UploadDocument(req.Context(), id.UserID, deals.ID(did),
		middleware.SanitizeString(req.FormValue("name")),
		header.Filename,
		header.Header.Get("Content-Type"),
		header.Size,
		file)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, d)
}

const maxWebhookBody = 64 << 10

// POST /webhooks/stripe
func (r *Router) handleStripeWebhook(w http.ResponseWriter, req *http.Request) error {
	payload, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
	if err != nil {
		return fmt.Errorf("%w: reading webhook body: %v", errs.ErrValidation, err)
	}
	if err := r.deals.HandlePaymentEvent(req.Context(), payload, req.Header.Get("Stripe-Signature")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}
