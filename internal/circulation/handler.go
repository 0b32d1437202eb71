// internal/circulation/handler.go
package circulation

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the circulation endpoints. selfCheckoutAuth wraps the
// unattended endpoints with station authentication and rate limiting.
func (h *Handler) Routes(selfCheckoutAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/loans/request", h.HandleRequestLoan)
	r.Post("/loans/checkout", h.HandleCheckoutLoan)
	r.Post("/loans/{pid}/dates", h.HandleUpdateDates)
	r.Post("/patrons/{pid}/loans/extend-all", h.HandleExtendAll)
	r.Group(func(r chi.Router) {
		if selfCheckoutAuth != nil {
			r.Use(selfCheckoutAuth)
		}
		r.Post("/loans/self-checkout", h.HandleSelfCheckout)
		r.Get("/items/barcode/{barcode}", h.HandleResolveItemByBarcode)
	})
	return r
}

type deliveryPayload struct {
	Method string            `json:"method"`
	Extra  map[string]string `json:"extra,omitempty"`
}

func (d *deliveryPayload) toDelivery() *Delivery {
	if d == nil {
		return nil
	}
	return &Delivery{Method: d.Method, Extra: d.Extra}
}

func (h *Handler) HandleRequestLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentPID            string                 `json:"document_pid"`
		PatronPID              string                 `json:"patron_pid"`
		TransactionLocationPID string                 `json:"transaction_location_pid"`
		Delivery               *deliveryPayload       `json:"delivery,omitempty"`
		Extra                  map[string]interface{} `json:"extra,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pid, loan, err := h.service.RequestLoan(r.Context(), RequestLoanParams{
		DocumentPID:            req.DocumentPID,
		PatronPID:              req.PatronPID,
		TransactionLocationPID: req.TransactionLocationPID,
		TransactionUserPID:     actingUserPID(r, req.PatronPID),
		Delivery:               req.Delivery.toDelivery(),
		Extra:                  req.Extra,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeLoan(w, http.StatusCreated, pid, loan)
}

func (h *Handler) HandleCheckoutLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemPID                string                 `json:"item_pid"`
		PatronPID              string                 `json:"patron_pid"`
		TransactionLocationPID string                 `json:"transaction_location_pid"`
		Force                  bool                   `json:"force,omitempty"`
		Delivery               *deliveryPayload       `json:"delivery,omitempty"`
		Extra                  map[string]interface{} `json:"extra,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pid, loan, err := h.service.CheckoutLoan(r.Context(), CheckoutParams{
		ItemPID:                req.ItemPID,
		PatronPID:              req.PatronPID,
		TransactionLocationPID: req.TransactionLocationPID,
		TransactionUserPID:     actingUserPID(r, ""),
		Force:                  req.Force,
		Delivery:               req.Delivery.toDelivery(),
		Extra:                  req.Extra,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeLoan(w, http.StatusCreated, pid, loan)
}

func (h *Handler) HandleSelfCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemPID                string                 `json:"item_pid"`
		PatronPID              string                 `json:"patron_pid"`
		TransactionLocationPID string                 `json:"transaction_location_pid"`
		Extra                  map[string]interface{} `json:"extra,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pid, loan, err := h.service.SelfCheckout(r.Context(), SelfCheckoutParams{
		ItemPID:                req.ItemPID,
		PatronPID:              req.PatronPID,
		TransactionLocationPID: req.TransactionLocationPID,
		TransactionUserPID:     actingUserPID(r, req.PatronPID),
		Extra:                  req.Extra,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeLoan(w, http.StatusCreated, pid, loan)
}

func (h *Handler) HandleResolveItemByBarcode(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")
	pid, item, err := h.service.ResolveItemByBarcode(r.Context(), barcode)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		PID  string `json:"pid"`
		Item *Item  `json:"item"`
	}{PID: pid, Item: item})
}

func (h *Handler) HandleExtendAll(w http.ResponseWriter, r *http.Request) {
	patronPID := chi.URLParam(r, "pid")
	extended, notExtended, err := h.service.ExtendAll(r.Context(), patronPID)
	if err != nil {
		writeError(w, err)
		return
	}
	if extended == nil {
		extended = []*Loan{}
	}
	if notExtended == nil {
		notExtended = []*Loan{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Extended    []*Loan `json:"extended_loans"`
		NotExtended []*Loan `json:"not_extended_loans"`
	}{Extended: extended, NotExtended: notExtended})
}

func (h *Handler) HandleUpdateDates(w http.ResponseWriter, r *http.Request) {
	loanPID := chi.URLParam(r, "pid")

	var req struct {
		StartDate         string `json:"start_date,omitempty"`
		EndDate           string `json:"end_date,omitempty"`
		RequestStartDate  string `json:"request_start_date,omitempty"`
		RequestExpireDate string `json:"request_expire_date,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var upd DateUpdate
	for _, f := range []struct {
		value string
		dest  **time.Time
	}{
		{req.StartDate, &upd.StartDate},
		{req.EndDate, &upd.EndDate},
		{req.RequestStartDate, &upd.RequestStartDate},
		{req.RequestExpireDate, &upd.RequestExpireDate},
	} {
		if f.value == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", f.value)
		if err != nil {
			http.Error(w, "invalid date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		*f.dest = &t
	}

	loan, err := h.service.UpdateDates(r.Context(), loanPID, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeLoan(w, http.StatusOK, loan.PID, loan)
}

func writeLoan(w http.ResponseWriter, status int, pid string, loan *Loan) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(struct {
		PID  string `json:"pid"`
		Loan *Loan  `json:"loan"`
	}{PID: pid, Loan: loan})
}

// writeError maps the error taxonomy onto HTTP statuses: conflicts 409,
// validation and transition rejections 400, missing resources 404.
func writeError(w http.ResponseWriter, err error) {
	var (
		requestOnDoc *PatronHasRequestOnDocumentError
		loanOnDoc    *PatronHasLoanOnDocumentError
		loanOnItem   *PatronHasLoanOnItemError
		activeLoan   *ItemHasActiveLoanError
		overbooked   *DocumentOverbookedError
		ambiguous    *MultipleItemsBarcodeFoundError
		notFound     *ItemNotFoundError
		cannotCirc   *ItemCannotCirculateError
		missingParam *MissingRequiredParameterError
		invalidParam *InvalidParameterError
		invalidEdit  *InvalidDateEditError
		rejected     *TransitionError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &requestOnDoc),
		errors.As(err, &loanOnDoc),
		errors.As(err, &loanOnItem),
		errors.As(err, &activeLoan),
		errors.As(err, &overbooked),
		errors.As(err, &ambiguous):
		status = http.StatusConflict
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &cannotCirc),
		errors.As(err, &missingParam),
		errors.As(err, &invalidParam),
		errors.As(err, &invalidEdit),
		errors.As(err, &rejected):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}
