package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/auth"
	"github.com/ecopower/ecopower/internal/invoicing"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/push"
	"github.com/ecopower/ecopower/internal/store"
)

type InvoiceHandler struct {
	invoices     *store.InvoiceStore
	consumptions *store.ConsumptionStore
	houses       *store.HouseStore
	messages     *store.MessageStore
	dispatcher   *push.Dispatcher
	logger       *slog.Logger
}

func NewInvoiceHandler(invoices *store.InvoiceStore, consumptions *store.ConsumptionStore, houses *store.HouseStore, messages *store.MessageStore, dispatcher *push.Dispatcher, logger *slog.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoices:     invoices,
		consumptions: consumptions,
		houses:       houses,
		messages:     messages,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

type generateInvoiceRequest struct {
	ConsumptionID int64  `json:"consumption_id"`
	Comment       string `json:"comment"`
}

// Generate handles POST /api/invoices. The invoice number is sequential
// within the issuing month; billing marks the reading immutable. The
// resident gets an invoice notice in the house conversation and a push
// notification.
func (h *InvoiceHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	var req generateInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.ConsumptionID == 0 {
		writeError(w, h.logger, apperror.Validation("consumption_id is required"))
		return
	}

	c, err := h.consumptions.GetByID(req.ConsumptionID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if c == nil {
		writeError(w, h.logger, apperror.NotFound("consumption"))
		return
	}
	house, err := h.houses.GetOwned(ownerID, c.HouseID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if house == nil {
		writeError(w, h.logger, apperror.NotFound("consumption"))
		return
	}

	inv, err := h.invoices.CreateForConsumption(r.Context(), c, time.Now(), req.Comment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.notifyIssued(ownerID, inv)

	h.logger.Info("invoice issued",
		"invoice_id", inv.ID,
		"number", inv.Number,
		"resident_id", inv.ResidentID,
		"amount", inv.Amount)
	writeJSON(w, http.StatusCreated, inv)
}

// notifyIssued records the invoice notice as a conversation message and
// pushes a notification to the resident. Failures here do not fail the
// invoice; the notice is advisory.
func (h *InvoiceHandler) notifyIssued(ownerID int64, inv *model.Invoice) {
	body := fmt.Sprintf("Invoice %s issued: %.2f for %s kWh, due %s",
		inv.Number, inv.Amount, humanize.Ftoa(inv.KWh), inv.DueAt.Format("2006-01-02"))

	msg := &model.Message{
		SenderID:   ownerID,
		ReceiverID: &inv.ResidentID,
		HouseID:    inv.HouseID,
		Body:       body,
		Kind:       model.MessageInvoice,
		InvoiceID:  &inv.ID,
	}
	if _, err := h.messages.Create(msg); err != nil {
		h.logger.Error("record invoice notice", "invoice_id", inv.ID, "error", err)
	}

	h.dispatcher.Notify(inv.ResidentID, "New invoice "+inv.Number, body, model.NotifInfo)
}

// Get handles GET /api/invoices/{id}
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.accessible(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// List handles GET /api/invoices. Owners see invoices across their houses,
// optionally filtered by status; residents see their own.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var (
		invoices []model.Invoice
		err      error
	)
	if auth.RoleOf(r.Context()) == auth.RoleResident {
		invoices, err = h.invoices.ListByResident(userID)
	} else if status := r.URL.Query().Get("status"); status != "" {
		invoices, err = h.invoices.ListByStatus(userID, status)
	} else {
		invoices, err = h.invoices.ListByOwner(userID)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if invoices == nil {
		invoices = []model.Invoice{}
	}
	writeJSON(w, http.StatusOK, invoices)
}

type invoiceStatusResponse struct {
	Invoice       *model.Invoice `json:"invoice"`
	DaysOverdue   int            `json:"days_overdue,omitempty"`
	DaysRemaining int            `json:"days_remaining,omitempty"`
}

// Status handles GET /api/invoices/{id}/status with day counts relative
// to the due date.
func (h *InvoiceHandler) Status(w http.ResponseWriter, r *http.Request) {
	inv, err := h.accessible(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	now := time.Now()
	resp := invoiceStatusResponse{Invoice: inv}
	if invoicing.IsOverdue(inv, now) {
		resp.DaysOverdue = invoicing.DaysOverdue(inv, now)
	} else if inv.Status == model.InvoiceUnpaid {
		resp.DaysRemaining = invoicing.DaysRemaining(inv, now)
	}
	writeJSON(w, http.StatusOK, resp)
}

// MarkPaid handles POST /api/invoices/{id}/pay. Paying twice is a no-op
// that returns the already-paid invoice.
func (h *InvoiceHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	inv, err := h.ownedByCaller(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	paid, err := h.invoices.MarkPaid(inv.ID, time.Now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// payment-received confirmation to the house owner, receipt to the
	// resident
	ownerID := auth.UserID(r.Context())
	h.dispatcher.Notify(ownerID, "Payment received for "+paid.Number,
		fmt.Sprintf("Payment of %.2f recorded.", paid.Amount), model.NotifSuccess)
	h.dispatcher.Notify(paid.ResidentID, "Invoice "+paid.Number+" paid",
		fmt.Sprintf("Your payment of %.2f was recorded.", paid.Amount), model.NotifSuccess)

	h.logger.Info("invoice paid", "invoice_id", paid.ID, "number", paid.Number)
	writeJSON(w, http.StatusOK, paid)
}

// accessible loads an invoice the caller may see: its resident or the
// owner of its house.
func (h *InvoiceHandler) accessible(r *http.Request) (*model.Invoice, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, err
	}
	inv, err := h.invoices.GetByID(id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperror.NotFound("invoice")
	}

	callerID := auth.UserID(r.Context())
	if inv.ResidentID == callerID {
		return inv, nil
	}
	house, err := h.houses.GetByID(inv.HouseID)
	if err != nil {
		return nil, err
	}
	if house == nil || house.OwnerID != callerID {
		return nil, apperror.NotFound("invoice")
	}
	return inv, nil
}

// ownedByCaller loads an invoice belonging to one of the caller's houses.
func (h *InvoiceHandler) ownedByCaller(r *http.Request) (*model.Invoice, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, err
	}
	inv, err := h.invoices.GetByID(id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperror.NotFound("invoice")
	}
	house, err := h.houses.GetOwned(auth.UserID(r.Context()), inv.HouseID)
	if err != nil {
		return nil, err
	}
	if house == nil {
		return nil, apperror.NotFound("invoice")
	}
	return inv, nil
}
