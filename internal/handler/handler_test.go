package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ecopower/ecopower/internal/auth"
	"github.com/ecopower/ecopower/internal/database"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/push"
	"github.com/ecopower/ecopower/internal/store"
	"github.com/ecopower/ecopower/internal/subscription"
)

type handlerFixture struct {
	users         *store.UserStore
	houses        *store.HouseStore
	consumptions  *store.ConsumptionStore
	invoices      *store.InvoiceStore
	subs          *store.SubscriptionStore
	notifications *store.NotificationStore

	consumptionH *ConsumptionHandler
	invoiceH     *InvoiceHandler
	residentH    *ResidentHandler

	ownerID    int64
	residentID int64
	houseID    int64
}

func setupHandlerTest(t *testing.T) *handlerFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &handlerFixture{
		users:         store.NewUserStore(db),
		houses:        store.NewHouseStore(db),
		consumptions:  store.NewConsumptionStore(db),
		invoices:      store.NewInvoiceStore(db),
		subs:          store.NewSubscriptionStore(db),
		notifications: store.NewNotificationStore(db),
	}

	pushSvc := push.NewService(push.Config{})
	dispatcher := push.NewDispatcher(pushSvc, store.NewPushStore(db), f.notifications, logger)
	subService := subscription.NewService(f.subs, f.users, false, logger)
	messages := store.NewMessageStore(db)

	f.consumptionH = NewConsumptionHandler(f.consumptions, f.houses, f.users, dispatcher, logger)
	f.invoiceH = NewInvoiceHandler(f.invoices, f.consumptions, f.houses, messages, dispatcher, logger)
	f.residentH = NewResidentHandler(f.users, f.houses, subService, logger)

	owner, err := f.users.CreateOwner("Ama", "Kodjo", "ama@example.com", "", "hash")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	f.ownerID = owner.ID

	now := time.Now()
	sub, err := f.subs.Create(owner.ID, "basic", 500, 5, now, now.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if err := f.subs.SetActive(sub.ID, true); err != nil {
		t.Fatalf("activate subscription: %v", err)
	}

	house, err := f.houses.Create(owner.ID, "Villa Rose", "12 Rue des Palmiers", "Lome", "01BP45", "Togo", "", 0.15)
	if err != nil {
		t.Fatalf("create house: %v", err)
	}
	f.houseID = house.ID

	resident, err := f.users.CreateResident(owner.ID, "Kossi", "Mensah", "kossi@example.com", "", "hash")
	if err != nil {
		t.Fatalf("create resident: %v", err)
	}
	f.residentID = resident.ID
	if err := f.users.SetHouse(resident.ID, &f.houseID); err != nil {
		t.Fatalf("assign house: %v", err)
	}

	return f
}

func authedRequest(method, target string, body any, userID int64, role auth.Role) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

func TestRecordReadingSeedsPreviousIndex(t *testing.T) {
	f := setupHandlerTest(t)

	first := map[string]any{
		"resident_id": f.residentID, "house_id": f.houseID,
		"month": 1, "year": 2026, "current_index": 1100.0,
	}
	rec := httptest.NewRecorder()
	f.consumptionH.Record(rec, authedRequest("POST", "/api/consumptions", first, f.ownerID, auth.RoleOwner))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first reading: status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp recordConsumptionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Consumption.PreviousIndex != 0 {
		t.Errorf("first previous index = %v, want 0", resp.Consumption.PreviousIndex)
	}
	if resp.Consumption.KWh != 1100 {
		t.Errorf("first kwh = %v, want 1100", resp.Consumption.KWh)
	}

	second := map[string]any{
		"resident_id": f.residentID, "house_id": f.houseID,
		"month": 2, "year": 2026, "current_index": 1220.0,
	}
	rec = httptest.NewRecorder()
	f.consumptionH.Record(rec, authedRequest("POST", "/api/consumptions", second, f.ownerID, auth.RoleOwner))
	if rec.Code != http.StatusCreated {
		t.Fatalf("second reading: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Consumption.PreviousIndex != 1100 {
		t.Errorf("second previous index = %v, want 1100", resp.Consumption.PreviousIndex)
	}
	if resp.Consumption.KWh != 120 {
		t.Errorf("second kwh = %v, want 120", resp.Consumption.KWh)
	}
	if resp.Consumption.Amount != 120*0.15 {
		t.Errorf("amount = %v, want %v", resp.Consumption.Amount, 120*0.15)
	}
}

func TestRecordReadingAcceptsSubmittedIndices(t *testing.T) {
	f := setupHandlerTest(t)

	if _, err := f.houses.SetTariff(f.houseID, 0.174); err != nil {
		t.Fatalf("set tariff: %v", err)
	}

	// A submitted previous index takes precedence over the stored history.
	rec := httptest.NewRecorder()
	f.consumptionH.Record(rec, authedRequest("POST", "/api/consumptions", map[string]any{
		"resident_id": f.residentID, "house_id": f.houseID,
		"month": 1, "year": 2026,
		"previous_index": 100.0, "current_index": 150.0,
	}, f.ownerID, auth.RoleOwner))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp recordConsumptionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Consumption.PreviousIndex != 100 {
		t.Errorf("previous index = %v, want 100", resp.Consumption.PreviousIndex)
	}
	if resp.Consumption.KWh != 50 {
		t.Errorf("kwh = %v, want 50", resp.Consumption.KWh)
	}
	if math.Abs(resp.Consumption.Amount-8.70) > 1e-9 {
		t.Errorf("amount = %v, want 8.70", resp.Consumption.Amount)
	}
}

func TestRecordReadingDuplicatePeriod(t *testing.T) {
	f := setupHandlerTest(t)

	body := map[string]any{
		"resident_id": f.residentID, "house_id": f.houseID,
		"month": 3, "year": 2026, "kwh": 100.0,
	}
	rec := httptest.NewRecorder()
	f.consumptionH.Record(rec, authedRequest("POST", "/api/consumptions", body, f.ownerID, auth.RoleOwner))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.consumptionH.Record(rec, authedRequest("POST", "/api/consumptions", body, f.ownerID, auth.RoleOwner))
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate period: status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestRecordReadingIndexRegression(t *testing.T) {
	f := setupHandlerTest(t)

	rec := httptest.NewRecorder()
	f.consumptionH.Record(rec, authedRequest("POST", "/api/consumptions", map[string]any{
		"resident_id": f.residentID, "house_id": f.houseID,
		"month": 1, "year": 2026, "current_index": 500.0,
	}, f.ownerID, auth.RoleOwner))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.consumptionH.Record(rec, authedRequest("POST", "/api/consumptions", map[string]any{
		"resident_id": f.residentID, "house_id": f.houseID,
		"month": 2, "year": 2026, "current_index": 400.0,
	}, f.ownerID, auth.RoleOwner))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("regressing index: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRecordReadingFlagsAnomaly(t *testing.T) {
	f := setupHandlerTest(t)

	for i, kwh := range []float64{100, 110, 90} {
		month := i + 1
		rec := httptest.NewRecorder()
		f.consumptionH.Record(rec, authedRequest("POST", "/api/consumptions", map[string]any{
			"resident_id": f.residentID, "house_id": f.houseID,
			"month": month, "year": 2026, "kwh": kwh,
		}, f.ownerID, auth.RoleOwner))
		if rec.Code != http.StatusCreated {
			t.Fatalf("month %d: status = %d", month, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	f.consumptionH.Record(rec, authedRequest("POST", "/api/consumptions", map[string]any{
		"resident_id": f.residentID, "house_id": f.houseID,
		"month": 4, "year": 2026, "kwh": 300.0,
	}, f.ownerID, auth.RoleOwner))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp recordConsumptionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Anomalous {
		t.Error("300 kWh against a 100 average should be anomalous")
	}
	if resp.Average != 100 {
		t.Errorf("average = %v, want 100", resp.Average)
	}
}

func TestGenerateInvoiceAndPay(t *testing.T) {
	f := setupHandlerTest(t)

	rec := httptest.NewRecorder()
	f.consumptionH.Record(rec, authedRequest("POST", "/api/consumptions", map[string]any{
		"resident_id": f.residentID, "house_id": f.houseID,
		"month": 5, "year": 2026, "kwh": 80.0,
	}, f.ownerID, auth.RoleOwner))
	var recorded recordConsumptionResponse
	if err := json.NewDecoder(rec.Body).Decode(&recorded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = httptest.NewRecorder()
	f.invoiceH.Generate(rec, authedRequest("POST", "/api/invoices", map[string]any{
		"consumption_id": recorded.Consumption.ID,
	}, f.ownerID, auth.RoleOwner))
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate: status = %d, body %s", rec.Code, rec.Body.String())
	}

	var inv model.Invoice
	if err := json.NewDecoder(rec.Body).Decode(&inv); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}
	if !strings.HasPrefix(inv.Number, "FACT-") {
		t.Errorf("number = %q, want FACT- prefix", inv.Number)
	}

	// Billing the same reading again conflicts.
	rec = httptest.NewRecorder()
	f.invoiceH.Generate(rec, authedRequest("POST", "/api/invoices", map[string]any{
		"consumption_id": recorded.Consumption.ID,
	}, f.ownerID, auth.RoleOwner))
	if rec.Code != http.StatusConflict {
		t.Errorf("double billing: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	// Pay it.
	req := authedRequest("POST", "/api/invoices/pay", nil, f.ownerID, auth.RoleOwner)
	req.SetPathValue("id", strconv.FormatInt(inv.ID, 10))
	rec = httptest.NewRecorder()
	f.invoiceH.MarkPaid(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var paid model.Invoice
	if err := json.NewDecoder(rec.Body).Decode(&paid); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if paid.Status != model.InvoicePaid {
		t.Errorf("status = %q, want paid", paid.Status)
	}
	if paid.PaidAt == nil {
		t.Error("paid_at should be set")
	}

	// the owner gets a payment-received confirmation; delivery is in the
	// background
	var confirmed bool
	for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline) && !confirmed; {
		notifs, err := f.notifications.ListByUser(f.ownerID, 20)
		if err != nil {
			t.Fatalf("list owner notifications: %v", err)
		}
		for _, n := range notifs {
			if strings.Contains(n.Title, "Payment received") {
				confirmed = true
				break
			}
		}
		if !confirmed {
			time.Sleep(10 * time.Millisecond)
		}
	}
	if !confirmed {
		t.Error("owner should be notified that payment was received")
	}
}

func TestCreateResidentQuota(t *testing.T) {
	f := setupHandlerTest(t)

	// The basic plan allows 5 residents; one already exists.
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		f.residentH.Create(rec, authedRequest("POST", "/api/residents", map[string]any{
			"first_name": "Resident",
			"last_name":  "N",
			"email":      "r" + string(rune('a'+i)) + "@example.com",
		}, f.ownerID, auth.RoleOwner))
		if rec.Code != http.StatusCreated {
			t.Fatalf("resident %d: status = %d, body %s", i, rec.Code, rec.Body.String())
		}

		var resp createResidentResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.TemporaryPassword == "" {
			t.Error("temporary password should be returned")
		}
		if !resp.Resident.FirstLogin {
			t.Error("new resident should carry the first-login flag")
		}
	}

	rec := httptest.NewRecorder()
	f.residentH.Create(rec, authedRequest("POST", "/api/residents", map[string]any{
		"first_name": "One",
		"last_name":  "TooMany",
		"email":      "overflow@example.com",
	}, f.ownerID, auth.RoleOwner))
	if rec.Code != http.StatusForbidden {
		t.Errorf("over quota: status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestResidentRecordsOwnReadingOnly(t *testing.T) {
	f := setupHandlerTest(t)

	// A resident's reading is recorded against themselves even if the
	// payload names someone else.
	rec := httptest.NewRecorder()
	f.consumptionH.Record(rec, authedRequest("POST", "/api/consumptions", map[string]any{
		"resident_id": f.ownerID,
		"month":       6, "year": 2026, "kwh": 50.0,
	}, f.residentID, auth.RoleResident))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp recordConsumptionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Consumption.ResidentID != f.residentID {
		t.Errorf("resident_id = %d, want %d", resp.Consumption.ResidentID, f.residentID)
	}
}
