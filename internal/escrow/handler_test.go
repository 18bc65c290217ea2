package escrow

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/middleware"
	"github.com/congo-pay/escrowledger/internal/store/memory"
)

func newTestApp(st *memory.Store) *fiber.App {
	h := NewHandler(newManager(st, nil))
	app := fiber.New()
	app.Use(middleware.RequestID(), middleware.Actor())
	app.Post("/escrows", h.Create)
	app.Get("/escrows", h.List)
	app.Get("/escrows/:id", h.Get)
	app.Post("/escrows/:id/release", h.Release)
	app.Post("/escrows/:id/refund", h.Refund)
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(middleware.ActorHeader, "alice")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHandlerCreateAndRelease(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 50)
	app := newTestApp(st)

	status, body := post(t, app, "/escrows", `{"idempotency_key":"gift-1","sender_id":"alice","recipient_id":"bob","amount":30,"currency":"XAF"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", status, body)
	}
	escrow, _ := body["escrow"].(map[string]any)
	id, _ := escrow["id"].(string)
	if id == "" || escrow["status"] != "pending" {
		t.Fatalf("unexpected escrow body: %v", body)
	}

	status, body = post(t, app, "/escrows", `{"idempotency_key":"gift-1","sender_id":"alice","recipient_id":"bob","amount":30,"currency":"XAF"}`)
	if status != fiber.StatusOK || body["replayed"] != true {
		t.Fatalf("expected replay, got %d: %v", status, body)
	}

	status, body = post(t, app, "/escrows/"+id+"/release", `{"verified":false,"verified_by":"proof"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for unverified release, got %d: %v", status, body)
	}

	status, body = post(t, app, "/escrows/"+id+"/release", `{"verified":true,"verified_by":"proof"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if got := memory.Balance(st, "bob", "XAF"); got != 30 {
		t.Fatalf("expected bob 30, got %d", got)
	}

	status, _ = post(t, app, "/escrows/"+id+"/refund", `{}`)
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409 refunding a released escrow, got %d", status)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/escrows?party=bob", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var list struct {
		Escrows []Response `json:"escrows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Escrows) != 1 || list.Escrows[0].Status != "released" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestHandlerInsufficientFunds(t *testing.T) {
	st := memory.New()
	memory.Seed(st, "alice", "XAF", 10)
	app := newTestApp(st)

	status, _ := post(t, app, "/escrows", `{"idempotency_key":"gift-1","sender_id":"alice","recipient_id":"bob","amount":30}`)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/escrows/00000000-0000-0000-0000-000000000000", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
