package suggest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jumpindia/funzone-pos/internal/domain"
	"github.com/jumpindia/funzone-pos/internal/observability"
	"github.com/jumpindia/funzone-pos/internal/suggest"
)

type nopLogger struct{}

func (nopLogger) Info(args ...interface{})  {}
func (nopLogger) Error(args ...interface{}) {}
func (nopLogger) Debug(args ...interface{}) {}
func (nopLogger) Warn(args ...interface{})  {}
func (nopLogger) WithField(key string, value interface{}) observability.Logger {
	return nopLogger{}
}

func stubGemini(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") == "" {
			t.Error("missing api key in query")
		}
		resp := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": text}},
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClient_SafetyTip(t *testing.T) {
	srv := stubGemini(t, "Always land on two feet!\n")
	defer srv.Close()

	c := suggest.NewClient("test-key", "gemini-2.5-flash", time.Second, nopLogger{}).WithBaseURL(srv.URL)
	tip := c.SafetyTip(context.Background())
	if tip != "Always land on two feet!" {
		t.Fatalf("unexpected tip %q", tip)
	}
}

func TestClient_FallbackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := suggest.NewClient("test-key", "gemini-2.5-flash", time.Second, nopLogger{}).WithBaseURL(srv.URL)
	tip := c.SafetyTip(context.Background())
	if tip != "Remember to always jump safely and have fun!" {
		t.Fatalf("expected static fallback, got %q", tip)
	}
}

func TestClient_FallbackWithoutAPIKey(t *testing.T) {
	c := suggest.NewClient("", "gemini-2.5-flash", time.Second, nopLogger{})
	tip := c.SafetyTip(context.Background())
	if tip != "Remember to always jump safely and have fun!" {
		t.Fatalf("expected static fallback, got %q", tip)
	}
}

func TestClient_TransactionSuggestion(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Contents[0].Parts[0].Text
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "Thank them for being a loyal customer."}},
				}},
			},
		})
	}))
	defer srv.Close()

	c := suggest.NewClient("test-key", "gemini-2.5-flash", time.Second, nopLogger{}).WithBaseURL(srv.URL)

	signed := time.Now().AddDate(0, -1, 0)
	g := domain.NewGuest("Asha", time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), "", "9876543210")
	g.WaiverSignedOn = &signed
	tr := domain.NewTransaction("9876543210", []domain.Guest{g})
	tr.AddEntry(domain.CartEntry{ItemID: "tkt_60", Name: "1 hour jump", Price: 500, Category: domain.CategoryTicket}, time.Now())

	tip := c.TransactionSuggestion(context.Background(), tr, 4, nil)
	if tip != "Thank them for being a loyal customer." {
		t.Fatalf("unexpected suggestion %q", tip)
	}
	if !strings.Contains(gotPrompt, "Asha") || !strings.Contains(gotPrompt, "1 hour jump") {
		t.Fatalf("prompt missing transaction details:\n%s", gotPrompt)
	}
	if !strings.Contains(gotPrompt, "made 4 previous transactions") {
		t.Fatalf("prompt missing history:\n%s", gotPrompt)
	}
	if !strings.Contains(gotPrompt, "This is their first visit.") {
		t.Fatalf("prompt missing first-visit marker:\n%s", gotPrompt)
	}
}

func TestClient_AutoAssign(t *testing.T) {
	g1 := domain.NewGuest("Asha", time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), "", "9876543210")
	g2 := domain.NewGuest("Ravi", time.Date(2012, 6, 1, 0, 0, 0, 0, time.UTC), "", "9876543210")

	srv := stubGemini(t, `{"assignments":[{"ticketIndex":0,"guestId":"`+g2.ID.String()+`"},{"ticketIndex":2,"guestId":"`+g1.ID.String()+`"},{"ticketIndex":9,"guestId":"`+g1.ID.String()+`"}]}`)
	defer srv.Close()

	c := suggest.NewClient("test-key", "gemini-2.5-flash", time.Second, nopLogger{}).WithBaseURL(srv.URL)
	got := c.AutoAssign(context.Background(), []domain.Guest{g1, g2}, []int{0, 2})
	if len(got) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(got))
	}
	if got[0] != g2.ID || got[2] != g1.ID {
		t.Fatalf("unexpected assignment map %v", got)
	}
}

func TestClient_AutoAssignFallbackAssignsInOrder(t *testing.T) {
	g1 := domain.NewGuest("Asha", time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), "", "9876543210")
	g2 := domain.NewGuest("Ravi", time.Date(2012, 6, 1, 0, 0, 0, 0, time.UTC), "", "9876543210")

	c := suggest.NewClient("", "gemini-2.5-flash", time.Second, nopLogger{})
	got := c.AutoAssign(context.Background(), []domain.Guest{g1, g2}, []int{1, 3, 5})
	if len(got) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(got))
	}
	if got[1] != g1.ID || got[3] != g2.ID {
		t.Fatalf("unexpected assignment map %v", got)
	}
}

func TestClient_DiscrepancyNarrativeFallback(t *testing.T) {
	c := suggest.NewClient("", "gemini-2.5-flash", time.Second, nopLogger{})
	note := c.DiscrepancyNarrative(context.Background(), domain.CashDrawerSession{OpenedBy: "3333"}, -100)
	if !strings.Contains(note, "cash variance") {
		t.Fatalf("expected static fallback, got %q", note)
	}
}

func TestClient_AutoAssignEmptyInputs(t *testing.T) {
	c := suggest.NewClient("test-key", "gemini-2.5-flash", time.Second, nopLogger{})
	if got := c.AutoAssign(context.Background(), nil, []int{0}); len(got) != 0 {
		t.Fatalf("expected no assignments without guests, got %v", got)
	}
}

func TestClient_TransactionSuggestionEmptyParty(t *testing.T) {
	c := suggest.NewClient("test-key", "gemini-2.5-flash", time.Second, nopLogger{})
	tip := c.TransactionSuggestion(context.Background(), domain.Transaction{}, 0, nil)
	if tip != "" {
		t.Fatalf("expected empty suggestion for empty party, got %q", tip)
	}
}
