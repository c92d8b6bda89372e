package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jumpindia/funzone-pos/internal/domain"
	"github.com/jumpindia/funzone-pos/internal/observability"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Static texts served when the model is unreachable or misconfigured.
// The counter never fails a sale over an advisory string.
const (
	fallbackSafetyTip   = "Remember to always jump safely and have fun!"
	fallbackSuggestion  = "Check if guests need socks for their jump time!"
	fallbackWaiverText  = "Error: Could not load waiver text. Please check your connection and API key. As a placeholder: I acknowledge the risks and agree to the terms."
	fallbackDiscrepancy = "A cash variance was recorded at close. Review the session's cash sales and deposits with the closing staff member."
)

// Client calls the Gemini generateContent endpoint for advisory text:
// cashier suggestions, safety tips, and waiver boilerplate.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     observability.Logger
}

func NewClient(apiKey, model string, timeout time.Duration, logger observability.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      model,
		logger:     logger,
	}
}

// WithBaseURL points the client at a different API host.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	TopP             float64 `json:"topP,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, prompt string, cfg *generationConfig) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("suggest: api key not configured")
	}

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: cfg,
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("suggest: unexpected status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("suggest: empty response")
	}
	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}

func (c *Client) fallback(text string, err error) string {
	c.logger.Error("suggestion call failed", err)
	observability.SuggestionFallbacks.Inc()
	return text
}

// SafetyTip returns a short jumper safety reminder for the lobby
// display.
func (c *Client) SafetyTip(ctx context.Context) string {
	prompt := "Provide a short, friendly, and important safety tip for a trampoline park visitor. " +
		"Make it easy to remember and under 15 words. " +
		"For example: 'Always land on two feet!' or 'One person per trampoline!'"
	text, err := c.generate(ctx, prompt, nil)
	if err != nil {
		return c.fallback(fallbackSafetyTip, err)
	}
	return text
}

// WaiverText returns liability waiver boilerplate for the signature
// screen.
func (c *Client) WaiverText(ctx context.Context) string {
	prompt := "Generate a comprehensive liability waiver for a trampoline park named 'Jump India Fun Zone' " +
		"located in Mumbai, India. The waiver should be legally sound under Indian law, covering risks of " +
		"injury, including serious injury or death, from activities like jumping on trampolines, foam pits, " +
		"dodgeball, and climbing walls. It must include clauses for assumption of risk, release of liability, " +
		"indemnification, and a declaration of physical fitness. The participant must acknowledge they have " +
		"read and understood the rules. Also include a section for a parent or legal guardian to sign for " +
		"participants under 18 years of age. The tone should be serious and legally protective, but clear and " +
		"understandable for a layperson. Structure it with clear headings and paragraphs."
	text, err := c.generate(ctx, prompt, nil)
	if err != nil {
		return c.fallback(fallbackWaiverText, err)
	}
	return text
}

// TransactionSuggestion returns a one-line tip for the cashier about
// the party at the counter.
func (c *Client) TransactionSuggestion(ctx context.Context, t domain.Transaction, previousSales int, lastVisit *time.Time) string {
	if len(t.Guests) == 0 {
		return ""
	}

	now := time.Now()
	var guests strings.Builder
	for _, g := range t.Guests {
		fmt.Fprintf(&guests, "- %s (Age: %d, Waiver: %s)\n", g.Name, g.Age(now), domain.GetWaiverStatus(g, now))
	}

	cart := "Cart is empty."
	if len(t.Cart) > 0 {
		var b strings.Builder
		for _, e := range t.Cart {
			fmt.Fprintf(&b, "- %s\n", e.Name)
		}
		cart = strings.TrimRight(b.String(), "\n")
	}

	visit := "This is their first visit."
	if lastVisit != nil {
		visit = lastVisit.Format("02/01/2006")
	}

	prompt := fmt.Sprintf(`You are an intelligent assistant for a trampoline park cashier. Your goal is to provide a brief, helpful suggestion or observation to improve the customer's experience or remind the cashier of something important. Keep the suggestion under 25 words.

Here is the current transaction information:
- Customer Group Phone: %s
- Guests in Group:
%s- Items in Cart:
%s
- Customer History:
This group has made %d previous transactions. Last visit was on: %s.

Based on this, what is a helpful tip for the cashier?
Example suggestions:
- "The kids have jump passes but no socks in the cart. Remind the parent they are required."
- "This is their 5th visit! Thank them for being a loyal customer."
- "One guest's waiver is expired. They will need to re-sign before jumping."
`, t.Phone, guests.String(), cart, previousSales, visit)

	text, err := c.generate(ctx, prompt, &generationConfig{
		Temperature:     0.7,
		TopP:            1,
		MaxOutputTokens: 50,
	})
	if err != nil {
		return c.fallback(fallbackSuggestion, err)
	}
	return text
}

// DiscrepancyNarrative summarizes a cash variance for the close report.
func (c *Client) DiscrepancyNarrative(ctx context.Context, session domain.CashDrawerSession, discrepancy float64) string {
	direction := "over"
	if discrepancy < 0 {
		direction = "short"
	}
	prompt := fmt.Sprintf(`You are an assistant for a trampoline park manager reviewing a cash register close. The drawer was counted %s by %.2f INR. The session was opened by staff code %s with a float of %.2f INR and had %d safe deposits. The closing staff gave this reason: %q.

Write a brief, neutral two-sentence note for the end-of-day report summarizing the variance and the stated reason. Do not speculate about misconduct.`,
		direction, math.Abs(discrepancy), session.OpenedBy, session.OpeningBalance, len(session.Deposits), session.DiscrepancyReason)

	text, err := c.generate(ctx, prompt, &generationConfig{MaxOutputTokens: 100})
	if err != nil {
		return c.fallback(fallbackDiscrepancy, err)
	}
	return text
}

// AutoAssign asks the model to pair waiver-valid guests with open
// ticket slots, one guest per slot. When the model is unavailable it
// assigns guests to slots in order, so the register never blocks on it.
func (c *Client) AutoAssign(ctx context.Context, guests []domain.Guest, slots []int) map[int]uuid.UUID {
	if len(guests) == 0 || len(slots) == 0 {
		return map[int]uuid.UUID{}
	}

	now := time.Now()
	var guestList strings.Builder
	for _, g := range guests {
		fmt.Fprintf(&guestList, "- Guest ID: %s, Name: %s, Age: %d\n", g.ID, g.Name, g.Age(now))
	}
	slotList := make([]string, len(slots))
	for i, s := range slots {
		slotList[i] = fmt.Sprintf("%d", s)
	}

	prompt := fmt.Sprintf(`You are an intelligent assistant for a trampoline park Point-of-Sale system. Your task is to assign guests to jump tickets. Here is a list of guests with valid waivers and a list of available jump ticket slots.

Guests:
%s
Ticket Slots (by index): %s

Please provide a JSON object that maps each ticket slot index to a unique guest ID. Assign each guest to at most one ticket. The primary goal is to assign one guest per available ticket slot until you run out of guests or tickets.

Your response must be a JSON object with a single key "assignments", which is an array of objects, where each object has a "ticketIndex" (number) and a "guestId" (string).

Example JSON output format:
{ "assignments": [ { "ticketIndex": 0, "guestId": "cust_7" }, { "ticketIndex": 1, "guestId": "cust_8" } ] }`,
		guestList.String(), strings.Join(slotList, ", "))

	text, err := c.generate(ctx, prompt, &generationConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return c.assignInOrder(guests, slots, err)
	}

	var out struct {
		Assignments []struct {
			TicketIndex int    `json:"ticketIndex"`
			GuestID     string `json:"guestId"`
		} `json:"assignments"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return c.assignInOrder(guests, slots, err)
	}

	validSlot := make(map[int]bool, len(slots))
	for _, s := range slots {
		validSlot[s] = true
	}
	validGuest := make(map[uuid.UUID]bool, len(guests))
	for _, g := range guests {
		validGuest[g.ID] = true
	}

	result := make(map[int]uuid.UUID)
	for _, a := range out.Assignments {
		id, err := uuid.Parse(a.GuestID)
		if err != nil || !validSlot[a.TicketIndex] || !validGuest[id] {
			continue
		}
		result[a.TicketIndex] = id
	}
	return result
}

func (c *Client) assignInOrder(guests []domain.Guest, slots []int, err error) map[int]uuid.UUID {
	c.logger.Error("auto-assign call failed", err)
	observability.SuggestionFallbacks.Inc()
	result := make(map[int]uuid.UUID)
	for i, s := range slots {
		if i >= len(guests) {
			break
		}
		result[s] = guests[i].ID
	}
	return result
}
