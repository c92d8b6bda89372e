package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jumpindia/funzone-pos/internal/adapters/crdb"
	mongoadapter "github.com/jumpindia/funzone-pos/internal/adapters/mongo"
	redisadapter "github.com/jumpindia/funzone-pos/internal/adapters/redis"
	"github.com/jumpindia/funzone-pos/internal/auth"
	"github.com/jumpindia/funzone-pos/internal/config"
	"github.com/jumpindia/funzone-pos/internal/drawer"
	httphandler "github.com/jumpindia/funzone-pos/internal/http"
	"github.com/jumpindia/funzone-pos/internal/idempotency"
	"github.com/jumpindia/funzone-pos/internal/observability"
	"github.com/jumpindia/funzone-pos/internal/pos"
	"github.com/jumpindia/funzone-pos/internal/ratelimit"
	"github.com/jumpindia/funzone-pos/internal/suggest"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const baseURL = "http://localhost:8089"

const schema = `
	CREATE DATABASE IF NOT EXISTS funzone;
	CREATE TABLE IF NOT EXISTS funzone.guests (
		id UUID PRIMARY KEY,
		name TEXT,
		dob TIMESTAMPTZ,
		email TEXT,
		phone TEXT,
		waiver_signed_on TIMESTAMPTZ,
		waiver_signature TEXT,
		guardian_name TEXT,
		group_code TEXT,
		group_waiver_date TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS funzone.transactions (
		id UUID PRIMARY KEY,
		phone TEXT,
		discount_type TEXT,
		discount_value DOUBLE PRECISION,
		created_at TIMESTAMPTZ DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS funzone.transaction_guests (
		transaction_id UUID,
		position INT,
		guest_id UUID,
		PRIMARY KEY (transaction_id, position)
	);
	CREATE TABLE IF NOT EXISTS funzone.cart_entries (
		transaction_id UUID,
		position INT,
		item_id TEXT,
		name TEXT,
		price DOUBLE PRECISION,
		category TEXT,
		assigned_guest_id UUID,
		assigned_guest_name TEXT,
		PRIMARY KEY (transaction_id, position)
	);
	CREATE TABLE IF NOT EXISTS funzone.sales (
		id UUID PRIMARY KEY,
		customer_id UUID,
		customer_name TEXT,
		subtotal DOUBLE PRECISION,
		discount_amount DOUBLE PRECISION,
		gst_amount DOUBLE PRECISION,
		total DOUBLE PRECISION,
		sale_date TIMESTAMPTZ,
		payment_method TEXT
	);
	CREATE TABLE IF NOT EXISTS funzone.sale_items (
		sale_id UUID,
		position INT,
		item_id TEXT,
		name TEXT,
		price DOUBLE PRECISION,
		category TEXT,
		assigned_guest_id UUID,
		assigned_guest_name TEXT,
		PRIMARY KEY (sale_id, position)
	);
	CREATE TABLE IF NOT EXISTS funzone.drawer_sessions (
		id UUID PRIMARY KEY,
		opening_time TIMESTAMPTZ,
		closing_time TIMESTAMPTZ,
		opening_balance DOUBLE PRECISION,
		closing_balance DOUBLE PRECISION,
		opened_by TEXT,
		closed_by TEXT,
		status TEXT CHECK (status IN ('OPEN', 'CLOSED')),
		opening_reason TEXT,
		discrepancy_reason TEXT,
		attachment_name TEXT,
		attachment_type TEXT,
		attachment_data TEXT
	);
	CREATE TABLE IF NOT EXISTS funzone.drawer_deposits (
		id UUID PRIMARY KEY,
		session_id UUID,
		amount DOUBLE PRECISION,
		recorded_at TIMESTAMPTZ,
		recorded_by TEXT,
		notes TEXT
	);
	CREATE TABLE IF NOT EXISTS funzone.outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT,
		aggregate_id UUID,
		event_type TEXT,
		payload_json JSONB,
		created_at TIMESTAMPTZ DEFAULT now(),
		published_at TIMESTAMPTZ,
		status TEXT,
		dedupe_key TEXT
	);
`

func doJSON(t *testing.T, method, path string, body interface{}, userCode string) *http.Response {
	t.Helper()
	return doJSONKeyed(t, method, path, body, userCode, uuid.New().String())
}

func doJSONKeyed(t *testing.T, method, path string, body interface{}, userCode, key string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, baseURL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	if userCode != "" {
		req.Header.Set("X-User-Code", userCode)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestIntegration_SaleAndDrawerFlow(t *testing.T) {
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer crdbContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForExec([]string{"mongosh", "--eval", "db.runCommand('ping').ok"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	crdbHost, _ := crdbContainer.Host(ctx)
	crdbPort, err := crdbContainer.MappedPort(ctx, "26257")
	if err != nil {
		t.Fatal(err)
	}
	mongoHost, _ := mongoContainer.Host(ctx)
	mongoPort, err := mongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatal(err)
	}
	redisHost, _ := redisContainer.Host(ctx)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		ListenAddr:        ":8089",
		PGDSN:             "postgresql://root@" + crdbHost + ":" + crdbPort.Port() + "/funzone?sslmode=disable",
		MongoURI:          "mongodb://" + mongoHost + ":" + mongoPort.Port(),
		RedisAddr:         redisHost + ":" + redisPort.Port(),
		GeminiModel:       "gemini-2.5-flash",
		SuggestionTimeout: time.Second,
		IdempotencyTTL:    time.Hour,
	}

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatal(err)
	}
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	mongoDB := mongoClient.Database("funzone")
	logger := observability.NewLogger()
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)
	if err := catalog.SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, cfg.IdempotencyTTL)
	rl := ratelimit.NewRateLimiter(redisCache)

	authStore := auth.NewStore()
	// No API key: advisory endpoints degrade to static fallbacks.
	suggestClient := suggest.NewClient("", cfg.GeminiModel, cfg.SuggestionTimeout, logger)

	posSvc := pos.NewService(repo, redisCache, catalog, authStore, audit, logger)
	drawerSvc := drawer.NewService(repo, redisCache, authStore, audit, logger)

	handlers := httphandler.NewHandlers(cfg, posSvc, drawerSvc, repo, catalog, suggestClient, authStore, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp, authStore)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go srv.ListenAndServe()
	defer srv.Shutdown(ctx)
	time.Sleep(200 * time.Millisecond)

	// Register a guest and sign their waiver.
	resp := doJSON(t, "POST", "/v1/guests", map[string]interface{}{
		"name":  "Asha",
		"dob":   "1990-01-01",
		"phone": "9876543210",
		"email": "asha@example.com",
	}, "3333")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register guest: status %d", resp.StatusCode)
	}
	var guestResp struct {
		GuestID uuid.UUID `json:"guest_id"`
	}
	decode(t, resp, &guestResp)

	resp = doJSON(t, "POST", "/v1/guests/"+guestResp.GuestID.String()+"/waiver", map[string]string{
		"signature": "Asha K",
	}, "3333")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign waiver: status %d", resp.StatusCode)
	}
	var waiverResp struct {
		WaiverStatus string `json:"waiver_status"`
	}
	decode(t, resp, &waiverResp)
	if waiverResp.WaiverStatus != "VALID" {
		t.Fatalf("expected VALID waiver, got %s", waiverResp.WaiverStatus)
	}

	// Open the drawer before selling.
	resp = doJSON(t, "POST", "/v1/drawer", map[string]interface{}{
		"opening_balance": 2500.0,
	}, "3333")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open drawer: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Build a transaction: ticket auto-assigns to the waiver-valid guest.
	resp = doJSON(t, "POST", "/v1/transactions", map[string]interface{}{
		"phone":     "9876543210",
		"guest_ids": []string{guestResp.GuestID.String()},
	}, "3333")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start transaction: status %d", resp.StatusCode)
	}
	var trResp struct {
		ID uuid.UUID `json:"id"`
	}
	decode(t, resp, &trResp)

	for _, productID := range []string{"tkt_60", "addon_socks"} {
		resp = doJSON(t, "POST", "/v1/transactions/"+trResp.ID.String()+"/items", map[string]string{
			"product_id": productID,
		}, "3333")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("add item %s: status %d", productID, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// Cash checkout: (500 + 100) * 1.18 = 708.
	resp = doJSON(t, "POST", "/v1/transactions/"+trResp.ID.String()+"/checkout", map[string]string{
		"payment_method": "Cash",
	}, "3333")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: status %d", resp.StatusCode)
	}
	var saleResp struct {
		SaleID uuid.UUID `json:"sale_id"`
		Total  float64   `json:"total"`
	}
	decode(t, resp, &saleResp)
	if saleResp.Total != 708 {
		t.Fatalf("expected total 708, got %v", saleResp.Total)
	}

	// Expected cash now 2500 + 708; drop 1000 into the safe. A retried
	// request with the same key replays instead of depositing again.
	depositKey := uuid.New().String()
	for i := 0; i < 2; i++ {
		resp = doJSONKeyed(t, "POST", "/v1/drawer/deposits", map[string]interface{}{
			"amount": 1000.0,
			"notes":  "safe drop",
		}, "3333", depositKey)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("deposit attempt %d: status %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}
	resp = doJSON(t, "GET", "/v1/drawer", nil, "3333")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current drawer: status %d", resp.StatusCode)
	}
	var drawerResp struct {
		ExpectedCash float64 `json:"expected_cash"`
	}
	decode(t, resp, &drawerResp)
	if drawerResp.ExpectedCash != 2208 {
		t.Fatalf("replayed deposit must not move cash twice: expected 2208, got %v", drawerResp.ExpectedCash)
	}

	// A shortfall without a reason is rejected.
	resp = doJSON(t, "POST", "/v1/drawer/close", map[string]interface{}{
		"counted_balance": 2000.0,
	}, "3333")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("close without reason: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Balanced close by the opener.
	resp = doJSON(t, "POST", "/v1/drawer/close", map[string]interface{}{
		"counted_balance": 2208.0,
	}, "3333")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close drawer: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Receipt renders for the stored sale.
	req, _ := http.NewRequest("GET", baseURL+"/v1/sales/"+saleResp.SaleID.String()+"/receipt", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("receipt: %v, status %d", err, resp.StatusCode)
	}
	resp.Body.Close()
}
