package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/asyncpoller/api/internal/classifier"
	"github.com/asyncpoller/api/internal/client"
	"github.com/asyncpoller/api/internal/config"
	"github.com/asyncpoller/api/internal/dedup"
	"github.com/asyncpoller/api/internal/middleware"
	"github.com/asyncpoller/api/internal/service"
	"github.com/asyncpoller/api/internal/store"
	"github.com/asyncpoller/api/internal/worker"
	ws "github.com/asyncpoller/api/internal/websocket"
)

const finalAnswer = "Your flight JL123 departs at 10:00 from Narita."

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *store.MemoryStore
}

// fakeEngine answers like a workflow engine: requests mentioning "slow" only
// ever get a placeholder back.
func fakeEngine(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Query().Get("q"), "slow") {
			_, _ = w.Write([]byte(`{"text":"Processing your request"}`))
			return
		}
		_, _ = w.Write([]byte(`{"text":"` + finalAnswer + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupApp creates a Fiber app wired like main.go, against a fake workflow
// engine and an in-memory Redis.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	logger := zerolog.Nop()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	engine := fakeEngine(t)
	webhookClient := client.NewWebhookClient(&config.WebhookConfig{
		BaseURL:   engine.URL,
		Path:      "/webhook/assistant",
		Timeout:   5,
		Workflows: map[string]string{"travel": "/webhook/travel"},
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	pool := worker.NewPool(4, 16, logger)
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		stopCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		_ = pool.Stop(stopCtx)
	})

	jobsCfg := config.JobsConfig{
		DedupWindowSecs:     30,
		SpeakEverySecs:      6,
		MinPollIntervalSecs: 6,
		MaxPolls:            20,
		NextPollAfterMs:     2000,
	}
	jobStore := store.NewMemoryStore()
	resolver := worker.NewResolutionWorker(
		jobStore,
		webhookClient,
		classifier.New(classifier.Options{}),
		hub,
		worker.Policy{RetryDelay: 10 * time.Millisecond, Deadline: 2 * time.Second},
		logger,
	)
	jobService := service.NewJobService(jobStore, dedup.NewIndex(jobsCfg.DedupWindow()), pool, resolver, webhookClient, hub, jobsCfg, logger)

	validate := validator.New()
	jobHandler := NewJobHandler(jobService, validate)
	healthHandler := NewHealthHandler(redisClient, webhookClient)

	// Use very high rate limits so tests don't get blocked
	rateLimiter := middleware.NewRateLimiter(redisClient, logger)

	app := fiber.New()
	app.Get("/health", healthHandler.Check)

	api := app.Group("/api")
	api.Get("/ping", jobHandler.Ping)
	api.Post("/echo", jobHandler.Echo)

	api.Post("/jobs", rateLimiter.SubmitLimit(10000), jobHandler.Submit)
	api.Get("/jobs/:jobId/poll", rateLimiter.PollLimit(10000), jobHandler.Poll)
	api.Get("/jobs/:jobId", jobHandler.Snapshot)

	return &testApp{app: app, store: jobStore}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// submitJob posts text and returns the job id.
func submitJob(t *testing.T, app *fiber.App, body string) string {
	t.Helper()
	resp, err := doRequest(app, http.MethodPost, "/api/jobs", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	result := parseJSON(t, resp)
	id, _ := result["id"].(string)
	if id == "" {
		t.Fatalf("expected 'id' in response, got %v", result)
	}
	return id
}

// waitForStatus blocks until the stored job leaves pending or the wait expires.
func waitForStatus(t *testing.T, ta *testApp, id string) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := ta.store.Get(id); ok && job.Status.IsTerminal() {
			return string(job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not settle in time", id)
	return ""
}
