package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chauffeur/internal/autocomplete"
	"chauffeur/internal/config"
	"chauffeur/internal/events"
	"chauffeur/internal/models"
	"chauffeur/internal/pricing"
	"chauffeur/internal/repository"
	"chauffeur/internal/service"
	"chauffeur/internal/wizard"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)

type stubDispatcher struct {
	mu  sync.Mutex
	got []models.Submission
	err error
}

func (d *stubDispatcher) Enqueue(_ context.Context, s models.Submission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.got = append(d.got, s)
	return nil
}

type stubSearcher struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (s *stubSearcher) Search(ctx context.Context, q string) ([]models.AddressSuggestion, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []models.AddressSuggestion{{ID: "75108_1", Label: q + " 75008 Paris", City: "Paris", Postcode: "75008"}}, nil
}

type fixture struct {
	server     *Server
	dispatcher *stubDispatcher
	searcher   *stubSearcher
	hub        *autocomplete.Hub
	ready      error
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	logger := zerolog.Nop()

	cfg := &config.Config{
		App:          config.AppConfig{Name: "chauffeur", Environment: config.EnvDevelopment},
		Site:         config.SiteConfig{Name: "Élite Chauffeur"},
		Maps:         config.MapsConfig{APIKey: "maps-key"},
		Autocomplete: config.AutocompleteConfig{MinLength: 3},
		HTTP:         config.HTTPConfig{CORSOrigins: []string{"https://chauffeur.example"}},
	}
	for _, m := range mutate {
		m(cfg)
	}

	fleet := pricing.DefaultFleet()
	calc := pricing.NewCalculator(fleet, pricing.SyntheticDistance{})
	fx := &fixture{dispatcher: &stubDispatcher{}, searcher: &stubSearcher{}}

	states := service.NewStateService(repository.NewMemoryStateRepository(time.Hour), &logger)
	forms := wizard.Registry(fleet.IDs())
	formService := service.NewFormService(forms, states, calc, events.NewEventBus(&logger), fx.dispatcher,
		service.FormServiceOptions{}, &logger).WithClock(func() time.Time { return testNow })

	hub := autocomplete.NewHub(fx.searcher, autocomplete.Options{MinLength: 3, Debounce: time.Millisecond}, time.Minute, logger)
	fx.hub = hub

	names := make([]string, 0, len(forms))
	for name := range forms {
		names = append(names, name)
	}

	fx.server = NewServer(cfg, Dependencies{
		Forms:     formService,
		Estimator: calc,
		Fleet:     fleet,
		Addresses: hub,
		Ready:     func(context.Context) error { return fx.ready },
	}, names, &logger)
	return fx
}

func (fx *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndReadiness(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = fx.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	fx.ready = errors.New("redis down")
	rec = fx.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
	body := decode(t, rec)
	assert.Equal(t, codeNotFound, body["code"])
	assert.Equal(t, "req-42", body["request_id"])
}

func TestSiteConfigAndVehicles(t *testing.T) {
	fx := newFixture(t)

	body := decode(t, fx.do(t, http.MethodGet, "/api/v1/site-config", nil))
	assert.Equal(t, "maps-key", body["maps_api_key"])
	assert.Equal(t, "EUR", body["currency"])
	assert.EqualValues(t, 3, body["min_query_length"])
	assert.Equal(t, []interface{}{"booking", "quote"}, body["forms"])

	body = decode(t, fx.do(t, http.MethodGet, "/api/v1/vehicles", nil))
	vehicles, ok := body["vehicles"].([]interface{})
	require.True(t, ok)
	require.Len(t, vehicles, 3)
	assert.Equal(t, "business", vehicles[0].(map[string]interface{})["id"])
}

func TestEstimate(t *testing.T) {
	fx := newFixture(t)

	tests := []struct {
		name    string
		body    map[string]interface{}
		total   float64
		airport bool
	}{
		{"disposition van", map[string]interface{}{"mode": "disposition", "departure": "Opéra", "vehicle_class": "van"}, 270, false},
		{"roissy first", map[string]interface{}{"departure": "Paris", "arrival": "ROISSY T2", "vehicle_class": "first"}, 140, true},
		{"orly business", map[string]interface{}{"mode": "transfer", "departure": "Orly Sud", "arrival": "Paris"}, 80, true},
		// (5 + 6) * 3.7 = 40.7 km, round(40.7 * 2.2) = 90
		{"synthetic distance", map[string]interface{}{"departure": "Paris", "arrival": "Meaux,", "vehicle_class": "business"}, 65 + 90, false},
		{"padded addresses", map[string]interface{}{"departure": "  Paris ", "arrival": "Meaux, ", "vehicle_class": "business"}, 65 + 90, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(t, http.MethodPost, "/api/v1/estimate", tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var est models.PriceEstimate
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &est))
			assert.Equal(t, tt.total, est.Total)
			assert.Equal(t, tt.airport, est.IsAirportTransfer)
			assert.Equal(t, models.CurrencyEUR, est.Currency)
		})
	}
}

func TestEstimateValidation(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/estimate", map[string]interface{}{"mode": "helicopter"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, codeValidation, body["code"])

	fields := body["details"].(map[string]interface{})["fields"].([]interface{})
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.(map[string]interface{})["field"].(string))
	}
	assert.ElementsMatch(t, []string{"mode", "departure"}, names)

	rec = fx.do(t, http.MethodPost, "/api/v1/estimate", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimatePDFAndTariffs(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/estimate/pdf", map[string]interface{}{"departure": "Paris", "arrival": "CDG"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = fx.do(t, http.MethodGet, "/api/v1/tariffs.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "tarifs.xlsx")
	// xlsx is a zip archive
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func startSession(t *testing.T, fx *fixture, form string) string {
	t.Helper()
	rec := fx.do(t, http.MethodPost, "/api/v1/forms/"+form+"/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decode(t, rec)["session"].(map[string]interface{})
	return session["session_id"].(string)
}

func sessionOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	return decode(t, rec)["session"].(map[string]interface{})
}

func TestQuoteFlow(t *testing.T) {
	fx := newFixture(t)
	id := startSession(t, fx, models.FormQuote)
	base := "/api/v1/sessions/" + id

	// missing arrival for a transfer
	rec := fx.do(t, http.MethodPost, base+"/next", map[string]interface{}{"values": map[string]interface{}{
		"service_type": "transfer", "departure": "Paris 8e", "date": "2030-06-03",
	}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, codeValidation, body["code"])
	assert.EqualValues(t, 0, body["session"].(map[string]interface{})["current_step"])
	details := body["details"].(map[string]interface{})
	assert.Equal(t, "trip", details["step_name"])

	rec = fx.do(t, http.MethodPost, base+"/next", map[string]interface{}{"values": map[string]interface{}{
		"service_type": "transfer", "departure": "Paris 8e", "arrival": "Aéroport Roissy", "date": "2030-06-03",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := sessionOf(t, rec)
	assert.EqualValues(t, 1, session["current_step"])
	assert.Equal(t, true, session["is_last"])

	// contact step still empty
	rec = fx.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = fx.do(t, http.MethodPost, base+"/next", map[string]interface{}{"values": map[string]interface{}{
		"name": "Camille Martin", "email": "camille@example.com", "phone": "06 12 34 56 78",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, sessionOf(t, rec)["current_step"])

	rec = fx.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode(t, rec)
	assert.Regexp(t, `^CH-[0-9A-F]{8}$`, result["reference"])
	estimate := result["estimate"].(map[string]interface{})
	assert.EqualValues(t, 95, estimate["total"])
	assert.Equal(t, true, estimate["is_airport_transfer"])

	require.Len(t, fx.dispatcher.got, 1)
	assert.Equal(t, "Camille Martin", fx.dispatcher.got[0].Request.Contact.FullName())

	rec = fx.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookingNavigation(t *testing.T) {
	fx := newFixture(t)
	id := startSession(t, fx, models.FormBooking)
	base := "/api/v1/sessions/" + id

	rec := fx.do(t, http.MethodPost, base+"/goto", map[string]interface{}{"step": 2})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeStepLocked, decode(t, rec)["code"])

	rec = fx.do(t, http.MethodPost, base+"/goto", map[string]interface{}{"step": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodPost, base+"/goto", map[string]interface{}{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = fx.do(t, http.MethodPost, base+"/next", map[string]interface{}{"values": map[string]interface{}{
		"service_type": "disposition", "departure": "Opéra Garnier", "date": "2030-06-02", "time": "09:30",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, sessionOf(t, rec)["current_step"])

	rec = fx.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeNotReady, decode(t, rec)["code"])

	rec = fx.do(t, http.MethodPost, base+"/back", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, sessionOf(t, rec)["current_step"])

	rec = fx.do(t, http.MethodPost, base+"/back", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, sessionOf(t, rec)["current_step"])

	rec = fx.do(t, http.MethodPost, base+"/goto", map[string]interface{}{"step": 0})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	session := sessionOf(t, rec)
	assert.Equal(t, []interface{}{float64(0)}, session["completed"])
	assert.Equal(t, "Opéra Garnier", session["values"].(map[string]interface{})["departure"])
}

func TestUnknownFormAndSession(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/forms/newsletter/sessions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/v1/sessions/unknown/next", map[string]interface{}{"values": map[string]interface{}{}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitDispatchFailure(t *testing.T) {
	fx := newFixture(t)
	fx.dispatcher.err = errors.New("queue full")
	id := startSession(t, fx, models.FormQuote)
	base := "/api/v1/sessions/" + id

	require.Equal(t, http.StatusOK, fx.do(t, http.MethodPost, base+"/next", map[string]interface{}{"values": map[string]interface{}{
		"service_type": "disposition", "departure": "Paris 8e", "date": "2030-06-03",
	}}).Code)
	require.Equal(t, http.StatusOK, fx.do(t, http.MethodPost, base+"/next", map[string]interface{}{"values": map[string]interface{}{
		"name": "Camille Martin", "email": "camille@example.com", "phone": "0612345678",
	}}).Code)

	rec := fx.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, codeSubmissionFailed, body["code"])
	assert.NotContains(t, body["error"], "queue full")

	// the session survives so the visitor can retry
	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, base, nil).Code)
}

func TestAddresses(t *testing.T) {
	fx := newFixture(t)

	body := decode(t, fx.do(t, http.MethodGet, "/api/v1/addresses?q=ab&session=s1&field=departure", nil))
	assert.Empty(t, body["suggestions"])
	assert.EqualValues(t, 0, fx.searcher.calls.Load())

	body = decode(t, fx.do(t, http.MethodGet, "/api/v1/addresses?q=8+bd+du+port&session=s1&field=departure", nil))
	suggestions := body["suggestions"].([]interface{})
	require.Len(t, suggestions, 1)
	assert.Equal(t, "75008", suggestions[0].(map[string]interface{})["postcode"])
	assert.EqualValues(t, 1, fx.searcher.calls.Load())
}

func TestAddressesWithoutSession(t *testing.T) {
	fx := newFixture(t)
	fx.searcher.gate = make(chan struct{})

	var wg sync.WaitGroup
	bodies := make([]map[string]interface{}, 2)
	for i, q := range []string{"8+bd+du+port", "12+rue+de+rivoli"} {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			rec := fx.do(t, http.MethodGet, "/api/v1/addresses?q="+q+"&field=departure", nil)
			var out map[string]interface{}
			if assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out)) {
				bodies[i] = out
			}
		}(i, q)
	}

	// both lookups reach the searcher before either completes
	require.Eventually(t, func() bool { return fx.searcher.calls.Load() == 2 }, time.Second, time.Millisecond)
	close(fx.searcher.gate)
	wg.Wait()

	for _, body := range bodies {
		require.NotNil(t, body)
		assert.Nil(t, body["superseded"])
		assert.Len(t, body["suggestions"], 1)
	}
	assert.Equal(t, 0, fx.hub.Len())
}

func TestRateLimit(t *testing.T) {
	fx := newFixture(t, func(c *config.Config) {
		c.HTTP.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 1}
	})

	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, "/api/v1/vehicles", nil).Code)
	rec := fx.do(t, http.MethodGet, "/api/v1/vehicles", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, codeRateLimited, decode(t, rec)["code"])

	// health checks are not limited
	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, "/healthz", nil).Code)
}

func TestCORS(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/estimate", nil)
	req.Header.Set("Origin", "https://chauffeur.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://chauffeur.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPanicRecovery(t *testing.T) {
	fx := newFixture(t)
	fx.server.engine.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := fx.do(t, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, codeInternal, decode(t, rec)["code"])
}

func TestPprofOnlyOutsideProduction(t *testing.T) {
	fx := newFixture(t)
	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, "/debug/pprof/cmdline", nil).Code)

	prod := newFixture(t, func(c *config.Config) { c.App.Environment = config.EnvProduction })
	assert.Equal(t, http.StatusNotFound, prod.do(t, http.MethodGet, "/debug/pprof/cmdline", nil).Code)
}

func TestRateLimiterCleanup(t *testing.T) {
	l := newRateLimiter(config.RateLimitConfig{RPS: 1, Burst: 1})
	now := testNow
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	now = now.Add(time.Minute)
	assert.True(t, l.Allow("b"))

	assert.Equal(t, 1, l.cleanup(30*time.Second))
	assert.False(t, l.Allow("b"))
}
