package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"chauffeur/internal/config"
	"chauffeur/internal/domain"
	"chauffeur/internal/models"
	"chauffeur/internal/pricing"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AddressLookup is the debounced autocomplete behind /addresses.
type AddressLookup interface {
	Lookup(ctx context.Context, session, field, q string) ([]models.AddressSuggestion, error)
	ReleaseSession(session string) int
}

type Dependencies struct {
	Forms     domain.FormService
	Estimator domain.PriceEstimator
	Fleet     *pricing.Fleet
	Addresses AddressLookup
	// Ready reports whether backing services answer; nil means always ready.
	Ready func(ctx context.Context) error
}

// Server is the public JSON API of the site.
type Server struct {
	cfg       *config.Config
	deps      Dependencies
	engine    *gin.Engine
	server    *http.Server
	limiter   *rateLimiter
	formNames []string
	startedAt time.Time
	log       *zerolog.Logger
}

func NewServer(cfg *config.Config, deps Dependencies, forms []string, logger *zerolog.Logger) *Server {
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidation()

	names := append([]string(nil), forms...)
	sort.Strings(names)

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		limiter:   newRateLimiter(cfg.HTTP.RateLimit),
		formNames: names,
		startedAt: time.Now(),
		log:       logger,
	}
	s.engine = s.setupRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	return s
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()

	router.
		Use(StartRequest).
		Use(RequestID).
		Use(RegisterLogger(s.log)).
		Use(TraceLog).
		Use(PanicRecovery).
		Use(cors.New(s.corsConfig()))

	router.GET("/healthz", s.handleHealth)
	router.GET("/readyz", s.handleReady)

	v1 := router.Group("/api/v1")
	v1.Use(RateLimit(s.limiter))
	{
		v1.GET("/site-config", s.handleSiteConfig)
		v1.GET("/vehicles", s.handleVehicles)
		v1.POST("/estimate", s.handleEstimate)
		v1.POST("/estimate/pdf", s.handleEstimatePDF)
		v1.GET("/tariffs.xlsx", s.handleTariffs)

		v1.POST("/forms/:form/sessions", s.handleStartSession)
		v1.GET("/sessions/:id", s.handleGetSession)
		v1.POST("/sessions/:id/next", s.handleNext)
		v1.POST("/sessions/:id/back", s.handleBack)
		v1.POST("/sessions/:id/goto", s.handleGoTo)
		v1.POST("/sessions/:id/submit", s.handleSubmit)

		v1.GET("/addresses", s.handleAddresses)
	}

	router.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, codeNotFound, "route not found", nil)
	})

	if !s.cfg.App.IsProduction() {
		pprof.Register(router)
	}

	return router
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader, "Content-Disposition"}
	cfg.MaxAge = 12 * time.Hour

	origins := make([]string, 0, len(s.cfg.HTTP.CORSOrigins))
	for _, o := range s.cfg.HTTP.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// Start blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunLimiterCleanup drops idle rate-limit buckets until ctx is done.
func (s *Server) RunLimiterCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.cleanup(interval); n > 0 {
				s.log.Debug().Int("removed", n).Msg("rate limiters cleaned up")
			}
		}
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
