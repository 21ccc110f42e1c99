package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const timeout time.Duration = 10 * time.Second

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

type server struct {
	cfg     *Config
	store   *Store
	rooms   *RoomManager
	flights *flightCatalog
	metrics *metricsSet
	logger  zerolog.Logger
}

func ServeAPI(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logger := newLogger(cfg.verbose)

	if cfg.secretKey != "" {
		cfg.secret = []byte(cfg.secretKey)
	} else {
		cfg.secret = randomSecret()
		logger.Warn().Msg("no --secret configured, participant tokens will not survive a restart")
	}

	store, err := openDatabase(cfg.dbDriver, cfg.dbURL)
	if err != nil {
		return err
	}
	defer store.Close()

	flights, err := loadFlightCatalog(cfg.flights)
	if err != nil {
		return err
	}

	metrics := newMetrics()

	s := &server{
		cfg:     cfg,
		store:   store,
		rooms:   newRoomManager(cfg.sessionTimeout, metrics),
		flights: flights,
		metrics: metrics,
		logger:  logger,
	}

	logger.Info().
		Str("version", releaseVersion).
		Str("driver", cfg.dbDriver).
		Int("flights", len(flights.templates)).
		Msg("starting whiskeycanon")

	mux := httprouter.New()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		securityHeaders(cfg, w)

		s.logger.Error().Any("panic", i).Str("path", r.URL.Path).Msg("handler panicked")

		jsonError(w, http.StatusInternalServerError, "internal error")
	}

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.POST(cfg.prefix+"/api/sessions", s.withLogging("/api/sessions", s.serveCreateSession))

	mux.GET(cfg.prefix+"/api/sessions/:code", s.withLogging("/api/sessions/:code", s.serveGetSession))

	mux.POST(cfg.prefix+"/api/sessions/:code/join", s.withLogging("/api/sessions/:code/join", s.serveJoinSession))

	mux.GET(cfg.prefix+"/api/sessions/:code/qr", s.withLogging("/api/sessions/:code/qr", s.serveSessionQR))

	// The socket route skips withLogging, since the upgrader needs the
	// raw http.Hijacker underneath the ResponseWriter.
	mux.GET(cfg.prefix+"/api/sessions/:code/ws", s.serveSessionSocket)

	mux.POST(cfg.prefix+"/api/sessions/:code/whiskeys", s.withLogging("/api/sessions/:code/whiskeys", s.serveAddWhiskeys))

	mux.PATCH(cfg.prefix+"/api/sessions/:code/whiskeys/:whiskey", s.withLogging("/api/sessions/:code/whiskeys/:whiskey", s.serveUpdateWhiskey))

	mux.DELETE(cfg.prefix+"/api/sessions/:code/whiskeys/:whiskey", s.withLogging("/api/sessions/:code/whiskeys/:whiskey", s.serveRemoveWhiskey))

	mux.POST(cfg.prefix+"/api/sessions/:code/open", s.withLogging("/api/sessions/:code/open", s.serveOpenSession))

	mux.POST(cfg.prefix+"/api/sessions/:code/start", s.withLogging("/api/sessions/:code/start", s.serveStartSession))

	mux.POST(cfg.prefix+"/api/sessions/:code/advance", s.withLogging("/api/sessions/:code/advance", s.serveAdvancePhase))

	mux.POST(cfg.prefix+"/api/sessions/:code/pause", s.withLogging("/api/sessions/:code/pause", s.servePauseSession))

	mux.POST(cfg.prefix+"/api/sessions/:code/resume", s.withLogging("/api/sessions/:code/resume", s.serveResumeSession))

	mux.POST(cfg.prefix+"/api/sessions/:code/reveal", s.withLogging("/api/sessions/:code/reveal", s.serveRevealSession))

	mux.POST(cfg.prefix+"/api/sessions/:code/complete", s.withLogging("/api/sessions/:code/complete", s.serveCompleteSession))

	mux.POST(cfg.prefix+"/api/sessions/:code/lock", s.withLogging("/api/sessions/:code/lock", s.serveLockSession))

	mux.GET(cfg.prefix+"/api/sessions/:code/participants", s.withLogging("/api/sessions/:code/participants", s.serveListParticipants))

	mux.DELETE(cfg.prefix+"/api/sessions/:code/participants/:participant", s.withLogging("/api/sessions/:code/participants/:participant", s.serveKickParticipant))

	mux.PUT(cfg.prefix+"/api/sessions/:code/scores/:whiskey", s.withLogging("/api/sessions/:code/scores/:whiskey", s.serveSubmitScore))

	mux.GET(cfg.prefix+"/api/sessions/:code/scores", s.withLogging("/api/sessions/:code/scores", s.serveMyScores))

	mux.GET(cfg.prefix+"/api/sessions/:code/results", s.withLogging("/api/sessions/:code/results", s.serveResults))

	mux.GET(cfg.prefix+"/api/flights", s.withLogging("/api/flights", s.serveFlightTemplates))

	mux.GET(cfg.prefix+"/healthz", s.withLogging("/healthz", s.serveHealthCheck))

	mux.GET(cfg.prefix+"/robots.txt", s.withLogging("/robots.txt", s.serveRobots))

	mux.GET(cfg.prefix+"/version", s.withLogging("/version", s.serveVersion))

	mux.Handler("GET", cfg.prefix+"/metrics", s.metrics.handler())

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	go func() {
		var err error

		s.logger.Info().Str("url", cfg.scheme()+"://"+srv.Addr+cfg.prefix+"/").Msg("listening")

		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	s.rooms.shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
