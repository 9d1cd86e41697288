package main

import (
	"certificate-server/certificates"
	"certificate-server/config"
	"certificate-server/core"
	"certificate-server/editor"
	"certificate-server/handlers/api/issuances"
	"certificate-server/handlers/api/sessions"
	"certificate-server/handlers/api/templates"
	"certificate-server/handlers/websocket"
	"certificate-server/locks"
	redisguard "certificate-server/locks/redis"
	"certificate-server/render"
	"certificate-server/stores"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const sweepInterval = time.Minute

type app struct {
	store    stores.Store
	guard    locks.Guard
	registry core.RoomRegistry
	manager  *editor.Manager
	issuer   *certificates.Issuer
	renderer *render.Renderer
	presence *websocket.Presence
}

func setupRouter(a *app) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsOptions := cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if origin == "" {
				return false
			}

			parsed, err := url.Parse(origin)
			if err != nil {
				return false
			}

			switch parsed.Scheme {
			case "http", "https":
				switch parsed.Hostname() {
				case "localhost", "127.0.0.1", "::1":
					return true
				}
			}
			return false
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Issuance-Id", "X-Certificates-Generated", "X-Certificates-Skipped", "X-Certificates-Failed"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	r.Use(cors.Handler(corsOptions))

	r.Route("/api/templates", func(r chi.Router) {
		r.Get("/", templates.HandleList(a.store))
		r.Post("/", templates.HandleCreate(a.store, a.renderer))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", templates.HandleGet(a.store))
			r.Put("/", templates.HandleUpdate(a.store, a.guard, a.renderer))
			r.Delete("/", templates.HandleDelete(a.store, a.guard))

			r.Get("/certificates", issuances.HandleList(a.issuer))
			r.Post("/certificates", issuances.HandleGenerate(a.issuer))
			r.Post("/certificates/batch", issuances.HandleBatch(a.issuer))
		})
	})

	r.Delete("/api/certificates/{issuanceId}", issuances.HandleRevoke(a.issuer))

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", sessions.HandleOpen(a.manager))
		r.Route("/{sid}", func(r chi.Router) {
			r.Get("/", sessions.HandleGet(a.manager))
			r.Delete("/", sessions.HandleClose(a.manager))
			r.Post("/elements", sessions.HandleAddElement(a.manager))
			r.Post("/elements/{eid}/move", sessions.HandleMove(a.manager))
			r.Post("/elements/{eid}/resize", sessions.HandleResize(a.manager))
			r.Patch("/elements/{eid}", sessions.HandleUpdateStyle(a.manager))
			r.Put("/selection", sessions.HandleSelect(a.manager))
			r.Delete("/selection", sessions.HandleDeleteSelected(a.manager))
			r.Post("/layers", sessions.HandleLayer(a.manager))
			r.Post("/keys", sessions.HandleKey(a.manager))
			r.Post("/click", sessions.HandleClick(a.manager))
			r.Put("/settings", sessions.HandleSettings(a.manager))
			r.Post("/save", sessions.HandleSave(a.manager))
			r.Get("/preview.png", sessions.HandlePreview(a.manager))
			r.Get("/export.pdf", sessions.HandleExportPDF(a.manager))
		})
	})

	r.Get("/api/presence", websocket.HandlePresence(a.presence, a.registry))

	return r
}

func newGuard(cfg *config.Config) (locks.Guard, io.Closer, error) {
	if cfg.RedisAddr == "" {
		logrus.Info("Use in-process save guard")
		return locks.NewMemoryGuard(), nil, nil
	}

	guard := redisguard.NewGuard(redisguard.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.SaveLockTTL,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := guard.Ping(ctx); err != nil {
		guard.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logrus.WithField("addr", cfg.RedisAddr).Info("Use Redis save guard")
	return guard, guard, nil
}

func waitForShutdown(ioo *socketio.Server, srv *http.Server, stop context.CancelFunc, closers ...io.Closer) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signalC
	logrus.WithField("signal", s.String()).Info("Shutting down...")

	stop()
	ioo.Close(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Server did not shut down cleanly")
	}
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close resource")
		}
	}
}

func main() {
	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", ":3002", "Set the server listen address")
	envFile := flag.String("env", ".env", "Load environment variables from this file when it exists")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*envFile)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := stores.GetStore(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open storage")
	}
	var registry core.RoomRegistry
	if rr, ok := store.(core.RoomRegistry); ok {
		registry = rr
	}

	renderer, err := render.NewRenderer()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load fonts")
	}
	renderer.Images.Client.Timeout = cfg.ImageFetchTimeout
	renderer.Images.MaxBytes = cfg.MaxImageBytes
	renderer.Images.MaxPixels = cfg.MaxImagePixels
	renderer.Images.AllowPrivateHosts = cfg.AllowPrivateImageHosts

	guard, guardCloser, err := newGuard(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up save guard")
	}

	manager := editor.NewManager(store, guard, renderer, renderer.Fonts)
	go manager.RunSweeper(ctx, sweepInterval, cfg.SessionIdleTTL)

	a := &app{
		store:    store,
		guard:    guard,
		registry: registry,
		manager:  manager,
		issuer:   certificates.NewIssuer(store, store, renderer),
		renderer: renderer,
		presence: websocket.NewPresence(registry),
	}

	r := setupRouter(a)
	ioo := websocket.SetupSocketIO(a.presence)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	srv := &http.Server{Addr: *listenAddr, Handler: r}
	logrus.WithField("addr", *listenAddr).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	var storeCloser io.Closer
	if c, ok := store.(io.Closer); ok {
		storeCloser = c
	}
	waitForShutdown(ioo, srv, stop, guardCloser, storeCloser)
}
