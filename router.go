package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"ziksir-notes/auth"
	"ziksir-notes/config"
	"ziksir-notes/handlers"
	"ziksir-notes/logger"
	mcpserver "ziksir-notes/mcp"
	appmw "ziksir-notes/middleware"
	"ziksir-notes/metrics"
	"ziksir-notes/service"
	"ziksir-notes/store"
	"ziksir-notes/web"
)

type deps struct {
	cfg        config.Config
	store      store.Store
	limiter    auth.LoginLimiter
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	bcryptCost int
}

func newRouter(d deps) (http.Handler, error) {
	if d.bcryptCost == 0 {
		d.bcryptCost = bcrypt.DefaultCost
	}

	issuer := auth.NewIssuer(d.cfg.JWTSecret, d.cfg.TokenTTL)
	authSvc := service.NewAuthService(d.store, issuer, auth.NewHasher(d.bcryptCost), d.limiter, d.log)
	noteSvc := service.NewNoteService(d.store)

	authHandler := handlers.NewAuthHandler(authSvc, d.log)
	noteHandler := handlers.NewNoteHandler(noteSvc, d.log)

	ui, err := web.New(authSvc, noteSvc, issuer, d.log, d.cfg.CookieSecure)
	if err != nil {
		return nil, err
	}
	mcpHTTP := mcpserver.NewHTTPHandler(mcpserver.NewServer(noteSvc, version, d.log))
	requireAuth := appmw.RequireAuth(issuer, d.log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logger.RequestLogger(d.log))
	r.Use(chimw.Recoverer)
	r.Use(d.metrics.Middleware)

	r.Get("/health", handlers.Health(d.store, d.log))
	r.Method(http.MethodGet, "/metrics", d.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(appmw.CORS(d.cfg.ClientOrigin))

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/auth/me", authHandler.Me)
			r.Get("/notes", noteHandler.List)
			r.Post("/notes", noteHandler.Create)
			r.Delete("/notes/{id}", noteHandler.Delete)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Handle("/mcp", mcpHTTP)
	})

	ui.Routes(r)
	return r, nil
}
