package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/controller"
)

// ErrorResponse is the JSON body returned on handler failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the REST front end. It owns a few built-in routes and mounts the
// declarative route table plug-ins registered on the controller.
type Server struct {
	config Config
	ctrl   *controller.Controller
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates the API server over an already-initialized controller.
// Plug-ins must have attached their routes before this is called; the route
// table is read once, here.
func NewServer(config Config, ctrl *controller.Controller, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		ctrl:   ctrl,
		logger: logger,
		app:    app,
	}

	app.Get("/api/ping", s.handlePing)
	app.Get("/api/db/info", s.handleDBInfo)

	for _, r := range ctrl.Routes() {
		app.Add(r.Method, r.Path, r.Handler)
		logger.Debug("mounted plug-in route", "method", r.Method, "path", r.Path)
	}

	return s
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
