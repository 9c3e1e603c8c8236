// Package controller implements the host-side controller the plug-in attaches
// to: a SQLite database of images, annotations, and names, a process-wide
// method registration table, and a declarative route table handed to the REST
// server during start-up.
//
// In the full identification platform this object is the long-lived database
// controller every plug-in injects into; here it is deliberately thin and
// carries only what the example nodes need.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
)

// Method is a controller-injected function, invocable by name.
type Method func(ctx context.Context, c *Controller, args map[string]any) (any, error)

// Route is one declarative REST route contributed by a plug-in. Routes are
// collected during initialization and mounted by the API server.
type Route struct {
	Method  string
	Path    string
	Handler fiber.Handler
}

// Controller owns the primary database and the plug-in registration tables.
type Controller struct {
	db     *database
	log    *slog.Logger
	dbUUID string

	mu      sync.RWMutex
	methods map[string]Method
	routes  []Route
}

// Open opens (or creates) the primary database at dbPath. The database init
// uuid is generated on first open and stable afterwards.
func Open(dbPath string, log *slog.Logger) (*Controller, error) {
	db, dbUUID, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	log.Debug("opened controller database", "path", dbPath, "uuid", dbUUID)
	return &Controller{
		db:      db,
		log:     log,
		dbUUID:  dbUUID,
		methods: make(map[string]Method),
	}, nil
}

// Close closes the primary database.
func (c *Controller) Close() error {
	return c.db.close()
}

// DBUUID returns the database init uuid.
func (c *Controller) DBUUID() string {
	return c.dbUUID
}

// Logger returns the controller's logger.
func (c *Controller) Logger() *slog.Logger {
	return c.log
}

// RegisterMethod adds a named function to the controller's method table.
// Registration happens once, during plug-in load, before any invocation.
func (c *Controller) RegisterMethod(name string, fn Method) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.methods[name]; ok {
		return fmt.Errorf("controller method already registered: %q", name)
	}
	c.methods[name] = fn
	return nil
}

// InvokeMethod calls a registered method by name.
func (c *Controller) InvokeMethod(ctx context.Context, name string, args map[string]any) (any, error) {
	c.mu.RLock()
	fn, ok := c.methods[name]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no such controller method: %q", name)
	}
	return fn(ctx, c, args)
}

// MethodNames returns the registered method names.
func (c *Controller) MethodNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.methods))
	for n := range c.methods {
		names = append(names, n)
	}
	return names
}

// RegisterRoute appends a route to the declarative route table.
func (c *Controller) RegisterRoute(method, path string, handler fiber.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.routes {
		if r.Method == method && r.Path == path {
			return fmt.Errorf("route already registered: %s %s", method, path)
		}
	}
	c.routes = append(c.routes, Route{Method: method, Path: path, Handler: handler})
	return nil
}

// Routes returns the collected route table in registration order.
func (c *Controller) Routes() []Route {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Route, len(c.routes))
	copy(out, c.routes)
	return out
}
