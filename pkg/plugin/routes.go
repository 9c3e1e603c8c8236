package plugin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc"
)

// Route paths contributed by the plug-in.
const (
	PathHelloWorld        = "/api/plugin/example/identification/helloworld/"
	PathHash              = "/api/plugin/example/identification/hash/"
	PathHashSum           = "/api/plugin/example/identification/hash/sum/"
	PathHashProduct       = "/api/plugin/example/identification/hash/product/"
	PathThumbnail         = "/api/plugin/example/identification/thumbnail/"
	PathOracle            = "/api/engine/plugin/example/identification/oracle/"
	PathDeleteProperty    = "/api/plugin/example/identification/property/"
	PathDeletePropertyAll = "/api/plugin/example/identification/property/all/"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (p *Plugin) registerRoutes() error {
	routes := []struct {
		method  string
		path    string
		handler fiber.Handler
	}{
		{fiber.MethodGet, PathHelloWorld, p.handleHelloWorld},
		{fiber.MethodGet, PathHash, p.propertyHandler(NodeImageHash, "hash")},
		{fiber.MethodGet, PathHashSum, p.propertyHandler(NodeImageHashSum, "sum")},
		{fiber.MethodGet, PathHashProduct, p.propertyHandler(NodeImageHashProd, "product")},
		{fiber.MethodGet, PathThumbnail, p.handleThumbnail},
		{fiber.MethodPost, PathOracle, p.handleOracle},
		{fiber.MethodDelete, PathDeleteProperty, p.handleDeleteProperty},
		{fiber.MethodDelete, PathDeletePropertyAll, p.handleDeletePropertyAll},
	}
	for _, r := range routes {
		if err := p.ctrl.RegisterRoute(r.method, r.path, r.handler); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plugin) handleHelloWorld(c *fiber.Ctx) error {
	res, err := p.ctrl.InvokeMethod(c.Context(), MethodHelloWorld, nil)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"response": res})
}

// propertyHandler serves a single column of an image-rooted node, computing
// missing rows on demand.
func (p *Plugin) propertyHandler(node, col string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ids, err := parseIDList(c.Query("gids"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
		}
		cfg, err := p.queryConfig(c, p.images, node)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
		}
		vals, err := p.images.Get(c.Context(), node, ids, col, cfg)
		if err != nil {
			return c.Status(statusFor(err)).JSON(errorResponse{Error: err.Error()})
		}
		return c.JSON(fiber.Map{"response": vals})
	}
}

func (p *Plugin) handleThumbnail(c *fiber.Ctx) error {
	ids, err := parseIDList(c.Query("gids"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}
	cfg, err := p.queryConfig(c, p.images, NodeThumbnail)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}
	rows, err := p.images.GetRows(c.Context(), NodeThumbnail, ids, cfg)
	if err != nil {
		return c.Status(statusFor(err)).JSON(errorResponse{Error: err.Error()})
	}
	thumbs := make([]fiber.Map, len(rows))
	for i, r := range rows {
		thumbs[i] = fiber.Map{"thumb": r[0], "size": r[1]}
	}
	return c.JSON(fiber.Map{"response": thumbs})
}

type oracleRequest struct {
	Qaids  []int64        `json:"qaids"`
	Daids  []int64        `json:"daids"`
	Config map[string]any `json:"config"`
}

// handleOracle scores the cross product of query and database annotations.
// Results are query-major, one score per (qaid, daid) pair.
func (p *Plugin) handleOracle(c *fiber.Ctx) error {
	var req oracleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid request body"})
	}
	scores, pairs, err := p.annots.GetProduct(c.Context(), NodeOracle, req.Qaids, req.Daids, "score", req.Config)
	if err != nil {
		return c.Status(statusFor(err)).JSON(errorResponse{Error: err.Error()})
	}
	out := make([]fiber.Map, len(scores))
	for i, s := range scores {
		out[i] = fiber.Map{"qaid": pairs[i][0], "daid": pairs[i][1], "score": s}
	}
	return c.JSON(fiber.Map{"response": out})
}

func (p *Plugin) handleDeleteProperty(c *fiber.Ctx) error {
	node := c.Query("node")
	d, err := p.executorFor(node)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: err.Error()})
	}
	ids, err := parseIDList(c.Query("ids"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}
	cfg, err := p.queryConfig(c, d, node)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}
	if err := d.DeleteProperty(c.Context(), node, ids, cfg); err != nil {
		return c.Status(statusFor(err)).JSON(errorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"response": true})
}

func (p *Plugin) handleDeletePropertyAll(c *fiber.Ctx) error {
	node := c.Query("node")
	d, err := p.executorFor(node)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: err.Error()})
	}
	ids, err := parseIDList(c.Query("ids"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}
	if err := d.DeletePropertyAll(c.Context(), node, ids); err != nil {
		return c.Status(statusFor(err)).JSON(errorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"response": true})
}

// queryConfig extracts the node's declared config parameters from the query
// string, coercing numeric-looking values so they validate against typed
// defaults.
func (p *Plugin) queryConfig(c *fiber.Ctx, d *depc.Depc, node string) (map[string]any, error) {
	n, err := d.Registry().Resolve(node)
	if err != nil {
		return nil, err
	}
	cfg := make(map[string]any)
	for _, ps := range n.Schema {
		raw := c.Query(ps.Name)
		if raw == "" {
			continue
		}
		cfg[ps.Name] = coerceParam(raw)
	}
	return cfg, nil
}

func coerceParam(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return int(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func parseIDList(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, errors.New("ids must be a comma-separated list of integers")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	var invalid depc.InvalidConfigError
	var unknown depc.UnknownNodeError
	switch {
	case errors.As(err, &invalid):
		return fiber.StatusBadRequest
	case errors.As(err, &unknown):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}
