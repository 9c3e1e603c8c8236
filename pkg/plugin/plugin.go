// Package plugin is the example identification plug-in: a set of cached
// dependency-graph nodes over images and annotations, two injected controller
// methods, and the REST routes that expose them.
//
// The nodes are deliberately toy-sized. They exist to exercise every part of
// the dependency-cache engine: single-parent chains (hash, hash-sum,
// hash-product), externally stored payload columns (thumbnail), and
// multi-parent pair scoring (oracle).
package plugin

import (
	"fmt"
	"log/slog"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/controller"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
)

// Node names, one cache table each.
const (
	NodeImageHash     = "example_image_hash"
	NodeImageHashSum  = "example_image_hash_sum"
	NodeImageHashProd = "example_image_hash_prod"
	NodeThumbnail     = "example_image_thumbnail"
	NodeOracle        = "example_oracle"
)

// Root entity table names the registries are anchored at.
const (
	RootImages      = "images"
	RootAnnotations = "annotations"
)

// Injected controller method names.
const (
	MethodHelloWorld   = "example_hello_world"
	MethodFileDownload = "example_file_download"
)

// Plugin wires the example nodes, methods, and routes into a host controller
// and its two dependency-cache executors.
type Plugin struct {
	ctrl     *controller.Controller
	images   *depc.Depc
	annots   *depc.Depc
	cacheDir string
	log      *slog.Logger
}

// New creates the plug-in over an already-opened controller and the image and
// annotation executors. cacheDir is where downloaded files land.
func New(ctrl *controller.Controller, images, annots *depc.Depc, cacheDir string, log *slog.Logger) *Plugin {
	return &Plugin{
		ctrl:     ctrl,
		images:   images,
		annots:   annots,
		cacheDir: cacheDir,
		log:      log,
	}
}

// RegisterImageNodes adds the image-rooted nodes to a registry. Called during
// start-up, before the executor is built over the registry.
func RegisterImageNodes(r *depc.Registry) error {
	for _, n := range []*depc.Node{hashNode(), hashSumNode(), hashProdNode(), thumbnailNode()} {
		if err := r.Register(n); err != nil {
			return fmt.Errorf("registering %s: %w", n.Name, err)
		}
	}
	return nil
}

// RegisterAnnotNodes adds the annotation-rooted nodes to a registry.
func RegisterAnnotNodes(r *depc.Registry) error {
	if err := r.Register(oracleNode()); err != nil {
		return fmt.Errorf("registering %s: %w", NodeOracle, err)
	}
	return nil
}

// Attach registers the plug-in's controller methods and REST routes. The
// routes are declarative: the API server mounts them when it starts.
func (p *Plugin) Attach() error {
	if err := p.ctrl.RegisterMethod(MethodHelloWorld, p.helloWorld); err != nil {
		return err
	}
	if err := p.ctrl.RegisterMethod(MethodFileDownload, p.fileDownload); err != nil {
		return err
	}
	return p.registerRoutes()
}

// executorFor returns the executor whose registry owns the named node.
func (p *Plugin) executorFor(node string) (*depc.Depc, error) {
	if _, err := p.images.Registry().Resolve(node); err == nil {
		return p.images, nil
	}
	if _, err := p.annots.Registry().Resolve(node); err == nil {
		return p.annots, nil
	}
	return nil, depc.UnknownNodeError{Node: node}
}

// rootIDs flattens single-slot parent tuples into plain root entity ids.
func rootIDs(parents []store.Key) []int64 {
	ids := make([]int64, len(parents))
	for i, t := range parents {
		ids[i] = t[0]
	}
	return ids
}
