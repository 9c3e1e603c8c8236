// Package host assembles the full runtime stack the CLI commands share: the
// controller database, the dependency-cache store, the image and annotation
// executors, and the attached example plug-in.
package host

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/controller"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store/assets"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store/inmemory"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store/postgres"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store/sqlite"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/plugin"
)

// Options configures Open.
type Options struct {
	// DBPath is the controller SQLite database.
	DBPath string

	// CacheBackend selects the dependency-cache store: "sqlite", "postgres",
	// or "memory".
	CacheBackend string

	// CacheSQLitePath is the cache database for the sqlite backend.
	CacheSQLitePath string

	// CachePostgresURL is the connection string for the postgres backend.
	CachePostgresURL string

	// AssetsDir holds externally stored column payloads. Ignored by the
	// memory backend.
	AssetsDir string

	// DownloadCacheDir is where the plug-in's file downloads land.
	DownloadCacheDir string

	Logger *slog.Logger
}

// Host is the assembled runtime stack.
type Host struct {
	Controller *controller.Controller
	DepcImage  *depc.Depc
	DepcAnnot  *depc.Depc
	Plugin     *plugin.Plugin

	cacheStore store.Store
}

// Open builds the stack: it opens the controller database, constructs the
// cache store, registers the example nodes on both executors, and attaches
// the plug-in's methods and routes.
func Open(ctx context.Context, opts Options) (*Host, error) {
	ctrl, err := controller.Open(opts.DBPath, opts.Logger)
	if err != nil {
		return nil, err
	}

	st, err := newCacheStore(ctx, opts)
	if err != nil {
		ctrl.Close()
		return nil, err
	}

	imageReg := depc.NewRegistry(plugin.RootImages)
	if err := plugin.RegisterImageNodes(imageReg); err != nil {
		st.Close()
		ctrl.Close()
		return nil, err
	}
	annotReg := depc.NewRegistry(plugin.RootAnnotations)
	if err := plugin.RegisterAnnotNodes(annotReg); err != nil {
		st.Close()
		ctrl.Close()
		return nil, err
	}

	// Node names are unique across both registries, so the executors can
	// share one physical cache store.
	depcImage := depc.New(imageReg, st, ctrl, opts.Logger)
	depcAnnot := depc.New(annotReg, st, ctrl, opts.Logger)

	p := plugin.New(ctrl, depcImage, depcAnnot, opts.DownloadCacheDir, opts.Logger)
	if err := p.Attach(); err != nil {
		st.Close()
		ctrl.Close()
		return nil, err
	}

	return &Host{
		Controller: ctrl,
		DepcImage:  depcImage,
		DepcAnnot:  depcAnnot,
		Plugin:     p,
		cacheStore: st,
	}, nil
}

// ExecutorFor returns the executor whose registry owns the named node.
func (h *Host) ExecutorFor(node string) (*depc.Depc, error) {
	if _, err := h.DepcImage.Registry().Resolve(node); err == nil {
		return h.DepcImage, nil
	}
	if _, err := h.DepcAnnot.Registry().Resolve(node); err == nil {
		return h.DepcAnnot, nil
	}
	return nil, depc.UnknownNodeError{Node: node}
}

// Close releases the cache store and the controller database.
func (h *Host) Close() error {
	serr := h.cacheStore.Close()
	cerr := h.Controller.Close()
	if serr != nil {
		return serr
	}
	return cerr
}

func newCacheStore(ctx context.Context, opts Options) (store.Store, error) {
	switch opts.CacheBackend {
	case "", "sqlite":
		dir, err := assetsDir(opts.AssetsDir)
		if err != nil {
			return nil, err
		}
		return sqlite.New(opts.CacheSQLitePath, dir)
	case "postgres":
		dir, err := assetsDir(opts.AssetsDir)
		if err != nil {
			return nil, err
		}
		return postgres.New(ctx, opts.CachePostgresURL, dir)
	case "memory":
		return inmemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", opts.CacheBackend)
	}
}

func assetsDir(path string) (*assets.Dir, error) {
	if path == "" {
		return nil, nil
	}
	return assets.NewDir(path)
}
