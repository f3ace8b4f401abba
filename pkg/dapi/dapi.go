package dapi

import (
	"fmt"
	"sync"

	"github.com/ngas-archive/ngas/pkg/catalog"
	"github.com/ngas-archive/ngas/pkg/config"
	"github.com/ngas-archive/ngas/pkg/types"
)

// Context is the server state handed to plug-ins on invocation.
type Context struct {
	Config *config.Config
	Store  catalog.Store
}

// PlugIn names and finalises a staged file for one MIME type. The staging
// path and target volume arrive on the request; the returned result carries
// the final identity verbatim for the catalog and the destination path for
// the move.
type PlugIn interface {
	Archive(ctx *Context, req *types.Request) (*types.DapiResult, error)
}

// Registry maps plug-in identifiers to registered plug-ins. Plug-ins
// register at startup; dispatch is a map lookup keyed through the
// configured MIME-to-plug-in mapping.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]PlugIn
}

// NewRegistry creates an empty plug-in registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]PlugIn)}
}

// Register binds a plug-in identifier to its implementation. Later
// registrations under the same identifier win.
func (r *Registry) Register(name string, p PlugIn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[name] = p
}

// Invoke dispatches the archive request to the plug-in configured for its
// MIME type. MIME types with no configured mapping fall back to the generic
// plug-in.
func (r *Registry) Invoke(ctx *Context, mimeType string, req *types.Request) (*types.DapiResult, error) {
	name, ok := ctx.Config.PlugInFor(mimeType)
	if !ok {
		name = GenPlugInName
	}

	r.mu.RLock()
	p, ok := r.plugins[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewArchiveError(types.ErrDapiFailure,
			fmt.Sprintf("no plug-in registered under %q for mime-type %s", name, mimeType), nil)
	}

	res, err := p.Archive(ctx, req)
	if err != nil {
		return nil, types.NewArchiveError(types.ErrDapiFailure,
			fmt.Sprintf("plug-in %q failed", name), err)
	}
	return res, nil
}
