package tool

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wuhu-dev/wuhu/internal/logging"
)

// Registry manages tool registration and lookup.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	workDir string
	log     zerolog.Logger
}

// NewRegistry creates a new, empty tool registry.
func NewRegistry(workDir string) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		workDir: workDir,
		log:     logging.Component("tool.registry"),
	}
}

// Register adds a tool to the registry, overwriting any existing tool
// registered under the same ID.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.ID()] = t
	r.log.Debug().Str("tool", t.ID()).Msg("registered tool")
}

// Get retrieves a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].ID() < tools[j].ID() })
	return tools
}

// IDs returns all registered tool IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultRegistry builds a registry holding the engine's full built-in
// tool set: read, write, edit, bash, async_bash, grep, ls, find.
func DefaultRegistry(workDir string) *Registry {
	r := NewRegistry(workDir)
	r.Register(NewReadTool(workDir))
	r.Register(NewWriteTool(workDir))
	r.Register(NewEditTool(workDir))
	r.Register(NewBashTool(workDir))
	r.Register(NewAsyncBashTool(workDir))
	r.Register(NewGrepTool(workDir))
	r.Register(NewLsTool(workDir))
	r.Register(NewFindTool(workDir))
	return r
}
