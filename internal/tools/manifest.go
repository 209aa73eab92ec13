package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"agentrun/internal/agui"
	"agentrun/internal/chat"
	"agentrun/internal/config"
	"agentrun/internal/jsvm"
)

// ApprovalConfig marks a tool as requiring a human decision before it runs.
type ApprovalConfig struct {
	Title   string                 `json:"title,omitempty"`
	Message string                 `json:"message,omitempty"`
	Options []chat.InterruptOption `json:"options,omitempty"`
}

// Manifest describes a frontend tool to the agent and the host.
type Manifest struct {
	Name        string          `json:"name"`
	Label       string          `json:"label,omitempty"`
	Description string          `json:"description"`
	Parameters  map[string]any  `json:"parameters"`
	Approval    *ApprovalConfig `json:"approval,omitempty"`
}

// RequiresApproval reports whether the tool must be approved before execution.
func (m Manifest) RequiresApproval() bool {
	return m.Approval != nil
}

// Manager is the set of frontend tools available to a controller.
// It is populated once and read-only afterwards.
type Manager struct {
	registry *Registry

	mu        sync.RWMutex
	manifests map[string]Manifest
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		registry:  NewRegistry(),
		manifests: make(map[string]Manifest),
	}
}

// Add registers tool under manifest.Name. Empty manifest fields are filled from tool.
func (m *Manager) Add(manifest Manifest, tool Tool) error {
	if tool == nil {
		return NewInvalidArgsError(manifest.Name, "tool cannot be nil", nil)
	}
	if manifest.Name == "" {
		manifest.Name = tool.Name()
	}
	if manifest.Name != tool.Name() {
		return NewInvalidArgsError(manifest.Name, fmt.Sprintf("manifest name does not match tool %q", tool.Name()), nil)
	}
	if manifest.Description == "" {
		manifest.Description = tool.Description()
	}
	if manifest.Parameters == nil {
		manifest.Parameters = tool.Parameters()
	}

	if err := m.registry.Register(tool); err != nil {
		return err
	}

	m.mu.Lock()
	m.manifests[manifest.Name] = manifest
	m.mu.Unlock()
	return nil
}

// Execute runs the tool registered as name. An unknown name yields a
// *ToolNotFoundError.
func (m *Manager) Execute(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	return m.registry.Execute(ctx, name, args)
}

// Manifest returns the manifest entry for name.
func (m *Manager) Manifest(name string) (Manifest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mf, ok := m.manifests[name]
	return mf, ok
}

// IsFrontendTool reports whether name is executed client-side.
func (m *Manager) IsFrontendTool(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.Manifest(name)
	return ok
}

// Manifests returns all entries sorted by name.
func (m *Manager) Manifests() []Manifest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Manifest, 0, len(m.manifests))
	for _, mf := range m.manifests {
		out = append(out, mf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FrontendTools returns the definitions advertised to the agent, sorted by name.
func (m *Manager) FrontendTools() []agui.Tool {
	if m == nil {
		return nil
	}
	manifests := m.Manifests()
	out := make([]agui.Tool, 0, len(manifests))
	for _, mf := range manifests {
		out = append(out, agui.Tool{
			Name:        mf.Name,
			Description: mf.Description,
			Parameters:  mf.Parameters,
		})
	}
	return out
}

// Len returns the number of tools.
func (m *Manager) Len() int {
	return m.registry.Len()
}

// LoadManager builds a Manager from configuration. Entries with runtime "js"
// become script tools executed by vm; other entries are rejected.
func LoadManager(entries []config.ToolConfig, vm *jsvm.Runtime) (*Manager, error) {
	m := NewManager()
	for _, e := range entries {
		if e.Name == "" {
			return nil, NewInvalidArgsError("manifest", "tool name cannot be empty", nil)
		}

		runtime := e.Runtime
		if runtime == "" {
			runtime = RuntimeJS
		}
		if runtime != RuntimeJS {
			return nil, NewInvalidArgsError(e.Name, fmt.Sprintf("unsupported runtime %q", e.Runtime), nil)
		}

		script := e.Script
		if script == "" && e.ScriptFile != "" {
			path, err := config.ResolveRelative(e.ScriptFile)
			if err != nil {
				return nil, NewInvalidArgsError(e.Name, "resolve script_file", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, NewInvalidArgsError(e.Name, "read script_file", err)
			}
			script = string(data)
		}
		if script == "" {
			return nil, NewInvalidArgsError(e.Name, "script or script_file is required", nil)
		}

		tool := NewScriptTool(ScriptToolConfig{
			Name:        e.Name,
			Description: e.Description,
			Parameters:  e.Parameters,
			Script:      script,
			Timeout:     e.Timeout,
			VM:          vm,
		})

		manifest := Manifest{
			Name:        e.Name,
			Label:       e.Label,
			Description: e.Description,
			Parameters:  e.Parameters,
		}
		if e.Approval {
			manifest.Approval = approvalFromConfig(e.ApprovalConfig)
		}

		if err := m.Add(manifest, tool); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func approvalFromConfig(raw map[string]any) *ApprovalConfig {
	ac := &ApprovalConfig{}
	if raw == nil {
		return ac
	}
	ac.Title, _ = raw["title"].(string)
	ac.Message, _ = raw["message"].(string)
	if opts, ok := raw["options"].([]any); ok {
		for _, o := range opts {
			om, ok := o.(map[string]any)
			if !ok {
				continue
			}
			opt := chat.InterruptOption{}
			opt.Value, _ = om["value"].(string)
			opt.Label, _ = om["label"].(string)
			opt.Variant, _ = om["variant"].(string)
			ac.Options = append(ac.Options, opt)
		}
	}
	return ac
}
