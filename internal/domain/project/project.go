// Package project supplies the workspace context threaded explicitly
// through the orchestration components. There is no ambient global
// state: everything that used to be a process-wide registry hangs off a
// Context value.
package project

import (
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-yaml"
)

// Project is one logical workspace.
type Project struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Root     string   `yaml:"root" json:"root"`
	Accounts []string `yaml:"accounts" json:"accounts"`
}

// Manifest is the workspace definition file: the projects this window
// can switch between and the accounts they span.
type Manifest struct {
	Projects []Project `yaml:"projects"`
}

// LoadManifest reads and parses the workspace manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workspace manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse workspace manifest: %w", err)
	}
	if len(m.Projects) == 0 {
		return nil, fmt.Errorf("workspace manifest %s defines no projects", path)
	}
	return &m, nil
}

// Context is the active workspace state for one window.
type Context struct {
	mu      sync.RWMutex
	byID    map[string]Project
	ordered []string
	active  string
}

// NewContext builds a context from a manifest, activating defaultID or,
// when empty, the manifest's first project.
func NewContext(m *Manifest, defaultID string) (*Context, error) {
	c := &Context{byID: make(map[string]Project)}
	for _, p := range m.Projects {
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate project id %q in manifest", p.ID)
		}
		c.byID[p.ID] = p
		c.ordered = append(c.ordered, p.ID)
	}
	if defaultID == "" {
		defaultID = c.ordered[0]
	}
	if _, ok := c.byID[defaultID]; !ok {
		return nil, fmt.Errorf("default project %q not in manifest", defaultID)
	}
	c.active = defaultID
	return c, nil
}

// Active returns the active project.
func (c *Context) Active() Project {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[c.active]
}

// ActiveID returns the active project id.
func (c *Context) ActiveID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Get looks up a project by id.
func (c *Context) Get(projectID string) (Project, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[projectID]
	return p, ok
}

// Switch changes the active project.
func (c *Context) Switch(projectID string) (Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byID[projectID]
	if !ok {
		return Project{}, fmt.Errorf("unknown project %q", projectID)
	}
	c.active = projectID
	return p, nil
}

// List returns projects in manifest order.
func (c *Context) List() []Project {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Project, 0, len(c.ordered))
	for _, pid := range c.ordered {
		out = append(out, c.byID[pid])
	}
	return out
}
