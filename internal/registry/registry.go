package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrInvalidProfile marks a profile rejected by validation.
var ErrInvalidProfile = errors.New("invalid viewer profile")

var viewerIDPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var modeNamePattern = regexp.MustCompile(`^[a-z0-9]+$`)

type Registry struct {
	dir     string
	viewers map[string]*ViewerProfile
	mu      sync.RWMutex
}

func NewRegistry(dir string) (*Registry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("viewers dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	if err := ensureDefaults(dir); err != nil {
		return nil, err
	}

	r := &Registry{
		dir:     dir,
		viewers: make(map[string]*ViewerProfile),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir is the directory profiles are loaded from.
func (r *Registry) Dir() string { return r.dir }

func (r *Registry) Get(id string) *ViewerProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.viewers[id]
	if !ok {
		return nil
	}
	return cloneProfile(p)
}

func (r *Registry) List() []*ViewerProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*ViewerProfile, 0, len(r.viewers))
	for _, p := range r.viewers {
		result = append(result, cloneProfile(p))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Reload re-reads every profile. On error the previous set stays in place.
func (r *Registry) Reload() error {
	loaded, err := loadDir(r.dir)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.viewers = loaded
	r.mu.Unlock()
	return nil
}

// Save validates p and writes it to <id>.yaml, replacing any existing file.
func (r *Registry) Save(p *ViewerProfile) error {
	if p == nil {
		return errors.New("viewer profile is required")
	}
	clean := cloneProfile(p)
	if err := validate(clean); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	data, err := yaml.Marshal(clean)
	if err != nil {
		return fmt.Errorf("marshal viewer profile: %w", err)
	}
	path := filepath.Join(r.dir, clean.ID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write viewer profile %q: %w", path, err)
	}

	r.mu.Lock()
	r.viewers[clean.ID] = clean
	r.mu.Unlock()
	return nil
}

// Delete removes the profile file for id. A missing profile reports an
// error wrapping os.ErrNotExist.
func (r *Registry) Delete(id string) error {
	if err := validateID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	path := filepath.Join(r.dir, id+".yaml")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete viewer profile %q: %w", path, err)
	}

	r.mu.Lock()
	delete(r.viewers, id)
	r.mu.Unlock()
	return nil
}

// IsProfileFile reports whether name looks like a profile file.
func IsProfileFile(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func loadDir(dir string) (map[string]*ViewerProfile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read registry dir: %w", err)
	}

	loaded := make(map[string]*ViewerProfile)
	for _, entry := range entries {
		if entry.IsDir() || !IsProfileFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if _, exists := loaded[p.ID]; exists {
			return nil, fmt.Errorf("duplicate viewer id %q", p.ID)
		}
		loaded[p.ID] = p
	}
	return loaded, nil
}

func loadFile(path string) (*ViewerProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read viewer profile %q: %w", path, err)
	}
	var p ViewerProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse viewer profile %q: %w", path, err)
	}
	if err := validate(&p); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}

func validate(p *ViewerProfile) error {
	if p == nil {
		return errors.New("viewer profile is required")
	}
	if err := validateID(p.ID); err != nil {
		return err
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(p.Executable) == "" {
		return errors.New("executable is required")
	}
	if strings.TrimSpace(p.WindowTitle) == "" {
		return errors.New("window_title is required")
	}
	seen := make(map[string]bool, len(p.Modes))
	for _, m := range p.Modes {
		if !modeNamePattern.MatchString(m.Name) {
			return fmt.Errorf("invalid mode name %q", m.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate mode %q", m.Name)
		}
		seen[m.Name] = true
		for _, ext := range m.Extensions {
			if !strings.HasPrefix(ext, ".") {
				return fmt.Errorf("mode %q: extension %q must start with a dot", m.Name, ext)
			}
		}
	}
	if p.StartupScripts == nil {
		p.StartupScripts = []string{}
	}
	if p.Modes == nil {
		p.Modes = []Mode{}
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id is required")
	}
	if !viewerIDPattern.MatchString(id) {
		return errors.New("id must be lowercase alphanumeric with hyphens")
	}
	return nil
}

func cloneProfile(p *ViewerProfile) *ViewerProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.StartupScripts = append([]string(nil), p.StartupScripts...)
	out.Modes = make([]Mode, len(p.Modes))
	for i, m := range p.Modes {
		m.Extensions = append([]string(nil), m.Extensions...)
		out.Modes[i] = m
	}
	return &out
}
