package prompts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/samarth-ai/samarth/internal/engine"
)

// Catalog serves prompts by kind. Files in dir override or extend the
// built-in defaults and may be hot-reloaded.
type Catalog struct {
	dir string

	mu      sync.RWMutex
	prompts map[Kind]Prompt
}

// NewCatalog creates a catalog holding the defaults. An empty dir disables
// file overrides.
func NewCatalog(dir string) *Catalog {
	return &Catalog{
		dir:     dir,
		prompts: Defaults(),
	}
}

// LoadAll rebuilds the catalog from the defaults plus every .yaml and .yml
// file in the configured directory. On error the previous catalog is kept.
func (c *Catalog) LoadAll() (map[Kind]Prompt, error) {
	result := Defaults()
	if c.dir == "" {
		c.swap(result)
		return result, nil
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read prompt dir %q: %w", c.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(c.dir, entry.Name())
		loaded, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		for _, p := range loaded {
			result[p.Kind] = p
		}
	}

	c.swap(result)
	return result, nil
}

func (c *Catalog) swap(prompts map[Kind]Prompt) {
	c.mu.Lock()
	c.prompts = prompts
	c.mu.Unlock()
}

// Get returns the prompt for kind.
func (c *Catalog) Get(kind Kind) (Prompt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prompts[kind]
	return p, ok
}

// Kinds returns the known kinds in sorted order.
func (c *Catalog) Kinds() []Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]Kind, 0, len(c.prompts))
	for k := range c.prompts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func loadFile(path string) ([]Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	for i := range f.Prompts {
		if err := f.Prompts[i].Validate(); err != nil {
			return nil, err
		}
		if f.Prompts[i].Tier == "" {
			f.Prompts[i].Tier = engine.Accuracy
		}
	}
	return f.Prompts, nil
}

// WatchAndReload starts watching the prompt directory for changes and reloads.
// This blocks until the done channel is closed.
func (c *Catalog) WatchAndReload(done <-chan struct{}) error {
	if c.dir == "" {
		<-done
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", c.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if _, err := c.LoadAll(); err != nil {
				slog.Warn("prompt reload failed, keeping previous catalog", slog.String("error", err.Error()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
