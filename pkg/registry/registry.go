// Package registry indexes notebooklet implementations by hierarchical
// path and search terms. Notebooklets are registered statically through
// catalog descriptor lists; no runtime code scanning is involved.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
)

// State tracks the registry lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateDiscovering
	StateReady
)

// String renders the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDiscovering:
		return "discovering"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Factory constructs a notebooklet instance bound to an environment.
// Construction fails when required providers are absent.
type Factory func(env *notebooklet.Environment) (notebooklet.Notebooklet, error)

// Descriptor is one catalog entry: the dotted capability path, the raw
// metadata document, and the constructor.
type Descriptor struct {
	Path     string
	Metadata []byte
	New      Factory
}

// Entry is a registered notebooklet with its parsed metadata.
type Entry struct {
	Path string
	Meta *metadata.Metadata
	New  Factory
}

// Match is one ranked search result.
type Match struct {
	Entry *Entry
	Score int
}

// Node is one level of the hierarchical namespace. Leaves hold entries,
// interior nodes hold children.
type Node struct {
	Name     string
	Children map[string]*Node
	Entries  map[string]*Entry
}

// Registry is the process-wide notebooklet index. Discovery runs once
// from a single caller; afterwards the registry is effectively
// immutable and safe for concurrent reads. Re-running discovery
// replaces the previous index atomically.
type Registry struct {
	log logrus.FieldLogger

	mu      sync.RWMutex
	state   State
	entries map[string]*Entry
	ordered []*Entry
	root    *Node
}

// New creates an empty registry in the uninitialized state.
func New(log logrus.FieldLogger) *Registry {
	return &Registry{
		log:   log.WithField("component", "registry"),
		state: StateUninitialized,
	}
}

// Discover registers every descriptor from the given catalogs. A
// descriptor whose metadata fails to parse, or whose path collides with
// one already scanned, is skipped with a warning; the scan continues.
// The new index becomes visible atomically once every catalog has been
// processed.
func (r *Registry) Discover(catalogs ...[]Descriptor) error {
	r.mu.Lock()
	r.state = StateDiscovering
	r.mu.Unlock()

	entries := make(map[string]*Entry)
	ordered := make([]*Entry, 0)
	root := &Node{Name: "", Children: map[string]*Node{}, Entries: map[string]*Entry{}}

	for _, catalog := range catalogs {
		for _, desc := range catalog {
			meta, err := metadata.Parse(desc.Metadata, desc.Path)
			if err != nil {
				r.log.WithField("path", desc.Path).WithError(err).Warn("Skipping notebooklet with invalid metadata")

				continue
			}

			if desc.New == nil {
				r.log.WithField("path", desc.Path).Warn("Skipping notebooklet with no factory")

				continue
			}

			if _, exists := entries[desc.Path]; exists {
				r.log.WithField("path", desc.Path).Warn("Skipping duplicate notebooklet path")

				continue
			}

			entry := &Entry{Path: desc.Path, Meta: meta, New: desc.New}
			entries[desc.Path] = entry
			ordered = append(ordered, entry)
			insertNode(root, entry)
		}
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	r.mu.Lock()
	r.entries = entries
	r.ordered = ordered
	r.root = root
	r.state = StateReady
	r.mu.Unlock()

	r.log.WithField("notebooklet_count", len(ordered)).Info("Notebooklet registry ready")

	return nil
}

// State returns the current lifecycle state.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state
}

// Count returns the number of registered notebooklets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.ordered)
}

// Get returns the entry at the exact dotted path.
func (r *Registry) Get(path string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state != StateReady {
		return nil, false
	}

	entry, ok := r.entries[path]

	return entry, ok
}

// All returns every entry ordered by path.
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Entry, len(r.ordered))
	copy(all, r.ordered)

	return all
}

// Branch returns the namespace node at the dotted prefix, for
// hierarchical navigation ("azsent", "azsent.host", ...). An empty path
// returns the root.
func (r *Registry) Branch(path string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state != StateReady {
		return nil, false
	}

	node := r.root

	if path == "" {
		return node, true
	}

	for _, part := range strings.Split(path, ".") {
		child, ok := node.Children[part]
		if !ok {
			return nil, false
		}

		node = child
	}

	return node, true
}

// Find returns entries matching the space or comma separated search
// terms, ranked by match count descending then path. When fullMatch is
// set, only entries matching every term are returned.
func (r *Registry) Find(searchTerms string, fullMatch bool) []Match {
	r.mu.RLock()
	entries := r.ordered
	r.mu.RUnlock()

	var matches []Match

	for _, entry := range entries {
		all, score := notebooklet.MatchMetadata(entry.Meta, searchTerms)
		if score == 0 {
			continue
		}

		if fullMatch && !all {
			continue
		}

		matches = append(matches, Match{Entry: entry, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}

		return matches[i].Entry.Path < matches[j].Entry.Path
	})

	return matches
}

// Instantiate constructs the notebooklet at path against env.
func (r *Registry) Instantiate(path string, env *notebooklet.Environment) (notebooklet.Notebooklet, error) {
	entry, ok := r.Get(path)
	if !ok {
		return nil, fmt.Errorf("notebooklet %q not found in registry", path)
	}

	return entry.New(env)
}

func insertNode(root *Node, entry *Entry) {
	parts := strings.Split(entry.Path, ".")
	node := root

	for _, part := range parts[:len(parts)-1] {
		child, ok := node.Children[part]
		if !ok {
			child = &Node{Name: part, Children: map[string]*Node{}, Entries: map[string]*Entry{}}
			node.Children[part] = child
		}

		node = child
	}

	node.Entries[parts[len(parts)-1]] = entry
}
