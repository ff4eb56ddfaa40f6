package filetree

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrFetchFailed matches every error returned for a failed directory load.
var ErrFetchFailed = errors.New("directory fetch failed")

// FetchError is returned when the fetcher fails. The tree is left unchanged.
type FetchError struct {
	Root Root
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s:%s: %v", e.Root, e.Path, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}

// Fetcher lists the immediate children of a directory. Order is not
// significant and is stored as returned.
type Fetcher interface {
	FetchChildren(ctx context.Context, root Root, path string) ([]Asset, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, root Root, path string) ([]Asset, error)

func (f FetcherFunc) FetchChildren(ctx context.Context, root Root, path string) ([]Asset, error) {
	return f(ctx, root, path)
}

// Outcome describes what RequestDirectoryToggle did.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeToggled
	OutcomeLoaded
	OutcomeFailed
	OutcomeReset
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeToggled:
		return "toggled"
	case OutcomeLoaded:
		return "loaded"
	case OutcomeFailed:
		return "failed"
	case OutcomeReset:
		return "reset"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Change is delivered to the OnChange hook after each snapshot replacement.
type Change struct {
	Root     Root
	Path     string
	Outcome  Outcome
	Snapshot []Asset
}

// Tree owns the current snapshot for one root of one deployment.
type Tree struct {
	root     Root
	policy   MatchPolicy
	onChange func(Change)

	mu     sync.Mutex
	assets []Asset
}

// Option configures a Tree.
type Option func(*Tree)

// WithMatchPolicy selects how paths address directories.
func WithMatchPolicy(p MatchPolicy) Option {
	return func(t *Tree) { t.policy = p }
}

// WithOnChange registers a hook called after every snapshot replacement.
// It runs outside the tree's lock.
func WithOnChange(fn func(Change)) Option {
	return func(t *Tree) { t.onChange = fn }
}

// NewTree creates a tree, optionally seeded with a root listing.
func NewTree(root Root, seed []Asset, opts ...Option) *Tree {
	t := &Tree{root: root, assets: seed}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Root returns the bundle this tree mirrors.
func (t *Tree) Root() Root { return t.root }

// Policy returns the tree's match policy.
func (t *Tree) Policy() MatchPolicy { return t.policy }

// Snapshot returns the current sequence of root-level assets. The returned
// value must not be modified.
func (t *Tree) Snapshot() []Asset {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.assets
}

// Reset replaces the whole snapshot, for example with a fresh root listing.
func (t *Tree) Reset(assets []Asset) {
	t.mu.Lock()
	t.assets = assets
	t.mu.Unlock()
	t.notify(Change{Root: t.root, Path: "/", Outcome: OutcomeReset, Snapshot: assets})
}

// Find returns the first directory addressed by path.
func (t *Tree) Find(path string) (*Directory, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, _, ok := FindDirectory(t.assets, path, t.policy)
	return d, ok
}

// RequestDirectoryToggle handles a user interaction with the directory at path.
//
// A loaded directory is toggled without fetching. An unloaded one is fetched,
// and on success its children are stored and it is forced open. On failure
// the snapshot is not touched and a *FetchError is returned. A path that
// addresses nothing is a no-op reported as OutcomeNotFound.
//
// The tree does not deduplicate concurrent loads of the same path.
func (t *Tree) RequestDirectoryToggle(ctx context.Context, path string, fetcher Fetcher) (Outcome, error) {
	path = Clean(path)

	t.mu.Lock()
	dir, _, ok := FindDirectory(t.assets, path, t.policy)
	if !ok {
		t.mu.Unlock()
		return OutcomeNotFound, nil
	}
	if dir.Loaded {
		next, _ := UpdateDirectory(t.assets, path, t.policy, func(d *Directory) *Directory {
			// Unloaded namesakes stay collapsed until they are fetched.
			if !d.Loaded {
				return nil
			}
			d.Expanded = !d.Expanded
			return d
		})
		t.assets = next
		t.mu.Unlock()
		t.notify(Change{Root: t.root, Path: path, Outcome: OutcomeToggled, Snapshot: next})
		return OutcomeToggled, nil
	}
	t.mu.Unlock()

	fetched, err := fetcher.FetchChildren(ctx, t.root, path)
	if err != nil {
		return OutcomeFailed, &FetchError{Root: t.root, Path: path, Err: err}
	}
	children := make([]Asset, len(fetched))
	copy(children, fetched)

	// Re-resolve against the latest snapshot; other directories may have
	// changed while the fetch was outstanding.
	t.mu.Lock()
	next, changed := UpdateDirectory(t.assets, path, t.policy, func(d *Directory) *Directory {
		d.Children = children
		d.Loaded = true
		d.Expanded = true
		return d
	})
	if !changed {
		t.mu.Unlock()
		return OutcomeNotFound, nil
	}
	t.assets = next
	t.mu.Unlock()

	t.notify(Change{Root: t.root, Path: path, Outcome: OutcomeLoaded, Snapshot: next})
	return OutcomeLoaded, nil
}

func (t *Tree) notify(c Change) {
	if t.onChange != nil {
		t.onChange(c)
	}
}
