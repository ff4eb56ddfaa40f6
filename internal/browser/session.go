// Package browser implements the deployment file browser session: it owns
// one lazily loaded tree per bundle root, guards against re-entrant taps
// while a directory is loading, and renders the visible rows.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/deployview/deployview/internal/events"
	"github.com/deployview/deployview/internal/logging"
	"github.com/deployview/deployview/internal/metrics"
	"github.com/deployview/deployview/pkg/filetree"
)

var (
	// ErrBusy is returned for a tap on a directory that is still loading.
	ErrBusy = errors.New("directory is already loading")

	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("browser session closed")
)

// Options configures a Session.
type Options struct {
	DeploymentID string
	Fetcher      filetree.Fetcher
	MatchPolicy  filetree.MatchPolicy
	Events       *events.Broadcaster // optional
}

type loadKey struct {
	root filetree.Root
	path string
}

// Session is the browser view of one deployment. It lives as long as the
// view is open and is never persisted.
type Session struct {
	deployment string
	fetcher    filetree.Fetcher
	policy     filetree.MatchPolicy
	events     *events.Broadcaster

	mu      sync.Mutex
	trees   map[filetree.Root]*filetree.Tree
	opened  map[filetree.Root]bool
	loading map[loadKey]struct{}
	closed  bool
}

// New creates a session.
func New(opts Options) *Session {
	return &Session{
		deployment: opts.DeploymentID,
		fetcher:    opts.Fetcher,
		policy:     opts.MatchPolicy,
		events:     opts.Events,
		trees:      make(map[filetree.Root]*filetree.Tree),
		opened:     make(map[filetree.Root]bool),
		loading:    make(map[loadKey]struct{}),
	}
}

// Deployment returns the deployment id this session browses.
func (s *Session) Deployment() string { return s.deployment }

// Tree returns the tree for root, creating an empty one if needed.
func (s *Session) Tree(root filetree.Root) *filetree.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.treeLocked(root)
}

func (s *Session) treeLocked(root filetree.Root) *filetree.Tree {
	if t, ok := s.trees[root]; ok {
		return t
	}
	t := filetree.NewTree(root, nil,
		filetree.WithMatchPolicy(s.policy),
		filetree.WithOnChange(s.onChange),
	)
	s.trees[root] = t
	return t
}

// onChange reports tree changes. Changes that land after Close belong to a
// discarded tree and are dropped.
func (s *Session) onChange(c filetree.Change) {
	if s.isClosed() {
		return
	}
	metrics.SetTreeNodes(string(c.Root), filetree.CountNodes(c.Snapshot))

	var typ string
	switch c.Outcome {
	case filetree.OutcomeLoaded:
		typ = events.EventLoaded
	case filetree.OutcomeToggled:
		typ = events.EventToggled
	case filetree.OutcomeReset:
		typ = events.EventReset
	default:
		return
	}
	s.publish(events.Event{Type: typ, Root: string(c.Root), Path: c.Path})
}

func (s *Session) publish(e events.Event) {
	if s.events == nil {
		return
	}
	e.Deployment = s.deployment
	s.events.Publish(e)
}

// begin marks key as loading. It fails if the session is closed or the key
// is already in flight.
func (s *Session) begin(key loadKey) (*filetree.Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if _, busy := s.loading[key]; busy {
		metrics.RecordBusyTap()
		return nil, ErrBusy
	}
	s.loading[key] = struct{}{}
	return s.treeLocked(key.root), nil
}

func (s *Session) end(key loadKey) {
	s.mu.Lock()
	delete(s.loading, key)
	s.mu.Unlock()
}

// guard drops results that arrive after Close so the tree is not mutated
// for a view that no longer exists.
func (s *Session) guard(next filetree.Fetcher) filetree.Fetcher {
	return filetree.FetcherFunc(func(ctx context.Context, root filetree.Root, path string) ([]filetree.Asset, error) {
		assets, err := next.FetchChildren(ctx, root, path)
		if s.isClosed() {
			return nil, ErrClosed
		}
		return assets, err
	})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Open seeds root's tree with the bundle's top-level listing. It does
// nothing if the root was already opened.
func (s *Session) Open(ctx context.Context, root filetree.Root) error {
	s.mu.Lock()
	opened := s.opened[root]
	s.mu.Unlock()
	if opened {
		return nil
	}

	key := loadKey{root: root, path: "/"}
	tree, err := s.begin(key)
	if err != nil {
		return err
	}
	defer s.end(key)

	assets, err := s.guard(s.fetcher).FetchChildren(ctx, root, "/")
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return ErrClosed
		}
		s.publish(events.Event{Type: events.EventFailed, Root: string(root), Path: "/", Error: err.Error()})
		return &filetree.FetchError{Root: root, Path: "/", Err: err}
	}

	s.mu.Lock()
	s.opened[root] = true
	s.mu.Unlock()

	tree.Reset(assets)
	logging.Debug("opened bundle root",
		logging.String("deployment", s.deployment),
		logging.String("root", string(root)),
		logging.Int("entries", len(assets)),
	)
	return nil
}

// Refresh discards root's tree and reloads its top-level listing. Paths
// tapped against the old tree become no-ops.
func (s *Session) Refresh(ctx context.Context, root filetree.Root) error {
	s.mu.Lock()
	s.opened[root] = false
	s.mu.Unlock()
	return s.Open(ctx, root)
}

// Tap forwards a tap on a directory row to the tree. A tap on a directory
// whose load is still outstanding returns ErrBusy without fetching.
func (s *Session) Tap(ctx context.Context, root filetree.Root, path string) (filetree.Outcome, error) {
	path = filetree.Clean(path)
	key := loadKey{root: root, path: path}

	tree, err := s.begin(key)
	if err != nil {
		return filetree.OutcomeNotFound, err
	}
	defer s.end(key)

	outcome, err := tree.RequestDirectoryToggle(ctx, path, s.guard(s.fetcher))
	if errors.Is(err, ErrClosed) || s.isClosed() {
		return filetree.OutcomeNotFound, ErrClosed
	}
	metrics.RecordToggle(string(root), outcome.String())

	log := logging.L().With(
		logging.String("deployment", s.deployment),
		logging.String("root", string(root)),
		logging.String("path", path),
	)
	switch {
	case err != nil:
		log.Warn("directory load failed", logging.Err(err))
		s.publish(events.Event{Type: events.EventFailed, Root: string(root), Path: path, Error: err.Error()})
	case outcome == filetree.OutcomeNotFound:
		log.Debug("tap on unknown path ignored")
	default:
		log.Debug("directory tapped", logging.String("outcome", outcome.String()))
	}
	return outcome, err
}

// Loading reports whether a load for path is outstanding.
func (s *Session) Loading(root filetree.Root, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loading[loadKey{root: root, path: filetree.Clean(path)}]
	return ok
}

// Rows returns the visible rows of root's tree.
func (s *Session) Rows(root filetree.Root) []filetree.Row {
	return filetree.Visible(s.Tree(root).Snapshot())
}

// Render writes root's visible rows as an indented text tree.
func (s *Session) Render(w io.Writer, root filetree.Root) error {
	var b strings.Builder
	for _, r := range s.Rows(root) {
		indent := strings.Repeat("  ", r.Depth)
		switch a := r.Asset.(type) {
		case *filetree.Directory:
			marker := "▸"
			if a.Loaded && a.Expanded {
				marker = "▾"
			}
			suffix := "/"
			if s.Loading(root, r.Path) {
				suffix += " …"
			}
			fmt.Fprintf(&b, "%s%s %s%s\n", indent, marker, a.Name, suffix)
		case *filetree.File:
			fmt.Fprintf(&b, "%s  %s\n", indent, a.Name)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Close discards the session. Loads still in flight are dropped when they
// resolve.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.trees = make(map[filetree.Root]*filetree.Tree)
}
