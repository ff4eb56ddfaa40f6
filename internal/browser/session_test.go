package browser

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deployview/deployview/internal/events"
	"github.com/deployview/deployview/internal/logging"
	"github.com/deployview/deployview/pkg/filetree"
)

func init() {
	logging.InitNop()
}

// bundle serves a fixed in-memory deployment.
type bundle struct {
	calls    atomic.Int32
	listings map[string][]string // path -> names; trailing "/" marks a directory
	fail     map[string]error
}

func (b *bundle) FetchChildren(_ context.Context, _ filetree.Root, path string) ([]filetree.Asset, error) {
	b.calls.Add(1)
	if err := b.fail[path]; err != nil {
		return nil, err
	}
	var assets []filetree.Asset
	for _, n := range b.listings[path] {
		if n[len(n)-1] == '/' {
			assets = append(assets, filetree.NewDirectory(n[:len(n)-1]))
		} else {
			assets = append(assets, filetree.NewFile(n))
		}
	}
	return assets, nil
}

func newBundle() *bundle {
	return &bundle{
		listings: map[string][]string{
			"/":               {"package.json", "src/"},
			"/src":            {"index.ts", "components/"},
			"/src/components": {"Button.tsx"},
		},
		fail: map[string]error{},
	}
}

func TestSession_OpenAndTap(t *testing.T) {
	b := newBundle()
	s := New(Options{DeploymentID: "dpl_1", Fetcher: b})
	ctx := context.Background()

	if err := s.Open(ctx, filetree.RootSource); err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Second open is a no-op.
	if err := s.Open(ctx, filetree.RootSource); err != nil {
		t.Fatalf("Open again: %v", err)
	}
	if b.calls.Load() != 1 {
		t.Errorf("fetch calls after open = %d, want 1", b.calls.Load())
	}

	if out, err := s.Tap(ctx, filetree.RootSource, "/src"); err != nil || out != filetree.OutcomeLoaded {
		t.Fatalf("Tap /src = %s, %v", out, err)
	}
	if out, err := s.Tap(ctx, filetree.RootSource, "/src/components"); err != nil || out != filetree.OutcomeLoaded {
		t.Fatalf("Tap /src/components = %s, %v", out, err)
	}

	var buf bytes.Buffer
	if err := s.Render(&buf, filetree.RootSource); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "" +
		"▾ src/\n" +
		"  ▾ components/\n" +
		"      Button.tsx\n" +
		"    index.ts\n" +
		"  package.json\n"
	if buf.String() != want {
		t.Errorf("Render =\n%s\nwant\n%s", buf.String(), want)
	}

	if out, _ := s.Tap(ctx, filetree.RootSource, "/src"); out != filetree.OutcomeToggled {
		t.Errorf("second tap = %s, want toggled", out)
	}
	if rows := s.Rows(filetree.RootSource); len(rows) != 2 {
		t.Errorf("rows after collapse = %d, want 2", len(rows))
	}
	if b.calls.Load() != 3 {
		t.Errorf("fetch calls = %d, want 3", b.calls.Load())
	}
}

func TestSession_BusyWhileLoading(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var calls atomic.Int32
	f := filetree.FetcherFunc(func(_ context.Context, _ filetree.Root, path string) ([]filetree.Asset, error) {
		calls.Add(1)
		if path == "/slow" {
			close(entered)
			<-release
		}
		if path == "/" {
			return []filetree.Asset{filetree.NewDirectory("slow")}, nil
		}
		return nil, nil
	})
	s := New(Options{DeploymentID: "dpl_1", Fetcher: f})
	ctx := context.Background()
	if err := s.Open(ctx, filetree.RootOutput); err != nil {
		t.Fatalf("Open: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Tap(ctx, filetree.RootOutput, "/slow")
		done <- err
	}()
	<-entered

	if !s.Loading(filetree.RootOutput, "/slow") {
		t.Error("Loading should report the outstanding fetch")
	}
	var buf bytes.Buffer
	s.Render(&buf, filetree.RootOutput)
	if buf.String() != "▸ slow/ …\n" {
		t.Errorf("Render while loading = %q", buf.String())
	}

	if _, err := s.Tap(ctx, filetree.RootOutput, "/slow"); !errors.Is(err, ErrBusy) {
		t.Errorf("re-entrant tap err = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first tap: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2", calls.Load())
	}
	if s.Loading(filetree.RootOutput, "/slow") {
		t.Error("loading flag should clear after the fetch")
	}
}

func TestSession_FailureCanBeRetried(t *testing.T) {
	b := newBundle()
	b.fail["/src"] = errors.New("network down")
	s := New(Options{DeploymentID: "dpl_1", Fetcher: b})
	ctx := context.Background()
	s.Open(ctx, filetree.RootSource)

	out, err := s.Tap(ctx, filetree.RootSource, "/src")
	if out != filetree.OutcomeFailed || !errors.Is(err, filetree.ErrFetchFailed) {
		t.Fatalf("Tap = %s, %v; want failed", out, err)
	}
	d, _ := s.Tree(filetree.RootSource).Find("/src")
	if d.Loaded || d.Expanded {
		t.Error("failed load must leave the directory collapsed and unloaded")
	}

	delete(b.fail, "/src")
	if out, err := s.Tap(ctx, filetree.RootSource, "/src"); err != nil || out != filetree.OutcomeLoaded {
		t.Errorf("retry = %s, %v; want loaded", out, err)
	}
}

func TestSession_OpenFailure(t *testing.T) {
	b := newBundle()
	b.fail["/"] = errors.New("401")
	s := New(Options{Fetcher: b})

	err := s.Open(context.Background(), filetree.RootSource)
	var fe *filetree.FetchError
	if !errors.As(err, &fe) || fe.Path != "/" {
		t.Fatalf("Open err = %v, want FetchError for /", err)
	}

	delete(b.fail, "/")
	if err := s.Open(context.Background(), filetree.RootSource); err != nil {
		t.Errorf("Open after failure should retry, got %v", err)
	}
}

func TestSession_CloseDiscardsInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	f := filetree.FetcherFunc(func(_ context.Context, _ filetree.Root, path string) ([]filetree.Asset, error) {
		if path == "/" {
			return []filetree.Asset{filetree.NewDirectory("a")}, nil
		}
		close(entered)
		<-release
		return []filetree.Asset{filetree.NewFile("late.txt")}, nil
	})
	s := New(Options{Fetcher: f})
	ctx := context.Background()
	s.Open(ctx, filetree.RootSource)
	tree := s.Tree(filetree.RootSource)

	done := make(chan error, 1)
	go func() {
		_, err := s.Tap(ctx, filetree.RootSource, "/a")
		done <- err
	}()
	<-entered
	s.Close()
	close(release)

	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Errorf("in-flight tap err = %v, want ErrClosed", err)
	}
	if d, _ := tree.Find("/a"); d.Loaded {
		t.Error("late result was applied after Close")
	}
	if _, err := s.Tap(ctx, filetree.RootSource, "/a"); !errors.Is(err, ErrClosed) {
		t.Errorf("tap after Close err = %v, want ErrClosed", err)
	}
}

func TestSession_PublishesEvents(t *testing.T) {
	bc := events.NewBroadcaster()
	ch := bc.Subscribe()
	defer bc.Unsubscribe(ch)

	b := newBundle()
	b.fail["/src"] = errors.New("boom")
	s := New(Options{DeploymentID: "dpl_9", Fetcher: b, Events: bc})
	ctx := context.Background()
	s.Open(ctx, filetree.RootSource)
	s.Tap(ctx, filetree.RootSource, "/src")

	want := []string{events.EventReset, events.EventFailed}
	for _, typ := range want {
		select {
		case e := <-ch:
			if e.Type != typ || e.Deployment != "dpl_9" {
				t.Errorf("event = %+v, want type %s", e, typ)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestSession_RefreshMakesOldPathsNoOps(t *testing.T) {
	b := newBundle()
	s := New(Options{Fetcher: b})
	ctx := context.Background()
	s.Open(ctx, filetree.RootSource)
	s.Tap(ctx, filetree.RootSource, "/src")

	b.listings["/"] = []string{"README.md"}
	if err := s.Refresh(ctx, filetree.RootSource); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	out, err := s.Tap(ctx, filetree.RootSource, "/src")
	if err != nil || out != filetree.OutcomeNotFound {
		t.Errorf("stale tap = %s, %v; want not_found", out, err)
	}
}

func TestSession_NoEventsAfterClose(t *testing.T) {
	bc := events.NewBroadcaster()
	ch := bc.Subscribe()
	defer bc.Unsubscribe(ch)

	s := New(Options{DeploymentID: "dpl_1", Fetcher: newBundle(), Events: bc})
	tree := s.Tree(filetree.RootSource)
	s.Close()

	// A load that resolved after Close still swaps the detached tree's
	// snapshot; the session must stay silent about it.
	tree.Reset([]filetree.Asset{filetree.NewDirectory("late")})
	if len(ch) != 0 {
		t.Errorf("got %d events after Close, want 0", len(ch))
	}
}
