package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deployview/deployview/internal/browser"
	"github.com/deployview/deployview/internal/events"
	"github.com/deployview/deployview/internal/logging"
	"github.com/deployview/deployview/internal/server"
	"github.com/deployview/deployview/pkg/filetree"
)

func cmdBrowse(args []string) {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	flags := addCommon(fs)
	deployment := fs.String("deployment", "", "Deployment id or URL (required)")
	root := fs.String("root", string(filetree.RootOutput), "Initial bundle root: src or out")
	listen := fs.String("listen", "", "Serve the tree, events and metrics on this address")
	fs.Parse(args)

	if *deployment == "" {
		fmt.Fprintln(os.Stderr, "Error: -deployment is required")
		fs.Usage()
		os.Exit(1)
	}
	r := parseRoot(*root)

	e := setup(flags)
	defer logging.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	e.authenticate(ctx)
	bc := events.NewBroadcaster()
	s := e.session(e.resolveDeployment(ctx, *deployment), bc)
	defer s.Close()

	if *listen != "" {
		srv := server.New(s, bc)
		go func() {
			if err := srv.ListenAndServe(ctx, *listen); err != nil {
				logging.Error("observer server failed", logging.Err(err))
			}
		}()
		fmt.Fprintf(os.Stderr, "Serving on http://%s\n", *listen)
	}

	if err := runREPL(ctx, s, r, os.Stdin, os.Stdout); err != nil {
		fatal("%v", err)
	}
}

// runREPL reads directory paths from in, taps each one and re-renders the
// tree to out. ":root src|out" switches roots, ":r" reloads the current
// root and ":q" quits.
func runREPL(ctx context.Context, s *browser.Session, root filetree.Root, in io.Reader, out io.Writer) error {
	if err := s.Open(ctx, root); err != nil {
		return err
	}
	render(s, root, out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "%s> ", root)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == ":q" || line == ":quit":
			return nil
		case line == ":r" || line == ":refresh":
			if err := s.Refresh(ctx, root); err != nil {
				fmt.Fprintf(out, "refresh failed: %v\n", err)
				continue
			}
		case strings.HasPrefix(line, ":root"):
			next := filetree.Root(strings.TrimSpace(strings.TrimPrefix(line, ":root")))
			if next != filetree.RootSource && next != filetree.RootOutput {
				fmt.Fprintln(out, "usage: :root src|out")
				continue
			}
			if err := s.Open(ctx, next); err != nil {
				fmt.Fprintf(out, "open %s failed: %v\n", next, err)
				continue
			}
			root = next
		case strings.HasPrefix(line, ":"):
			fmt.Fprintln(out, "commands: <path>  :root src|out  :r  :q")
			continue
		default:
			outcome, err := s.Tap(ctx, root, line)
			switch {
			case errors.Is(err, browser.ErrBusy):
				fmt.Fprintf(out, "%s is still loading\n", filetree.Clean(line))
				continue
			case err != nil:
				fmt.Fprintf(out, "load failed: %v\n", err)
			case outcome == filetree.OutcomeNotFound:
				fmt.Fprintf(out, "%s: no such directory\n", filetree.Clean(line))
				continue
			}
		}
		render(s, root, out)
	}
}

func render(s *browser.Session, root filetree.Root, out io.Writer) {
	if err := s.Render(out, root); err != nil {
		logging.Warn("render failed", logging.Err(err))
	}
}
