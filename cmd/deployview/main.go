// deployview browses the source and build output files of a deployment.
//
// Sub-commands:
//
//	deployview deployments [-project id]             List recent deployments
//	deployview tree -deployment id [-root r]         Print a deployment's file tree
//	deployview cat -deployment id [-root r] <path>   Print one file
//	deployview browse -deployment id [-listen addr]  Interactive browser
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/deployview/deployview/internal/browser"
	"github.com/deployview/deployview/internal/config"
	"github.com/deployview/deployview/internal/events"
	"github.com/deployview/deployview/internal/logging"
	"github.com/deployview/deployview/pkg/client"
	"github.com/deployview/deployview/pkg/filetree"
	"github.com/deployview/deployview/pkg/listcache"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "deployments", "ls":
		cmdDeployments(args)
	case "tree":
		cmdTree(args)
	case "cat":
		cmdCat(args)
	case "browse":
		cmdBrowse(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`deployview - browse deployment files

Usage: deployview <command> [flags]

Commands:
  deployments, ls   List recent deployments
  tree              Print the file tree of a deployment
  cat               Print a file from a deployment
  browse            Interactive tree browser
  help              Show this help message

Common flags:
  -token <token>    API token (default: $DEPLOYVIEW_TOKEN, else prompt)
  -team <id>        Team id (default: $DEPLOYVIEW_TEAM_ID)
  -api <url>        API base URL (default: $DEPLOYVIEW_API_URL)
  -no-cache         Disable the on-disk listing cache

Examples:
  deployview deployments -project prj_123
  deployview tree -deployment my-app-abc123.vercel.app -root out -expand /api,/_next
  deployview cat -deployment dpl_abc -root src /package.json
  deployview browse -deployment dpl_abc -listen 127.0.0.1:7070`)
}

// common holds the flags every sub-command accepts.
type common struct {
	token   string
	team    string
	apiURL  string
	noCache bool
	verbose bool
}

func addCommon(fs *flag.FlagSet) *common {
	c := &common{}
	fs.StringVar(&c.token, "token", "", "API token")
	fs.StringVar(&c.team, "team", "", "Team id")
	fs.StringVar(&c.apiURL, "api", "", "API base URL")
	fs.BoolVar(&c.noCache, "no-cache", false, "Disable the listing cache")
	fs.BoolVar(&c.verbose, "v", false, "Debug logging")
	return c
}

// env bundles everything a sub-command needs once flags are parsed.
type env struct {
	cfg    *config.Config
	client *client.Client
	cache  *listcache.Cache
}

// setup loads config, applies flag overrides, initializes logging and
// builds an API client.
func setup(flags *common) *env {
	cfg, err := config.Load()
	if err != nil {
		fatal("config: %v", err)
	}
	if flags.token != "" {
		cfg.Token = flags.token
	}
	if flags.team != "" {
		cfg.TeamID = flags.team
	}
	if flags.apiURL != "" {
		cfg.APIURL = flags.apiURL
	}
	if flags.noCache {
		cfg.CacheDir = ""
	}
	if os.Getenv("LOG_FORMAT") == "" && !term.IsTerminal(int(os.Stderr.Fd())) {
		cfg.LogFormat = "json"
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fatal("logging: %v", err)
	}
	if flags.verbose {
		logging.SetLevel("debug")
	}

	e := &env{
		cfg: cfg,
		client: client.New(client.Config{
			BaseURL: strings.TrimSuffix(cfg.APIURL, "/"),
			Token:   cfg.Token,
			TeamID:  cfg.TeamID,
			Timeout: cfg.Timeout,
		}),
	}

	if cfg.CacheDir != "" && cfg.CacheEntries > 0 {
		c, err := listcache.New(cfg.CacheDir, cfg.CacheEntries)
		if err != nil {
			logging.Warn("listing cache disabled", logging.String("dir", cfg.CacheDir), logging.Err(err))
		} else {
			e.cache = c
		}
	}

	if cfg.Token == "" {
		token := promptToken()
		if token == "" {
			fatal("no token available. Use -token, DEPLOYVIEW_TOKEN, or run interactively")
		}
		e.client.SetToken(token)
	}
	return e
}

// authenticate checks the token before any listing is requested so a bad
// token fails with a clear message.
func (e *env) authenticate(ctx context.Context) {
	user, err := e.client.Ping(ctx)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			fatal("token rejected by %s: %s", e.cfg.APIURL, apiErr.Message)
		}
		fatal("%v", err)
	}
	logging.Debug("authenticated",
		logging.String("user", user.User.Username),
		logging.String("team", e.client.Team()),
	)
}

// resolveDeployment looks up a deployment by id or URL, reports its state on
// stderr and returns its id.
func (e *env) resolveDeployment(ctx context.Context, ref string) string {
	ref = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(ref, "https://"), "http://"), "/")
	d, err := e.client.GetDeployment(ctx, ref)
	if err != nil {
		if client.IsNotFound(err) {
			fatal("deployment %s not found", ref)
		}
		fatal("%v", err)
	}
	fmt.Fprintf(os.Stderr, "%s (%s) %s https://%s\n", d.UID, d.Name, d.Status(), d.URL)
	return d.UID
}

// promptToken reads a token from the terminal without echo. It returns ""
// when stdin is not a terminal.
func promptToken() string {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return ""
	}
	fmt.Fprint(os.Stderr, "Token: ")
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fatal("reading token: %v", err)
	}
	return strings.TrimSpace(string(b))
}

// session builds a browser session for deploymentID. Listings go through
// the on-disk cache when one is configured.
func (e *env) session(deploymentID string, bc *events.Broadcaster) *browser.Session {
	fetcher := e.client.Fetcher(deploymentID)
	if e.cache != nil {
		fetcher = listcache.CachingFetcher(fetcher, e.cache, deploymentID)
	}
	return browser.New(browser.Options{
		DeploymentID: deploymentID,
		Fetcher:      fetcher,
		MatchPolicy:  e.cfg.MatchPolicy,
		Events:       bc,
	})
}

func cmdDeployments(args []string) {
	fs := flag.NewFlagSet("deployments", flag.ExitOnError)
	flags := addCommon(fs)
	project := fs.String("project", "", "Project id or name")
	limit := fs.Int("limit", 20, "Maximum deployments to list")
	fs.Parse(args)

	e := setup(flags)
	defer logging.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	e.authenticate(ctx)

	deployments, err := e.client.ListDeployments(ctx, *project, *limit)
	if err != nil {
		fatal("%v", err)
	}
	if len(deployments) == 0 {
		fmt.Println("No deployments")
		return
	}

	if team := e.client.Team(); team != "" {
		fmt.Printf("Team: %s\n\n", team)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tTARGET\tCREATED\tURL")
	for _, d := range deployments {
		target := d.Target
		if target == "" {
			target = "preview"
		}
		created := time.UnixMilli(d.CreatedAt).Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", d.UID, d.Name, d.Status(), target, created, d.URL)
	}
	w.Flush()
}

func cmdTree(args []string) {
	fs := flag.NewFlagSet("tree", flag.ExitOnError)
	flags := addCommon(fs)
	deployment := fs.String("deployment", "", "Deployment id or URL (required)")
	root := fs.String("root", string(filetree.RootOutput), "Bundle root: src or out")
	expand := fs.String("expand", "", "Comma-separated directories to expand, in order")
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
	s := e.session(e.resolveDeployment(ctx, *deployment), nil)
	defer s.Close()

	if err := s.Open(ctx, r); err != nil {
		fatal("%v", err)
	}
	for _, p := range strings.Split(*expand, ",") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		outcome, err := s.Tap(ctx, r, p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %s: %v\n", p, err)
			continue
		}
		if outcome == filetree.OutcomeNotFound {
			fmt.Fprintf(os.Stderr, "Warning: %s: no such directory\n", p)
		}
	}

	if err := s.Render(os.Stdout, r); err != nil {
		fatal("%v", err)
	}
}

func cmdCat(args []string) {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	flags := addCommon(fs)
	deployment := fs.String("deployment", "", "Deployment id (required)")
	root := fs.String("root", string(filetree.RootOutput), "Bundle root: src or out")
	fs.Parse(args)

	if *deployment == "" || fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: deployview cat -deployment <id> [-root src|out] <path>")
		os.Exit(1)
	}
	r := parseRoot(*root)

	e := setup(flags)
	defer logging.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	data, err := e.client.FetchFile(ctx, *deployment, string(r), filetree.Clean(fs.Arg(0)))
	if err != nil {
		fatal("%v", err)
	}
	os.Stdout.Write(data)
}

func parseRoot(s string) filetree.Root {
	switch filetree.Root(s) {
	case filetree.RootSource, filetree.RootOutput:
		return filetree.Root(s)
	}
	fatal("unknown root %q (want src or out)", s)
	return ""
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	logging.Sync()
	os.Exit(1)
}
