// Snappy viewer core CLI
// Opens a JSON document through a session and optionally runs a search
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MartinPtrl/snappy-jason/internal/logger"
	"github.com/MartinPtrl/snappy-jason/internal/metrics"
	"github.com/MartinPtrl/snappy-jason/internal/server"
	"github.com/MartinPtrl/snappy-jason/pkg/config"
	"github.com/MartinPtrl/snappy-jason/pkg/engine"
	"github.com/MartinPtrl/snappy-jason/pkg/jsondoc"
	"github.com/MartinPtrl/snappy-jason/pkg/search"
	"github.com/MartinPtrl/snappy-jason/pkg/session"
	"github.com/MartinPtrl/snappy-jason/pkg/tree"
)

var (
	file     = flag.String("file", "", "JSON document to open (empty reopens the last one)")
	query    = flag.String("search", "", "Search query to run after opening")
	keys     = flag.Bool("keys", true, "Search in object keys")
	values   = flag.Bool("values", true, "Search in scalar values")
	paths    = flag.Bool("paths", false, "Search in pointer paths")
	caseSens = flag.Bool("case", false, "Case-sensitive matching")
	word     = flag.Bool("word", false, "Whole-word matching")
	regex    = flag.Bool("regex", false, "Regular-expression matching")
	expand   = flag.String("expand", "", "Pointer to expand after opening")
	obsPort  = flag.Int("obs-port", 0, "Observability HTTP port (0 disables)")
	logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	pretty   = flag.Bool("pretty", true, "Pretty-print logs")
)

func main() {
	flag.Parse()

	logger.InitGlobalLogger(logger.Config{Level: *logLevel, Pretty: *pretty})
	log := logger.GetGlobalLogger()
	met := metrics.New()

	if *obsPort > 0 {
		obs := server.NewObservabilityServer(*obsPort, log)
		go func() {
			if err := obs.Start(); err != nil {
				log.Error("observability server").Err(err).Send()
			}
		}()
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}
	cfg, err := config.NewFileStore(filepath.Join(configDir, "snappy"))
	if err != nil {
		log.Fatal("config store").Err(err).Send()
	}

	eng := jsondoc.New(
		jsondoc.WithLogger(log),
		jsondoc.WithMetrics(met),
	)
	ctl := session.New(eng,
		session.WithLogger(log),
		session.WithMetrics(met),
		session.WithConfigStore(cfg),
		session.WithTreeOptions(tree.WithLogger(log.TreeLogger()), tree.WithMetrics(met)),
		session.WithSearchOptions(search.WithLogger(log.SearchLogger()), search.WithMetrics(met)),
		session.WithOnProgress(func(ev engine.ProgressEvent) {
			fmt.Fprintf(os.Stderr, "\rloading %s: %.1f%%", ev.FileID, ev.Percent)
			if ev.Done || ev.Canceled {
				fmt.Fprintln(os.Stderr)
			}
		}),
	)

	ctx := context.Background()

	var sess *session.Session
	if *file != "" {
		sess, err = ctl.Open(ctx, *file)
	} else {
		sess, err = ctl.ReopenLast(ctx)
	}
	if err != nil {
		log.Fatal("open document").Err(err).Send()
	}

	fmt.Printf("Document: %s\n", sess.Path)
	printLevel(sess, "", 0)

	if *expand != "" {
		if err := sess.Tree.Toggle(ctx, *expand); err != nil {
			log.Error("expand").Str("pointer", *expand).Err(err).Send()
		} else {
			fmt.Printf("\nChildren of %s:\n", *expand)
			printLevel(sess, *expand, 1)
		}
	}

	if *query != "" {
		runSearch(sess)
	}
}

func printLevel(sess *session.Session, pointer string, indent int) {
	pad := strings.Repeat("  ", indent)
	page, ok := sess.Tree.Page(pointer)
	if !ok {
		return
	}
	for _, n := range page.Children {
		label := n.Key
		if label == "" {
			label = "(root)"
		}
		fmt.Printf("%s%s  [%s]  %s\n", pad, label, n.ValueType, n.Preview)
	}
	if page.HasMore {
		fmt.Printf("%s… %d loaded, more available\n", pad, page.LoadedCount)
	}
}

func runSearch(sess *session.Session) {
	opts := engine.SearchOptions{
		SearchKeys:   *keys,
		SearchValues: *values,
		SearchPaths:  *paths,
	}
	switch {
	case *regex:
		opts.UseRegex()
	case *word:
		opts.UseWholeWord()
	case *caseSens:
		opts.UseCaseSensitive()
	}

	sess.Search.SetQuery(*query)
	sess.Search.SetOptions(opts)
	sess.Search.SearchNow()

	// The CLI has no event loop, so poll the session until it settles.
	for {
		snap := sess.Search.Snapshot()
		switch snap.Phase {
		case search.PhaseDone:
			fmt.Printf("\n%d matches (%d shown):\n", snap.TotalCount, len(snap.Results))
			for _, r := range snap.Results {
				win := search.PreviewWindow(r, snap.Query, snap.Options)
				fmt.Printf("  %-5s %s  %s\n", r.MatchType, r.Node.Pointer, win.Text)
			}
			return
		case search.PhaseError:
			fmt.Printf("search failed: %s\n", snap.Err)
			return
		case search.PhaseIdle:
			if msg, ok := sess.Search.Notice(); ok {
				fmt.Println(msg)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
