package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/atikulmunna/kitsune/internal/hub"
	"github.com/atikulmunna/kitsune/internal/output"
	"github.com/atikulmunna/kitsune/internal/panel"
	"github.com/atikulmunna/kitsune/internal/session"
	"github.com/atikulmunna/kitsune/internal/watcher"
	"github.com/atikulmunna/kitsune/internal/workspace"
)

const statsInterval = 5 * time.Second

var restoreSession bool

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Watch log files side by side",
	Long: `Watch one or more log files (or glob patterns) and stream new lines
to the terminal in real time. Each file gets its own panel; panels are
controlled with commands typed on stdin (type "help").

Examples:
  kitsune watch /var/log/app.log
  kitsune watch "/var/log/**/*.log"
  kitsune watch app.log worker.log --output json
  kitsune watch --restore`,
	RunE: runWatch,
}

func init() {
	flags := watchCmd.Flags()
	flags.Int("capacity", 0, "records kept per panel")
	flags.IntP("lines", "n", 0, "lines shown when a file is opened")
	flags.Duration("poll-interval", 0, "fallback poll interval")
	flags.Bool("from-start", false, "read whole files instead of the last lines")
	flags.Bool("follow", true, "scroll to new lines as they arrive")
	flags.Bool("sync", true, "sync panels by timestamp")
	flags.Bool("stats", false, "print per-panel stats periodically")
	flags.BoolVar(&restoreSession, "restore", false, "reopen the files of the last run")

	cobra.CheckErr(v.BindPFlag("capacity", flags.Lookup("capacity")))
	cobra.CheckErr(v.BindPFlag("initial_lines", flags.Lookup("lines")))
	cobra.CheckErr(v.BindPFlag("poll_interval", flags.Lookup("poll-interval")))
	cobra.CheckErr(v.BindPFlag("from_start", flags.Lookup("from-start")))
	cobra.CheckErr(v.BindPFlag("follow", flags.Lookup("follow")))
	cobra.CheckErr(v.BindPFlag("sync", flags.Lookup("sync")))
	cobra.CheckErr(v.BindPFlag("stats", flags.Lookup("stats")))

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// --- Set up context with graceful shutdown ---
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	paths, err := watcher.Expand(args)
	if err != nil {
		return fmt.Errorf("expand patterns: %w", err)
	}
	if len(paths) == 0 && !restoreSession {
		return fmt.Errorf("no files matched the given patterns: %v", args)
	}

	store, err := session.Open(cfg.SessionFile, log)
	if err != nil {
		return err
	}

	renderer, err := output.New(cfg.Output, os.Stdout)
	if err != nil {
		return err
	}

	// --- Build the workspace ---
	h := hub.New(cfg.Sync, log)
	defer h.Close()

	ws := workspace.New(h, workspace.Options{
		Panel:    cfg.PanelOptions(log),
		Sessions: store,
		Logger:   log,
	})
	defer ws.Close()

	if restoreSession {
		if n, err := ws.RestoreLastSession(); err != nil {
			log.WithError(err).Warn("session restore incomplete")
		} else {
			log.WithField("panels", n).Info("restored session")
		}
	}
	for _, p := range paths {
		if _, err := ws.OpenFile(p); err != nil {
			if errors.Is(err, workspace.ErrAlreadyOpen) {
				log.WithField("path", p).Debug("already open")
				continue
			}
			log.WithError(err).WithField("path", p).Warn("failed to open")
		}
	}

	panels := ws.Panels()
	if len(panels) == 0 {
		return errors.New("nothing to watch")
	}
	fmt.Fprintf(os.Stderr, "kitsune watching %d file(s):\n", len(panels))
	for i, p := range panels {
		p.SetFollow(cfg.Follow)
		fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, p.Path())
	}
	fmt.Fprintln(os.Stderr)

	// --- Console ---
	con := &console{
		ws:     ws,
		out:    renderer,
		copy:   clipboard.WriteAll,
		cancel: cancel,
		log:    log.WithField("component", "console"),
	}
	go con.run(ctx, os.Stdin)

	var statsTick <-chan time.Time
	if cfg.Stats {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	// --- Render output ---
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\nkitsune shutting down...")
			return nil
		case <-statsTick:
			con.printStats()
		case ev, ok := <-ws.Events():
			if !ok {
				return nil
			}
			if err := render(ws, renderer, ev); err != nil {
				log.WithError(err).Warn("render error")
			}
		}
	}
}

// render writes one panel event.
func render(ws *workspace.Workspace, r output.Renderer, ev panel.Event) error {
	p, ok := ws.Panel(ev.Panel)
	if !ok {
		return nil
	}
	name := p.Title()

	switch ev.Kind {
	case panel.RecordsAppended:
		for _, rec := range ev.Records {
			if !p.Match(rec) {
				continue
			}
			if err := r.Record(name, rec); err != nil {
				return err
			}
		}
	case panel.ScrollToRecordRequested:
		return r.Status(name, "synced to "+ev.Record.DisplayText())
	case panel.StatusChanged:
		return r.Status(name, ev.Text)
	case panel.ErrorOccurred:
		log.WithField("panel", name).Warn(ev.Text)
	case panel.FilterToAllRequested:
		return r.Status(name, fmt.Sprintf("filter %q applied to all panels", ev.Text))
	}
	return nil
}
