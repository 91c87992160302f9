package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/atikulmunna/kitsune/internal/output"
	"github.com/atikulmunna/kitsune/internal/panel"
	"github.com/atikulmunna/kitsune/internal/workspace"
)

const consoleSource = "kitsune"

const consoleHelp = `commands:
  list                 show panels
  open PATH            open a file in a new panel
  close N              close panel N
  pause N | resume N   stop or continue appending
  follow N on|off      toggle auto-scroll
  filter N [TEXT]      filter panel N (no text clears)
  filterall N          apply panel N's filter to every panel
  clear N              empty panel N
  copy N               copy panel N to the clipboard
  select N SEQ         select a record and sync the other panels
  sync on|off          toggle timestamp sync
  stats                print per-panel stats
  save NAME | load NAME
  quit`

var errQuit = errors.New("quit")

// console runs the line commands typed while watching.
type console struct {
	ws     *workspace.Workspace
	out    output.Renderer
	copy   func(string) error
	cancel context.CancelFunc
	log    logrus.FieldLogger
}

// run executes commands from r until EOF, quit or ctx ends.
func (c *console) run(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		err := c.exec(scanner.Text())
		if errors.Is(err, errQuit) {
			c.cancel()
			return
		}
		if err != nil {
			c.status(err.Error())
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.WithError(err).Debug("console input ended")
	}
}

// exec runs one command line.
func (c *console) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "help", "?":
		c.status(consoleHelp)
		return nil
	case "quit", "exit", "q":
		return errQuit
	case "list", "ls":
		c.list()
		return nil
	case "stats":
		c.printStats()
		return nil
	case "sync":
		on, err := onOff(args)
		if err != nil {
			return err
		}
		c.ws.SetSyncEnabled(on)
		c.status(fmt.Sprintf("sync %s", onOffText(on)))
		return nil
	case "open":
		if len(args) != 1 {
			return errors.New("usage: open PATH")
		}
		_, err := c.ws.OpenFile(args[0])
		return err
	case "save":
		if len(args) != 1 {
			return errors.New("usage: save NAME")
		}
		if err := c.ws.SaveSession(args[0]); err != nil {
			return err
		}
		c.status(fmt.Sprintf("saved session %q", args[0]))
		return nil
	case "load":
		if len(args) != 1 {
			return errors.New("usage: load NAME")
		}
		n, err := c.ws.LoadSession(args[0])
		c.status(fmt.Sprintf("loaded %d file(s)", n))
		return err
	}

	// Everything else addresses one panel.
	if len(args) == 0 {
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	p, err := c.panel(args[0])
	if err != nil {
		return err
	}
	rest := args[1:]

	switch name {
	case "close":
		return c.ws.ClosePanel(p.ID())
	case "pause":
		p.Pause()
	case "resume":
		p.Resume()
	case "follow":
		on, err := onOff(rest)
		if err != nil {
			return err
		}
		p.SetFollow(on)
	case "filter":
		p.SetFilter(strings.Join(rest, " "))
		c.status(fmt.Sprintf("%s: %d of %d records match", p.Title(), len(p.View()), len(p.Records())))
	case "filterall":
		p.ApplyFilterToAll()
	case "clear":
		p.Clear()
	case "copy":
		text := p.Copy()
		if err := c.copy(text); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		c.status(fmt.Sprintf("copied %d record(s) from %s", len(p.Records()), p.Title()))
	case "select":
		if len(rest) != 1 {
			return errors.New("usage: select N SEQ")
		}
		seq, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("invalid sequence %q", rest[0])
		}
		rec, ok := p.Select(seq)
		if !ok {
			return fmt.Errorf("record %d is not buffered in %s", seq, p.Title())
		}
		if err := c.out.Record(p.Title(), rec); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	return nil
}

// panel resolves a 1-based panel number.
func (c *console) panel(arg string) (*panel.Panel, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid panel number %q", arg)
	}
	panels := c.ws.Panels()
	if n < 1 || n > len(panels) {
		return nil, fmt.Errorf("no panel %d (have %d)", n, len(panels))
	}
	return panels[n-1], nil
}

func (c *console) list() {
	panels := c.ws.Panels()
	if len(panels) == 0 {
		c.status("no panels")
		return
	}
	for i, p := range panels {
		c.status(fmt.Sprintf("%d. %s [%s] follow=%s filter=%q",
			i+1, p.Path(), p.Status(), onOffText(p.Following()), p.Filter()))
	}
}

func (c *console) printStats() {
	for _, p := range c.ws.Panels() {
		if err := c.out.Stats(p.Title(), p.Stats()); err != nil {
			c.log.WithError(err).Warn("render stats")
		}
	}
}

func (c *console) status(text string) {
	if err := c.out.Status(consoleSource, text); err != nil {
		c.log.WithError(err).Warn("render status")
	}
}

func onOff(args []string) (bool, error) {
	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "on", "true", "1":
			return true, nil
		case "off", "false", "0":
			return false, nil
		}
	}
	return false, errors.New("expected on or off")
}

func onOffText(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
