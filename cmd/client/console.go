package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/atinyakov/SiteKeeper/internal/client/reconcile"
	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	syncingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
)

// console serializes output from the shell and from background notices.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) Println(args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, args...)
}

func (c *console) Online()  { c.Println(okStyle.Render("● back online")) }
func (c *console) Offline() { c.Println(warnStyle.Render("○ offline, changes will be queued")) }

func (c *console) SyncStarting(n int) {
	c.Println(syncingStyle.Render(fmt.Sprintf("⟳ synchronizing %d change(s)", n)))
}

func (c *console) SyncCompleted() { c.Println(syncingStyle.Render("⟳ synchronization complete")) }

func statusBadge(s models.SyncStatus) string {
	switch s {
	case models.StatusSynced:
		return okStyle.Render("synced")
	case models.StatusPending:
		return warnStyle.Render("pending")
	case models.StatusError:
		return errStyle.Render("error")
	}
	return dimStyle.Render(string(s))
}

func connectionBadge(s reconcile.Status) string {
	switch s {
	case reconcile.StatusOnline:
		return okStyle.Render(string(s))
	case reconcile.StatusSyncing:
		return syncingStyle.Render(string(s))
	}
	return warnStyle.Render(string(s))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
