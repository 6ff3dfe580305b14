// Package admintui implements the Admin Console named in
// SPEC_FULL.md §4.7: a read-only gocui dashboard over the running
// server's Transport, Registry, Rooms and Store. It never calls a
// mutating method on any of them.
//
// Grounded on the teacher's ui.go ChatUI (gocui.Gui, SetManagerFunc
// layout, g.Update for background-goroutine-safe redraws), with the
// editable input view and its command handling removed since this
// console never writes to server state.
package admintui

import (
	"fmt"
	"sort"
	"time"

	"github.com/jroimartin/gocui"

	"chatserver/internal/registry"
	"chatserver/internal/rooms"
	"chatserver/internal/store"
	"chatserver/internal/transport"
)

const refreshInterval = 500 * time.Millisecond

const (
	viewRooms  = "rooms"
	viewUsers  = "users"
	viewStatus = "status"
)

// Console is the admin live-monitoring dashboard.
type Console struct {
	gui *gocui.Gui

	transport *transport.Transport
	reg       *registry.Registry
	rooms     *rooms.Manager
	store     *store.Store

	port int
	done chan struct{}
}

// New builds a Console bound to the already-running server
// components. Call Run to start it; Run blocks until the operator
// quits (Ctrl-C) or Close is called from another goroutine.
func New(port int, tr *transport.Transport, reg *registry.Registry, rm *rooms.Manager, st *store.Store) (*Console, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, err
	}

	c := &Console{
		gui:       g,
		transport: tr,
		reg:       reg,
		rooms:     rm,
		store:     st,
		port:      port,
		done:      make(chan struct{}),
	}
	g.SetManagerFunc(c.layout)
	return c, nil
}

func (c *Console) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	sidebarWidth := 28
	roomsHeight := maxY / 2

	if v, err := g.SetView(viewRooms, 0, 0, sidebarWidth, roomsHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Rooms"
		v.Wrap = true
	}

	if v, err := g.SetView(viewUsers, 0, roomsHeight+1, sidebarWidth, maxY-3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Connected Clients"
		v.Wrap = true
	}

	if v, err := g.SetView(viewStatus, 0, maxY-2, maxX-1, maxY); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
		v.Wrap = true
		fmt.Fprintf(v, "Listening on :%d | Ctrl-C to quit", c.port)
	}

	return nil
}

func (c *Console) keybindings() error {
	return c.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone,
		func(g *gocui.Gui, _ *gocui.View) error {
			return gocui.ErrQuit
		})
}

func (c *Console) refreshOnce() {
	c.gui.Update(func(g *gocui.Gui) error {
		if v, err := g.View(viewRooms); err == nil {
			v.Clear()
			rs := c.rooms.ListRooms()
			sort.Slice(rs, func(i, j int) bool { return rs[i].Name < rs[j].Name })
			for _, info := range rs {
				fmt.Fprintf(v, "#%s (%d)\n", info.Name, info.MemberCount)
			}
		}

		if v, err := g.View(viewUsers); err == nil {
			v.Clear()
			clients := c.reg.All()
			sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
			for _, cl := range clients {
				fmt.Fprintf(v, "%s (#%s)\n", cl.Name, cl.Room)
			}
			fmt.Fprintf(v, "\ntotal messages stored: %d\n", c.store.GetTotalCount())
		}

		if v, err := g.View(viewStatus); err == nil {
			v.Clear()
			fmt.Fprintf(v, "Listening on :%d | %d connected | Ctrl-C to quit",
				c.port, c.transport.ClientCount())
		}
		return nil
	})
}

func (c *Console) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.refreshOnce()
		case <-c.done:
			return
		}
	}
}

// Run starts the dashboard and blocks until the operator quits.
func (c *Console) Run() error {
	if err := c.keybindings(); err != nil {
		return err
	}

	go c.refreshLoop()

	err := c.gui.MainLoop()
	close(c.done)
	if err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

// Close releases the terminal. Safe to call after Run returns.
func (c *Console) Close() {
	c.gui.Close()
}
