package main

import (
	"strings"

	"github.com/pterm/pterm"

	"github.com/ryandielhenn/lanparty/pkg/gossip"
)

// console prints party events for a human watching the terminal. Listener
// callbacks may read engine state but never call its control methods.
type console struct {
	g *gossip.Gossiper
}

func newConsole(g *gossip.Gossiper) gossip.Listener {
	return &console{g: g}
}

func (c *console) OnPlayerJoined(index uint8) {
	pterm.Info.Printfln("Player %s joined", pterm.LightCyan(index))
	c.render()
}

func (c *console) OnPlayerLeft(index uint8) {
	pterm.Info.Printfln("Player %s left", pterm.LightCyan(index))
	c.render()
}

func (c *console) OnServerReady(addr gossip.PeerID) {
	pterm.Success.Printfln("Match is on, connect to %s", pterm.LightGreen(addr))
}

func (c *console) OnSkipCountdown() {
	pterm.Info.Println("Countdown skipped")
}

func (c *console) OnPartyReset() {
	pterm.Info.Println("Party cleared")
}

func (c *console) render() {
	s := c.g.Snapshot()
	if len(s.Participants) == 0 {
		return
	}
	var b strings.Builder
	for _, p := range s.Participants {
		line := string(p)
		if p == s.Host {
			line = pterm.LightGreen(line + " (host)")
		}
		if p == s.Self {
			line += pterm.LightYellow(" *")
		}
		b.WriteString(line + "\n")
	}
	if s.Countdown {
		b.WriteString(pterm.Sprintf("\nmatch starts at %s", pterm.LightCyan(s.MatchStart.Format("15:04:05"))))
	}
	pterm.DefaultBox.
		WithHorizontalPadding(4).
		WithTitle(pterm.LightYellow("|PARTY|")).
		WithTitleTopCenter().
		Println(b.String())
}
