// Command partysim runs a party of in-process peers over a lossy bus and
// reports how long it takes every peer to agree on the roster and the host.
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/ryandielhenn/lanparty/discovery"
	"github.com/ryandielhenn/lanparty/pkg/gossip"
)

func main() {
	os.Exit(run())
}

func run() int {
	n := flag.Int("n", 8, "peers")
	members := flag.Int("join", 0, "peers that join the party (all when 0)")
	loss := flag.Float64("loss", 0.2, "per-copy loss probability")
	dup := flag.Float64("dup", 0.1, "per-copy duplication probability")
	interval := flag.Duration("interval", 20*time.Millisecond, "discovery interval")
	timeout := flag.Duration("timeout", 10*time.Second, "give up after")
	flag.Parse()

	if *n < 1 || *n > 255 {
		fmt.Fprintln(os.Stderr, "n must be within 1..255")
		return 2
	}
	if *members <= 0 || *members > *n {
		*members = *n
	}

	bus := gossip.NewBus(gossip.WithLoss(*loss), gossip.WithDuplication(*dup))
	peers := make([]*gossip.Gossiper, 0, *n)
	for i := 1; i <= *n; i++ {
		tr := bus.Attach()
		defer tr.Close()
		g, err := gossip.New(tr, discovery.Static(fmt.Sprintf("10.0.%d.%d", i/250, i%250+1)), gossip.WithIndex(uint8(i)))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		peers = append(peers, g)
	}

	want := make([]gossip.PeerID, 0, *members)
	for _, p := range peers[:*members] {
		p.JoinParty()
		want = append(want, p.Self())
	}
	slices.Sort(want)

	start := time.Now()
	rounds := 0
	spinner, _ := pterm.DefaultSpinner.Start("Waiting for the party to converge ...")
	for !converged(peers, want) {
		if time.Since(start) > *timeout {
			spinner.Fail("Peers did not converge")
			report(peers)
			return 1
		}
		for _, p := range peers {
			p.BroadcastDiscoveryMessage()
		}
		rounds++
		time.Sleep(*interval)
	}
	dur := time.Since(start)
	spinner.Success(fmt.Sprintf("Converged %d peers in %s after %d discovery rounds", *n, dur, rounds))
	report(peers)
	return 0
}

func converged(peers []*gossip.Gossiper, want []gossip.PeerID) bool {
	for _, p := range peers {
		if !slices.Equal(p.Participants(), want) {
			return false
		}
	}
	return true
}

func report(peers []*gossip.Gossiper) {
	data := pterm.TableData{{"Peer", "Index", "In party", "Members", "Host"}}
	for _, p := range peers {
		s := p.Snapshot()
		data = append(data, []string{
			string(s.Self),
			strconv.Itoa(int(s.Index)),
			strconv.FormatBool(s.InParty),
			strconv.Itoa(len(s.Participants)),
			string(s.Host),
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
