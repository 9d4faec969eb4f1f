// Package gossip implements the party membership protocol for lanparty.
// Peers on a local network discover each other, form a transient party,
// agree on a host and share a countdown to match start, all from periodic
// broadcast gossip and without a central server.
//
// The package defines an abstract Transport interface, the wire message and
// its codec, the per-peer Party state, host election and the Gossiper engine
// that owns the state and applies every inbound or local transition.
//
// Typical usage:
//
//	g, _ := gossip.New(tr, discovery.LocalAddr{}, gossip.WithIndex(1))
//	g.AddListener(gossip.ListenerFuncs{PlayerJoined: onJoin})
//	g.BroadcastDiscoveryMessage()
//	g.JoinParty()
//
// An in-process Bus transport is provided for tests and simulation; real
// deployments use one of the adapters under pkg/transport.
package gossip
