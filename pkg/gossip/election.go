package gossip

// ElectHost picks the party host: the lexicographically greatest address.
// Every peer runs this over its own view of the membership, so a
// deterministic rule is all it takes to agree without election messages.
func ElectHost(members []PeerID) (PeerID, error) {
	if len(members) == 0 {
		return "", ErrEmptyParty
	}
	host := members[0]
	for _, id := range members[1:] {
		if id > host {
			host = id
		}
	}
	return host, nil
}
