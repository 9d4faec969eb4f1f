package node

func (n *Node) skipPending() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.skip
}
