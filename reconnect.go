package sproxy

import (
	"github.com/rs/zerolog/log"
)

// Reconnect tries to connect every disconnected node, masters first and then
// their virtuals. Attempts are independent: a master that stays down does
// not keep its virtuals from being published. It returns the number of
// nodes still disconnected.
func (h *Hub) Reconnect() int {
	down := 0
	h.registry.Walk(func(node *Node) bool {
		if node.link != nil {
			return true
		}
		if err := h.Connect(node.id); err != nil {
			down++
			if node.IsMaster() {
				log.Warn().Msgf("Problem reconnecting serial device: %s: %v", node.name, err)
			} else {
				log.Warn().Msgf("Problem reconnecting virtual serial device: %s: %v", node.name, err)
			}
			return true
		}
		if node.IsMaster() {
			log.Info().Msgf("Reconnected serial: %s (%d) [%s]", node.name, node.link.fd, node.link.mask)
		} else {
			log.Info().Msgf("Reconnected virtual: %s (%d) [%s] -> %s", node.name, node.link.fd, node.link.mask, node.link.SlaveName())
		}
		return true
	})
	return down
}
