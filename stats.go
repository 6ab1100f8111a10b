package sproxy

import (
	"github.com/rs/zerolog/log"
	"time"
)

// LinkStats counts relay traffic for the lifetime of one link.
type LinkStats struct {
	LastActivityTime  int64
	TotalReadBytes    uint64
	TotalWrittenBytes uint64
	Reads             uint64
	Writes            uint64
	DroppedBytes      uint64
}

func (s *LinkStats) recordRead(n int) {
	s.LastActivityTime = time.Now().UnixMilli()
	s.TotalReadBytes += uint64(n)
	s.Reads++
}

func (s *LinkStats) recordWrite(written, dropped int) {
	s.LastActivityTime = time.Now().UnixMilli()
	s.TotalWrittenBytes += uint64(written)
	s.DroppedBytes += uint64(dropped)
	s.Writes++
}

type NodeStats struct {
	Name  string
	Role  Role
	Fd    int
	Mask  EventMask
	Stats LinkStats
}

// Stats returns a snapshot for every connected node, masters first.
func (h *Hub) Stats() []NodeStats {
	var stats []NodeStats
	h.registry.Walk(func(node *Node) bool {
		if node.link != nil {
			stats = append(stats, NodeStats{
				Name:  node.name,
				Role:  node.role,
				Fd:    node.link.fd,
				Mask:  node.link.mask,
				Stats: node.link.stats,
			})
		}
		return true
	})
	return stats
}

// LogStats dumps the current link statistics at debug level.
func (h *Hub) LogStats() {
	if !log.Debug().Enabled() {
		return
	}
	stats := h.Stats()
	log.Debug().Msgf("Total links: %d", len(stats))
	for _, s := range stats {
		log.Debug().Msgf("[%d] %s %s [%s] lastActiveTime: %d read: %d written: %d dropped: %d",
			s.Fd, s.Role, s.Name, s.Mask, s.Stats.LastActivityTime,
			s.Stats.TotalReadBytes, s.Stats.TotalWrittenBytes, s.Stats.DroppedBytes)
	}
}
