package routing

import (
	"hash/crc32"
	"log/slog"

	"github.com/rollwave/rollwave/internal/domain"
	"github.com/rollwave/rollwave/internal/ports"
)

// Hash is the stateless routing strategy: the index is derived from a
// stable request identifier's checksum modulo the current active-set size.
// No shared mutable state, at the cost of short-term distribution evenness.
type Hash struct {
	logger *slog.Logger
}

func NewHash(logger *slog.Logger) *Hash {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hash{
		logger: logger.With("component", "routing", "strategy", "hash"),
	}
}

// SelectTargetFor picks the consumer for one stable request key. The same
// key maps to the same consumer as long as the active set is unchanged.
func (h *Hash) SelectTargetFor(requestID string, active []domain.Consumer) (string, error) {
	eligible := filterActive(active)
	if len(eligible) == 0 {
		return "", domain.NewRoutingError("hash", domain.ErrNoConsumers)
	}

	index := crc32.ChecksumIEEE([]byte(requestID)) % uint32(len(eligible))
	selected := eligible[index]

	h.logger.Debug("hash selection",
		"request_id", requestID,
		"selected", selected.ID,
		"index", index,
		"active_count", len(eligible))

	return selected.ID, nil
}

// Bind fixes the request key so the result satisfies the RoutingStrategy
// contract.
func (h *Hash) Bind(requestID string) ports.RoutingStrategy {
	return &boundHash{hash: h, requestID: requestID}
}

type boundHash struct {
	hash      *Hash
	requestID string
}

func (b *boundHash) SelectTarget(active []domain.Consumer) (string, error) {
	return b.hash.SelectTargetFor(b.requestID, active)
}
