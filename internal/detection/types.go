package detection

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Material is the classification outcome for an inserted item.
//
// The set is closed: anything the vision service reports that is not an
// accepted plastic or metal container is folded into MaterialRejected.
type Material int

const (
	// MaterialPlastic is an accepted plastic container.
	MaterialPlastic Material = iota

	// MaterialNonPlastic is an accepted metal can.
	MaterialNonPlastic

	// MaterialRejected is an item that was evaluated and declined
	// (unrecognised or below the confidence threshold).
	MaterialRejected
)

// Point values per material. Rejected items earn nothing but are still
// recorded, since an item was physically processed.
const (
	PointsPlastic    = 2
	PointsNonPlastic = 1
	PointsRejected   = 0
)

// String returns the wire representation of the material.
func (m Material) String() string {
	switch m {
	case MaterialPlastic:
		return "PLASTIC"
	case MaterialNonPlastic:
		return "NON_PLASTIC"
	case MaterialRejected:
		return "REJECTED"
	default:
		return "REJECTED"
	}
}

// Points returns the reward value for the material.
func (m Material) Points() int {
	switch m {
	case MaterialPlastic:
		return PointsPlastic
	case MaterialNonPlastic:
		return PointsNonPlastic
	default:
		return PointsRejected
	}
}

// ParseMaterial converts a wire label to a Material. Comparison is
// case-insensitive. Unknown labels map to MaterialRejected, matching the
// kiosk policy that anything unrecognised is declined.
func ParseMaterial(s string) Material {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PLASTIC":
		return MaterialPlastic
	case "NON_PLASTIC", "CAN":
		return MaterialNonPlastic
	default:
		return MaterialRejected
	}
}

// MarshalJSON encodes the material as its wire string.
func (m Material) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes a wire string into a Material.
func (m *Material) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("material: %w", err)
	}
	*m = ParseMaterial(s)
	return nil
}

// Result is an immutable classification outcome produced by the
// classification gateway. Confidence is in [0, 1].
type Result struct {
	Material   Material `json:"material"`
	Confidence float64  `json:"confidence"`
	Points     int      `json:"points"`
}

// HistoryEntry is one detection outcome in a user's recent history.
// History is an in-memory UI convenience, distinct from the durable
// transaction ledger.
type HistoryEntry struct {
	Material       Material  `json:"material"`
	Confidence     float64   `json:"confidence"`
	Points         int       `json:"points"`
	Timestamp      time.Time `json:"timestamp"`
	TransactionRef string    `json:"transaction_ref"`
}
