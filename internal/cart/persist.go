package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is written into every persisted document.
const SchemaVersion = 1

// RestoreReason says where the store's initial state came from.
type RestoreReason string

const (
	RestoreNone               RestoreReason = "none"
	RestoreRestored           RestoreReason = "restored"
	RestoreMissing            RestoreReason = "missing"
	RestoreCorrupt            RestoreReason = "corrupt"
	RestoreUnversioned        RestoreReason = "unversioned"
	RestoreUnsupportedVersion RestoreReason = "unsupported_version"
	RestoreEmpty              RestoreReason = "empty"
	RestoreStorageError       RestoreReason = "storage_error"
)

// RestoreReport describes the startup load. Anything other than
// RestoreRestored means the store started from a fresh default cart
// (RestoreNone: no storage configured).
type RestoreReport struct {
	Reason  RestoreReason `json:"reason"`
	Version int           `json:"version,omitempty"`
	Error   string        `json:"error,omitempty"`
	At      time.Time     `json:"at"`
}

// FellBack reports whether persisted state was present but unusable.
func (r RestoreReport) FellBack() bool {
	switch r.Reason {
	case RestoreCorrupt, RestoreUnversioned, RestoreUnsupportedVersion, RestoreEmpty, RestoreStorageError:
		return true
	}
	return false
}

type document struct {
	Version      int    `json:"version"`
	Carts        []Cart `json:"carts"`
	ActiveCartID string `json:"active_cart_id"`
	MaxCarts     int    `json:"max_carts"`
}

// migration upgrades a raw document from version N to N+1.
type migration func(raw json.RawMessage) (json.RawMessage, error)

// migrations is keyed by the version a step upgrades from.
var migrations = map[int]migration{}

var (
	errUnversioned        = errors.New("document has no version")
	errUnsupportedVersion = errors.New("document version not supported")
	errNoCarts            = errors.New("document has no carts")
)

func encodeState(st State) ([]byte, error) {
	return json.Marshal(document{
		Version:      SchemaVersion,
		Carts:        st.Carts,
		ActiveCartID: st.ActiveCartID,
		MaxCarts:     st.MaxCarts,
	})
}

// decodeState parses a persisted blob and runs it through steps up to
// version current. The returned reason classifies any failure.
func decodeState(raw []byte, current int, steps map[int]migration) (State, int, RestoreReason, error) {
	var head struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return State{}, 0, RestoreCorrupt, err
	}
	if head.Version == nil || *head.Version <= 0 {
		return State{}, 0, RestoreUnversioned, errUnversioned
	}
	version := *head.Version
	if version > current {
		return State{}, version, RestoreUnsupportedVersion, fmt.Errorf("%w: %d", errUnsupportedVersion, version)
	}

	doc := json.RawMessage(raw)
	for v := version; v < current; v++ {
		step, ok := steps[v]
		if !ok {
			return State{}, version, RestoreUnsupportedVersion, fmt.Errorf("%w: no migration from %d", errUnsupportedVersion, v)
		}
		next, err := step(doc)
		if err != nil {
			return State{}, version, RestoreCorrupt, fmt.Errorf("migrate from %d: %w", v, err)
		}
		doc = next
	}

	var d document
	if err := json.Unmarshal(doc, &d); err != nil {
		return State{}, version, RestoreCorrupt, err
	}
	if len(d.Carts) == 0 {
		return State{}, version, RestoreEmpty, errNoCarts
	}
	return State{Carts: d.Carts, ActiveCartID: d.ActiveCartID, MaxCarts: d.MaxCarts}, version, RestoreRestored, nil
}

// normalize repairs a restored state so the store invariants hold: unique
// cart ids, at most maxCarts carts, a valid active id, items with quantity
// >= 1 and a recomputed subtotal, and garment tags unique within a cart.
// Duplicate tags are reissued at time at.
func normalize(st State, maxCarts int, at time.Time) State {
	seen := make(map[string]struct{}, len(st.Carts))
	carts := make([]Cart, 0, len(st.Carts))
	for _, c := range st.Carts {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		carts = append(carts, c)
	}
	if len(carts) > maxCarts {
		carts = carts[:maxCarts]
	}
	st.Carts = carts

	for ci := range st.Carts {
		c := &st.Carts[ci]
		items := make([]CartItem, 0, len(c.Items))
		for _, it := range c.Items {
			if it.Quantity < 1 {
				continue
			}
			if it.AddOns == nil {
				it.AddOns = []AddOn{}
			}
			it.recompute()
			items = append(items, it)
		}
		c.Items = items

		tags := make(map[string]struct{}, len(c.Items))
		for i := range c.Items {
			tag := c.Items[i].GarmentBarcode
			if _, dup := tags[tag]; dup {
				tag = nextGarmentTag(c, at)
				c.Items[i].GarmentBarcode = tag
			}
			tags[tag] = struct{}{}
		}
	}
	st.MaxCarts = maxCarts

	found := false
	for _, c := range st.Carts {
		if c.ID == st.ActiveCartID {
			found = true
			break
		}
	}
	if !found {
		st.ActiveCartID = st.Carts[0].ID
	}
	return st
}
