package cart

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AddItem adds one unit of svc to the cart. A service already in the cart
// has its quantity bumped instead of getting a second line.
func (s *Store) AddItem(cartID string, svc Service) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findLocked(cartID)
	if c == nil {
		return
	}

	now := s.now()
	merged := false
	for i := range c.Items {
		if c.Items[i].Service.ID == svc.ID {
			c.Items[i].Quantity++
			c.Items[i].recompute()
			merged = true
			break
		}
	}
	if !merged {
		item := CartItem{
			ID:             s.newID(),
			Service:        svc,
			Quantity:       1,
			PriceOverride:  svc.Price,
			GarmentBarcode: nextGarmentTag(c, now),
			AddOns:         []AddOn{},
		}
		item.recompute()
		c.Items = append(c.Items, item)
	}

	c.UpdatedAt = now
	s.metrics.ItemAdded()
	s.commitLocked()
}

// UpdateItem shallow-merges patch into a line. A quantity <= 0 removes it.
func (s *Store) UpdateItem(cartID, itemID string, patch ItemPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findLocked(cartID)
	if c == nil {
		return
	}
	idx := c.itemIndex(itemID)
	if idx < 0 {
		return
	}

	if patch.Quantity != nil && *patch.Quantity <= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	} else {
		it := &c.Items[idx]
		if patch.Quantity != nil {
			it.Quantity = *patch.Quantity
		}
		if patch.PriceOverride != nil {
			it.PriceOverride = *patch.PriceOverride
		}
		if patch.CustomName != nil {
			it.CustomName = *patch.CustomName
		}
		if patch.TagNote != nil {
			it.TagNote = *patch.TagNote
		}
		if patch.Quantity != nil || patch.PriceOverride != nil {
			it.recompute()
		}
	}

	c.UpdatedAt = s.now()
	s.commitLocked()
}

// UpdateItemQuantity sets a line's quantity; quantity <= 0 removes the line.
func (s *Store) UpdateItemQuantity(cartID, itemID string, quantity int) {
	if quantity <= 0 {
		s.RemoveItem(cartID, itemID)
		return
	}
	s.UpdateItem(cartID, itemID, ItemPatch{Quantity: &quantity})
}

func (s *Store) RemoveItem(cartID, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findLocked(cartID)
	if c == nil {
		return
	}
	idx := c.itemIndex(itemID)
	if idx < 0 {
		return
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.UpdatedAt = s.now()
	s.commitLocked()
}

// AddItemAddOn attaches an add-on to a line. Adding an id already present
// does nothing.
func (s *Store) AddItemAddOn(cartID, itemID string, addOn AddOn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findLocked(cartID)
	if c == nil {
		return
	}
	idx := c.itemIndex(itemID)
	if idx < 0 || c.Items[idx].hasAddOn(addOn.ID) {
		return
	}
	c.Items[idx].AddOns = append(c.Items[idx].AddOns, addOn)
	c.UpdatedAt = s.now()
	s.commitLocked()
}

func (s *Store) RemoveItemAddOn(cartID, itemID, addOnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findLocked(cartID)
	if c == nil {
		return
	}
	idx := c.itemIndex(itemID)
	if idx < 0 || !c.Items[idx].hasAddOn(addOnID) {
		return
	}
	it := &c.Items[idx]
	kept := it.AddOns[:0]
	for _, a := range it.AddOns {
		if a.ID != addOnID {
			kept = append(kept, a)
		}
	}
	it.AddOns = kept
	c.UpdatedAt = s.now()
	s.commitLocked()
}

// GarmentTag formats a physical tag id:
// TAG-<first 4 of cart id>-<last 4 base36 digits of the ms clock>-<index>.
func GarmentTag(cartID string, at time.Time, index int) string {
	prefix := cartID
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	stamp := strconv.FormatInt(at.UnixMilli(), 36)
	if len(stamp) > 4 {
		stamp = stamp[len(stamp)-4:]
	}
	return fmt.Sprintf("TAG-%s-%s-%03d", strings.ToUpper(prefix), strings.ToUpper(stamp), index)
}

// nextGarmentTag picks the tag for the next line of c, advancing the index
// past any tag already used in the cart.
func nextGarmentTag(c *Cart, at time.Time) string {
	index := len(c.Items) + 1
	tag := GarmentTag(c.ID, at, index)
	for c.hasBarcode(tag) {
		index++
		tag = GarmentTag(c.ID, at, index)
	}
	return tag
}
