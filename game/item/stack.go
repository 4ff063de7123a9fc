package item

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Stack is one stack of a tradeable good: a count of items sharing an entry.
// A stack is owned either by a character (OwnerID != 0) or by a guild bank
// tab (OwnerID == 0).
type Stack struct {
	GUID      string
	Entry     uint32
	Count     uint32
	MaxStack  uint32
	Soulbound bool
	Tradeable bool
	// BagSize is non-zero for container items.
	BagSize uint8
	// Contents holds the items carried inside a container.
	Contents []*Stack
	// Attrs is opaque per-instance data (enchants, random properties).
	Attrs json.RawMessage

	OwnerID     int64
	ContainedIn string
}

// NewStack creates a fresh stack with its own GUID.
func NewStack(entry, count, maxStack uint32) *Stack {
	if maxStack == 0 {
		maxStack = 1
	}
	return &Stack{
		GUID:      uuid.NewString(),
		Entry:     entry,
		Count:     count,
		MaxStack:  maxStack,
		Tradeable: true,
	}
}

// IsStackable reports whether more than one item fits in a slot.
func (s *Stack) IsStackable() bool { return s.MaxStack > 1 }

// IsFull reports whether the stack cannot take any more items.
func (s *Stack) IsFull() bool { return s.Count >= s.MaxStack }

// SpareCapacity returns how many items the stack can still absorb.
func (s *Stack) SpareCapacity() uint32 {
	if s.Count >= s.MaxStack {
		return 0
	}
	return s.MaxStack - s.Count
}

// IsBag reports whether the item is a container.
func (s *Stack) IsBag() bool { return s.BagSize > 0 }

// IsNotEmptyBag reports whether the item is a container holding anything.
func (s *Stack) IsNotEmptyBag() bool {
	for _, c := range s.Contents {
		if c != nil {
			return true
		}
	}
	return false
}

// CanBeTraded reports whether the item may leave its owner's hands.
// Quest items and other untradeable goods return false.
func (s *Stack) CanBeTraded() bool { return s.Tradeable }

// CanMergeInto reports whether s may be merged into dst.
func (s *Stack) CanMergeInto(dst *Stack) bool {
	return dst != nil && dst != s && dst.Entry == s.Entry && dst.Count < s.MaxStack
}

// Clone returns a copy of s holding count items under a new GUID.
// Returns nil when count is zero or exceeds the maximum stack size.
func (s *Stack) Clone(count uint32) *Stack {
	if count == 0 || count > s.MaxStack {
		return nil
	}
	c := &Stack{
		GUID:      uuid.NewString(),
		Entry:     s.Entry,
		Count:     count,
		MaxStack:  s.MaxStack,
		Soulbound: s.Soulbound,
		Tradeable: s.Tradeable,
		BagSize:   s.BagSize,
		OwnerID:   s.OwnerID,
	}
	if len(s.Attrs) > 0 {
		c.Attrs = append(json.RawMessage(nil), s.Attrs...)
	}
	return c
}
