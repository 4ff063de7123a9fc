package item

// Result is the outcome of an inventory placement check. Anything other
// than ResultOK is reported to the player as an equip error.
type Result uint8

const (
	ResultOK Result = iota
	ResultItemNotFound
	ResultCantStack
	ResultBankFull
	ResultInventoryFull
	ResultDropBoundItem
	ResultWrongBagType
	ResultWrongSlot
	ResultDestroyNonemptyBag
	ResultCantSwap
)

var resultNames = [...]string{
	ResultOK:                 "ok",
	ResultItemNotFound:       "item_not_found",
	ResultCantStack:          "cant_stack",
	ResultBankFull:           "bank_full",
	ResultInventoryFull:      "inventory_full",
	ResultDropBoundItem:      "drop_bound_item",
	ResultWrongBagType:       "wrong_bag_type",
	ResultWrongSlot:          "wrong_slot",
	ResultDestroyNonemptyBag: "destroy_nonempty_bag",
	ResultCantSwap:           "cant_swap",
}

func (r Result) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "unknown"
}

// MarshalText lets results travel as readable strings in JSON payloads.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Pos is a reserved destination: a slot inside a bag (or bank tab) and the
// number of items that slot will receive.
type Pos struct {
	Bag   uint8  `json:"bag"`
	Slot  uint8  `json:"slot"`
	Count uint32 `json:"count"`
}

// ContainsSlot reports whether vec already reserves the slot of p.
func ContainsSlot(vec []Pos, p Pos) bool {
	for _, v := range vec {
		if v.Bag == p.Bag && v.Slot == p.Slot {
			return true
		}
	}
	return false
}
