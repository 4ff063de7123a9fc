package item

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kasuganosora/guildbank/model"
	"github.com/kasuganosora/guildbank/persist"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrCharacterNotFound is returned when loading an unknown character.
var ErrCharacterNotFound = errors.New("character not found")

// Store loads and saves character inventories.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Load rebuilds the inventory of charID from its stored stacks. extraBags
// gives the slot counts of equipped containers.
func (s *Store) Load(ctx context.Context, charID int64, extraBags ...uint8) (*Inventory, error) {
	var char model.Character
	if err := s.db.WithContext(ctx).First(&char, charID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, err
	}
	var rows []model.Inventory
	if err := s.db.WithContext(ctx).Where("char_id = ?", charID).
		Order("bag, slot").Find(&rows).Error; err != nil {
		return nil, err
	}
	inv := NewInventory(charID, char.Gold, extraBags...)
	for i := range rows {
		st := StackFromInventory(&rows[i])
		if !inv.PutItem(rows[i].Bag, rows[i].Slot, st) {
			s.logger.Warn("dropping inventory row in invalid slot",
				zap.Int64("char_id", charID),
				zap.Uint8("bag", rows[i].Bag),
				zap.Uint8("slot", rows[i].Slot))
		}
	}
	return inv, nil
}

// Save writes the wallet and every stack of inv in one transaction.
func (s *Store) Save(ctx context.Context, inv *Inventory) error {
	b := persist.NewBatch()
	inv.Persist(b)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := b.Apply(tx); err != nil {
			return fmt.Errorf("save inventory %d: %w", inv.CharID(), err)
		}
		return nil
	})
}

// Persist adds a snapshot of the wallet and bags to b. The stored rows are
// replaced wholesale.
func (inv *Inventory) Persist(b *persist.Batch) {
	charID := inv.CharID()
	items := inv.Items()
	rows := make([]*model.Inventory, 0, len(items))
	for _, it := range items {
		rows = append(rows, InventoryRecord(charID, it))
	}
	b.Update(&model.Character{}, "gold", inv.Money(), "id = ?", charID)
	b.Delete(&model.Inventory{}, "char_id = ?", charID)
	if len(rows) > 0 {
		b.Add(func(tx *gorm.DB) error {
			return tx.Create(&rows).Error
		})
	}
}

// StackFromInventory converts a stored inventory row to a stack.
func StackFromInventory(r *model.Inventory) *Stack {
	st := &Stack{
		GUID:      r.ItemGUID,
		Entry:     r.Entry,
		Count:     r.Count,
		MaxStack:  r.MaxStack,
		Soulbound: r.Soulbound,
		Tradeable: r.Tradeable,
		BagSize:   r.BagSize,
		OwnerID:   r.CharID,
	}
	if st.MaxStack == 0 {
		st.MaxStack = 1
	}
	if st.BagSize > 0 {
		st.Contents = make([]*Stack, st.BagSize)
	}
	if len(r.Attrs) > 0 {
		st.Attrs = append([]byte(nil), r.Attrs...)
	}
	return st
}

// InventoryRecord converts a located stack to a row.
func InventoryRecord(charID int64, it SlotItem) *model.Inventory {
	return &model.Inventory{
		CharID:    charID,
		Bag:       it.Bag,
		Slot:      it.Slot,
		ItemGUID:  it.Stack.GUID,
		Entry:     it.Stack.Entry,
		Count:     it.Stack.Count,
		MaxStack:  it.Stack.MaxStack,
		Soulbound: it.Stack.Soulbound,
		Tradeable: it.Stack.Tradeable,
		BagSize:   it.Stack.BagSize,
		Attrs:     datatypes.JSON(it.Stack.Attrs),
	}
}

// Manager keeps the inventories of characters currently in play.
type Manager struct {
	store *Store
	mu    sync.Mutex
	byID  map[int64]*Inventory
}

// NewManager creates a new Manager.
func NewManager(store *Store) *Manager {
	return &Manager{store: store, byID: make(map[int64]*Inventory)}
}

// Get returns the live inventory of charID, loading it on first use.
func (m *Manager) Get(ctx context.Context, charID int64) (*Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv, ok := m.byID[charID]; ok {
		return inv, nil
	}
	inv, err := m.store.Load(ctx, charID)
	if err != nil {
		return nil, err
	}
	m.byID[charID] = inv
	return inv, nil
}

// Save persists the live inventory of charID, if loaded.
func (m *Manager) Save(ctx context.Context, charID int64) error {
	m.mu.Lock()
	inv, ok := m.byID[charID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.store.Save(ctx, inv)
}

// Release saves and forgets the inventory of charID.
func (m *Manager) Release(ctx context.Context, charID int64) error {
	err := m.Save(ctx, charID)
	m.mu.Lock()
	delete(m.byID, charID)
	m.mu.Unlock()
	return err
}
