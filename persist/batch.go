package persist

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Op is a single write applied inside a batch transaction.
type Op func(tx *gorm.DB) error

// Batch groups the writes of one logical operation. A batch is applied
// atomically: either every op lands or none does.
type Batch struct {
	ops  []Op
	done chan struct{}
}

// NewBatch returns an empty batch.
func NewBatch() *Batch { return &Batch{} }

// Add appends a raw op.
func (b *Batch) Add(op Op) { b.ops = append(b.ops, op) }

// Save upserts rec by primary key.
func (b *Batch) Save(rec interface{}) {
	b.ops = append(b.ops, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
	})
}

// Delete removes the rows of model matching query. The condition is always
// explicit so zero-valued keys never widen the delete.
func (b *Batch) Delete(model interface{}, query string, args ...interface{}) {
	b.ops = append(b.ops, func(tx *gorm.DB) error {
		return tx.Where(query, args...).Delete(model).Error
	})
}

// Update sets column on the rows of model matching query.
func (b *Batch) Update(model interface{}, column string, value interface{}, query string, args ...interface{}) {
	b.ops = append(b.ops, func(tx *gorm.DB) error {
		return tx.Model(model).Where(query, args...).Update(column, value).Error
	})
}

// Len returns the number of ops.
func (b *Batch) Len() int { return len(b.ops) }

// Empty reports whether the batch has nothing to write.
func (b *Batch) Empty() bool { return len(b.ops) == 0 }

// Apply runs every op against tx. Callers own the transaction.
func (b *Batch) Apply(tx *gorm.DB) error {
	for _, op := range b.ops {
		if err := op(tx); err != nil {
			return err
		}
	}
	return nil
}
