package model

import (
	"time"

	"gorm.io/datatypes"
)

// Guild is the base guild record. IDs are assigned by the guild registry.
type Guild struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:32;not null" json:"name"`
	LeaderID  int64     `gorm:"not null" json:"leader_id"`
	BankMoney uint64    `json:"bank_money"`
	Info      string    `gorm:"type:text" json:"info"`
	CreatedAt time.Time `json:"created_at"`
}

// GuildRank is one row of a guild's rank table. Order 0 is the guild master.
type GuildRank struct {
	GuildID         int64  `gorm:"primaryKey;autoIncrement:false" json:"guild_id"`
	RankID          uint8  `gorm:"primaryKey;autoIncrement:false" json:"rank_id"`
	Order           uint8  `gorm:"column:rank_order" json:"order"`
	Name            string `gorm:"size:32" json:"name"`
	Rights          uint32 `json:"rights"`
	BankMoneyPerDay uint32 `json:"bank_money_per_day"`
}

// GuildMember links a character to a guild with a rank.
type GuildMember struct {
	CharID   int64     `gorm:"primaryKey;autoIncrement:false" json:"char_id"`
	GuildID  int64     `gorm:"index:idx_guild_member;not null" json:"guild_id"`
	Name     string    `gorm:"size:32" json:"name"`
	RankID   uint8     `json:"rank_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// GuildMemberWithdraw holds a member's bank usage for the current day.
type GuildMemberWithdraw struct {
	CharID int64  `gorm:"primaryKey;autoIncrement:false" json:"char_id"`
	Tab0   uint32 `json:"tab0"`
	Tab1   uint32 `json:"tab1"`
	Tab2   uint32 `json:"tab2"`
	Tab3   uint32 `json:"tab3"`
	Tab4   uint32 `json:"tab4"`
	Tab5   uint32 `json:"tab5"`
	Tab6   uint32 `json:"tab6"`
	Tab7   uint32 `json:"tab7"`
	Money  uint64 `json:"money"`
}

// Tabs returns the per-tab counters as an array.
func (w *GuildMemberWithdraw) Tabs() [8]uint32 {
	return [8]uint32{w.Tab0, w.Tab1, w.Tab2, w.Tab3, w.Tab4, w.Tab5, w.Tab6, w.Tab7}
}

// SetTabs copies per-tab counters into the record.
func (w *GuildMemberWithdraw) SetTabs(t [8]uint32) {
	w.Tab0, w.Tab1, w.Tab2, w.Tab3 = t[0], t[1], t[2], t[3]
	w.Tab4, w.Tab5, w.Tab6, w.Tab7 = t[4], t[5], t[6], t[7]
}

// GuildBankTab is the metadata of a purchased bank tab.
type GuildBankTab struct {
	GuildID int64  `gorm:"primaryKey;autoIncrement:false" json:"guild_id"`
	TabID   uint8  `gorm:"primaryKey;autoIncrement:false" json:"tab_id"`
	Name    string `gorm:"size:64" json:"name"`
	Icon    string `gorm:"size:128" json:"icon"`
	Text    string `gorm:"type:text" json:"text"`
}

// GuildBankItem is a stack stored in a bank tab slot.
type GuildBankItem struct {
	GuildID   int64          `gorm:"primaryKey;autoIncrement:false" json:"guild_id"`
	TabID     uint8          `gorm:"primaryKey;autoIncrement:false" json:"tab_id"`
	Slot      uint8          `gorm:"primaryKey;autoIncrement:false" json:"slot"`
	ItemGUID  string         `gorm:"size:36;index" json:"item_guid"`
	Entry     uint32         `gorm:"not null" json:"entry"`
	Count     uint32         `gorm:"not null" json:"count"`
	MaxStack  uint32         `json:"max_stack"`
	Soulbound bool           `json:"soulbound"`
	Tradeable bool           `json:"tradeable"`
	BagSize   uint8          `json:"bag_size"`
	Attrs     datatypes.JSON `json:"attrs"`
}

// GuildBankRight is a rank's rights on one bank tab.
type GuildBankRight struct {
	GuildID     int64 `gorm:"primaryKey;autoIncrement:false" json:"guild_id"`
	TabID       uint8 `gorm:"primaryKey;autoIncrement:false" json:"tab_id"`
	RankID      uint8 `gorm:"primaryKey;autoIncrement:false" json:"rank_id"`
	Rights      uint8 `json:"rights"`
	SlotsPerDay int32 `json:"slots_per_day"`
}

// GuildEventLog records roster changes.
type GuildEventLog struct {
	GuildID     int64     `gorm:"primaryKey;autoIncrement:false" json:"guild_id"`
	LogGUID     uint32    `gorm:"primaryKey;autoIncrement:false" json:"log_guid"`
	EventType   uint8     `json:"event_type"`
	PlayerGUID1 int64     `json:"player_guid1"`
	PlayerGUID2 int64     `json:"player_guid2"`
	NewRank     uint8     `json:"new_rank"`
	Timestamp   time.Time `json:"timestamp"`
}

// GuildBankEventLog records item and money movement. TabID 8 addresses the
// money log.
type GuildBankEventLog struct {
	GuildID        int64     `gorm:"primaryKey;autoIncrement:false" json:"guild_id"`
	TabID          uint8     `gorm:"primaryKey;autoIncrement:false" json:"tab_id"`
	LogGUID        uint32    `gorm:"primaryKey;autoIncrement:false" json:"log_guid"`
	EventType      uint8     `json:"event_type"`
	PlayerGUID     int64     `json:"player_guid"`
	ItemOrMoney    uint64    `json:"item_or_money"`
	ItemStackCount uint32    `json:"item_stack_count"`
	DestTabID      uint8     `json:"dest_tab_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// GuildNewsLog records guild news items.
type GuildNewsLog struct {
	GuildID    int64     `gorm:"primaryKey;autoIncrement:false" json:"guild_id"`
	LogGUID    uint32    `gorm:"primaryKey;autoIncrement:false" json:"log_guid"`
	EventType  uint8     `json:"event_type"`
	PlayerGUID int64     `json:"player_guid"`
	Flags      uint32    `json:"flags"`
	Value      uint32    `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}
