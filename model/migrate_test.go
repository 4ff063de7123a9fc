package model_test

import (
	"testing"
	"time"

	"github.com/kasuganosora/guildbank/model"
	"github.com/kasuganosora/guildbank/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Character
	char := &model.Character{Name: "Hero", Gold: 1000}
	require.NoError(t, db.Create(char).Error)
	assert.Greater(t, char.ID, int64(0))

	// Inventory, untradeable stack must round-trip as false
	inv := &model.Inventory{CharID: char.ID, Bag: 0, Slot: 3, Entry: 2589, Count: 3, MaxStack: 200}
	require.NoError(t, db.Create(inv).Error)
	var gotInv model.Inventory
	require.NoError(t, db.First(&gotInv, inv.ID).Error)
	assert.False(t, gotInv.Tradeable)

	// Guild
	guild := &model.Guild{ID: 1, Name: "TestGuild", LeaderID: char.ID, CreatedAt: time.Now()}
	require.NoError(t, db.Create(guild).Error)

	require.NoError(t, db.Create(&model.GuildRank{GuildID: 1, RankID: 0, Order: 0, Name: "Guild Master"}).Error)
	require.NoError(t, db.Create(&model.GuildMember{GuildID: 1, CharID: char.ID, RankID: 0}).Error)

	w := &model.GuildMemberWithdraw{CharID: char.ID}
	w.SetTabs([8]uint32{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, db.Create(w).Error)
	var gotW model.GuildMemberWithdraw
	require.NoError(t, db.First(&gotW, "char_id = ?", char.ID).Error)
	assert.Equal(t, [8]uint32{1, 2, 3, 4, 5, 6, 7, 8}, gotW.Tabs())

	// Bank tab and item with attrs
	require.NoError(t, db.Create(&model.GuildBankTab{GuildID: 1, TabID: 0, Name: "Mats"}).Error)
	item := &model.GuildBankItem{
		GuildID: 1, TabID: 0, Slot: 5, Entry: 2589, Count: 20, MaxStack: 200, Tradeable: true,
		Attrs: datatypes.JSON(`{"enchant":7}`),
	}
	require.NoError(t, db.Create(item).Error)
	var gotItem model.GuildBankItem
	require.NoError(t, db.First(&gotItem, "guild_id = ? AND tab_id = ? AND slot = ?", 1, 0, 5).Error)
	assert.JSONEq(t, `{"enchant":7}`, string(gotItem.Attrs))

	// Logs
	require.NoError(t, db.Create(&model.GuildBankEventLog{GuildID: 1, TabID: 8, LogGUID: 0, EventType: 4, ItemOrMoney: 100}).Error)
	require.NoError(t, db.Create(&model.GuildEventLog{GuildID: 1, LogGUID: 0, EventType: 2, PlayerGUID1: char.ID}).Error)
	require.NoError(t, db.Create(&model.GuildNewsLog{GuildID: 1, LogGUID: 0, EventType: 5}).Error)
	require.NoError(t, db.Create(&model.GuildBankRight{GuildID: 1, TabID: 0, RankID: 1, Rights: 3, SlotsPerDay: 10}).Error)
}
