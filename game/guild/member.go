package guild

import (
	"time"

	"github.com/kasuganosora/guildbank/model"
)

// Member is a character's membership and daily bank usage.
type Member struct {
	guildID  int64
	charID   int64
	name     string
	rankID   uint8
	joinedAt time.Time

	bankWithdraw      [MaxBankTabs]uint32
	bankWithdrawMoney uint64
}

func newMember(guildID, charID int64, name string, rankID uint8) *Member {
	return &Member{guildID: guildID, charID: charID, name: name, rankID: rankID, joinedAt: time.Now()}
}

func (m *Member) CharID() int64       { return m.charID }
func (m *Member) Name() string        { return m.name }
func (m *Member) RankID() uint8       { return m.rankID }
func (m *Member) JoinedAt() time.Time { return m.joinedAt }

// BankWithdrawn returns the item withdrawals from tab made today.
func (m *Member) BankWithdrawn(tab uint8) uint32 {
	if int(tab) >= MaxBankTabs {
		return 0
	}
	return m.bankWithdraw[tab]
}

// MoneyWithdrawn returns the copper withdrawn today.
func (m *Member) MoneyWithdrawn() uint64 { return m.bankWithdrawMoney }

func (m *Member) record() *model.GuildMember {
	return &model.GuildMember{
		CharID:   m.charID,
		GuildID:  m.guildID,
		Name:     m.name,
		RankID:   m.rankID,
		JoinedAt: m.joinedAt,
	}
}

func (m *Member) withdrawRecord() *model.GuildMemberWithdraw {
	w := &model.GuildMemberWithdraw{CharID: m.charID, Money: m.bankWithdrawMoney}
	w.SetTabs(m.bankWithdraw)
	return w
}

func (m *Member) resetValues() {
	m.bankWithdraw = [MaxBankTabs]uint32{}
	m.bankWithdrawMoney = 0
}

// MemberView is a read-only copy of a member.
type MemberView struct {
	CharID         int64               `json:"char_id"`
	Name           string              `json:"name"`
	RankID         uint8               `json:"rank_id"`
	JoinedAt       time.Time           `json:"joined_at"`
	BankWithdrawn  [MaxBankTabs]uint32 `json:"bank_withdrawn"`
	MoneyWithdrawn uint64              `json:"money_withdrawn"`
}

func (m *Member) view() MemberView {
	return MemberView{
		CharID:         m.charID,
		Name:           m.name,
		RankID:         m.rankID,
		JoinedAt:       m.joinedAt,
		BankWithdrawn:  m.bankWithdraw,
		MoneyWithdrawn: m.bankWithdrawMoney,
	}
}
