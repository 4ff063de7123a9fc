package guild

// BankRights is the per-tab permission bitmask of a rank.
type BankRights uint8

const (
	BankRightView       BankRights = 0x01
	BankRightDeposit    BankRights = 0x02
	BankRightUpdateText BankRights = 0x04
	BankRightWithdraw   BankRights = 0x08

	BankRightDepositItem BankRights = BankRightView | BankRightDeposit
	BankRightFull        BankRights = 0xFF
)

// Has reports whether every bit of want is set.
func (r BankRights) Has(want BankRights) bool { return r&want == want }

// RankRights is the guild-wide permission bitmask of a rank.
type RankRights uint32

const (
	RankRightChatListen     RankRights = 0x00000001
	RankRightChatSpeak      RankRights = 0x00000002
	RankRightOffChatListen  RankRights = 0x00000004
	RankRightOffChatSpeak   RankRights = 0x00000008
	RankRightInvite         RankRights = 0x00000010
	RankRightRemove         RankRights = 0x00000020
	RankRightPromote        RankRights = 0x00000080
	RankRightDemote         RankRights = 0x00000100
	RankRightSetMOTD        RankRights = 0x00001000
	RankRightEditInfo       RankRights = 0x00010000
	RankRightWithdrawRepair RankRights = 0x00040000
	RankRightWithdrawGold   RankRights = 0x00080000

	RankRightNone RankRights = 0
	RankRightAll  RankRights = 0x000DF1FF

	// rankRightsMember is what new non-master ranks start with.
	rankRightsMember = RankRightChatListen | RankRightChatSpeak
)

// Has reports whether every bit of want is set.
func (r RankRights) Has(want RankRights) bool { return r&want == want }
