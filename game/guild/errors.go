package guild

import (
	"errors"
	"fmt"

	"github.com/kasuganosora/guildbank/game/item"
)

var (
	ErrGuildNotFound      = errors.New("guild not found")
	ErrNotMember          = errors.New("not a guild member")
	ErrAlreadyInGuild     = errors.New("already in a guild")
	ErrNameTaken          = errors.New("guild name taken")
	ErrInvalidName        = errors.New("invalid guild name")
	ErrNoRights           = errors.New("insufficient guild rights")
	ErrInvalidTab         = errors.New("invalid bank tab")
	ErrInvalidSlot        = errors.New("invalid bank slot")
	ErrInvalidRank        = errors.New("invalid rank")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidSplit       = errors.New("split exceeds stack")
	ErrItemNotFound       = errors.New("item not found")
	ErrBankMoneyLimit     = errors.New("guild bank money limit reached")
	ErrBankNotEnoughMoney = errors.New("not enough money in guild bank")
	ErrNotEnoughMoney     = errors.New("not enough money")
	ErrMoneyOverflow      = errors.New("wallet cannot hold that much")
	ErrQuotaExceeded      = errors.New("daily withdrawal limit reached")
	ErrLeaderCannotLeave  = errors.New("guild master cannot leave the guild")
	ErrNewsNotFound       = errors.New("news entry not found")
	ErrCorruptGuild       = errors.New("corrupt guild data")
)

// EquipError is a placement failure reported to the player.
type EquipError struct {
	Result item.Result
}

func (e *EquipError) Error() string {
	return fmt.Sprintf("equip error: %s", e.Result)
}

// ResultOf extracts the inventory result carried by err: ResultOK for nil,
// the wrapped result for an *EquipError, ResultItemNotFound otherwise.
func ResultOf(err error) item.Result {
	if err == nil {
		return item.ResultOK
	}
	var ee *EquipError
	if errors.As(err, &ee) {
		return ee.Result
	}
	return item.ResultItemNotFound
}
