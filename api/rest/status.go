package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kasuganosora/guildbank/game/guild"
	"github.com/kasuganosora/guildbank/game/item"
	"gorm.io/gorm"
)

// statusOf maps a guild error to an HTTP status.
func statusOf(err error) int {
	var ee *guild.EquipError
	switch {
	case errors.As(err, &ee):
		return http.StatusConflict
	case errors.Is(err, guild.ErrGuildNotFound), errors.Is(err, guild.ErrNewsNotFound),
		errors.Is(err, item.ErrCharacterNotFound):
		return http.StatusNotFound
	case errors.Is(err, guild.ErrNotMember), errors.Is(err, guild.ErrNoRights),
		errors.Is(err, guild.ErrLeaderCannotLeave):
		return http.StatusForbidden
	case errors.Is(err, guild.ErrNameTaken), errors.Is(err, guild.ErrAlreadyInGuild),
		errors.Is(err, guild.ErrBankMoneyLimit), errors.Is(err, guild.ErrBankNotEnoughMoney),
		errors.Is(err, guild.ErrNotEnoughMoney), errors.Is(err, guild.ErrMoneyOverflow),
		errors.Is(err, guild.ErrQuotaExceeded):
		return http.StatusConflict
	case errors.Is(err, guild.ErrInvalidName), errors.Is(err, guild.ErrInvalidTab),
		errors.Is(err, guild.ErrInvalidSlot), errors.Is(err, guild.ErrInvalidRank),
		errors.Is(err, guild.ErrInvalidAmount), errors.Is(err, guild.ErrInvalidSplit),
		errors.Is(err, guild.ErrItemNotFound):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// isUniqueViolation detects duplicate-key errors. Translated driver errors
// match gorm.ErrDuplicatedKey; the message check covers untranslated ones.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unique", "duplicate", "already exists"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
