package sqlite

import (
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialector returns the SQLite dialector. Use ":memory:" or a
// "file:name?mode=memory&cache=shared" DSN for throwaway databases.
// A busy timeout is appended unless the DSN already sets one.
func Dialector(path string) gorm.Dialector {
	if !strings.Contains(path, "_busy_timeout") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + "_busy_timeout=5000"
	}
	return sqlite.Open(path)
}
