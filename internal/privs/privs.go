package privs

import (
	"fmt"
	"os"
)

// Token proves the process holds the privileges destructive operations
// need. Constructors that can write to raw devices or system locations
// take a *Token so the check happens once, up front, instead of deep
// inside an operation that is already half done.
type Token struct {
	euid int
}

// Acquire returns a Token when the process is running as root.
func Acquire() (*Token, error) {
	euid := os.Geteuid()
	if euid != 0 {
		return nil, fmt.Errorf("requires root privileges (euid %d)", euid)
	}
	return &Token{euid: euid}, nil
}

// ForTesting returns a Token without checking privileges. Test use only.
func ForTesting() *Token {
	return &Token{euid: 0}
}
