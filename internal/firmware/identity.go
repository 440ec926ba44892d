package firmware

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// identityNamespace scopes the derived platform identifiers. Any stable
// UUID works; this one is fixed so regenerating for the same machine
// yields the same identity.
var identityNamespace = uuid.MustParse("8f0fcc43-3a4b-4f55-9f5e-6d9c3f6f7a21")

// Identity is the generated SMBIOS platform identity.
type Identity struct {
	SerialNumber string
	MLB          string
	SystemUUID   string
	ROM          []byte
}

// serialAlphabet matches the character set of factory serial numbers.
// No vowels, so derived serials never spell anything.
const serialAlphabet = "0123456789BCDFGHJKLMNPQRSTVWXYZ"

// deriveIdentity builds a platform identity from the board identity and
// the chosen model. The same inputs always produce the same serials.
func deriveIdentity(seed, productName string) Identity {
	id := uuid.NewSHA1(identityNamespace, []byte(seed+"/"+productName))
	raw := id[:]

	var ident Identity
	ident.SystemUUID = strings.ToUpper(id.String())

	// 12-character serial in the classic assembly-plant format.
	var sb strings.Builder
	sb.WriteString("C02")
	for i := 0; i < 9; i++ {
		sb.WriteByte(serialAlphabet[int(raw[i])%len(serialAlphabet)])
	}
	ident.SerialNumber = sb.String()

	// Board serials are the system serial plus a five-character suffix.
	var mb strings.Builder
	mb.WriteString(ident.SerialNumber)
	for i := 9; i < 14; i++ {
		mb.WriteByte(serialAlphabet[int(raw[i])%len(serialAlphabet)])
	}
	ident.MLB = mb.String()

	rom := make([]byte, 6)
	copy(rom, raw[10:16])
	ident.ROM = rom
	return ident
}

func (i Identity) String() string {
	return fmt.Sprintf("serial=%s uuid=%s", i.SerialNumber, i.SystemUUID)
}
