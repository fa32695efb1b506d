package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a key-holding signer or a program-derived account.
type Address = common.Address

// ZeroAddress is the unset address.
var ZeroAddress Address

// ParseAddress decodes a 0x-prefixed hex address, rejecting malformed input
// instead of silently truncating like common.HexToAddress.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return ZeroAddress, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
