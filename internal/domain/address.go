package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress validates a 0x-hex account address and returns its
// canonical lowercase form. Ledger keys are always normalized so the same
// participant cannot vote twice under different casings.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", ErrBadAddress
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}
