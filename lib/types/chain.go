package types

import (
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// ParseChainID accepts the two encodings backends use for chain ids: hex with
// a 0x prefix (provider RPC) and plain decimal.
func ParseChainID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, xerrors.New("empty chain id")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, xerrors.Errorf("bad hex chain id %q: %w", s, err)
		}
		return id, nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("bad chain id %q: %w", s, err)
	}
	return id, nil
}

// HexChainID renders a chain id the way provider RPC expects it.
func HexChainID(id uint64) string {
	return "0x" + strconv.FormatUint(id, 16)
}
