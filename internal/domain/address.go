package domain

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// MaxAddressesPerAsset cap on tracked addresses per asset.
const MaxAddressesPerAsset = 3

// ErrInvalidAddress address does not match the asset's format.
var ErrInvalidAddress = errors.New("invalid address")

var addressPatterns = map[Asset][]*regexp.Regexp{
	BTC: {
		regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`),
		regexp.MustCompile(`^bc1[a-z0-9]{25,90}$`),
	},
	LTC: {
		regexp.MustCompile(`^[LM][a-km-zA-HJ-NP-Z1-9]{25,34}$`),
		regexp.MustCompile(`^ltc1[a-z0-9]{25,90}$`),
	},
}

// NormalizeAddress validates the address for the asset and returns its canonical form.
// ETH addresses are returned in EIP-55 checksum form.
func NormalizeAddress(asset Asset, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.Wrap(ErrInvalidAddress, "empty address")
	}

	if asset == ETH {
		if !common.IsHexAddress(address) || !strings.HasPrefix(address, "0x") {
			return "", errors.Wrapf(ErrInvalidAddress, "%s address %q", asset, address)
		}
		return common.HexToAddress(address).Hex(), nil
	}

	patterns, ok := addressPatterns[asset]
	if !ok {
		return "", errors.Wrapf(ErrUnknownAsset, "%q", asset)
	}
	for _, re := range patterns {
		if re.MatchString(address) {
			return address, nil
		}
	}

	return "", errors.Wrapf(ErrInvalidAddress, "%s address %q", asset, address)
}
