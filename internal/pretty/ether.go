package pretty

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ethInWei = big.NewInt(1e18)
var ethInGwei = big.NewInt(1e9)

var boundary = big.NewInt(1e4)
var gweiBoundary = new(big.Int).Div(ethInGwei, boundary)
var ethBoundary = new(big.Int).Div(ethInWei, boundary)

// Ether is an amount of wei that formats itself in the closest
// denomination: wei, gwei or ether.
type Ether big.Int

func (e Ether) String() string {
	i := (big.Int)(e)
	unit := "wei"
	denom := big.NewInt(1)

	if i.CmpAbs(ethBoundary) >= 0 {
		unit = "ether"
		denom = ethInWei
	} else if i.CmpAbs(gweiBoundary) >= 0 {
		unit = "gwei"
		denom = ethInGwei
	}
	s := new(big.Rat).SetFrac(&i, denom).FloatString(4)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s + " " + unit
}

// HexEther decodes a quantity as returned by eth_getBalance and friends.
func HexEther(s string) (*Ether, error) {
	n, err := hexutil.DecodeBig(s)
	if err != nil {
		return nil, err
	}
	return (*Ether)(n), nil
}
