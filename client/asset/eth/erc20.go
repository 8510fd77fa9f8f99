// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package eth

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) *abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("error parsing erc20 abi: %v", err))
	}
	return &a
}

// transferData is the call data of transfer(address,uint256).
func transferData(to common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, amount)
}

// balanceOfData is the call data of balanceOf(address).
func balanceOfData(owner common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", owner)
}

func unpackBalance(b []byte) (*big.Int, error) {
	out, err := erc20ABI.Unpack("balanceOf", b)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("wrong number of balanceOf outputs %d", len(out))
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected balance of type *big.Int but got %T", out[0])
	}
	return bal, nil
}

// ParseTransferData parses the calldata used to call the transfer method of an
// ERC20 contract.
func ParseTransferData(data []byte) (common.Address, *big.Int, error) {
	if len(data) < 4 {
		return common.Address{}, nil, fmt.Errorf("call data too short")
	}
	method, err := erc20ABI.MethodById(data[:4])
	if err != nil {
		return common.Address{}, nil, err
	}
	if method.Name != "transfer" {
		return common.Address{}, nil, fmt.Errorf("expected transfer function but got %v", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("unable to parse call data: %v", err)
	}
	if len(args) != 2 {
		return common.Address{}, nil, fmt.Errorf("wrong number of arguments. wanted 2, got %d", len(args))
	}
	recipient, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("expected first arg of type common.Address but got %T", args[0])
	}
	value, ok := args[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("expected second arg of type *big.Int but got %T", args[1])
	}
	return recipient, value, nil
}
