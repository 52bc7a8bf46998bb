package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// nftABIJSON holds the ERC-721 and ERC-2981 reads.
const nftABIJSON = `[
  {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"royaltyInfo","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"},{"name":"salePrice","type":"uint256"}],"outputs":[{"name":"receiver","type":"address"},{"name":"royaltyAmount","type":"uint256"}]}
]`

var (
	nftABI     abi.ABI
	nftABIOnce sync.Once
	nftABIErr  error
)

// NFTABI returns the parsed ERC-721/ERC-2981 ABI.
func NFTABI() (abi.ABI, error) {
	nftABIOnce.Do(func() {
		nftABI, nftABIErr = abi.JSON(strings.NewReader(nftABIJSON))
	})
	return nftABI, nftABIErr
}

// errNoCode marks an empty call result: the address has no contract or no
// such method.
var errNoCode = errors.New("empty call result")

func callMethod(ctx context.Context, caller Caller, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := NFTABI()
	if err != nil {
		return nil, fmt.Errorf("parse nft abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("call %s: %w", method, errNoCode)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// isRevert reports whether err is a contract-level failure that retrying
// cannot fix.
func isRevert(err error) bool {
	if errors.Is(err, errNoCode) {
		return true
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

// tokenID parses a decimal item id into an ERC-721 token id.
func tokenID(itemID string) (*big.Int, bool) {
	id, ok := new(big.Int).SetString(itemID, 10)
	if !ok || id.Sign() < 0 || id.BitLen() > 256 {
		return nil, false
	}
	return id, true
}
