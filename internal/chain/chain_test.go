package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"curveSwap/internal/model"
)

var (
	collection = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	artist     = common.HexToAddress("0x00000000000000000000000000000000000000a7")
	holder     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

// fakeCaller answers calls by method name. Queued errors are returned first.
type fakeCaller struct {
	t       *testing.T
	results map[string][]interface{}
	errs    []error
	calls   int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	parsed, err := NFTABI()
	require.NoError(f.t, err)
	for name, method := range parsed.Methods {
		if !bytes.Equal(msg.Data[:4], method.ID) {
			continue
		}
		values, ok := f.results[name]
		if !ok {
			return nil, nil
		}
		out, err := method.Outputs.Pack(values...)
		require.NoError(f.t, err)
		return out, nil
	}
	f.t.Fatalf("unexpected selector %x", msg.Data[:4])
	return nil, nil
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
}

func TestRoyaltyLookup(t *testing.T) {
	fivePercent := new(big.Int).Div(referenceSalePrice, big.NewInt(20))
	caller := &fakeCaller{t: t, results: map[string][]interface{}{
		"royaltyInfo": {artist, fivePercent},
	}}
	lookup := NewRoyaltyLookup(caller, fastRetry(), nil)

	royalty, err := lookup.Royalty(context.Background(), collection)
	require.NoError(t, err)
	require.NotNil(t, royalty)
	require.Equal(t, artist, royalty.Recipient)
	require.True(t, royalty.Percent.Equal(decimal.RequireFromString("0.05")))

	_, err = lookup.Royalty(context.Background(), collection)
	require.NoError(t, err)
	require.Equal(t, 1, caller.calls)
}

func TestRoyaltyLookupWithoutRoyalty(t *testing.T) {
	caller := &fakeCaller{t: t, results: map[string][]interface{}{
		"royaltyInfo": {common.Address{}, big.NewInt(0)},
	}}
	royalty, err := NewRoyaltyLookup(caller, fastRetry(), nil).Royalty(context.Background(), collection)
	require.NoError(t, err)
	require.Nil(t, royalty)

	// A collection without the method returns no data and is not retried.
	caller = &fakeCaller{t: t, results: map[string][]interface{}{}}
	royalty, err = NewRoyaltyLookup(caller, fastRetry(), nil).Royalty(context.Background(), collection)
	require.NoError(t, err)
	require.Nil(t, royalty)
	require.Equal(t, 1, caller.calls)
}

func TestRoyaltyLookupRetries(t *testing.T) {
	caller := &fakeCaller{
		t:       t,
		results: map[string][]interface{}{"royaltyInfo": {artist, big.NewInt(1)}},
		errs:    []error{errors.New("connection reset"), errors.New("connection reset")},
	}
	royalty, err := NewRoyaltyLookup(caller, fastRetry(), nil).Royalty(context.Background(), collection)
	require.NoError(t, err)
	require.NotNil(t, royalty)
	require.Equal(t, 3, caller.calls)

	unavailable := errors.New("connection refused")
	caller = &fakeCaller{t: t, errs: []error{unavailable, unavailable, unavailable}}
	_, err = NewRoyaltyLookup(caller, fastRetry(), nil).Royalty(context.Background(), collection)
	require.ErrorIs(t, err, unavailable)
}

func TestRoyaltyAboveSalePriceIsRejected(t *testing.T) {
	caller := &fakeCaller{t: t, results: map[string][]interface{}{
		"royaltyInfo": {artist, new(big.Int).Mul(referenceSalePrice, big.NewInt(2))},
	}}
	_, err := NewRoyaltyLookup(caller, fastRetry(), nil).Royalty(context.Background(), collection)
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestOwnershipVerifier(t *testing.T) {
	caller := &fakeCaller{t: t, results: map[string][]interface{}{"ownerOf": {holder}}}
	verifier := NewOwnershipVerifier(caller, fastRetry(), nil)
	ctx := context.Background()

	require.NoError(t, verifier.VerifyOwnership(ctx, collection, holder, []string{"1", "2"}))
	require.Equal(t, 2, caller.calls)

	err := verifier.VerifyOwnership(ctx, collection, artist, []string{"1"})
	require.ErrorIs(t, err, model.ErrUnauthorized)

	err = verifier.VerifyOwnership(ctx, collection, holder, []string{"abc"})
	require.ErrorIs(t, err, model.ErrInvalidInput)

	reverted := &fakeCaller{t: t, errs: []error{errors.New("execution reverted: ERC721: invalid token ID")}}
	err = NewOwnershipVerifier(reverted, fastRetry(), nil).VerifyOwnership(ctx, collection, holder, []string{"9"})
	require.ErrorIs(t, err, model.ErrUnauthorized)
	require.Equal(t, 1, reverted.calls)
}
