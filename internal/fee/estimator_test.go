package fee

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taostats/internal/chain/chaintest"
	"taostats/internal/keyring"
	"taostats/internal/sdkerr"
	"taostats/internal/units"
)

const (
	bob     = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	charlie = "5FLSigC9HGRKVhB9FiEo4Y3koPsNmBmLJbpXg2mp1hXcS59Y"
)

func setup(t *testing.T) (*Estimator, *chaintest.Fake, *keyring.Keypair) {
	t.Helper()
	fake := chaintest.New()
	signer, err := keyring.FromSeed("//Alice", keyring.Sr25519)
	require.NoError(t, err)
	return NewEstimator(fake, nil, nil), fake, signer
}

func TestStakeFee(t *testing.T) {
	est, fake, signer := setup(t)
	fake.SetFee(125_000, nil)

	fee, err := est.StakeFee(context.Background(), signer, bob, 3, decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.True(t, fee.Equal(decimal.RequireFromString("0.000125")), "fee %s", fee)

	calls := fake.FeeCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "SubtensorModule.add_stake", calls[0].String())
	assert.Empty(t, fake.Submissions(), "estimation never submits")
}

func TestEstimatorBuildsMatchingCalls(t *testing.T) {
	est, fake, signer := setup(t)
	ctx := context.Background()
	one := decimal.NewFromInt(1)

	_, err := est.UnstakeFee(ctx, signer, bob, 1, one)
	require.NoError(t, err)
	_, err = est.TransferFee(ctx, signer, bob, one)
	require.NoError(t, err)
	_, err = est.MoveFee(ctx, signer, Move{OriginHotkey: bob, DestinationHotkey: charlie, OriginNetuid: 1, DestinationNetuid: 2, Amount: one})
	require.NoError(t, err)
	est.AlphaTransferFee(ctx, signer, AlphaTransfer{To: charlie, Hotkey: bob, OriginNetuid: 1, DestinationNetuid: 1, Amount: one})

	var names []string
	for _, c := range fake.FeeCalls() {
		names = append(names, c.String())
	}
	assert.Equal(t, []string{
		"SubtensorModule.remove_stake",
		"Balances.transfer_keep_alive",
		"SubtensorModule.move_stake",
		"SubtensorModule.transfer_stake",
	}, names)
}

func TestFeeErrorIsReturned(t *testing.T) {
	est, fake, signer := setup(t)
	fake.SetFee(0, errors.New("runtime api unavailable"))

	_, err := est.TransferFee(context.Background(), signer, bob, decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Equal(t, sdkerr.KindTransaction, sdkerr.KindOf(err))
	assert.ErrorContains(t, err, "runtime api unavailable")
}

func TestAlphaTransferFeeFallsBack(t *testing.T) {
	est, fake, signer := setup(t)
	fake.SetFee(0, errors.New("runtime api unavailable"))

	fee := est.AlphaTransferFee(context.Background(), signer, AlphaTransfer{To: charlie, Hotkey: bob, OriginNetuid: 1, DestinationNetuid: 2, Amount: decimal.NewFromInt(1)})
	assert.True(t, fee.Equal(units.StakeFee()))
	assert.Equal(t, "0.00005", fee.String())
}

func TestInvalidAddressIsValidationError(t *testing.T) {
	est, _, signer := setup(t)
	_, err := est.StakeFee(context.Background(), signer, "bogus", 1, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
}
