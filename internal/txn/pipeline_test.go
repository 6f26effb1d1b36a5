package txn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taostats/internal/account"
	"taostats/internal/chain"
	"taostats/internal/chain/chaintest"
	"taostats/internal/keyring"
	"taostats/internal/model"
	"taostats/internal/scale"
	"taostats/internal/sdkerr"
)

const (
	alice   = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bob     = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	charlie = "5FLSigC9HGRKVhB9FiEo4Y3koPsNmBmLJbpXg2mp1hXcS59Y"

	tao = 1_000_000_000
)

type memoryRecorder struct {
	mu      sync.Mutex
	records []model.OutcomeRecord
}

func (r *memoryRecorder) Record(_ context.Context, rec model.OutcomeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type fixture struct {
	fake     *chaintest.Fake
	pipeline *Pipeline
	recorder *memoryRecorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	fake := chaintest.New()
	rec := &memoryRecorder{}
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := New(fake, account.Config{Seed: "//Alice"}, Options{
		Recorder: rec,
		Now:      func() time.Time { return stamp },
	})
	return fixture{fake: fake, pipeline: p, recorder: rec}
}

func id(t *testing.T, addr string) [32]byte {
	t.Helper()
	v, err := keyring.DecodeAddress(addr)
	require.NoError(t, err)
	return v
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lastCall(t *testing.T, fake *chaintest.Fake) chain.Call {
	t.Helper()
	sub, err := fake.LastSubmission()
	require.NoError(t, err)
	return sub.Call
}

func TestStakeToRoot(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFreeBalance(id(t, alice), 10*tao)
	f.fake.SetFee(100_000, nil)

	out, err := f.pipeline.Stake(context.Background(), StakeParams{Hotkey: bob, Netuid: 0, Amount: "1.0"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, common.HexToHash("0x5eed").Hex(), out.TxHash)
	assert.Nil(t, out.Slippage)
	assert.True(t, out.Fee.Equal(dec("0.0001")))
	assert.True(t, out.Received.Equal(dec("0.9999")))

	call := lastCall(t, f.fake)
	assert.Equal(t, "SubtensorModule.add_stake", call.String())
	hk := id(t, bob)
	assert.Equal(t, scale.NewEncoder().Raw(hk[:]).U16(0).U64(tao).Bytes(), call.Args)

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, "2024-05-01T12:00:00Z", f.recorder.records[0].RecordedAt)
	require.NotNil(t, f.recorder.records[0].Netuid)
	assert.Equal(t, uint16(0), *f.recorder.records[0].Netuid)
}

func TestStakeBlockedBySlippage(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFreeBalance(id(t, alice), 500*tao)
	f.fake.SetPool(1, 1000*tao, 1000*tao, 0, 0)

	out, err := f.pipeline.Stake(context.Background(), StakeParams{Hotkey: bob, Netuid: 1, Amount: "100", Tolerance: "0.05"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "Slippage too high")
	require.NotNil(t, out.Slippage)
	assert.Equal(t, "9.09", out.Slippage.SlippagePercent.StringFixed(2))
	assert.Empty(t, f.fake.Submissions(), "a blocked stake must not be submitted")
	require.Len(t, f.recorder.records, 1)
	assert.False(t, f.recorder.records[0].Success)
}

func TestStakeWithoutProtectionUsesLimitCall(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFreeBalance(id(t, alice), 500*tao)
	f.fake.SetPool(1, 1000*tao, 1000*tao, 0, 0)

	out, err := f.pipeline.Stake(context.Background(), StakeParams{
		Hotkey:                    bob,
		Netuid:                    1,
		Amount:                    "100",
		DisableSlippageProtection: true,
	})
	require.NoError(t, err)
	assert.True(t, out.Success)

	call := lastCall(t, f.fake)
	assert.Equal(t, "SubtensorModule.add_stake_limit", call.String())
	hk := id(t, bob)
	// price 1, default tolerance 0.05
	want := scale.NewEncoder().Raw(hk[:]).U16(1).U64(100 * tao).U64(950_000_000).Bool(false).Bytes()
	assert.Equal(t, want, call.Args)
}

func TestStakeInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFreeBalance(id(t, alice), tao/2)

	_, err := f.pipeline.Stake(context.Background(), StakeParams{Hotkey: bob, Amount: "1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerr.ErrInsufficientBalance)

	var e *sdkerr.Error
	require.True(t, errors.As(err, &e))
	assert.True(t, e.Available.Equal(dec("0.5")))
	assert.Empty(t, f.fake.Submissions())
}

func TestStakeValidationFailsBeforeChainIO(t *testing.T) {
	cases := map[string]StakeParams{
		"bad hotkey":       {Hotkey: "nope", Amount: "1"},
		"zero amount":      {Hotkey: bob, Amount: "0"},
		"negative amount":  {Hotkey: bob, Amount: "-3"},
		"huge amount":      {Hotkey: bob, Amount: "1000000.000000001"},
		"not a number":     {Hotkey: bob, Amount: "ten"},
		"negative netuid":  {Hotkey: bob, Amount: "1", Netuid: -1},
		"netuid overflow":  {Hotkey: bob, Amount: "1", Netuid: 65536},
		"tolerance above":  {Hotkey: bob, Amount: "1", Tolerance: "1.5"},
		"tolerance below":  {Hotkey: bob, Amount: "1", Tolerance: "-0.1"},
		"bad from address": {Hotkey: bob, Amount: "1", From: "xyz"},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.pipeline.Stake(context.Background(), params)
			require.Error(t, err)
			assert.ErrorIs(t, err, sdkerr.ErrValidation)
			assert.Empty(t, f.fake.FeeCalls())
		})
	}
}

func TestValidationErrorCarriesValue(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Stake(context.Background(), StakeParams{Hotkey: bob, Amount: "2000000"})
	var e *sdkerr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "amount", e.Field)
	assert.Equal(t, "2000000", e.Value)
	assert.Contains(t, err.Error(), "2000000")
}

func TestAccountResolution(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Stake(context.Background(), StakeParams{Hotkey: bob, Amount: "1", From: bob})
	assert.ErrorIs(t, err, sdkerr.ErrAccountMismatch)

	bare := New(chaintest.New(), account.Config{}, Options{})
	_, err = bare.Stake(context.Background(), StakeParams{Hotkey: bob, Amount: "1"})
	assert.ErrorIs(t, err, sdkerr.ErrConfiguration)
}

func TestUnstakeFromSubnet(t *testing.T) {
	f := newFixture(t)
	f.fake.SetPool(1, 2000*tao, 1000*tao, 0, 0)
	f.fake.SetStake(id(t, bob), id(t, alice), 1, 5*tao)

	out, err := f.pipeline.Unstake(context.Background(), StakeParams{Hotkey: bob, Netuid: 1, Amount: "1", AllowPartial: true})
	require.NoError(t, err)
	assert.True(t, out.Success)
	require.NotNil(t, out.OriginStakeBefore)
	assert.True(t, out.OriginStakeBefore.Equal(dec("5")))

	call := lastCall(t, f.fake)
	assert.Equal(t, "SubtensorModule.remove_stake_limit", call.String())
	hk := id(t, bob)
	// price 2 * 0.95
	want := scale.NewEncoder().Raw(hk[:]).U16(1).U64(tao).U64(1_900_000_000).Bool(true).Bytes()
	assert.Equal(t, want, call.Args)
}

func TestUnstakeFromRoot(t *testing.T) {
	f := newFixture(t)
	f.fake.SetStake(id(t, bob), id(t, alice), 0, 3*tao)

	out, err := f.pipeline.Unstake(context.Background(), StakeParams{Hotkey: bob, Amount: "2"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "SubtensorModule.remove_stake", lastCall(t, f.fake).String())
}

func TestUnstakeInsufficientStake(t *testing.T) {
	f := newFixture(t)
	f.fake.SetStake(id(t, bob), id(t, alice), 1, tao)

	_, err := f.pipeline.Unstake(context.Background(), StakeParams{Hotkey: bob, Netuid: 1, Amount: "2"})
	assert.ErrorIs(t, err, sdkerr.ErrInsufficientStake)
}

func TestSubmissionFailureIsOutcome(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFreeBalance(id(t, alice), 10*tao)
	f.fake.SetResult(chain.Result{
		Success: false,
		TxHash:  common.HexToHash("0xfa11"),
		Error:   "SubtensorModule.NotEnoughBalanceToStake: not enough balance",
	})

	out, err := f.pipeline.Stake(context.Background(), StakeParams{Hotkey: bob, Amount: "1"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "SubtensorModule.NotEnoughBalanceToStake: not enough balance", out.Error)
	assert.Equal(t, common.HexToHash("0xfa11").Hex(), out.TxHash)
	assert.Empty(t, out.BlockHash)
}

func TestExplicitNonceIsPassed(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFreeBalance(id(t, alice), 10*tao)
	nonce := uint32(42)

	_, err := f.pipeline.Stake(context.Background(), StakeParams{Hotkey: bob, Amount: "1", Nonce: &nonce})
	require.NoError(t, err)
	sub, err := f.fake.LastSubmission()
	require.NoError(t, err)
	require.NotNil(t, sub.Nonce)
	assert.Equal(t, uint32(42), *sub.Nonce)
	assert.Equal(t, alice, sub.Signer)
}

func TestEstimateStake(t *testing.T) {
	f := newFixture(t)
	f.fake.SetPool(1, 1000*tao, 1000*tao, 0, 0)
	f.fake.SetFee(1_000_000, nil)
	ctx := context.Background()

	root, err := f.pipeline.EstimateStake(ctx, StakeParams{Hotkey: bob, Amount: "2"})
	require.NoError(t, err)
	assert.True(t, root.TotalCost.Equal(dec("2.001")))
	assert.True(t, root.ExpectedReceived.Equal(dec("2")))
	assert.Nil(t, root.Slippage)

	subnet, err := f.pipeline.EstimateStake(ctx, StakeParams{Hotkey: bob, Netuid: 1, Amount: "100"})
	require.NoError(t, err)
	require.NotNil(t, subnet.Slippage)
	slipCost := dec("100").Mul(subnet.Slippage.SlippagePercent).Div(dec("100"))
	assert.True(t, subnet.TotalCost.Equal(dec("100.001").Add(slipCost)))
	assert.True(t, subnet.ExpectedReceived.Equal(subnet.Slippage.Received))
	assert.Empty(t, f.fake.Submissions())
}

func TestEstimateUnstakeRoot(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFee(2_000_000, nil)

	est, err := f.pipeline.EstimateUnstake(context.Background(), StakeParams{Hotkey: bob, Amount: "4"})
	require.NoError(t, err)
	assert.True(t, est.TotalCost.Equal(dec("0.002")))
	assert.True(t, est.ExpectedReceived.Equal(dec("4")))
}

func TestEstimateUnstakeSubnetCostInTAO(t *testing.T) {
	f := newFixture(t)
	f.fake.SetPool(1, 1000*tao, 1000*tao, 0, 0)
	f.fake.SetFee(1_000_000, nil)

	est, err := f.pipeline.EstimateUnstake(context.Background(), StakeParams{Hotkey: bob, Netuid: 1, Amount: "100"})
	require.NoError(t, err)
	require.NotNil(t, est.Slippage)
	// 100 alpha at price 1 is worth 100 TAO; the pool keeps k/1100 TAO.
	taoOut := dec("1000").Sub(dec("1000000").DivRound(dec("1100"), 18))
	assert.True(t, est.Slippage.Ideal.Equal(dec("100")), "ideal %s", est.Slippage.Ideal)
	assert.True(t, est.ExpectedReceived.Equal(taoOut.Sub(dec("0.001"))), "received %s", est.ExpectedReceived)
	assert.True(t, est.TotalCost.Equal(dec("100").Sub(est.ExpectedReceived)), "cost %s", est.TotalCost)
	assert.True(t, est.TotalCost.LessThan(dec("100")))
	assert.Empty(t, f.fake.Submissions())
}

func TestTransferTAO(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFreeBalance(id(t, alice), 10*tao)
	f.fake.SetFee(150_000, nil)

	out, err := f.pipeline.TransferTAO(context.Background(), TransferParams{To: bob, Amount: "1.5"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, bob, out.To)
	assert.Equal(t, alice, out.From)

	call := lastCall(t, f.fake)
	assert.Equal(t, "Balances.transfer_keep_alive", call.String())
	dest := id(t, bob)
	want := scale.NewEncoder().U8(0).Raw(dest[:]).Compact(1_500_000_000).Bytes()
	assert.Equal(t, want, call.Args)
}

func TestTransferTAOExistentialDeposit(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFreeBalance(id(t, alice), tao)
	f.fake.SetFee(500, nil)

	_, err := f.pipeline.TransferTAO(context.Background(), TransferParams{To: bob, Amount: "0.999999"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerr.ErrExistentialDeposit)

	var e *sdkerr.Error
	require.True(t, errors.As(err, &e))
	require.NotNil(t, e.Max)
	assert.True(t, e.Max.LessThan(dec("0.999999")), "max %s", e.Max)
	assert.True(t, e.Max.Equal(dec("0.999998999")), "max %s", e.Max)
	assert.Empty(t, f.fake.Submissions())
}

func TestTransferTAOInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFreeBalance(id(t, alice), tao)

	_, err := f.pipeline.TransferTAO(context.Background(), TransferParams{To: bob, Amount: "2"})
	assert.ErrorIs(t, err, sdkerr.ErrInsufficientBalance)
}

func TestEstimateTransferCostAndMax(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFreeBalance(id(t, alice), tao)
	f.fake.SetFee(100_000, nil)
	ctx := context.Background()

	cost, err := f.pipeline.EstimateTransferCost(ctx, TransferParams{To: bob, Amount: "0.25"})
	require.NoError(t, err)
	assert.True(t, cost.Total.Equal(dec("0.2501")))

	mt, err := f.pipeline.MaxTransferable(ctx, bob, "")
	require.NoError(t, err)
	assert.True(t, mt.MaxAmount.Equal(dec("0.9998995")), "max %s", mt.MaxAmount)
	assert.True(t, mt.CurrentBalance.Equal(dec("1")))
}

func TestMaxTransferableFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	f.fake.SetFee(100_000, nil)

	mt, err := f.pipeline.MaxTransferable(context.Background(), bob, "")
	require.NoError(t, err)
	assert.True(t, mt.MaxAmount.IsZero())
}

func TestTransferAlphaCrossSubnet(t *testing.T) {
	f := newFixture(t)
	f.fake.SetSubnet(1)
	f.fake.SetSubnet(2)
	f.fake.SetPool(1, 1000*tao, 1000*tao, 0, 0)
	f.fake.SetPool(2, 1000*tao, 1000*tao, 0, 0)
	f.fake.SetStake(id(t, bob), id(t, alice), 1, 10*tao)
	f.fake.SetFee(0, errors.New("estimation unavailable"))

	out, err := f.pipeline.TransferAlpha(context.Background(), AlphaTransferParams{
		To:                charlie,
		Hotkey:            bob,
		OriginNetuid:      1,
		DestinationNetuid: 2,
		Amount:            "1",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, out.Fee.Equal(dec("0.00005")), "fallback fee, got %s", out.Fee)
	require.NotNil(t, out.OriginStakeBefore)
	assert.True(t, out.OriginStakeBefore.Equal(dec("10")))
	assert.NotNil(t, out.OriginStakeAfter)

	call := lastCall(t, f.fake)
	assert.Equal(t, "SubtensorModule.transfer_stake", call.String())
	dest, hk := id(t, charlie), id(t, bob)
	want := scale.NewEncoder().Raw(dest[:]).Raw(hk[:]).U16(1).U16(2).U64(tao).Bytes()
	assert.Equal(t, want, call.Args)
}

func TestTransferAlphaRequiresSubnets(t *testing.T) {
	f := newFixture(t)
	f.fake.SetSubnet(1)

	_, err := f.pipeline.TransferAlpha(context.Background(), AlphaTransferParams{
		To: charlie, Hotkey: bob, OriginNetuid: 1, DestinationNetuid: 9, Amount: "1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	assert.Contains(t, err.Error(), "9")
}

func TestTransferAlphaInsufficientStake(t *testing.T) {
	f := newFixture(t)
	f.fake.SetSubnet(3)
	f.fake.SetStake(id(t, bob), id(t, alice), 3, tao)

	_, err := f.pipeline.TransferAlpha(context.Background(), AlphaTransferParams{
		To: charlie, Hotkey: bob, OriginNetuid: 3, DestinationNetuid: 3, Amount: "1.5",
	})
	assert.ErrorIs(t, err, sdkerr.ErrInsufficientStake)
}

func TestMoveSameSubnet(t *testing.T) {
	f := newFixture(t)
	f.fake.SetSubnet(4)
	f.fake.SetStake(id(t, bob), id(t, alice), 4, 2*tao)

	out, err := f.pipeline.Move(context.Background(), MoveParams{
		OriginHotkey: bob, DestinationHotkey: charlie, OriginNetuid: 4, DestinationNetuid: 4, Amount: "2",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Nil(t, out.Slippage)
	assert.Equal(t, charlie, out.DestinationHotkey)
	require.NotNil(t, out.DestinationStakeBefore)
	assert.True(t, out.DestinationStakeBefore.IsZero())

	call := lastCall(t, f.fake)
	assert.Equal(t, "SubtensorModule.move_stake", call.String())
	o, d := id(t, bob), id(t, charlie)
	want := scale.NewEncoder().Raw(o[:]).Raw(d[:]).U16(4).U16(4).U64(2 * tao).Bytes()
	assert.Equal(t, want, call.Args)
}

func TestMoveCrossSubnetBlocked(t *testing.T) {
	f := newFixture(t)
	f.fake.SetSubnet(1)
	f.fake.SetSubnet(2)
	f.fake.SetPool(1, 1000*tao, 1000*tao, 0, 0)
	f.fake.SetPool(2, 1000*tao, 1000*tao, 0, 0)
	f.fake.SetStake(id(t, bob), id(t, alice), 1, 200*tao)

	out, err := f.pipeline.Move(context.Background(), MoveParams{
		OriginHotkey: bob, DestinationHotkey: bob, OriginNetuid: 1, DestinationNetuid: 2, Amount: "100",
	})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "Slippage too high")
	assert.Empty(t, f.fake.Submissions())
}

func TestLimitPrices(t *testing.T) {
	stake, err := StakeLimitPrice(dec("0.5"), dec("0.1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_800_000_000), stake)

	unstake, err := UnstakeLimitPrice(dec("0.5"), dec("0.1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(450_000_000), unstake)

	_, err = StakeLimitPrice(decimal.Zero, dec("0.1"))
	assert.ErrorIs(t, err, sdkerr.ErrPoolUnavailable)
}

func TestValidateToleranceDefault(t *testing.T) {
	tol, err := ValidateTolerance("stake", "")
	require.NoError(t, err)
	assert.True(t, tol.Equal(DefaultTolerance))

	for _, v := range []string{"0", "1", "0.25"} {
		_, err := ValidateTolerance("stake", v)
		assert.NoError(t, err, v)
	}
}
