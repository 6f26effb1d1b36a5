package balance

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taostats/internal/chain"
	"taostats/internal/chain/chaintest"
	"taostats/internal/keyring"
	"taostats/internal/scale"
)

const (
	alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bob   = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
)

func accountID(t *testing.T, addr string) [32]byte {
	t.Helper()
	id, err := keyring.DecodeAddress(addr)
	require.NoError(t, err)
	return id
}

func TestFreeBalance(t *testing.T) {
	fake := chaintest.New()
	fake.SetFreeBalance(accountID(t, alice), 12_500_000_000)

	free, err := NewReader(fake).FreeBalance(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, free.Equal(decimal.RequireFromString("12.5")), "free %s", free)
}

func TestAccountDecodesAllFields(t *testing.T) {
	fake := chaintest.New()
	info := scale.NewEncoder().
		U32(3).U32(0).U32(1).U32(0).
		U64(1_000_000_000).
		U64(2_000_000_000).
		U64(500_000_000).
		U128(big.NewInt(0)).
		Bytes()
	id := accountID(t, bob)
	fake.Set(chain.SystemAccount, info, id[:])

	bal, err := NewReader(fake).Account(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), bal.Nonce)
	assert.True(t, bal.Free.Equal(decimal.NewFromInt(1)))
	assert.True(t, bal.Reserved.Equal(decimal.NewFromInt(2)))
	assert.True(t, bal.Frozen.Equal(decimal.RequireFromString("0.5")))
}

// finneyAccountInfo is System.Account for a finney account with nonce 42, one
// provider, 2014.903301276 TAO free and the new-logic flags bit set.
const finneyAccountInfo = "0x2a000000000000000100000000000000" +
	"9c749821d5010000" + "0000000000000000" + "0000000000000000" +
	"00000000000000000000000000000080"

func TestAccountDecodesFinneyLayout(t *testing.T) {
	raw, err := hexutil.Decode(finneyAccountInfo)
	require.NoError(t, err)
	require.Len(t, raw, 56)

	fake := chaintest.New()
	id := accountID(t, alice)
	fake.Set(chain.SystemAccount, raw, id[:])

	bal, err := NewReader(fake).Account(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), bal.Nonce)
	assert.True(t, bal.Free.Equal(decimal.RequireFromString("2014.903301276")), "free %s", bal.Free)
	assert.True(t, bal.Reserved.IsZero())
	assert.True(t, bal.Frozen.IsZero())
}

func TestUnknownAccountIsEmpty(t *testing.T) {
	bal, err := NewReader(chaintest.New()).Account(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, bal.Free.IsZero())
}

func TestAccountRejectsBadAddress(t *testing.T) {
	_, err := NewReader(chaintest.New()).FreeBalance(context.Background(), "not-an-address")
	assert.ErrorIs(t, err, keyring.ErrInvalidAddress)
}

func TestAccountTruncatedInfo(t *testing.T) {
	fake := chaintest.New()
	id := accountID(t, alice)
	fake.Set(chain.SystemAccount, []byte{1, 2, 3}, id[:])
	_, err := NewReader(fake).Account(context.Background(), alice)
	assert.ErrorIs(t, err, scale.ErrShortBuffer)
}

func TestStake(t *testing.T) {
	fake := chaintest.New()
	hk, ck := accountID(t, bob), accountID(t, alice)
	fake.SetStake(hk, ck, 4, 3_250_000_000)

	stake, err := NewReader(fake).Stake(context.Background(), bob, alice, 4)
	require.NoError(t, err)
	assert.True(t, stake.Equal(decimal.RequireFromString("3.25")), "stake %s", stake)
}

func TestStakeProportionalToShares(t *testing.T) {
	fake := chaintest.New()
	hk, ck := accountID(t, bob), accountID(t, alice)
	id := scale.EncodeU16(2)
	one := new(big.Int).Lsh(big.NewInt(1), 64)
	fake.Set(chain.Alpha, scale.EncodeU128(one), hk[:], ck[:], id)
	fake.Set(chain.TotalHotkeyShares, scale.EncodeU128(new(big.Int).Mul(one, big.NewInt(3))), hk[:], id)
	fake.Set(chain.TotalHotkeyAlpha, scale.EncodeU64(10_000_000_000), hk[:], id)

	stake, err := NewReader(fake).Stake(context.Background(), bob, alice, 2)
	require.NoError(t, err)
	// a third of 10 alpha, rounded down to a rao
	assert.Equal(t, "3.333333333", stake.String())
}

func TestStakeWithoutPositionIsZero(t *testing.T) {
	stake, err := NewReader(chaintest.New()).Stake(context.Background(), bob, alice, 1)
	require.NoError(t, err)
	assert.True(t, stake.IsZero())
}

func TestStakeReadError(t *testing.T) {
	fake := chaintest.New()
	fake.SetQueryError(errors.New("boom"))
	_, err := NewReader(fake).Stake(context.Background(), bob, alice, 1)
	assert.ErrorContains(t, err, "boom")
}

func TestSubnetExists(t *testing.T) {
	fake := chaintest.New()
	fake.SetSubnet(5)
	r := NewReader(fake)
	ctx := context.Background()

	for netuid, want := range map[uint16]bool{0: true, 5: true, 6: false} {
		got, err := r.SubnetExists(ctx, netuid)
		require.NoError(t, err)
		assert.Equal(t, want, got, "netuid %d", netuid)
	}
}
