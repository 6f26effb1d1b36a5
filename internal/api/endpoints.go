package api

import (
	"context"
	"encoding/json"
	"fmt"
)

func (c *Client) list(ctx context.Context, path string, lp ListParams) (*Page, error) {
	var page Page
	if err := c.Get(ctx, path, lp.params(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) raw(ctx context.Context, path string, params Params) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Get(ctx, path, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Accounts covers account balances, transfers and identities.
type Accounts struct{ c *Client }

func (c *Client) Accounts() Accounts { return Accounts{c} }

func (a Accounts) Latest(ctx context.Context, lp ListParams) (*Page, error) {
	return a.c.list(ctx, "/api/account/latest/v1", lp)
}

func (a Accounts) History(ctx context.Context, lp ListParams) (*Page, error) {
	return a.c.list(ctx, "/api/account/history/v1", lp)
}

func (a Accounts) Transfers(ctx context.Context, lp ListParams) (*Page, error) {
	return a.c.list(ctx, "/api/transfer/v1", lp)
}

func (a Accounts) Identities(ctx context.Context, lp ListParams) (*Page, error) {
	return a.c.list(ctx, "/api/identity/latest/v1", lp)
}

// Live proxies the node sidecar under /api/v1/live.
type Live struct{ c *Client }

func (c *Client) Live() Live { return Live{c} }

func (l Live) BalanceInfo(ctx context.Context, address string) (json.RawMessage, error) {
	return l.c.raw(ctx, fmt.Sprintf("/api/v1/live/accounts/%s/balance-info", address), nil)
}

func (l Live) HeadBlock(ctx context.Context) (json.RawMessage, error) {
	return l.c.raw(ctx, "/api/v1/live/blocks/head", nil)
}

func (l Live) Block(ctx context.Context, number uint64) (json.RawMessage, error) {
	return l.c.raw(ctx, fmt.Sprintf("/api/v1/live/blocks/%d", number), nil)
}

func (l Live) RawExtrinsics(ctx context.Context, number uint64) (json.RawMessage, error) {
	return l.c.raw(ctx, fmt.Sprintf("/api/v1/live/blocks/%d/extrinsics-raw", number), nil)
}

func (l Live) TransactionPool(ctx context.Context) (json.RawMessage, error) {
	return l.c.raw(ctx, "/api/v1/live/node/transaction-pool", nil)
}

func (l Live) NodeVersion(ctx context.Context) (json.RawMessage, error) {
	return l.c.raw(ctx, "/api/v1/live/node/version", nil)
}

func (l Live) PalletConsts(ctx context.Context, pallet string) (json.RawMessage, error) {
	return l.c.raw(ctx, fmt.Sprintf("/api/v1/live/pallets/%s/consts", pallet), nil)
}

func (l Live) PalletEvents(ctx context.Context, pallet string) (json.RawMessage, error) {
	return l.c.raw(ctx, fmt.Sprintf("/api/v1/live/pallets/%s/events", pallet), nil)
}

// Chain covers indexed blocks, extrinsics, events and runtime stats.
type Chain struct{ c *Client }

func (c *Client) Chain() Chain { return Chain{c} }

func (ch Chain) Blocks(ctx context.Context, lp ListParams) (*Page, error) {
	return ch.c.list(ctx, "/api/block/v1", lp)
}

func (ch Chain) BlockIntervals(ctx context.Context, lp ListParams) (*Page, error) {
	return ch.c.list(ctx, "/api/block/interval/v1", lp)
}

func (ch Chain) Extrinsics(ctx context.Context, lp ListParams) (*Page, error) {
	return ch.c.list(ctx, "/api/extrinsic/v1", lp)
}

func (ch Chain) Events(ctx context.Context, lp ListParams) (*Page, error) {
	return ch.c.list(ctx, "/api/event/v1", lp)
}

func (ch Chain) Calls(ctx context.Context, lp ListParams) (*Page, error) {
	return ch.c.list(ctx, "/api/call/v1", lp)
}

func (ch Chain) ProxyCalls(ctx context.Context, lp ListParams) (*Page, error) {
	return ch.c.list(ctx, "/api/proxy_call/v1", lp)
}

func (ch Chain) Stats(ctx context.Context, lp ListParams) (*Page, error) {
	return ch.c.list(ctx, "/api/stats/latest/v1", lp)
}

func (ch Chain) StatsHistory(ctx context.Context, lp ListParams) (*Page, error) {
	return ch.c.list(ctx, "/api/stats/history/v1", lp)
}

func (ch Chain) RuntimeVersion(ctx context.Context, lp ListParams) (*Page, error) {
	return ch.c.list(ctx, "/api/runtime_version/latest/v1", lp)
}

func (ch Chain) RuntimeVersionHistory(ctx context.Context, lp ListParams) (*Page, error) {
	return ch.c.list(ctx, "/api/runtime_version/history/v1", lp)
}

// Subnets covers subnet state, registration and emissions.
type Subnets struct{ c *Client }

func (c *Client) Subnets() Subnets { return Subnets{c} }

func (s Subnets) Latest(ctx context.Context, lp ListParams) (*Page, error) {
	return s.c.list(ctx, "/api/subnet/latest/v1", lp)
}

func (s Subnets) History(ctx context.Context, lp ListParams) (*Page, error) {
	return s.c.list(ctx, "/api/subnet/history/v1", lp)
}

func (s Subnets) Registrations(ctx context.Context, lp ListParams) (*Page, error) {
	return s.c.list(ctx, "/api/subnet/registration/v1", lp)
}

func (s Subnets) RegistrationCost(ctx context.Context, lp ListParams) (*Page, error) {
	return s.c.list(ctx, "/api/subnet/registration_cost/latest/v1", lp)
}

func (s Subnets) RegistrationCostHistory(ctx context.Context, lp ListParams) (*Page, error) {
	return s.c.list(ctx, "/api/subnet/registration_cost/history/v1", lp)
}

func (s Subnets) Owners(ctx context.Context, lp ListParams) (*Page, error) {
	return s.c.list(ctx, "/api/subnet/owner/v1", lp)
}

func (s Subnets) Identities(ctx context.Context, lp ListParams) (*Page, error) {
	return s.c.list(ctx, "/api/subnet/identity/v1", lp)
}

func (s Subnets) Emissions(ctx context.Context, lp ListParams) (*Page, error) {
	return s.c.list(ctx, "/api/dtao/subnet_emission/v1", lp)
}

// Pools covers dTAO pool reserves and prices.
type Pools struct{ c *Client }

func (c *Client) Pools() Pools { return Pools{c} }

func (p Pools) Latest(ctx context.Context, lp ListParams) (*Page, error) {
	return p.c.list(ctx, "/api/dtao/pool/latest/v1", lp)
}

func (p Pools) History(ctx context.Context, lp ListParams) (*Page, error) {
	return p.c.list(ctx, "/api/dtao/pool/history/v1", lp)
}

func (p Pools) TotalPrice(ctx context.Context, lp ListParams) (*Page, error) {
	return p.c.list(ctx, "/api/dtao/pool/total_price/latest/v1", lp)
}

func (p Pools) TotalPriceHistory(ctx context.Context, lp ListParams) (*Page, error) {
	return p.c.list(ctx, "/api/dtao/pool/total_price/history/v1", lp)
}

// Prices covers the TAO spot price.
type Prices struct{ c *Client }

func (c *Client) Prices() Prices { return Prices{c} }

func (p Prices) Latest(ctx context.Context, asset string) (*Page, error) {
	return p.c.list(ctx, "/api/price/latest/v1", ListParams{Extra: Params{"asset": asset}})
}

func (p Prices) History(ctx context.Context, asset string, lp ListParams) (*Page, error) {
	lp.Extra = mergeParams(lp.Extra, Params{"asset": asset})
	return p.c.list(ctx, "/api/price/history/v1", lp)
}

func (p Prices) OHLC(ctx context.Context, asset, period string, lp ListParams) (*Page, error) {
	lp.Extra = mergeParams(lp.Extra, Params{"asset": asset, "period": period})
	return p.c.list(ctx, "/api/price/ohlc/v1", lp)
}

// TradingView returns UDF history bars, which are not paginated.
func (p Prices) TradingView(ctx context.Context, symbol, resolution string, from, to int64) (json.RawMessage, error) {
	return p.c.raw(ctx, "/api/dtao/tradingview/udf/history", Params{
		"symbol":     symbol,
		"resolution": resolution,
		"from":       fmt.Sprint(from),
		"to":         fmt.Sprint(to),
	})
}

// Metagraph covers neurons, weights and distributions.
type Metagraph struct{ c *Client }

func (c *Client) Metagraph() Metagraph { return Metagraph{c} }

func (m Metagraph) Latest(ctx context.Context, lp ListParams) (*Page, error) {
	return m.c.list(ctx, "/api/metagraph/latest/v1", lp)
}

func (m Metagraph) History(ctx context.Context, lp ListParams) (*Page, error) {
	return m.c.list(ctx, "/api/metagraph/history/v1", lp)
}

func (m Metagraph) Root(ctx context.Context, lp ListParams) (*Page, error) {
	return m.c.list(ctx, "/api/metagraph/root/latest/v1", lp)
}

func (m Metagraph) RootHistory(ctx context.Context, lp ListParams) (*Page, error) {
	return m.c.list(ctx, "/api/metagraph/root/history/v1", lp)
}

func (m Metagraph) MinerWeights(ctx context.Context, lp ListParams) (*Page, error) {
	return m.c.list(ctx, "/api/miner/weights/latest/v1", lp)
}

func (m Metagraph) MinerWeightsHistory(ctx context.Context, lp ListParams) (*Page, error) {
	return m.c.list(ctx, "/api/miner/weights/history/v1", lp)
}

// Distribution reads one of the incentive, ip or coldkey distributions.
func (m Metagraph) Distribution(ctx context.Context, kind string, lp ListParams) (*Page, error) {
	switch kind {
	case "incentive", "ip", "coldkey":
	default:
		return nil, fmt.Errorf("unknown distribution %q", kind)
	}
	return m.c.list(ctx, "/api/subnet/distribution/"+kind+"/v1", lp)
}

func (m Metagraph) Registrations(ctx context.Context, lp ListParams) (*Page, error) {
	return m.c.list(ctx, "/api/subnet/neuron/registration/v1", lp)
}

func (m Metagraph) Deregistrations(ctx context.Context, lp ListParams) (*Page, error) {
	return m.c.list(ctx, "/api/subnet/neuron/deregistration/v1", lp)
}

// Validators covers root and dTAO validators.
type Validators struct{ c *Client }

func (c *Client) Validators() Validators { return Validators{c} }

var validatorPaths = map[string]string{
	"latest":             "/api/validator/latest/v1",
	"history":            "/api/validator/history/v1",
	"dtao":               "/api/dtao/validator/latest/v1",
	"dtao_history":       "/api/dtao/validator/history/v1",
	"yield":              "/api/dtao/validator/yield/latest/v1",
	"available":          "/api/dtao/validator/available/v1",
	"weight_copiers":     "/api/validator/weight_copier/v1",
	"alpha_shares":       "/api/dtao/hotkey_alpha_shares/latest/v1",
	"alpha_shares_hist":  "/api/dtao/hotkey_alpha_shares/history/v1",
	"weights":            "/api/validator/weights/latest/v2",
	"weights_history":    "/api/validator/weights/history/v2",
	"performance":        "/api/validator/performance/v1",
	"dtao_performance":   "/api/dtao/validator/performance/latest/v1",
	"dtao_perf_history":  "/api/dtao/validator/performance/history/v1",
	"metrics":            "/api/validator/metrics/latest/v1",
	"metrics_history":    "/api/validator/metrics/history/v1",
	"hotkey_family":      "/api/hotkey/family/latest/v1",
	"hotkey_family_hist": "/api/hotkey/family/history/v1",
}

func (v Validators) Latest(ctx context.Context, lp ListParams) (*Page, error) {
	return v.Query(ctx, "latest", lp)
}

func (v Validators) DTAO(ctx context.Context, lp ListParams) (*Page, error) {
	return v.Query(ctx, "dtao", lp)
}

func (v Validators) Yield(ctx context.Context, lp ListParams) (*Page, error) {
	return v.Query(ctx, "yield", lp)
}

// Query reads the validator listing named by view, e.g. "weights" or "alpha_shares".
func (v Validators) Query(ctx context.Context, view string, lp ListParams) (*Page, error) {
	path, ok := validatorPaths[view]
	if !ok {
		return nil, fmt.Errorf("unknown validator view %q", view)
	}
	return v.c.list(ctx, path, lp)
}

// Delegations covers stake balances and delegation events.
type Delegations struct{ c *Client }

func (c *Client) Delegations() Delegations { return Delegations{c} }

func (d Delegations) Events(ctx context.Context, lp ListParams) (*Page, error) {
	return d.c.list(ctx, "/api/delegation/v1", lp)
}

func (d Delegations) StakeBalance(ctx context.Context, lp ListParams) (*Page, error) {
	return d.c.list(ctx, "/api/dtao/stake_balance/latest/v1", lp)
}

func (d Delegations) StakeBalanceHistory(ctx context.Context, lp ListParams) (*Page, error) {
	return d.c.list(ctx, "/api/dtao/stake_balance/history/v1", lp)
}

func (d Delegations) StakeBalanceAggregated(ctx context.Context, lp ListParams) (*Page, error) {
	return d.c.list(ctx, "/api/dtao/stake_balance_aggregated/latest/v1", lp)
}

// Slippage asks the indexer for its own slippage quote. direction is
// "tao_to_alpha" or "alpha_to_tao".
func (d Delegations) Slippage(ctx context.Context, netuid int, amount, direction string) (json.RawMessage, error) {
	return d.c.raw(ctx, "/api/dtao/slippage/v1", Params{
		"netuid":       fmt.Sprint(netuid),
		"input_tokens": amount,
		"direction":    direction,
	})
}

func mergeParams(dst, src Params) Params {
	out := Params{}
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
