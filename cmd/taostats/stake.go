package main

import (
	"github.com/spf13/cobra"

	"taostats"
)

func addStakeFlags(cmd *cobra.Command, withNetuid bool) {
	cmd.Flags().String("hotkey", "", "validator hotkey SS58 address")
	cmd.Flags().String("amount", "", "amount (TAO for stake, Alpha for unstake)")
	cmd.Flags().String("tolerance", "", "slippage tolerance as a fraction (default 0.05)")
	cmd.Flags().Bool("allow-partial", false, "allow partial fills at the limit price")
	cmd.Flags().Bool("disable-slippage-protection", false, "submit even when slippage exceeds the tolerance")
	addAccountFlags(cmd)
	if withNetuid {
		cmd.Flags().Int("netuid", 0, "subnet netuid")
	}
}

func addAccountFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "expected sender address; must match the configured account")
	cmd.Flags().Int64("nonce", -1, "explicit account nonce (-1 uses the next index)")
}

func nonceFlag(cmd *cobra.Command) *uint32 {
	n, _ := cmd.Flags().GetInt64("nonce")
	if n < 0 {
		return nil
	}
	v := uint32(n)
	return &v
}

func stakeParams(cmd *cobra.Command) taostats.StakeParams {
	f := cmd.Flags()
	p := taostats.StakeParams{Nonce: nonceFlag(cmd)}
	p.Hotkey, _ = f.GetString("hotkey")
	p.Amount, _ = f.GetString("amount")
	p.Tolerance, _ = f.GetString("tolerance")
	p.AllowPartial, _ = f.GetBool("allow-partial")
	p.DisableSlippageProtection, _ = f.GetBool("disable-slippage-protection")
	p.From, _ = f.GetString("from")
	if f.Lookup("netuid") != nil {
		p.Netuid, _ = f.GetInt("netuid")
	}
	return p
}

func newStakeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stake", Short: "Stake TAO"}

	root := &cobra.Command{
		Use:   "root",
		Short: "Stake TAO on the root network",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			out, err := e.client.Stake.ToRoot(e.ctx, stakeParams(cmd))
			return printOutcome(cmd, out, err)
		}),
	}
	addStakeFlags(root, false)

	alpha := &cobra.Command{
		Use:   "alpha",
		Short: "Stake TAO into a subnet pool with slippage protection",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			out, err := e.client.Stake.Alpha(e.ctx, stakeParams(cmd))
			return printOutcome(cmd, out, err)
		}),
	}
	addStakeFlags(alpha, true)

	estimate := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the cost and received Alpha of a stake",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			est, err := e.client.Stake.Estimate(e.ctx, stakeParams(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd, est)
		}),
	}
	addStakeFlags(estimate, true)

	cmd.AddCommand(root, alpha, estimate)
	return cmd
}

func newUnstakeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "unstake", Short: "Unstake Alpha or root stake"}

	root := &cobra.Command{
		Use:   "root",
		Short: "Unstake from the root network",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			out, err := e.client.Unstake.FromRoot(e.ctx, stakeParams(cmd))
			return printOutcome(cmd, out, err)
		}),
	}
	addStakeFlags(root, false)

	alpha := &cobra.Command{
		Use:   "alpha",
		Short: "Unstake Alpha from a subnet with slippage protection",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			out, err := e.client.Unstake.Alpha(e.ctx, stakeParams(cmd))
			return printOutcome(cmd, out, err)
		}),
	}
	addStakeFlags(alpha, true)

	estimate := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the cost and received TAO of an unstake",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			est, err := e.client.Unstake.Estimate(e.ctx, stakeParams(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd, est)
		}),
	}
	addStakeFlags(estimate, true)

	cmd.AddCommand(root, alpha, estimate)
	return cmd
}
