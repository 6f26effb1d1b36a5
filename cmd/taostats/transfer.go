package main

import (
	"github.com/spf13/cobra"

	"taostats"
)

func transferParams(cmd *cobra.Command) taostats.TransferParams {
	p := taostats.TransferParams{Nonce: nonceFlag(cmd)}
	p.To, _ = cmd.Flags().GetString("to")
	p.Amount, _ = cmd.Flags().GetString("amount")
	p.From, _ = cmd.Flags().GetString("from")
	return p
}

func addSlippageFlags(cmd *cobra.Command) {
	cmd.Flags().Int("origin-netuid", 0, "origin subnet netuid")
	cmd.Flags().Int("destination-netuid", 0, "destination subnet netuid")
	cmd.Flags().String("tolerance", "", "slippage tolerance as a fraction (default 0.05)")
	cmd.Flags().Bool("disable-slippage-protection", false, "submit even when slippage exceeds the tolerance")
}

func newTransferCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "transfer", Short: "Transfer TAO or Alpha"}

	tao := &cobra.Command{
		Use:   "tao",
		Short: "Transfer TAO keeping the sender alive",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			out, err := e.client.Transfer.TAO(e.ctx, transferParams(cmd))
			return printOutcome(cmd, out, err)
		}),
	}

	estimate := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the fee and total cost of a TAO transfer",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			cost, err := e.client.Transfer.EstimateCost(e.ctx, transferParams(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd, cost)
		}),
	}

	for _, c := range []*cobra.Command{tao, estimate} {
		c.Flags().String("to", "", "destination SS58 address")
		c.Flags().String("amount", "", "TAO amount")
		addAccountFlags(c)
	}

	maxCmd := &cobra.Command{
		Use:   "max",
		Short: "Show the largest TAO amount that keeps the sender alive",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			to, _ := cmd.Flags().GetString("to")
			from, _ := cmd.Flags().GetString("from")
			res, err := e.client.Transfer.MaxTransferable(e.ctx, to, from)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}),
	}
	maxCmd.Flags().String("to", "", "destination SS58 address used for fee estimation")
	maxCmd.Flags().String("from", "", "expected sender address")

	alpha := &cobra.Command{
		Use:   "alpha",
		Short: "Transfer staked Alpha to another coldkey",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			f := cmd.Flags()
			p := taostats.AlphaTransferParams{Nonce: nonceFlag(cmd)}
			p.To, _ = f.GetString("to")
			p.Hotkey, _ = f.GetString("hotkey")
			p.Amount, _ = f.GetString("amount")
			p.OriginNetuid, _ = f.GetInt("origin-netuid")
			p.DestinationNetuid, _ = f.GetInt("destination-netuid")
			p.Tolerance, _ = f.GetString("tolerance")
			p.DisableSlippageProtection, _ = f.GetBool("disable-slippage-protection")
			p.From, _ = f.GetString("from")
			out, err := e.client.Transfer.Alpha(e.ctx, p)
			return printOutcome(cmd, out, err)
		}),
	}
	alpha.Flags().String("to", "", "destination coldkey SS58 address")
	alpha.Flags().String("hotkey", "", "hotkey the stake is delegated to")
	alpha.Flags().String("amount", "", "Alpha amount")
	addSlippageFlags(alpha)
	addAccountFlags(alpha)

	cmd.AddCommand(tao, alpha, estimate, maxCmd)
	return cmd
}

func newMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move stake between hotkeys or subnets",
		RunE: runWith(func(cmd *cobra.Command, e *env, _ []string) error {
			f := cmd.Flags()
			p := taostats.MoveParams{Nonce: nonceFlag(cmd)}
			p.OriginHotkey, _ = f.GetString("origin-hotkey")
			p.DestinationHotkey, _ = f.GetString("destination-hotkey")
			p.Amount, _ = f.GetString("amount")
			p.OriginNetuid, _ = f.GetInt("origin-netuid")
			p.DestinationNetuid, _ = f.GetInt("destination-netuid")
			p.Tolerance, _ = f.GetString("tolerance")
			p.DisableSlippageProtection, _ = f.GetBool("disable-slippage-protection")
			p.From, _ = f.GetString("from")
			out, err := e.client.Move.Stake(e.ctx, p)
			return printOutcome(cmd, out, err)
		}),
	}
	cmd.Flags().String("origin-hotkey", "", "hotkey the stake leaves")
	cmd.Flags().String("destination-hotkey", "", "hotkey the stake joins")
	cmd.Flags().String("amount", "", "Alpha amount")
	addSlippageFlags(cmd)
	addAccountFlags(cmd)
	return cmd
}
