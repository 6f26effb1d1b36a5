package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taostats/internal/model"
	"taostats/internal/pool"
)

func newPoolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "Read subnet pool reserves and prices from the chain",
		RunE:  runWith(runPools),
	}
	cmd.Flags().Int("netuid", -1, "single subnet netuid (-1 reads every subnet)")
	cmd.Flags().Bool("record", false, "append the snapshots to the journal")
	return cmd
}

func runPools(cmd *cobra.Command, e *env, _ []string) error {
	netuid, _ := cmd.Flags().GetInt("netuid")
	record, _ := cmd.Flags().GetBool("record")
	reader := e.client.Pools()

	var snaps []pool.Snapshot
	if netuid >= 0 {
		if netuid > 0xffff {
			return fmt.Errorf("netuid %d out of range", netuid)
		}
		snap, err := reader.Snapshot(e.ctx, uint16(netuid))
		if err != nil {
			return err
		}
		snaps = append(snaps, snap)
	} else {
		all, err := reader.AllSnapshots(e.ctx)
		if err != nil {
			return err
		}
		for _, snap := range all {
			snaps = append(snaps, snap)
		}
		sort.Slice(snaps, func(i, j int) bool { return snaps[i].Netuid < snaps[j].Netuid })
	}

	if record && e.journal != nil {
		now := time.Now()
		records := make([]model.PoolSnapshotRecord, 0, len(snaps))
		for _, snap := range snaps {
			records = append(records, snap.Record(now))
		}
		if err := e.journal.PutPoolSnapshots(e.ctx, records); err != nil {
			return fmt.Errorf("record pool snapshots: %w", err)
		}
		e.logger.Info("pool snapshots recorded", zap.Int("count", len(records)))
	}

	return printJSON(cmd, snaps)
}
