package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Niskigvan/couchdb/config"
	"github.com/Niskigvan/couchdb/server"
)

var syncStatusCmd = &cobra.Command{
	Use:   "sync-status",
	Short: "Print the shard sync scheduler state (JSON): tunables, window and queued shards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.Config == nil { // load flags to populate config for uniform behavior
			config.Load(cmd.Flags())
		}
		sched := server.Scheduler()
		if sched == nil { // Separate process invocation; we cannot access live state.
			fmt.Println(`{"error":"no running server process; start couchdb normally to populate live status"}`)
			return nil
		}
		snap, ok := sched.Snapshot()
		if !ok {
			fmt.Println(`{"error":"scheduler did not answer"}`)
			return nil
		}
		b, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncStatusCmd)
}
