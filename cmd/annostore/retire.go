package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var retireUser string

var retireCmd = &cobra.Command{
	Use:   "retire",
	Short: "Delete every note owned by a user",
	Long: `Deletes all notes for the given anonymized user id from the canonical
store and, best effort, from the search index. Index documents missed
during an outage are cleaned up by the next rebuild.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore()
		if err != nil {
			fatal("retire", err)
		}
		defer store.Close() //nolint:errcheck

		res, err := store.Retire(context.Background(), retireUser)
		if err != nil {
			fatal("retire", err)
		}

		fmt.Printf("retired user %s (%s)\n", retireUser, res.Outcome)
	},
}

func init() {
	rootCmd.AddCommand(retireCmd)
	retireCmd.Flags().StringVar(&retireUser, "user", "", "Anonymized user id to retire")
	retireCmd.MarkFlagRequired("user") //nolint:errcheck
}
