package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild a user's group directory from the store",
	Long: `Scans every group document visible to the user and rewrites their
settings document, keeping preferences and the active group when it still exists.`,
	RunE: runReconcile,
}

func init() {
	addIdentityFlags(reconcileCmd)
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	svc, closeStore, err := openService()
	if err != nil {
		return err
	}
	defer closeStore()

	settings, err := svc.ReconcileGroups(cmd.Context(), identity())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACTIVE\tID\tNAME\tROLE\tLAST ACCESSED")
	for _, g := range settings.GroupCache {
		active := ""
		if g.ID == settings.ActiveGroupID {
			active = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", active, g.ID, g.Name, g.Role, g.LastAccessed.Format(time.DateTime))
	}
	return w.Flush()
}
