package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmynk/quozen/internal/calculator"
)

var balancesCurrency string

var balancesCmd = &cobra.Command{
	Use:   "balances <group-id>",
	Short: "Print member balances for a group",
	Long: `Computes every member's net balance from the group's expenses and
settlements. Positive balances are owed money; negative balances owe.`,
	Args: cobra.ExactArgs(1),
	RunE: runBalances,
}

func init() {
	addIdentityFlags(balancesCmd)
	balancesCmd.Flags().StringVar(&balancesCurrency, "currency", "USD", "ISO 4217 currency code for display")
	rootCmd.AddCommand(balancesCmd)
}

func runBalances(cmd *cobra.Command, args []string) error {
	if !calculator.IsKnownCurrency(balancesCurrency) {
		return fmt.Errorf("unknown currency %q", balancesCurrency)
	}

	svc, closeStore, err := openService()
	if err != nil {
		return err
	}
	defer closeStore()

	user := identity()
	data, err := svc.GetGroupData(cmd.Context(), user, args[0])
	if err != nil {
		return err
	}
	balances := calculator.CalculateBalances(data.Members, data.Expenses, data.Settlements)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n\n", data.Group.Name)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "MEMBER\tEMAIL\tBALANCE\t")
	for _, m := range data.Members {
		name := m.Name
		if name == "" {
			name = m.UserID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", name, m.Email, calculator.FormatAmount(balances[m.UserID], balancesCurrency))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, m := range data.Members {
		if !user.Matches(m.UserID) {
			continue
		}
		if s := calculator.SuggestSettlementStrategy(m.UserID, balances, data.Members); s != nil {
			fmt.Fprintf(out, "\nSuggested: %s pays %s %s\n", s.FromUserID, s.ToUserID, calculator.FormatAmount(s.Amount, balancesCurrency))
		}
		break
	}
	return nil
}
