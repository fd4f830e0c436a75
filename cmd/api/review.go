package main

import (
	"context"
	"fmt"
	"io"

	"coffeeshop/internal/usecase"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// 結果コードが不明でpendingのままの注文を表で出す
func reviewCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "review",
		Short: "List pending orders that received an unrecognized payment code",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			orders, err := a.adminOrder.NeedsReview(context.Background(), limit)
			if err != nil {
				return err
			}
			return renderReview(cmd.OutOrStdout(), orders)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows")
	return cmd
}

func renderReview(w io.Writer, orders []usecase.OrderOutput) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(w, "no orders need review")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "User", "Reference", "Total", "Created")
	for _, o := range orders {
		if err := table.Append([]string{
			fmt.Sprint(o.ID),
			fmt.Sprint(o.UserID),
			o.Reference,
			o.Total.StringFixed(2) + " " + o.Currency,
			o.CreatedAt.Format("2006-01-02 15:04"),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
