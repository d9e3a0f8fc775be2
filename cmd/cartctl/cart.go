package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jsa498/digitalmarketing/internal/app"
	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/jsa498/digitalmarketing/internal/reconcile"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cart items with count and total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withAgent(cmd, func(ctx context.Context, a *app.App) error {
				if asJSON {
					return printJSON(map[string]interface{}{
						"items": a.Service.Items(),
						"count": a.Service.GetItemCount(),
						"total": a.Service.GetTotalPrice(),
					})
				}
				printCart(a)
				return nil
			})
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product to the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			title, _ := cmd.Flags().GetString("title")
			rawPrice, _ := cmd.Flags().GetString("price")
			image, _ := cmd.Flags().GetString("image")

			price, err := decimal.NewFromString(rawPrice)
			if err != nil {
				return fmt.Errorf("invalid --price %q: %w", rawPrice, err)
			}
			item := model.CartLineItem{ID: id, Title: title, Price: price}
			if image != "" {
				item.ImageURL = &image
			}

			return withAgent(cmd, func(ctx context.Context, a *app.App) error {
				if a.Service.IsItemInCart(id) {
					fmt.Printf("%s is already in the cart\n", id)
					return nil
				}
				if err := a.Service.AddItem(item); err != nil {
					return err
				}
				printCart(a)
				return nil
			})
		},
	}

	cmd.Flags().String("id", "", "Product id")
	cmd.Flags().String("title", "", "Product title")
	cmd.Flags().String("price", "0", "Unit price")
	cmd.Flags().String("image", "", "Image URL")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Service.RemoveItem(args[0]); err != nil {
					return err
				}
				printCart(a)
				return nil
			})
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd, func(ctx context.Context, a *app.App) error {
				a.Service.ClearCart()
				fmt.Println("Cart cleared")
				return nil
			})
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replace the local cart with the signed-in user's remote cart",
		Long: `Sign in with --user and pull the remote cart. The local copy is
replaced by whatever the remote store holds for that user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			if userID == "" {
				return fmt.Errorf("sync requires --user")
			}
			return withAgent(cmd, func(ctx context.Context, a *app.App) error {
				st := ensureSynced(ctx, a.Service)
				if st.State != reconcile.Synchronized {
					return fmt.Errorf("sync %s: %s", st.State, st.LastError)
				}
				printCart(a)
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd, func(ctx context.Context, a *app.App) error {
				return printJSON(a.Service.Status())
			})
		},
	}
}

// syncer is the part of the cart facade the sync command drives.
type syncer interface {
	Status() reconcile.Status
	Resync(ctx context.Context) reconcile.Status
}

// ensureSynced resyncs only when the sign-in sync did not complete.
func ensureSynced(ctx context.Context, s syncer) reconcile.Status {
	if st := s.Status(); st.State == reconcile.Synchronized {
		return st
	}
	return s.Resync(ctx)
}

func printCart(a *app.App) {
	items := a.Service.Items()
	if len(items) == 0 {
		fmt.Println("Cart is empty")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRICE")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\n", it.ID, it.Title, it.Price.StringFixed(2))
	}
	fmt.Fprintf(w, "\t%d item(s)\t%s\n", a.Service.GetItemCount(), a.Service.GetTotalPrice().StringFixed(2))
	w.Flush()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
