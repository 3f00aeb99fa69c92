package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"fieldsync/backend"
	"fieldsync/backend/dao"
	"fieldsync/internal/app"
	"fieldsync/internal/cli"
	"fieldsync/internal/utils"

	"github.com/spf13/cobra"
)

var billNoun = noun[*backend.Bill]{
	name:    "bill",
	table:   func(a *app.App) records[*backend.Bill] { return a.Store.Bills },
	headers: []string{"ID", "NUMBER", "CUSTOMER", "TOTAL", "DUE", "STATUS"},
	row: func(b *backend.Bill) []string {
		return []string{b.ID, b.BillNumber, b.CustomerID, money(b.TotalAmount), money(b.DueAmount), b.Status}
	},
	label: func(b *backend.Bill) string { return b.Status + " due " + money(b.DueAmount) },
}

// parseProductLine reads ID[:QTY[:SERIAL]]
func parseProductLine(spec string) (backend.BillItem, error) {
	parts := strings.SplitN(spec, ":", 3)
	line := backend.BillItem{ItemType: "product", ItemID: strings.TrimSpace(parts[0]), Qty: 1}
	if line.ItemID == "" {
		return line, fmt.Errorf("invalid product %q: missing item id", spec)
	}
	if len(parts) > 1 && parts[1] != "" {
		qty, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || qty <= 0 {
			return line, fmt.Errorf("invalid product %q: quantity must be a positive number", spec)
		}
		line.Qty = qty
	}
	if len(parts) > 2 {
		line.SerialNumber = parts[2]
	}
	return line, nil
}

// priceLines fills name and price of each line from the local inventory
func priceLines(ctx context.Context, store *dao.Store, lines []backend.BillItem) error {
	for i := range lines {
		line := &lines[i]
		switch line.ItemType {
		case "product":
			item, err := store.Items.GetByID(ctx, line.ItemID)
			if err != nil {
				return explainRecordError(itemNoun.name, line.ItemID, err)
			}
			line.ItemName = item.ItemName
			line.Price = item.SalePrice
			line.PurchasePrice = item.PurchasePrice
		case "service":
			svc, err := store.Services.GetByID(ctx, line.ItemID)
			if err != nil {
				return explainRecordError(serviceNoun.name, line.ItemID, err)
			}
			line.ItemName = svc.ServiceName
			line.Price = svc.ServicePrice
		}
	}
	return nil
}

// newBillCmd creates the bill command
func newBillCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bill",
		Aliases: []string{"bills"},
		Short:   "Manage bills and payments",
		Long: `Create bills and record payments against them. A bill is created on the
server with its line items; after that only payments reach the server.
Deleting a bill is recorded locally but the server does not accept it.

Examples:
  fieldsync bill add --customer c123 --product i9:2 --service s4 --received 200
  fieldsync bill pay b55 --amount 150 --note "balance"
  fieldsync bill list --customer c123`,
	}

	var (
		bill     backend.Bill
		products []string
		svcs     []string
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a bill",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			rec := bill
			rec.Items = nil
			for _, spec := range products {
				line, err := parseProductLine(spec)
				if err != nil {
					return err
				}
				rec.Items = append(rec.Items, line)
			}
			for _, id := range svcs {
				rec.Items = append(rec.Items, backend.BillItem{ItemType: "service", ItemID: id, Qty: 1})
			}
			if len(rec.Items) == 0 {
				return fmt.Errorf("a bill needs at least one --product or --service")
			}
			if rec.Discount < 0 || rec.ReceivedPayment < 0 {
				return fmt.Errorf("discount and received payment cannot be negative")
			}

			if _, err := a.Store.Customers.GetByID(ctx, rec.CustomerID); err != nil {
				return explainRecordError(customerNoun.name, rec.CustomerID, err)
			}
			if rec.WorkOrderID != "" {
				if _, err := a.Store.WorkOrders.GetByID(ctx, rec.WorkOrderID); err != nil {
					return explainRecordError(workOrderNoun.name, rec.WorkOrderID, err)
				}
			}
			if err := priceLines(ctx, a.Store, rec.Items); err != nil {
				return err
			}
			rec.Recalculate()
			if rec.ReceivedPayment > 0 {
				rec.Payments = []backend.Payment{{Amount: rec.ReceivedPayment, Note: "Initial payment"}}
			}

			id, err := a.Store.Bills.InsertLocal(ctx, &rec)
			if err != nil {
				return err
			}
			return s.saved(cmd, a, fmt.Sprintf("Billed %s, due %s:", money(rec.TotalAmount), money(rec.DueAmount)), id)
		},
	}
	addCmd.Flags().StringVar(&bill.CustomerID, "customer", "", "Customer id")
	addCmd.Flags().StringVar(&bill.WorkOrderID, "work-order", "", "Work order the bill settles")
	addCmd.Flags().Float64Var(&bill.Discount, "discount", 0, "Discount on the subtotal")
	addCmd.Flags().Float64Var(&bill.ReceivedPayment, "received", 0, "Amount paid now")
	addCmd.Flags().StringVar(&bill.PaymentMethod, "method", "", "Payment method (default cash)")
	addCmd.Flags().StringArrayVar(&products, "product", nil, "Product line ID[:QTY[:SERIAL]], repeatable")
	addCmd.Flags().StringArrayVar(&svcs, "service", nil, "Service line by id, repeatable")
	_ = addCmd.MarkFlagRequired("customer")
	_ = addCmd.RegisterFlagCompletionFunc("customer", customerNoun.completion(s))
	_ = addCmd.RegisterFlagCompletionFunc("work-order", workOrderNoun.completion(s))
	_ = addCmd.RegisterFlagCompletionFunc("service", serviceNoun.completion(s))

	var amount, note string
	payCmd := &cobra.Command{
		Use:               "pay <bill-id>",
		Short:             "Record a payment against a bill",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: billNoun.completion(s),
		RunE: func(cmd *cobra.Command, args []string) error {
			paid, err := utils.ParseAmount(amount)
			if err != nil {
				return err
			}
			a, err := s.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.Store.Bills.MarkPendingPayment(ctx, args[0], backend.Payment{Amount: paid, Note: note}); err != nil {
				return explainRecordError(billNoun.name, args[0], err)
			}
			updated, err := a.Store.Bills.GetByID(ctx, args[0])
			if err != nil {
				return err
			}
			return s.saved(cmd, a, fmt.Sprintf("Paid %s, due %s on bill", money(paid), money(updated.DueAmount)), args[0])
		},
	}
	payCmd.Flags().StringVar(&amount, "amount", "", "Amount received")
	payCmd.Flags().StringVar(&note, "note", "", "Payment note")
	_ = payCmd.MarkFlagRequired("amount")

	var customer string
	listCmd := billNoun.listCmd(s, func(cmd *cobra.Command, a *app.App, page dao.Page) ([]*backend.Bill, error) {
		if customer != "" {
			return a.Store.Bills.ListByCustomer(cmd.Context(), customer, page)
		}
		return a.Store.Bills.List(cmd.Context(), page)
	})
	listCmd.Flags().StringVar(&customer, "customer", "", "Only bills of this customer")

	duesCmd := &cobra.Command{
		Use:   "dues",
		Short: "Show the outstanding amount per customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			dues, err := a.Store.Bills.DueTotalsByCustomer(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			handled, err := utils.Write(out, s.output, dues)
			if err != nil || handled {
				return err
			}

			ids := slices.Sorted(maps.Keys(dues))
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				if dues[id] <= 0 {
					continue
				}
				name := id
				if c, err := a.Store.Customers.GetByID(cmd.Context(), id); err == nil {
					name = c.CustomerName
				}
				rows = append(rows, []string{id, name, money(dues[id])})
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No outstanding dues")
				return nil
			}
			cli.Table(out, []string{"CUSTOMER", "NAME", "DUE"}, rows)
			return nil
		},
	}

	cmd.AddCommand(addCmd, payCmd, listCmd, duesCmd, billNoun.showCmd(s), billNoun.deleteCmd(s))
	return cmd
}
