package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"fieldsync/backend"
	"fieldsync/backend/dao"
	"fieldsync/internal/app"
	"fieldsync/internal/cli"
	"fieldsync/internal/utils"

	"github.com/spf13/cobra"
)

// records is the part of a DAO the shared verbs use
type records[P backend.Entity] interface {
	GetByID(ctx context.Context, id string) (P, error)
	List(ctx context.Context, page dao.Page) ([]P, error)
	MarkPendingDelete(ctx context.Context, id string) error
}

// noun describes one entity command
type noun[P backend.Entity] struct {
	name    string
	table   func(a *app.App) records[P]
	headers []string
	row     func(P) []string
	label   func(P) string
}

// explainRecordError adds a hint to the errors a local write can meet
func explainRecordError(name, id string, err error) error {
	var notSynced *backend.NotYetSyncedError
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return utils.ErrRecordNotFound(name, id)
	case errors.As(err, &notSynced):
		return utils.WrapWithSuggestion(err, "Run 'fieldsync sync' so the record gets its server id, then try again")
	}
	return err
}

// emit writes data in the selected structured format, or calls text
func (s *session) emit(out io.Writer, data any, text func() error) error {
	switch s.output {
	case utils.FormatJSON:
		return utils.WriteJSON(out, data)
	case utils.FormatYAML:
		return cli.PrintRecord(out, data)
	}
	return text()
}

// saved reports a local write and hands it to the sync machinery
func (s *session) saved(cmd *cobra.Command, a *app.App, what, id string) error {
	if a.Config.Sync.AutoSync {
		a.CheckConnectivity(cmd.Context())
	}
	a.AfterLocalSave(s.configArgs()...)

	out := cmd.OutOrStdout()
	return s.emit(out, map[string]string{"id": id}, func() error {
		fmt.Fprintf(out, "✓ %s %s\n", what, id)
		cli.PrintToasts(out, a.Board.Snapshot())
		return nil
	})
}

// completion completes record ids of n with their labels
func (n noun[P]) completion(s *session) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return cli.IDCompletion(func() ([]cli.Candidate, error) {
		if s.cfg == nil {
			if err := s.loadConfig(); err != nil {
				return nil, err
			}
		}
		a, err := s.open()
		if err != nil {
			return nil, err
		}
		recs, err := n.table(a).List(context.Background(), dao.Page{Limit: 200})
		if err != nil {
			return nil, err
		}
		out := make([]cli.Candidate, 0, len(recs))
		for _, rec := range recs {
			out = append(out, cli.Candidate{Value: rec.Meta().ID, Description: n.label(rec)})
		}
		return out, nil
	})
}

func (n noun[P]) listCmd(s *session, query func(cmd *cobra.Command, a *app.App, page dao.Page) ([]P, error)) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local " + n.name + " records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			page := dao.Page{Limit: limit}
			var recs []P
			if query != nil {
				recs, err = query(cmd, a, page)
			} else {
				recs, err = n.table(a).List(cmd.Context(), page)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return s.emit(out, recs, func() error {
				if len(recs) == 0 {
					fmt.Fprintf(out, "No %s records\n", n.name)
					return nil
				}
				rows := make([][]string, 0, len(recs))
				for _, rec := range recs {
					rows = append(rows, append(n.row(rec), syncState(rec.Meta())))
				}
				cli.Table(out, append(n.headers, "SYNC"), rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of records (0 for all)")
	return cmd
}

func (n noun[P]) showCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:               "show <id>",
		Short:             "Show one " + n.name,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: n.completion(s),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			rec, err := n.table(a).GetByID(cmd.Context(), args[0])
			if err != nil {
				return explainRecordError(n.name, args[0], err)
			}
			if s.output == utils.FormatJSON {
				return utils.WriteJSON(cmd.OutOrStdout(), rec)
			}
			return cli.PrintRecord(cmd.OutOrStdout(), rec)
		},
	}
}

func (n noun[P]) deleteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:               "delete <id>",
		Short:             "Delete a " + n.name + " locally and queue the remote delete",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: n.completion(s),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			if err := n.table(a).MarkPendingDelete(cmd.Context(), args[0]); err != nil {
				return explainRecordError(n.name, args[0], err)
			}
			return s.saved(cmd, a, "Deleted "+n.name, args[0])
		},
	}
}

// syncState is the SYNC column of list output
func syncState(m *backend.SyncMeta) string {
	switch {
	case !m.PendingSync:
		return cli.Dim("synced")
	case m.SyncError != "":
		return m.SyncOp.Verb() + ": " + m.SyncError
	}
	return "pending " + m.SyncOp.Verb()
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

var customerNoun = noun[*backend.Customer]{
	name:    "customer",
	table:   func(a *app.App) records[*backend.Customer] { return a.Store.Customers },
	headers: []string{"ID", "NAME", "PHONE", "ADDRESS"},
	row: func(c *backend.Customer) []string {
		return []string{c.ID, c.CustomerName, c.PhoneNumber, c.Address}
	},
	label: func(c *backend.Customer) string { return c.CustomerName + " " + c.PhoneNumber },
}

// newCustomerCmd creates the customer command
func newCustomerCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "customer",
		Aliases: []string{"customers"},
		Short:   "Manage customers",
		Long: `Create, edit and delete customers in the local database. Every change is
queued and pushed by the next sync.

Examples:
  fieldsync customer add --name "Asha Rao" --phone 9845012345
  fieldsync customer list --search asha
  fieldsync customer edit client-customer-01J... --address "MG Road"`,
	}

	var c backend.Customer
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			rec := c
			id, err := a.Store.Customers.InsertLocal(cmd.Context(), &rec)
			if err != nil {
				return err
			}
			return s.saved(cmd, a, "Added customer", id)
		},
	}
	customerFlags(addCmd, &c)

	var patch backend.Customer
	editCmd := &cobra.Command{
		Use:               "edit <id>",
		Short:             "Change a customer",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: customerNoun.completion(s),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			f := cmd.Flags()
			err = a.Store.Customers.MarkPendingUpdate(cmd.Context(), args[0], func(rec *backend.Customer) {
				if f.Changed("name") {
					rec.CustomerName = patch.CustomerName
				}
				if f.Changed("phone") {
					rec.PhoneNumber = patch.PhoneNumber
				}
				if f.Changed("whatsapp") {
					rec.WhatsappNumber = patch.WhatsappNumber
				}
				if f.Changed("address") {
					rec.Address = patch.Address
				}
			})
			if err != nil {
				return explainRecordError(customerNoun.name, args[0], err)
			}
			return s.saved(cmd, a, "Updated customer", args[0])
		},
	}
	customerFlags(editCmd, &patch)

	var search string
	listCmd := customerNoun.listCmd(s, func(cmd *cobra.Command, a *app.App, page dao.Page) ([]*backend.Customer, error) {
		return a.Store.Customers.Search(cmd.Context(), search, page)
	})
	listCmd.Flags().StringVarP(&search, "search", "s", "", "Match name or phone number")

	cmd.AddCommand(addCmd, editCmd, listCmd, customerNoun.showCmd(s), customerNoun.deleteCmd(s))
	return cmd
}

func customerFlags(cmd *cobra.Command, c *backend.Customer) {
	cmd.Flags().StringVar(&c.CustomerName, "name", "", "Customer name")
	cmd.Flags().StringVar(&c.PhoneNumber, "phone", "", "Phone number")
	cmd.Flags().StringVar(&c.WhatsappNumber, "whatsapp", "", "WhatsApp number")
	cmd.Flags().StringVar(&c.Address, "address", "", "Address")
}

var workOrderNoun = noun[*backend.WorkOrder]{
	name:    "workorder",
	table:   func(a *app.App) records[*backend.WorkOrder] { return a.Store.WorkOrders },
	headers: []string{"ID", "NUMBER", "CUSTOMER", "STATUS", "SCHEDULED", "NOTE"},
	row: func(w *backend.WorkOrder) []string {
		when := w.ScheduleDate
		if w.HasScheduledTime {
			when += " " + w.ScheduleTime
		}
		return []string{w.ID, w.WorkOrderNumber, w.CustomerID, w.Status, when, w.Note}
	},
	label: func(w *backend.WorkOrder) string { return w.Status + " " + w.ScheduleDate },
}

// workOrderInput holds the schedule flags before validation
type workOrderInput struct {
	customer string
	note     string
	date     string
	clock    string
	status   string
}

// apply validates the input and writes the fields selected by changed into w
func (in workOrderInput) apply(w *backend.WorkOrder, changed func(string) bool) error {
	if changed("date") {
		date, err := utils.ParseDateFlag(in.date)
		if err != nil {
			return err
		}
		w.ScheduleDate = date
	}
	if changed("time") {
		w.ScheduleTime = in.clock
		w.HasScheduledTime = in.clock != ""
	}
	if err := utils.ValidateSchedule(w.ScheduleDate, w.ScheduleTime); err != nil {
		return err
	}
	if changed("status") && in.status != "" {
		if err := utils.ValidateStatus(in.status); err != nil {
			return err
		}
		w.Status = in.status
	}
	if changed("note") {
		w.Note = in.note
	}
	if changed("customer") {
		w.CustomerID = in.customer
	}
	return nil
}

func workOrderFlags(cmd *cobra.Command, in *workOrderInput) {
	cmd.Flags().StringVar(&in.note, "note", "", "Job description")
	cmd.Flags().StringVar(&in.date, "date", "", "Schedule date: YYYY-MM-DD, today or tomorrow")
	cmd.Flags().StringVar(&in.clock, "time", "", "Schedule time HH:MM (needs a date)")
	cmd.Flags().StringVar(&in.status, "status", "", "pending, scheduled, in_progress, completed or cancelled")
	_ = cmd.RegisterFlagCompletionFunc("status", cobra.FixedCompletions(utils.WorkOrderStatuses, cobra.ShellCompDirectiveNoFileComp))
}

// newWorkOrderCmd creates the workorder command
func newWorkOrderCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workorder",
		Aliases: []string{"wo", "workorders"},
		Short:   "Manage work orders",
		Long: `Schedule jobs for customers. A work order for a customer that was not synced
yet waits in the queue until the customer has a server id.

Examples:
  fieldsync workorder add --customer c123 --note "RO service" --date tomorrow --time 10:30
  fieldsync workorder list --status pending
  fieldsync workorder edit w456 --status completed`,
	}

	var in workOrderInput
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a work order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			var rec backend.WorkOrder
			if err := in.apply(&rec, cmd.Flags().Changed); err != nil {
				return err
			}
			if _, err := a.Store.Customers.GetByID(cmd.Context(), rec.CustomerID); err != nil {
				return explainRecordError(customerNoun.name, rec.CustomerID, err)
			}
			id, err := a.Store.WorkOrders.InsertLocal(cmd.Context(), &rec)
			if err != nil {
				return err
			}
			return s.saved(cmd, a, "Added work order", id)
		},
	}
	workOrderFlags(addCmd, &in)
	addCmd.Flags().StringVar(&in.customer, "customer", "", "Customer id")
	_ = addCmd.MarkFlagRequired("customer")
	_ = addCmd.RegisterFlagCompletionFunc("customer", customerNoun.completion(s))

	var patch workOrderInput
	editCmd := &cobra.Command{
		Use:               "edit <id>",
		Short:             "Change a work order",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: workOrderNoun.completion(s),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			current, err := a.Store.WorkOrders.GetByID(cmd.Context(), args[0])
			if err != nil {
				return explainRecordError(workOrderNoun.name, args[0], err)
			}
			// validate against the stored schedule before queuing anything
			if err := patch.apply(current, cmd.Flags().Changed); err != nil {
				return err
			}
			err = a.Store.WorkOrders.MarkPendingUpdate(cmd.Context(), args[0], func(rec *backend.WorkOrder) {
				_ = patch.apply(rec, cmd.Flags().Changed)
			})
			if err != nil {
				return explainRecordError(workOrderNoun.name, args[0], err)
			}
			return s.saved(cmd, a, "Updated work order", args[0])
		},
	}
	workOrderFlags(editCmd, &patch)

	var status, customer string
	listCmd := workOrderNoun.listCmd(s, func(cmd *cobra.Command, a *app.App, page dao.Page) ([]*backend.WorkOrder, error) {
		switch {
		case customer != "":
			return a.Store.WorkOrders.ListByCustomer(cmd.Context(), customer, page)
		case status != "":
			if err := utils.ValidateStatus(status); err != nil {
				return nil, err
			}
			return a.Store.WorkOrders.ListByStatus(cmd.Context(), status, page)
		}
		return a.Store.WorkOrders.List(cmd.Context(), page)
	})
	listCmd.Flags().StringVar(&status, "status", "", "Only work orders with this status")
	listCmd.Flags().StringVar(&customer, "customer", "", "Only work orders of this customer")
	listCmd.MarkFlagsMutuallyExclusive("status", "customer")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Count work orders per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			counts := make(map[string]int, len(utils.WorkOrderStatuses))
			rows := make([][]string, 0, len(utils.WorkOrderStatuses))
			for _, status := range utils.WorkOrderStatuses {
				n, err := a.Store.WorkOrders.CountByStatus(cmd.Context(), status)
				if err != nil {
					return err
				}
				counts[status] = n
				rows = append(rows, []string{status, strconv.Itoa(n)})
			}
			handled, err := utils.Write(cmd.OutOrStdout(), s.output, counts)
			if err != nil || handled {
				return err
			}
			cli.Table(cmd.OutOrStdout(), []string{"STATUS", "COUNT"}, rows)
			return nil
		},
	}

	cmd.AddCommand(addCmd, editCmd, listCmd, summaryCmd, workOrderNoun.showCmd(s), workOrderNoun.deleteCmd(s))
	return cmd
}

var itemNoun = noun[*backend.Item]{
	name:    "item",
	table:   func(a *app.App) records[*backend.Item] { return a.Store.Items },
	headers: []string{"ID", "NAME", "TYPE", "UNIT", "SALE PRICE", "STOCK"},
	row: func(i *backend.Item) []string {
		return []string{i.ID, i.ItemName, i.ItemType, i.Unit, money(i.SalePrice), fmt.Sprint(i.StockQty)}
	},
	label: func(i *backend.Item) string { return i.ItemName + " " + money(i.SalePrice) },
}

func itemFlags(cmd *cobra.Command, i *backend.Item) {
	cmd.Flags().StringVar(&i.ItemName, "name", "", "Item name")
	cmd.Flags().StringVar(&i.ItemType, "type", "", "Item type (default generic)")
	cmd.Flags().StringVar(&i.Unit, "unit", "", "Unit of sale")
	cmd.Flags().StringVar(&i.Warranty, "warranty", "", "Warranty terms")
	cmd.Flags().Float64Var(&i.MRP, "mrp", 0, "Maximum retail price")
	cmd.Flags().Float64Var(&i.PurchasePrice, "purchase-price", 0, "Purchase price")
	cmd.Flags().Float64Var(&i.SalePrice, "sale-price", 0, "Sale price")
}

// newItemCmd creates the item command
func newItemCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "item",
		Aliases: []string{"items"},
		Short:   "Manage inventory items",
	}

	var i backend.Item
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add an inventory item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			rec := i
			id, err := a.Store.Items.InsertLocal(cmd.Context(), &rec)
			if err != nil {
				return err
			}
			return s.saved(cmd, a, "Added item", id)
		},
	}
	itemFlags(addCmd, &i)

	var patch backend.Item
	editCmd := &cobra.Command{
		Use:               "edit <id>",
		Short:             "Change an inventory item",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: itemNoun.completion(s),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			f := cmd.Flags()
			err = a.Store.Items.MarkPendingUpdate(cmd.Context(), args[0], func(rec *backend.Item) {
				if f.Changed("name") {
					rec.ItemName = patch.ItemName
				}
				if f.Changed("type") {
					rec.ItemType = patch.ItemType
				}
				if f.Changed("unit") {
					rec.Unit = patch.Unit
				}
				if f.Changed("warranty") {
					rec.Warranty = patch.Warranty
				}
				if f.Changed("mrp") {
					rec.MRP = patch.MRP
				}
				if f.Changed("purchase-price") {
					rec.PurchasePrice = patch.PurchasePrice
				}
				if f.Changed("sale-price") {
					rec.SalePrice = patch.SalePrice
				}
			})
			if err != nil {
				return explainRecordError(itemNoun.name, args[0], err)
			}
			return s.saved(cmd, a, "Updated item", args[0])
		},
	}
	itemFlags(editCmd, &patch)

	cmd.AddCommand(addCmd, editCmd, itemNoun.listCmd(s, nil), itemNoun.showCmd(s), itemNoun.deleteCmd(s))
	return cmd
}

var serviceNoun = noun[*backend.Service]{
	name:    "service",
	table:   func(a *app.App) records[*backend.Service] { return a.Store.Services },
	headers: []string{"ID", "NAME", "PRICE"},
	row: func(sv *backend.Service) []string {
		return []string{sv.ID, sv.ServiceName, money(sv.ServicePrice)}
	},
	label: func(sv *backend.Service) string { return sv.ServiceName + " " + money(sv.ServicePrice) },
}

// newServiceCmd creates the service command
func newServiceCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "service",
		Aliases: []string{"services"},
		Short:   "Manage billable services",
	}

	var sv backend.Service
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			rec := sv
			id, err := a.Store.Services.InsertLocal(cmd.Context(), &rec)
			if err != nil {
				return err
			}
			return s.saved(cmd, a, "Added service", id)
		},
	}
	addCmd.Flags().StringVar(&sv.ServiceName, "name", "", "Service name")
	addCmd.Flags().Float64Var(&sv.ServicePrice, "price", 0, "Service price")

	var name string
	var price float64
	editCmd := &cobra.Command{
		Use:               "edit <id>",
		Short:             "Change a service",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: serviceNoun.completion(s),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			f := cmd.Flags()
			err = a.Store.Services.MarkPendingUpdate(cmd.Context(), args[0], func(rec *backend.Service) {
				if f.Changed("name") {
					rec.ServiceName = name
				}
				if f.Changed("price") {
					rec.ServicePrice = price
				}
			})
			if err != nil {
				return explainRecordError(serviceNoun.name, args[0], err)
			}
			return s.saved(cmd, a, "Updated service", args[0])
		},
	}
	editCmd.Flags().StringVar(&name, "name", "", "Service name")
	editCmd.Flags().Float64Var(&price, "price", 0, "Service price")

	cmd.AddCommand(addCmd, editCmd, serviceNoun.listCmd(s, nil), serviceNoun.showCmd(s), serviceNoun.deleteCmd(s))
	return cmd
}

var bankNoun = noun[*backend.BankAccount]{
	name:    "bank",
	table:   func(a *app.App) records[*backend.BankAccount] { return a.Store.BankAccounts },
	headers: []string{"ID", "BANK", "ACCOUNT", "IFSC", "UPI", "PRIMARY"},
	row: func(b *backend.BankAccount) []string {
		primary := ""
		if b.IsPrimary {
			primary = "*"
		}
		return []string{b.ID, b.BankName, b.AccountNumber, b.IFSCCode, b.UPIID, primary}
	},
	label: func(b *backend.BankAccount) string { return b.BankName + " " + b.AccountNumber },
}

// newBankCmd creates the bank command
func newBankCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bank",
		Aliases: []string{"banks"},
		Short:   "Manage payout bank accounts",
		Long: `Manage the bank accounts payments are received into. Marking an account
primary is queued as its own operation; the server clears the flag on the
other accounts and the next pull brings that back.

Examples:
  fieldsync bank add --bank "State Bank" --account 00112233 --ifsc SBIN0001
  fieldsync bank primary b789
  fieldsync bank primary`,
	}

	var acct backend.BankAccount
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a bank account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			rec := acct
			id, err := a.Store.BankAccounts.InsertLocal(cmd.Context(), &rec)
			if err != nil {
				return err
			}
			return s.saved(cmd, a, "Added bank account", id)
		},
	}
	addCmd.Flags().StringVar(&acct.BankName, "bank", "", "Bank name")
	addCmd.Flags().StringVar(&acct.AccountNumber, "account", "", "Account number")
	addCmd.Flags().StringVar(&acct.IFSCCode, "ifsc", "", "IFSC code")
	addCmd.Flags().StringVar(&acct.AccountHolderName, "holder", "", "Account holder name")
	addCmd.Flags().StringVar(&acct.UPIID, "upi", "", "UPI id")

	primaryCmd := &cobra.Command{
		Use:               "primary [id]",
		Short:             "Show or set the primary payout account",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: bankNoun.completion(s),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				out := cmd.OutOrStdout()
				acct, err := a.Store.BankAccounts.Primary(cmd.Context())
				if errors.Is(err, backend.ErrNotFound) {
					fmt.Fprintln(out, "No primary bank account")
					return nil
				}
				if err != nil {
					return err
				}
				return s.emit(out, acct, func() error {
					return cli.PrintRecord(out, acct)
				})
			}
			if err := a.Store.BankAccounts.MarkPendingSetPrimary(cmd.Context(), args[0]); err != nil {
				return explainRecordError(bankNoun.name, args[0], err)
			}
			return s.saved(cmd, a, "Primary bank account set to", args[0])
		},
	}

	cmd.AddCommand(addCmd, primaryCmd, bankNoun.listCmd(s, nil), bankNoun.showCmd(s), bankNoun.deleteCmd(s))
	return cmd
}
