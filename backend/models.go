package backend

import (
	"encoding/json"
	"fmt"
)

// SyncOp is the pending operation recorded on a dirty record
type SyncOp string

const (
	OpNone       SyncOp = ""
	OpCreate     SyncOp = "create"
	OpUpdate     SyncOp = "update"
	OpDelete     SyncOp = "delete"
	OpSetPrimary SyncOp = "set_primary"
)

// Verb returns the human form used in sync_error messages
func (op SyncOp) Verb() string {
	if op == OpSetPrimary {
		return "set primary"
	}
	return string(op)
}

// Valid reports whether op is one of the known operations (including none)
func (op SyncOp) Valid() bool {
	switch op {
	case OpNone, OpCreate, OpUpdate, OpDelete, OpSetPrimary:
		return true
	}
	return false
}

// Kind identifies an entity kind and its local table
type Kind string

const (
	KindCustomer    Kind = "customer"
	KindWorkOrder   Kind = "work_order"
	KindBill        Kind = "bill"
	KindBillItem    Kind = "bill_item"
	KindPayment     Kind = "payment"
	KindItem        Kind = "item"
	KindService     Kind = "service"
	KindBankAccount Kind = "bank_account"
)

var kindTables = map[Kind]string{
	KindCustomer:    "customers",
	KindWorkOrder:   "work_orders",
	KindBill:        "bills",
	KindBillItem:    "bill_items",
	KindPayment:     "payment_history",
	KindItem:        "items",
	KindService:     "services",
	KindBankAccount: "bank_accounts",
}

var kindIDPrefixes = map[Kind]string{
	KindCustomer:    "customer",
	KindWorkOrder:   "wo",
	KindBill:        "bill",
	KindBillItem:    "billitem",
	KindPayment:     "pay",
	KindItem:        "item",
	KindService:     "service",
	KindBankAccount: "bank",
}

// Table returns the local table name for the kind
func (k Kind) Table() string {
	return kindTables[k]
}

// SyncedKinds lists the top-level kinds in push/pull order
func SyncedKinds() []Kind {
	return []Kind{KindCustomer, KindWorkOrder, KindBill, KindItem, KindService, KindBankAccount}
}

// SyncMeta holds the sync metadata columns shared by every entity table
type SyncMeta struct {
	ID          string `json:"id"`
	ClientID    string `json:"client_id"`
	CreatedBy   string `json:"created_by,omitempty"`
	Deleted     bool   `json:"deleted"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	PendingSync bool   `json:"pending_sync"`
	SyncOp      SyncOp `json:"sync_op,omitempty"`
	SyncError   string `json:"sync_error,omitempty"`

	// missing holds the columns a pulled record did not carry
	missing map[string]bool
}

// Missing reports whether the record was pulled without column. Merging
// keeps the stored value of such columns.
func (m *SyncMeta) Missing(column string) bool {
	return m.missing[column]
}

// Meta returns the metadata itself so embedding types satisfy Entity
func (m *SyncMeta) Meta() *SyncMeta {
	return m
}

// MetaFields returns the field table for the metadata columns.
// Only id, created_by, deleted and the timestamps are exchanged with the remote.
func MetaFields(m *SyncMeta) []Field {
	return []Field{
		String("id", "_id", &m.ID).PullOnly(),
		String("client_id", "", &m.ClientID).LocalOnly(),
		String("created_by", "createdBy", &m.CreatedBy).PullOnly(),
		Bool("deleted", "deleted", &m.Deleted).PullOnly(),
		String("updated_at", "updatedAt", &m.UpdatedAt).PullOnly(),
		String("created_at", "createdAt", &m.CreatedAt).PullOnly(),
		Bool("pending_sync", "", &m.PendingSync).LocalOnly(),
		opField(&m.SyncOp),
		String("sync_error", "", &m.SyncError).LocalOnly(),
	}
}

// Entity is implemented by every record type stored in a sync table
type Entity interface {
	Kind() Kind
	Meta() *SyncMeta
	// Fields returns the business field table bound to this record
	Fields() []Field
}

// Defaulter is implemented by entities that fill business defaults after
// a local insert or a pull decode
type Defaulter interface {
	ApplyDefaults()
}

// Customer is a field-service customer
type Customer struct {
	SyncMeta
	CustomerName   string `json:"customer_name" validate:"notblank"`
	PhoneNumber    string `json:"phone_number" validate:"notblank"`
	WhatsappNumber string `json:"whatsapp_number,omitempty"`
	Address        string `json:"address,omitempty"`
}

func (c *Customer) Kind() Kind { return KindCustomer }

func (c *Customer) Fields() []Field {
	return []Field{
		String("customer_name", "customerName", &c.CustomerName),
		String("phone_number", "phoneNumber", &c.PhoneNumber),
		String("whatsapp_number", "whatsappNumber", &c.WhatsappNumber),
		String("address", "address", &c.Address),
	}
}

// WorkOrder is a scheduled job for a customer
type WorkOrder struct {
	SyncMeta
	CustomerID       string `json:"customer_id" validate:"notblank"`
	WorkOrderNumber  string `json:"work_order_number,omitempty"`
	Note             string `json:"note,omitempty"`
	ScheduleDate     string `json:"schedule_date,omitempty"`
	HasScheduledTime bool   `json:"has_scheduled_time"`
	ScheduleTime     string `json:"schedule_time,omitempty"`
	Status           string `json:"status"`
	CompletedAt      string `json:"completed_at,omitempty"`
	NotificationSent bool   `json:"notification_sent"`
	BillID           string `json:"bill_id,omitempty"`
}

func (w *WorkOrder) Kind() Kind { return KindWorkOrder }

func (w *WorkOrder) Fields() []Field {
	return []Field{
		Ref("customer_id", "customerId", "customer", &w.CustomerID),
		String("work_order_number", "workOrderNumber", &w.WorkOrderNumber).PullOnly(),
		String("note", "note", &w.Note),
		String("schedule_date", "scheduleDate", &w.ScheduleDate),
		Bool("has_scheduled_time", "hasScheduledTime", &w.HasScheduledTime),
		String("schedule_time", "scheduleTime", &w.ScheduleTime),
		String("status", "status", &w.Status),
		String("completed_at", "completedAt", &w.CompletedAt).PullOnly(),
		Bool("notification_sent", "notificationSent", &w.NotificationSent).PullOnly(),
		Ref("bill_id", "billId", "bill", &w.BillID).PullOnly(),
	}
}

func (w *WorkOrder) ApplyDefaults() {
	if w.Status == "" {
		w.Status = "pending"
	}
}

// Bill is an invoice with line items and payment history
type Bill struct {
	SyncMeta
	CustomerID      string     `json:"customer_id" validate:"notblank"`
	BillNumber      string     `json:"bill_number,omitempty"`
	Subtotal        float64    `json:"subtotal"`
	Discount        float64    `json:"discount"`
	TotalAmount     float64    `json:"total_amount"`
	ReceivedPayment float64    `json:"received_payment"`
	DueAmount       float64    `json:"due_amount"`
	PaymentMethod   string     `json:"payment_method"`
	Status          string     `json:"status"`
	WorkOrderID     string     `json:"work_order_id,omitempty"`
	Items           []BillItem `json:"items,omitempty"`
	Payments        []Payment  `json:"payment_history,omitempty"`
}

func (b *Bill) Kind() Kind { return KindBill }

func (b *Bill) Fields() []Field {
	return []Field{
		Ref("customer_id", "customerId", "customer", &b.CustomerID),
		String("bill_number", "billNumber", &b.BillNumber).PullOnly(),
		Float("subtotal", "subtotal", &b.Subtotal).PullOnly(),
		Float("discount", "discount", &b.Discount),
		Float("total_amount", "totalAmount", &b.TotalAmount).PullOnly(),
		Float("received_payment", "receivedPayment", &b.ReceivedPayment),
		Float("due_amount", "dueAmount", &b.DueAmount).PullOnly(),
		String("payment_method", "paymentMethod", &b.PaymentMethod),
		String("status", "status", &b.Status).PullOnly(),
		Ref("work_order_id", "workOrderId", "workOrder", &b.WorkOrderID),
	}
}

func (b *Bill) ApplyDefaults() {
	if b.PaymentMethod == "" {
		b.PaymentMethod = "cash"
	}
	if b.TotalAmount == 0 && len(b.Items) > 0 {
		b.Recalculate()
	}
	if b.Status == "" {
		b.Status = "pending"
	}
}

// Recalculate derives line amounts, totals and the due amount from the items
func (b *Bill) Recalculate() {
	b.Subtotal = 0
	for i := range b.Items {
		item := &b.Items[i]
		if item.Qty == 0 {
			item.Qty = 1
		}
		if item.Amount == 0 {
			item.Amount = item.Price * float64(item.Qty)
		}
		b.Subtotal += item.Amount
	}
	b.TotalAmount = max(b.Subtotal-b.Discount, 0)
	b.DueAmount = max(b.TotalAmount-b.ReceivedPayment, 0)
	b.Status = b.PaymentStatus()
}

// PaymentStatus returns paid, partial or pending from the current amounts
func (b *Bill) PaymentStatus() string {
	switch {
	case b.DueAmount == 0 && b.TotalAmount > 0:
		return "paid"
	case b.ReceivedPayment > 0:
		return "partial"
	}
	return "pending"
}

// ExtendPayload adds the line items to the create payload
func (b *Bill) ExtendPayload(body map[string]any) {
	items := make([]map[string]any, 0, len(b.Items))
	for i := range b.Items {
		items = append(items, Payload(&b.Items[i]))
	}
	body["items"] = items
}

// DecodeChildren reads the nested items and paymentHistory arrays
func (b *Bill) DecodeChildren(obj map[string]json.RawMessage) error {
	items, err := decodeChildren(obj["items"], b.ID, func(i *BillItem, id string) { i.BillID = id })
	if err != nil {
		return fmt.Errorf("items: %w", err)
	}
	raw, ok := obj["paymentHistory"]
	if !ok {
		raw = obj["payment_history"]
	}
	payments, err := decodeChildren(raw, b.ID, func(p *Payment, id string) { p.BillID = id })
	if err != nil {
		return fmt.Errorf("paymentHistory: %w", err)
	}
	b.Items = items
	b.Payments = payments
	return nil
}

// BillItem is one line of a bill
type BillItem struct {
	SyncMeta
	BillID        string  `json:"bill_id"`
	ItemType      string  `json:"item_type"`
	ItemID        string  `json:"item_id,omitempty"`
	ItemName      string  `json:"item_name,omitempty"`
	SerialNumber  string  `json:"serial_number,omitempty"`
	Qty           int64   `json:"qty"`
	Price         float64 `json:"price"`
	PurchasePrice float64 `json:"purchase_price"`
	Amount        float64 `json:"amount"`
}

func (i *BillItem) Kind() Kind { return KindBillItem }

func (i *BillItem) Fields() []Field {
	return []Field{
		String("bill_id", "", &i.BillID).LocalOnly(),
		String("item_type", "itemType", &i.ItemType),
		Ref("item_id", "itemId", "item", &i.ItemID),
		String("item_name", "itemName", &i.ItemName).PullOnly(),
		String("serial_number", "serialNumber", &i.SerialNumber),
		Int("qty", "qty", &i.Qty),
		Float("price", "price", &i.Price).PullOnly(),
		Float("purchase_price", "purchasePrice", &i.PurchasePrice).PullOnly(),
		Float("amount", "amount", &i.Amount).PullOnly(),
	}
}

func (i *BillItem) ApplyDefaults() {
	if i.Qty == 0 {
		i.Qty = 1
	}
}

// Payment is one entry of a bill's payment history
type Payment struct {
	SyncMeta
	BillID string  `json:"bill_id"`
	Amount float64 `json:"amount"`
	PaidAt string  `json:"paid_at"`
	Note   string  `json:"note,omitempty"`
}

func (p *Payment) Kind() Kind { return KindPayment }

func (p *Payment) Fields() []Field {
	return []Field{
		String("bill_id", "", &p.BillID).LocalOnly(),
		Float("amount", "amount", &p.Amount),
		String("paid_at", "paidAt", &p.PaidAt).PullOnly(),
		String("note", "note", &p.Note),
	}
}

// Item is an inventory product
type Item struct {
	SyncMeta
	ItemType      string  `json:"item_type"`
	ItemName      string  `json:"item_name" validate:"notblank"`
	Unit          string  `json:"unit,omitempty"`
	Warranty      string  `json:"warranty,omitempty"`
	MRP           float64 `json:"mrp"`
	PurchasePrice float64 `json:"purchase_price"`
	SalePrice     float64 `json:"sale_price"`
	StockQty      int64   `json:"stock_qty"`
}

func (i *Item) Kind() Kind { return KindItem }

func (i *Item) Fields() []Field {
	return []Field{
		String("item_type", "itemType", &i.ItemType),
		String("item_name", "itemName", &i.ItemName),
		String("unit", "unit", &i.Unit),
		String("warranty", "warranty", &i.Warranty),
		Float("mrp", "mrp", &i.MRP),
		Float("purchase_price", "purchasePrice", &i.PurchasePrice),
		Float("sale_price", "salePrice", &i.SalePrice),
		Int("stock_qty", "stockQty", &i.StockQty).PullOnly(),
	}
}

func (i *Item) ApplyDefaults() {
	if i.ItemType == "" {
		i.ItemType = "generic"
	}
}

// Service is a billable service offered by the business
type Service struct {
	SyncMeta
	ServiceName  string  `json:"service_name" validate:"notblank"`
	ServicePrice float64 `json:"service_price"`
}

func (s *Service) Kind() Kind { return KindService }

func (s *Service) Fields() []Field {
	return []Field{
		String("service_name", "serviceName", &s.ServiceName),
		Float("service_price", "servicePrice", &s.ServicePrice),
	}
}

// BankAccount is a payout account; at most one is meaningfully primary
type BankAccount struct {
	SyncMeta
	BankName          string `json:"bank_name" validate:"notblank"`
	AccountNumber     string `json:"account_number" validate:"notblank"`
	IFSCCode          string `json:"ifsc_code,omitempty"`
	AccountHolderName string `json:"account_holder_name,omitempty"`
	UPIID             string `json:"upi_id,omitempty"`
	IsPrimary         bool   `json:"is_primary"`
}

func (a *BankAccount) Kind() Kind { return KindBankAccount }

func (a *BankAccount) Fields() []Field {
	return []Field{
		String("bank_name", "bankName", &a.BankName),
		String("account_number", "accountNumber", &a.AccountNumber),
		String("ifsc_code", "ifscCode", &a.IFSCCode),
		String("account_holder_name", "accountHolderName", &a.AccountHolderName),
		String("upi_id", "upiId", &a.UPIID),
		Bool("is_primary", "isPrimary", &a.IsPrimary),
	}
}
