package backend

import (
	"encoding/json"
	"strings"
	"testing"
)

func decodeInto(t *testing.T, body string, e Entity) {
	t.Helper()
	obj, err := DecodeObject(json.RawMessage(body))
	if err != nil {
		t.Fatalf("DecodeObject failed: %v", err)
	}
	if err := DecodeRemote(obj, e); err != nil {
		t.Fatalf("DecodeRemote failed: %v", err)
	}
}

func TestPayloadUsesRemoteNames(t *testing.T) {
	acct := &BankAccount{
		SyncMeta:          SyncMeta{ID: "client-bank-1", PendingSync: true, SyncOp: OpCreate},
		BankName:          "SBI",
		AccountNumber:     "0001",
		IFSCCode:          "SBIN0001",
		AccountHolderName: "R K",
		IsPrimary:         true,
	}

	body := Payload(acct)

	want := map[string]any{
		"bankName":          "SBI",
		"accountNumber":     "0001",
		"ifscCode":          "SBIN0001",
		"accountHolderName": "R K",
		"upiId":             "",
		"isPrimary":         true,
	}
	if len(body) != len(want) {
		t.Fatalf("Expected %d keys, got %d: %v", len(want), len(body), body)
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body[%q] = %v, want %v", k, body[k], v)
		}
	}
	for _, local := range []string{"_id", "id", "pending_sync", "sync_op", "client_id"} {
		if _, ok := body[local]; ok {
			t.Errorf("payload must not carry %q", local)
		}
	}
}

func TestPayloadOmitsPullOnlyFields(t *testing.T) {
	wo := &WorkOrder{CustomerID: "c1", WorkOrderNumber: "WO-9", Status: "pending", BillID: "b1"}
	body := Payload(wo)

	if body["customerId"] != "c1" {
		t.Errorf("customerId = %v", body["customerId"])
	}
	for _, k := range []string{"workOrderNumber", "billId", "completedAt", "notificationSent"} {
		if _, ok := body[k]; ok {
			t.Errorf("pull-only field %q was sent", k)
		}
	}
}

func TestBillPayloadCarriesItems(t *testing.T) {
	bill := &Bill{
		CustomerID:    "c1",
		PaymentMethod: "upi",
		Items: []BillItem{
			{ItemType: "product", ItemID: "i1", SerialNumber: "SN1", Qty: 2, Price: 50},
		},
	}
	body := Payload(bill)

	items, ok := body["items"].([]map[string]any)
	if !ok || len(items) != 1 {
		t.Fatalf("Expected one item in payload, got %#v", body["items"])
	}
	if items[0]["itemId"] != "i1" || items[0]["qty"] != int64(2) || items[0]["serialNumber"] != "SN1" {
		t.Errorf("unexpected item payload: %v", items[0])
	}
	if _, ok := items[0]["price"]; ok {
		t.Error("item price is computed by the server and must not be sent")
	}
	if body["workOrderId"] != nil {
		t.Errorf("empty work order reference should be null, got %v", body["workOrderId"])
	}
}

func TestDecodeRemoteMapsFieldsAndNestedRefs(t *testing.T) {
	var wo WorkOrder
	decodeInto(t, `{
		"_id": "srv-1",
		"customer": {"_id": "cust-9", "customerName": "Ravi"},
		"note": "Fix leak",
		"status": "completed",
		"hasScheduledTime": 1,
		"notificationSent": "true",
		"updatedAt": "2024-05-01T10:00:00Z",
		"createdBy": "user-1"
	}`, &wo)

	if wo.ID != "srv-1" || wo.ClientID != "srv-1" {
		t.Errorf("id = %q client_id = %q", wo.ID, wo.ClientID)
	}
	if wo.CustomerID != "cust-9" {
		t.Errorf("CustomerID = %q, want cust-9 from nested object", wo.CustomerID)
	}
	if !wo.HasScheduledTime || !wo.NotificationSent {
		t.Error("loose booleans were not decoded")
	}
	if wo.UpdatedAt != "2024-05-01T10:00:00.000Z" {
		t.Errorf("UpdatedAt = %q, want normalized timestamp", wo.UpdatedAt)
	}
	if wo.PendingSync || wo.SyncOp != OpNone {
		t.Error("pulled records are never pending")
	}
}

func TestDecodeRemotePlainRefAndQuotedNumbers(t *testing.T) {
	var bill Bill
	decodeInto(t, `{
		"_id": "b1",
		"customerId": "c1",
		"totalAmount": "1200.50",
		"dueAmount": 200,
		"items": [{"_id": "li1", "itemType": "product", "item": {"_id": "i1"}, "qty": "3", "amount": 900}],
		"paymentHistory": [{"amount": 1000.5, "paidAt": "2024-05-01T10:00:00.000Z"}]
	}`, &bill)

	if bill.CustomerID != "c1" {
		t.Errorf("CustomerID = %q", bill.CustomerID)
	}
	if bill.TotalAmount != 1200.50 || bill.DueAmount != 200 {
		t.Errorf("amounts = %v / %v", bill.TotalAmount, bill.DueAmount)
	}
	if bill.PaymentMethod != "cash" {
		t.Errorf("PaymentMethod default not applied: %q", bill.PaymentMethod)
	}
	if len(bill.Items) != 1 || bill.Items[0].ItemID != "i1" || bill.Items[0].Qty != 3 || bill.Items[0].BillID != "b1" {
		t.Errorf("unexpected items: %+v", bill.Items)
	}
	if len(bill.Payments) != 1 || bill.Payments[0].BillID != "b1" {
		t.Fatalf("unexpected payments: %+v", bill.Payments)
	}
	if !strings.HasPrefix(bill.Payments[0].ID, "pay-") {
		t.Errorf("payment without server id should get a local id, got %q", bill.Payments[0].ID)
	}
}

func TestDecodeRemoteAcceptsPlainID(t *testing.T) {
	var svc Service
	decodeInto(t, `{"id": "s1", "serviceName": "Install", "servicePrice": 300}`, &svc)
	if svc.ID != "s1" {
		t.Errorf("ID = %q, want s1", svc.ID)
	}
}

func TestDecodeRemoteRecordsMissingFields(t *testing.T) {
	var svc Service
	decodeInto(t, `{"_id": "s1", "serviceName": "Install"}`, &svc)
	if !svc.Missing("service_price") {
		t.Error("service_price was not sent and should be reported missing")
	}
	if svc.Missing("service_name") {
		t.Error("service_name was sent")
	}

	decodeInto(t, `{"_id": "s1", "serviceName": "Install", "servicePrice": 0}`, &svc)
	if svc.Missing("service_price") {
		t.Error("a second decode must reset the missing set")
	}
}

func TestDecodeRemoteRequiresID(t *testing.T) {
	obj, _ := DecodeObject(json.RawMessage(`{"serviceName": "x"}`))
	var svc Service
	if err := DecodeRemote(obj, &svc); err == nil {
		t.Error("Expected error for record without id")
	}
}

func TestClientTempIDs(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{NewClientID(KindCustomer), true},
		{"client-bank-1700000000000", true},
		{"bill-1700000000000", true},
		{"665f1c2e9b1e8a0012345678", false},
		{"billitem-abc", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsClientTempID(tt.id); got != tt.want {
			t.Errorf("IsClientTempID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}

	a, b := NewClientID(KindWorkOrder), NewClientID(KindWorkOrder)
	if a == b {
		t.Error("client ids must be unique")
	}
	if !strings.HasPrefix(a, "client-wo-") {
		t.Errorf("unexpected prefix: %s", a)
	}
}

func TestSyncOpVerb(t *testing.T) {
	if got := WaitingForServerID(OpSetPrimary); got != "Waiting for server id to set primary" {
		t.Errorf("got %q", got)
	}
	if got := WaitingForServerID(OpUpdate); got != "Waiting for server id to update" {
		t.Errorf("got %q", got)
	}
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrAuthRequired, true},
		{"401", NewRemoteError("PullBills", 401, "expired"), true},
		{"403", NewRemoteError("PullBills", 403, "forbidden"), true},
		{"500", NewRemoteError("PullBills", 500, "boom"), false},
		{"wrapped", &ExhaustedRetriesError{Attempts: 3, Last: NewRemoteError("x", 401, "")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthError(tt.err); got != tt.want {
				t.Errorf("IsAuthError() = %v, want %v", got, tt.want)
			}
		})
	}
}
