package devserver

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"fieldsync/backend"

	"github.com/go-chi/chi/v5"
)

const defaultPageSize = 50

type listRoute struct {
	path   string
	filter func(rec map[string]any) bool
}

// resource describes one remote entity: its routes, envelope keys and the
// fields the server computes itself
type resource struct {
	entity    string
	listKey   string
	path      string
	lists     []listRoute
	required  []string
	deletable bool
	prepare   func(s *Server, rec map[string]any, created bool) error
}

var resources = []resource{
	{
		entity:    "customer",
		listKey:   "customers",
		path:      "/customer",
		lists:     []listRoute{{path: "/customers"}},
		required:  []string{"customerName", "phoneNumber"},
		deletable: true,
	},
	{
		entity:  "workOrder",
		listKey: "workOrders",
		path:    "/workorder",
		lists: []listRoute{
			{path: "/workorders/pending", filter: func(rec map[string]any) bool { return rec["status"] != "completed" }},
			{path: "/workorders/completed", filter: func(rec map[string]any) bool { return rec["status"] == "completed" }},
		},
		required:  []string{"customerId"},
		deletable: true,
		prepare:   prepareWorkOrder,
	},
	{
		entity:   "bill",
		listKey:  "bills",
		path:     "/bill",
		lists:    []listRoute{{path: "/bills"}},
		required: []string{"customerId"},
		prepare:  prepareBill,
	},
	{
		entity:    "item",
		listKey:   "items",
		path:      "/inventory/item",
		lists:     []listRoute{{path: "/inventory/items"}},
		required:  []string{"itemName"},
		deletable: true,
	},
	{
		entity:    "service",
		listKey:   "services",
		path:      "/inventory/service",
		lists:     []listRoute{{path: "/inventory/services"}},
		required:  []string{"serviceName"},
		deletable: true,
	},
	{
		entity:    "bankAccount",
		listKey:   "bankAccounts",
		path:      "/bank-account",
		lists:     []listRoute{{path: "/bank-accounts"}},
		required:  []string{"bankName", "accountNumber"},
		deletable: true,
	},
}

// computed fields are owned by the server and ignored in request bodies
var computed = map[string]bool{
	"_id": true, "id": true, "createdAt": true, "updatedAt": true, "createdBy": true, "deleted": true,
	"workOrderNumber": true, "completedAt": true, "notificationSent": true, "billId": true,
	"billNumber": true, "subtotal": true, "totalAmount": true, "dueAmount": true, "paymentHistory": true,
	"stockQty": true,
}

func (s *Server) mount(r chi.Router, res resource) {
	r.Post(res.path, s.create(res))
	r.Put(res.path+"/{id}", s.update(res))
	if res.deletable {
		r.Delete(res.path+"/{id}", s.remove(res))
	}
	for _, l := range res.lists {
		r.Get(l.path, s.list(res, l.filter))
	}
}

func decodeBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return body, nil
}

func (s *Server) create(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, key := range res.required {
			if v, _ := body[key].(string); v == "" {
				writeError(w, http.StatusBadRequest, key+" is required")
				return
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		rec := make(map[string]any, len(body)+4)
		for k, v := range body {
			if !computed[k] {
				rec[k] = v
			}
		}
		now := backend.Now()
		rec["_id"] = newServerID()
		rec["createdBy"] = subjectFrom(r.Context())
		rec["createdAt"] = now
		rec["updatedAt"] = now
		rec["deleted"] = false
		if res.prepare != nil {
			if err := res.prepare(s, rec, true); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		s.collections[res.listKey].put(rec["_id"].(string), rec)
		out, _ := normalize(rec)
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, res.entity: out, "message": res.entity + " created"})
	}
}

func (s *Server) update(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		body, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		rec, ok := s.collections[res.listKey].records[id]
		if !ok {
			writeError(w, http.StatusNotFound, res.entity+" not found")
			return
		}
		for k, v := range body {
			if !computed[k] {
				rec[k] = v
			}
		}
		rec["updatedAt"] = backend.Now()
		if res.prepare != nil {
			if err := res.prepare(s, rec, false); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		out, _ := normalize(rec)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, res.entity: out, "message": res.entity + " updated"})
	}
}

func (s *Server) remove(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		s.mu.Lock()
		defer s.mu.Unlock()

		c := s.collections[res.listKey]
		if _, ok := c.records[id]; !ok {
			writeError(w, http.StatusNotFound, res.entity+" not found")
			return
		}
		c.remove(id)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": res.entity + " deleted"})
	}
}

func (s *Server) list(res resource, filter func(map[string]any) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", defaultPageSize)

		s.mu.Lock()
		c := s.collections[res.listKey]
		matched := make([]map[string]any, 0, len(c.order))
		for _, id := range c.order {
			rec := c.records[id]
			if filter == nil || filter(rec) {
				out, _ := normalize(rec)
				matched = append(matched, out)
			}
		}
		s.mu.Unlock()

		start := min((page-1)*limit, len(matched))
		end := min(start+limit, len(matched))
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			res.listKey: matched[start:end],
			"pagination": map[string]any{
				"currentPage": page,
				"limit":       limit,
				"total":       len(matched),
				"hasMore":     end < len(matched),
			},
		})
	}
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (s *Server) addPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount := number(body["amount"])
	if amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.collections["bills"].records[id]
	if !ok {
		writeError(w, http.StatusNotFound, "bill not found")
		return
	}
	history, _ := bill["paymentHistory"].([]any)
	history = append(history, map[string]any{
		"_id":    newServerID(),
		"amount": amount,
		"note":   body["note"],
		"paidAt": backend.Now(),
	})
	bill["paymentHistory"] = history
	bill["receivedPayment"] = number(bill["receivedPayment"]) + amount
	bill["updatedAt"] = backend.Now()
	if err := prepareBill(s, bill, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, _ := normalize(bill)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "bill": out, "message": "payment added"})
}

func (s *Server) setPrimary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections["bankAccounts"]
	if _, ok := c.records[id]; !ok {
		writeError(w, http.StatusNotFound, "bank account not found")
		return
	}
	now := backend.Now()
	for accountID, rec := range c.records {
		primary := accountID == id
		if rec["isPrimary"] != primary {
			rec["isPrimary"] = primary
			rec["updatedAt"] = now
		}
	}
	out, _ := normalize(c.records[id])
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "bankAccount": out, "message": "primary account updated"})
}

// nextNumber is called with s.mu held
func (s *Server) nextNumber(prefix string) string {
	s.sequence++
	return fmt.Sprintf("%s-%04d", prefix, s.sequence)
}

func prepareWorkOrder(s *Server, rec map[string]any, created bool) error {
	customerID, _ := rec["customerId"].(string)
	if _, ok := s.collections["customers"].records[customerID]; !ok {
		return fmt.Errorf("customer %s not found", customerID)
	}
	if created {
		rec["workOrderNumber"] = s.nextNumber("WO")
		rec["notificationSent"] = false
	}
	if rec["status"] == nil || rec["status"] == "" {
		rec["status"] = "pending"
	}
	if rec["status"] == "completed" && rec["completedAt"] == nil {
		rec["completedAt"] = backend.Now()
	}
	return nil
}

// prepareBill prices the line items from inventory and derives the totals
func prepareBill(s *Server, rec map[string]any, created bool) error {
	customerID, _ := rec["customerId"].(string)
	if _, ok := s.collections["customers"].records[customerID]; !ok {
		return fmt.Errorf("customer %s not found", customerID)
	}
	if woID, _ := rec["workOrderId"].(string); woID != "" {
		wo, ok := s.collections["workOrders"].records[woID]
		if !ok {
			return fmt.Errorf("work order %s not found", woID)
		}
		if created {
			wo["billId"] = rec["_id"]
			wo["updatedAt"] = rec["updatedAt"]
		}
	}
	if created {
		rec["billNumber"] = s.nextNumber("INV")
		if rec["paymentMethod"] == nil || rec["paymentMethod"] == "" {
			rec["paymentMethod"] = "cash"
		}
		if received := number(rec["receivedPayment"]); received > 0 {
			rec["paymentHistory"] = []any{map[string]any{
				"_id":    newServerID(),
				"amount": received,
				"paidAt": rec["createdAt"],
				"note":   "initial payment",
			}}
		}
	}

	items, _ := rec["items"].([]any)
	subtotal := 0.0
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if item["_id"] == nil {
			item["_id"] = newServerID()
		}
		qty := number(item["qty"])
		if qty <= 0 {
			qty = 1
			item["qty"] = qty
		}
		itemID, _ := item["itemId"].(string)
		if item["itemType"] == "service" {
			if svc, ok := s.collections["services"].records[itemID]; ok {
				item["itemName"] = svc["serviceName"]
				item["price"] = number(svc["servicePrice"])
			}
		} else if inv, ok := s.collections["items"].records[itemID]; ok {
			item["itemName"] = inv["itemName"]
			item["price"] = number(inv["salePrice"])
			item["purchasePrice"] = number(inv["purchasePrice"])
		}
		amount := number(item["price"]) * qty
		item["amount"] = amount
		subtotal += amount
	}

	total := math.Max(subtotal-number(rec["discount"]), 0)
	due := math.Max(total-number(rec["receivedPayment"]), 0)
	rec["subtotal"] = subtotal
	rec["totalAmount"] = total
	rec["dueAmount"] = due
	switch {
	case due == 0 && total > 0:
		rec["status"] = "paid"
	case number(rec["receivedPayment"]) > 0:
		rec["status"] = "partial"
	default:
		rec["status"] = "pending"
	}
	return nil
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}
