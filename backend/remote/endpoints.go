package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"fieldsync/backend"
)

// maxPages stops a paginated pull whose server never reports the end
const maxPages = 1000

// Endpoint describes the remote routes of one entity kind
type Endpoint struct {
	Kind        backend.Kind
	Entity      string   // envelope key of a single record
	Resource    string   // POST target; PUT and DELETE append /{id}
	Collections []string // GET routes merged by a pull
	ListKey     string   // envelope key of the collection array
	PageSize    int
	Paged       bool // follow pagination.hasMore
}

var endpoints = map[backend.Kind]Endpoint{
	backend.KindCustomer: {
		Kind:        backend.KindCustomer,
		Entity:      "customer",
		Resource:    "/api/customer",
		Collections: []string{"/api/customers"},
		ListKey:     "customers",
		PageSize:    5000,
	},
	backend.KindWorkOrder: {
		Kind:        backend.KindWorkOrder,
		Entity:      "workOrder",
		Resource:    "/api/workorder",
		Collections: []string{"/api/workorders/pending", "/api/workorders/completed"},
		ListKey:     "workOrders",
		PageSize:    5000,
	},
	backend.KindBill: {
		Kind:        backend.KindBill,
		Entity:      "bill",
		Resource:    "/api/bill",
		Collections: []string{"/api/bills"},
		ListKey:     "bills",
		PageSize:    200,
		Paged:       true,
	},
	backend.KindItem: {
		Kind:        backend.KindItem,
		Entity:      "item",
		Resource:    "/api/inventory/item",
		Collections: []string{"/api/inventory/items"},
		ListKey:     "items",
		PageSize:    200,
		Paged:       true,
	},
	backend.KindService: {
		Kind:        backend.KindService,
		Entity:      "service",
		Resource:    "/api/inventory/service",
		Collections: []string{"/api/inventory/services"},
		ListKey:     "services",
		PageSize:    200,
		Paged:       true,
	},
	backend.KindBankAccount: {
		Kind:        backend.KindBankAccount,
		Entity:      "bankAccount",
		Resource:    "/api/bank-account",
		Collections: []string{"/api/bank-accounts"},
		ListKey:     "bankAccounts",
		PageSize:    200,
		Paged:       true,
	},
}

// EndpointFor returns the routes of kind
func EndpointFor(kind backend.Kind) (Endpoint, error) {
	ep, ok := endpoints[kind]
	if !ok {
		return Endpoint{}, fmt.Errorf("no remote endpoint for %s", kind)
	}
	return ep, nil
}

func opName(verb string, kind backend.Kind) string {
	return verb + " " + string(kind)
}

// Create posts a new record and returns the server id from <entity>._id
func (c *Client) Create(ctx context.Context, kind backend.Kind, payload map[string]any) (string, error) {
	ep, err := EndpointFor(kind)
	if err != nil {
		return "", err
	}
	op := opName("create", kind)
	env, err := c.call(ctx, op, http.MethodPost, ep.Resource, payload)
	if err != nil {
		return "", err
	}

	var rec struct {
		ID string `json:"_id"`
	}
	if raw, ok := env[ep.Entity]; ok {
		_ = json.Unmarshal(raw, &rec)
	}
	if rec.ID == "" {
		return "", backend.NewRemoteError(op, http.StatusOK, "response has no "+ep.Entity+"._id")
	}
	return rec.ID, nil
}

// Update replaces the remote fields of id with payload
func (c *Client) Update(ctx context.Context, kind backend.Kind, id string, payload map[string]any) error {
	ep, err := EndpointFor(kind)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, opName("update", kind), http.MethodPut, ep.Resource+"/"+url.PathEscape(id), payload)
	return err
}

// Delete removes id remotely
func (c *Client) Delete(ctx context.Context, kind backend.Kind, id string) error {
	ep, err := EndpointFor(kind)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, opName("delete", kind), http.MethodDelete, ep.Resource+"/"+url.PathEscape(id), nil)
	return err
}

// SetPrimaryBankAccount makes id the primary payout account
func (c *Client) SetPrimaryBankAccount(ctx context.Context, id string) error {
	_, err := c.call(ctx, "set primary bank_account", http.MethodPut,
		"/api/bank-account/"+url.PathEscape(id)+"/primary", nil)
	return err
}

// AddBillPayment records a payment against a synced bill
func (c *Client) AddBillPayment(ctx context.Context, billID string, amount float64, note string) error {
	body := map[string]any{"amount": amount, "note": note}
	_, err := c.call(ctx, "add payment", http.MethodPut,
		"/api/bill/"+url.PathEscape(billID)+"/payment", body)
	return err
}

type pagination struct {
	CurrentPage int   `json:"currentPage"`
	HasMore     *bool `json:"hasMore"`
}

// List fetches every remote record of kind across its collections and pages
func (c *Client) List(ctx context.Context, kind backend.Kind) ([]json.RawMessage, error) {
	ep, err := EndpointFor(kind)
	if err != nil {
		return nil, err
	}
	op := opName("pull", kind)

	var out []json.RawMessage
	for _, collection := range ep.Collections {
		page := 1
		for n := 0; n < maxPages; n++ {
			q := url.Values{}
			q.Set("page", fmt.Sprint(page))
			q.Set("limit", fmt.Sprint(ep.PageSize))

			env, err := c.call(ctx, op, http.MethodGet, collection+"?"+q.Encode(), nil)
			if err != nil {
				return nil, err
			}

			raw, ok := env[ep.ListKey]
			var batch []json.RawMessage
			if ok {
				err = json.Unmarshal(raw, &batch)
			}
			if !ok || err != nil || batch == nil {
				return nil, backend.NewRemoteError(op, http.StatusOK, "response has no "+ep.ListKey+" array")
			}
			out = append(out, batch...)

			if !ep.Paged {
				break
			}
			var p pagination
			if rawPage, ok := env["pagination"]; ok {
				_ = json.Unmarshal(rawPage, &p)
			}
			if p.HasMore == nil || !*p.HasMore {
				break
			}
			if p.CurrentPage > 0 {
				page = p.CurrentPage + 1
			} else {
				page++
			}
		}
	}
	return out, nil
}
