package quickbooks

import (
	"github.com/shopspring/decimal"
)

// Ref points at another QuickBooks entity
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type EmailAddress struct {
	Address string `json:"Address"`
}

type PhoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber"`
}

type Customer struct {
	ID               string          `json:"Id"`
	DisplayName      string          `json:"DisplayName"`
	PrimaryEmailAddr *EmailAddress   `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *PhoneNumber    `json:"PrimaryPhone,omitempty"`
	Balance          decimal.Decimal `json:"Balance"`
	Active           bool            `json:"Active"`
}

type Item struct {
	ID          string          `json:"Id"`
	Name        string          `json:"Name"`
	Description string          `json:"Description,omitempty"`
	Type        string          `json:"Type"`
	UnitPrice   decimal.Decimal `json:"UnitPrice"`
	Active      bool            `json:"Active"`
}

type SalesItemLineDetail struct {
	ItemRef   *Ref            `json:"ItemRef,omitempty"`
	Qty       decimal.Decimal `json:"Qty"`
	UnitPrice decimal.Decimal `json:"UnitPrice"`
}

type Line struct {
	ID                  string               `json:"Id,omitempty"`
	Description         string               `json:"Description,omitempty"`
	Amount              decimal.Decimal      `json:"Amount"`
	DetailType          string               `json:"DetailType"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
}

type Invoice struct {
	ID          string          `json:"Id"`
	DocNumber   string          `json:"DocNumber"`
	CustomerRef Ref             `json:"CustomerRef"`
	TotalAmt    decimal.Decimal `json:"TotalAmt"`
	Balance     decimal.Decimal `json:"Balance"`
	DueDate     string          `json:"DueDate,omitempty"` // YYYY-MM-DD
	Line        []Line          `json:"Line"`
}

// queryResponse is the envelope of /query results. Only the entity queried is populated.
type queryResponse struct {
	QueryResponse struct {
		Customer      []Customer `json:"Customer"`
		Item          []Item     `json:"Item"`
		Invoice       []Invoice  `json:"Invoice"`
		StartPosition int        `json:"startPosition"`
		MaxResults    int        `json:"maxResults"`
	} `json:"QueryResponse"`
}

type fault struct {
	Fault struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
		Type string `json:"type"`
	} `json:"Fault"`
}

// Entity names used by queries, reads and webhook notifications
const (
	EntityCustomer = "Customer"
	EntityItem     = "Item"
	EntityInvoice  = "Invoice"
)
