// Package offline holds the fixed dataset served when the network is down and
// the cache has nothing for an API request.
package offline

import (
	"encoding/json"
)

// Sale is one day of sales.
type Sale struct {
	Date     string `json:"date"`
	Value    int    `json:"value"`
	Products int    `json:"products"`
}

// InventoryItem is one stocked product.
type InventoryItem struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Stock    int    `json:"stock"`
	Category string `json:"category"`
}

// Customer is one customer record.
type Customer struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// Dataset is the full offline payload.
type Dataset struct {
	Sales     []Sale          `json:"sales"`
	Inventory []InventoryItem `json:"inventory"`
	Customers []Customer      `json:"customers"`
}

// Default returns a fresh copy of the built-in dataset.
func Default() Dataset {
	return Dataset{
		Sales: []Sale{
			{Date: "2024-01-31", Value: 45230, Products: 1247},
			{Date: "2024-01-30", Value: 38900, Products: 1156},
			{Date: "2024-01-29", Value: 42100, Products: 1203},
		},
		Inventory: []InventoryItem{
			{ID: 1, Name: "Produto A", Stock: 150, Category: "Eletrônicos"},
			{ID: 2, Name: "Produto B", Stock: 89, Category: "Roupas"},
			{ID: 3, Name: "Produto C", Stock: 234, Category: "Casa"},
		},
		Customers: []Customer{
			{ID: 1, Name: "João Silva", Email: "joao@email.com", Status: "ativo"},
			{ID: 2, Name: "Maria Santos", Email: "maria@email.com", Status: "ativo"},
			{ID: 3, Name: "Pedro Costa", Email: "pedro@email.com", Status: "inativo"},
		},
	}
}

// JSON encodes the whole dataset, as seeded under the sentinel key.
func (d Dataset) JSON() ([]byte, error) {
	return json.Marshal(d)
}
