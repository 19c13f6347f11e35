package offline

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
)

// Resource is the dataset collection a path maps to.
type Resource string

const (
	ResourceSales     Resource = "sales"
	ResourceInventory Resource = "inventory"
	ResourceCustomers Resource = "customers"
	ResourceUnknown   Resource = ""
)

// Classify maps a request path to a collection by substring, checking sales,
// then inventory, then customers.
func Classify(path string) Resource {
	switch {
	case strings.Contains(path, string(ResourceSales)):
		return ResourceSales
	case strings.Contains(path, string(ResourceInventory)):
		return ResourceInventory
	case strings.Contains(path, string(ResourceCustomers)):
		return ResourceCustomers
	default:
		return ResourceUnknown
	}
}

const notAvailableMessage = "Data not available offline"

// Fallback synthesizes the offline response for an API path. Known
// collections return 200 with the collection as JSON; anything else returns
// 404 with an error object. It never fails.
func Fallback(d Dataset, path string) *cachestore.Response {
	var payload any
	switch Classify(path) {
	case ResourceSales:
		payload = d.Sales
	case ResourceInventory:
		payload = d.Inventory
	case ResourceCustomers:
		payload = d.Customers
	default:
		return jsonResponse(http.StatusNotFound, map[string]string{"error": notAvailableMessage})
	}
	return jsonResponse(http.StatusOK, payload)
}

func jsonResponse(status int, v any) *cachestore.Response {
	body, err := json.Marshal(v)
	if err != nil {
		// The dataset types always encode.
		status = http.StatusInternalServerError
		body = []byte(`{"error":"offline data encoding failed"}`)
	}
	return cachestore.NewResponse(status, "application/json", body)
}
