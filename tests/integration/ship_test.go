//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"sync"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

const (
	bostonLat = 42.3601
	bostonLng = -71.0589
)

func ship(t *testing.T, req shipRequest) (int, shipResponse) {
	t.Helper()

	resp := doPost(t, "/ship", req)
	defer resp.Body.Close()

	return resp.StatusCode, decodeJSON[shipResponse](t, resp)
}

func TestShip_QuoteNearestWarehouse(t *testing.T) {
	status, body := ship(t, shipRequest{DeviceID: 1, Quantity: 10, Lat: bostonLat, Lng: bostonLng})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body.Error)
	}
	if !body.IsValid || body.Order == nil {
		t.Fatalf("expected valid order, got %+v", body)
	}

	o := body.Order
	if o.ID != "" {
		t.Errorf("quote must not carry an order id, got %q", o.ID)
	}
	if o.TotalPrice != "1500.00" {
		t.Errorf("totalPrice: got %s, want 1500.00", o.TotalPrice)
	}
	if o.Discount != "0.00" {
		t.Errorf("discount: got %s, want 0.00", o.Discount)
	}
	if len(o.Shipments) != 1 || o.Shipments[0].WarehouseID != 2 || o.Shipments[0].Units != 10 {
		t.Fatalf("expected 10 units from New York, got %+v", o.Shipments)
	}
	if o.Shipments[0].Cost != "1.06" || o.ShippingCost != "1.06" {
		t.Errorf("shipping cost: got line %s total %s, want 1.06", o.Shipments[0].Cost, o.ShippingCost)
	}
}

func TestShip_QuoteSplitsAcrossWarehouses(t *testing.T) {
	status, body := ship(t, shipRequest{DeviceID: "1", Quantity: "600", Lat: bostonLat, Lng: bostonLng})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body.Error)
	}

	o := body.Order
	if o.TotalPrice != "90000.00" {
		t.Errorf("totalPrice: got %s, want 90000.00", o.TotalPrice)
	}
	if o.Discount != "18000.00" {
		t.Errorf("discount: got %s, want 18000.00", o.Discount)
	}
	if len(o.Shipments) < 2 {
		t.Fatalf("expected a split shipment, got %+v", o.Shipments)
	}
	if o.Shipments[0].WarehouseID != 2 {
		t.Errorf("first shipment should come from New York, got warehouse %d", o.Shipments[0].WarehouseID)
	}
	units := 0
	for _, s := range o.Shipments {
		units += s.Units
	}
	if units != 600 {
		t.Errorf("allocated units: got %d, want 600", units)
	}
}

func TestShip_CommitOrder(t *testing.T) {
	status, body := ship(t, shipRequest{DeviceID: 1, Quantity: 5, Lat: bostonLat, Lng: bostonLng, SaveOrder: "true"})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body.Error)
	}
	if !uuidPattern.MatchString(body.Order.ID) {
		t.Errorf("order id: got %q, want a UUID", body.Order.ID)
	}
}

func TestShip_ConcurrentCommits(t *testing.T) {
	const workers = 10

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for range workers {
		wg.Go(func() {
			status, _ := ship(t, shipRequest{DeviceID: 1, Quantity: 3, Lat: bostonLat, Lng: bostonLng, SaveOrder: true})
			mu.Lock()
			statuses[status]++
			mu.Unlock()
		})
	}
	wg.Wait()

	for status, n := range statuses {
		if status != http.StatusOK && status != http.StatusConflict {
			t.Errorf("unexpected status %d (%d responses)", status, n)
		}
	}
	if statuses[http.StatusOK] == 0 {
		t.Errorf("expected at least one committed order, got %v", statuses)
	}
}

func TestShip_ShippingCostExceeded(t *testing.T) {
	status, body := ship(t, shipRequest{DeviceID: 1, Quantity: 1, Lat: -77.85, Lng: 166.67})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if body.IsValid || body.Error != "Shipping cost exceeds 15% of the total price" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestShip_InsufficientStock(t *testing.T) {
	status, body := ship(t, shipRequest{DeviceID: 1, Quantity: 100000, Lat: bostonLat, Lng: bostonLng})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if body.Error != "Not enough stock across warehouses" {
		t.Errorf("error: got %q", body.Error)
	}
}

func TestShip_DeviceNotFound(t *testing.T) {
	status, body := ship(t, shipRequest{DeviceID: 999, Quantity: 1, Lat: bostonLat, Lng: bostonLng})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if body.Error != "Device not found" {
		t.Errorf("error: got %q", body.Error)
	}
}

func TestShip_MissingFields(t *testing.T) {
	status, body := ship(t, shipRequest{Quantity: 1, Lat: bostonLat, Lng: bostonLng})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if body.Error != "Missing required fields: deviceId, quantity, lat, lng are required" {
		t.Errorf("error: got %q", body.Error)
	}
}

func TestShip_InvalidQuantity(t *testing.T) {
	status, body := ship(t, shipRequest{DeviceID: 1, Quantity: -1, Lat: bostonLat, Lng: bostonLng})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if body.Error != "quantity must be greater than 0" {
		t.Errorf("error: got %q", body.Error)
	}
}

// Runs last in this file: it drains most of the seeded stock.
func TestShip_ConcurrentCommitsReversedRankings(t *testing.T) {
	const (
		pairs    = 4
		quantity = 400
	)
	// Los Angeles ranks warehouse 1 before 2; New York ranks 2 before 1.
	// Either quantity exceeds the nearest warehouse's stock, so both lock
	// the two rows.
	destinations := []struct{ lat, lng float64 }{
		{34.0522, -118.2437},
		{40.7128, -74.0060},
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
		errs     = map[string]int{}
	)
	for range pairs {
		for _, d := range destinations {
			wg.Go(func() {
				status, body := ship(t, shipRequest{DeviceID: 1, Quantity: quantity, Lat: d.lat, Lng: d.lng, SaveOrder: true})
				mu.Lock()
				statuses[status]++
				if status != http.StatusOK {
					errs[body.Error]++
				}
				mu.Unlock()
			})
		}
	}
	wg.Wait()

	for status, n := range statuses {
		switch status {
		case http.StatusOK, http.StatusConflict:
		case http.StatusBadRequest:
			if errs["Not enough stock across warehouses"] != n {
				t.Errorf("unexpected 400 errors %v", errs)
			}
		default:
			t.Errorf("unexpected status %d (%d responses, errors %v)", status, n, errs)
		}
	}
	if statuses[http.StatusOK] == 0 {
		t.Errorf("expected at least one committed order, got %v", statuses)
	}
}
