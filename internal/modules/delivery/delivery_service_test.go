package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gebeta-delivery/internal/models"
	"gebeta-delivery/internal/realtime"
	"gebeta-delivery/pkg/logger"
)

// fakeRepo guards its state with a mutex so the concurrent accept test
// exercises the same one-winner semantics the conditional UPDATE provides.
type fakeRepo struct {
	mu          sync.Mutex
	orders      map[string]*models.Order
	assignments map[string]*models.Delivery
	customers   map[string]string // orderID -> customer
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:      make(map[string]*models.Order),
		assignments: make(map[string]*models.Delivery),
		customers:   make(map[string]string),
	}
}

func (f *fakeRepo) seedCookedOrder(id string) *models.Order {
	vehicle := models.VehicleMotor
	pickup := "111111"
	o := &models.Order{
		ID:              id,
		RestaurantID:    "rest-1",
		DeliveryFee:     60,
		Tip:             10,
		TypeOfOrder:     models.OrderTypeDelivery,
		DeliveryVehicle: &vehicle,
		Status:          models.StatusCooked,
		PickupCode:      &pickup,
	}
	f.orders[id] = o
	f.customers[id] = "user-1"
	return o
}

func (f *fakeRepo) AcceptOrder(ctx context.Context, orderID, deliveryPersonID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != models.StatusCooked || o.TypeOfOrder != models.OrderTypeDelivery || o.DeliveryPersonID != nil {
		return nil, models.ErrNotAvailable
	}
	pid := deliveryPersonID
	o.DeliveryPersonID = &pid
	f.assignments[orderID] = &models.Delivery{
		ID:               "d-" + orderID,
		DeliveryPersonID: deliveryPersonID,
		OrderID:          orderID,
		Status:           models.AssignmentAssigned,
		DeliveryPrice:    o.DeliveryFee + o.Tip,
	}
	cp := *o
	return &cp, nil
}

func (f *fakeRepo) CancelAssignment(ctx context.Context, orderID, deliveryPersonID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.DeliveryPersonID == nil || *o.DeliveryPersonID != deliveryPersonID || o.Status != models.StatusCooked {
		return nil, models.ErrNotFound
	}
	o.DeliveryPersonID = nil
	if a, ok := f.assignments[orderID]; ok && a.Status == models.AssignmentAssigned {
		a.Status = models.AssignmentCancelled
	}
	cp := *o
	return &cp, nil
}

func (f *fakeRepo) PickUp(ctx context.Context, orderID, deliveryPersonID, pickupCode string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	switch {
	case o.Status == models.StatusDelivering || o.Status == models.StatusCompleted:
		return nil, models.ErrAlreadyPickedUp
	case o.DeliveryPersonID == nil || *o.DeliveryPersonID != deliveryPersonID:
		return nil, models.ErrPermissionDenied
	case o.PickupCode == nil || *o.PickupCode != pickupCode:
		return nil, models.ErrInvalidCode
	}
	o.Status = models.StatusDelivering
	o.PickupCode = nil
	cp := *o
	return &cp, nil
}

func (f *fakeRepo) ListAvailable(ctx context.Context, vehicle string) ([]*models.AvailableOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AvailableOrder
	for _, o := range f.orders {
		if o.Status != models.StatusCooked || o.TypeOfOrder != models.OrderTypeDelivery || o.DeliveryPersonID != nil {
			continue
		}
		v := ""
		if o.DeliveryVehicle != nil {
			v = *o.DeliveryVehicle
		}
		if vehicle != "" && v != vehicle {
			continue
		}
		out = append(out, &models.AvailableOrder{OrderID: o.ID, DeliveryFee: o.DeliveryFee, Tip: o.Tip, Vehicle: v})
	}
	return out, nil
}

func (f *fakeRepo) CountAvailable(ctx context.Context) (int, error) {
	pool, _ := f.ListAvailable(ctx, "")
	return len(pool), nil
}

func (f *fakeRepo) ListByDeliveryPersonID(ctx context.Context, deliveryPersonID string) ([]*models.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Delivery
	for _, a := range f.assignments {
		if a.DeliveryPersonID == deliveryPersonID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindByOrderID(ctx context.Context, orderID string) (*models.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assignments[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) Rate(ctx context.Context, orderID, customerID string, rating int, feedback string) (*models.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assignments[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if a.Status != models.AssignmentCompleted {
		return nil, models.ErrInvalidTransition
	}
	if f.customers[orderID] != customerID {
		return nil, models.ErrPermissionDenied
	}
	a.Rating = &rating
	if feedback != "" {
		a.Feedback = &feedback
	}
	cp := *a
	return &cp, nil
}

type publishedEvent struct {
	room  string
	event string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(room, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{room: room, event: event})
}

func (p *recordingPublisher) has(room, event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.room == room && e.event == event {
			return true
		}
	}
	return false
}

func TestAcceptOrderExactlyOneWinner(t *testing.T) {
	fr := newFakeRepo()
	fr.seedCookedOrder("o1")
	svc := NewService(fr, realtime.NoopPublisher{}, logger.Noop())

	const couriers = 8
	var wg sync.WaitGroup
	wins := make(chan string, couriers)
	for i := 0; i < couriers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			if _, err := svc.AcceptOrder(context.Background(), "courier-"+id, "o1"); err == nil {
				wins <- "courier-" + id
			} else if !errors.Is(err, models.ErrNotAvailable) {
				t.Errorf("loser got %v; want ErrNotAvailable", err)
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("winners = %d; want exactly 1", len(winners))
	}
	if got := *fr.orders["o1"].DeliveryPersonID; got != winners[0] {
		t.Errorf("bound courier = %s; want %s", got, winners[0])
	}
}

func TestAcceptOrderRejectsNonPoolOrders(t *testing.T) {
	fr := newFakeRepo()
	o := fr.seedCookedOrder("o1")
	o.Status = models.StatusPreparing
	svc := NewService(fr, realtime.NoopPublisher{}, logger.Noop())

	if _, err := svc.AcceptOrder(context.Background(), "courier-a", "o1"); !errors.Is(err, models.ErrNotAvailable) {
		t.Errorf("AcceptOrder on Preparing order = %v; want ErrNotAvailable", err)
	}
	if _, err := svc.AcceptOrder(context.Background(), "courier-a", "missing"); !errors.Is(err, models.ErrNotAvailable) {
		t.Errorf("AcceptOrder on missing order = %v; want ErrNotAvailable", err)
	}
}

func TestAcceptOrderReturnsPickupCode(t *testing.T) {
	fr := newFakeRepo()
	fr.seedCookedOrder("o1")
	pub := &recordingPublisher{}
	svc := NewService(fr, pub, logger.Noop())

	order, err := svc.AcceptOrder(context.Background(), "courier-a", "o1")
	if err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}
	if order.PickupCode == nil || *order.PickupCode != "111111" {
		t.Errorf("pickup code = %v; want the stored code", order.PickupCode)
	}
	if order.Status != models.StatusCooked {
		t.Errorf("status = %s; want Cooked (pickup has not happened)", order.Status)
	}
	if !pub.has(realtime.RoomDeliveries, realtime.EventDeliveryAssigned) {
		t.Error("missing delivery:assigned broadcast")
	}
	if !pub.has(realtime.RoomDeliveries, realtime.EventAvailableCount) {
		t.Error("missing refreshed available-orders-count")
	}
}

func TestCancelReturnsOrderToPool(t *testing.T) {
	fr := newFakeRepo()
	fr.seedCookedOrder("o1")
	pub := &recordingPublisher{}
	svc := NewService(fr, pub, logger.Noop())

	if _, err := svc.AcceptOrder(context.Background(), "courier-a", "o1"); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}
	if err := svc.CancelAssignment(context.Background(), "courier-a", "o1"); err != nil {
		t.Fatalf("CancelAssignment error: %v", err)
	}

	if fr.orders["o1"].DeliveryPersonID != nil {
		t.Error("cancel must clear the courier binding")
	}
	if fr.assignments["o1"].Status != models.AssignmentCancelled {
		t.Errorf("assignment status = %s; want Cancelled", fr.assignments["o1"].Status)
	}
	if !pub.has(realtime.RoomDeliveries, realtime.EventOrderCooked) {
		t.Error("cancelled order must be re-announced to the pool")
	}

	// The order is claimable again.
	if _, err := svc.AcceptOrder(context.Background(), "courier-b", "o1"); err != nil {
		t.Fatalf("re-accept after cancel error: %v", err)
	}
}

func TestCancelRequiresOwnActiveAssignment(t *testing.T) {
	fr := newFakeRepo()
	fr.seedCookedOrder("o1")
	svc := NewService(fr, realtime.NoopPublisher{}, logger.Noop())

	if _, err := svc.AcceptOrder(context.Background(), "courier-a", "o1"); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}
	if err := svc.CancelAssignment(context.Background(), "courier-b", "o1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("CancelAssignment by stranger = %v; want ErrNotFound", err)
	}

	// After pickup the courier is committed.
	if _, err := svc.PickUp(context.Background(), "courier-a", models.PickupRequest{OrderID: "o1", PickupCode: "111111"}); err != nil {
		t.Fatalf("PickUp error: %v", err)
	}
	if err := svc.CancelAssignment(context.Background(), "courier-a", "o1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("CancelAssignment after pickup = %v; want ErrNotFound", err)
	}
}

func TestPickUp(t *testing.T) {
	fr := newFakeRepo()
	fr.seedCookedOrder("o1")
	pub := &recordingPublisher{}
	svc := NewService(fr, pub, logger.Noop())

	if _, err := svc.AcceptOrder(context.Background(), "courier-a", "o1"); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}

	if _, err := svc.PickUp(context.Background(), "courier-b", models.PickupRequest{OrderID: "o1", PickupCode: "111111"}); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("PickUp by other courier = %v; want ErrPermissionDenied", err)
	}
	if _, err := svc.PickUp(context.Background(), "courier-a", models.PickupRequest{OrderID: "o1", PickupCode: "000000"}); !errors.Is(err, models.ErrInvalidCode) {
		t.Errorf("PickUp with wrong code = %v; want ErrInvalidCode", err)
	}

	order, err := svc.PickUp(context.Background(), "courier-a", models.PickupRequest{OrderID: "o1", PickupCode: "111111"})
	if err != nil {
		t.Fatalf("PickUp error: %v", err)
	}
	if order.Status != models.StatusDelivering {
		t.Errorf("status = %s; want Delivering", order.Status)
	}
	if order.PickupCode != nil {
		t.Error("pickup code must be consumed")
	}
	if !pub.has(realtime.RoomDeliveries, realtime.EventOrderStatusUpdated) {
		t.Error("missing order:status-updated broadcast to deliveries room")
	}
	if !pub.has(realtime.RoomAdmin, realtime.EventOrderStatusUpdated) {
		t.Error("missing order:status-updated broadcast to admin room")
	}

	if _, err := svc.PickUp(context.Background(), "courier-a", models.PickupRequest{OrderID: "o1", PickupCode: "111111"}); !errors.Is(err, models.ErrAlreadyPickedUp) {
		t.Errorf("second PickUp = %v; want ErrAlreadyPickedUp", err)
	}
}

func TestListAvailableFiltersVehicle(t *testing.T) {
	fr := newFakeRepo()
	fr.seedCookedOrder("o1")
	car := models.VehicleCar
	o2 := fr.seedCookedOrder("o2")
	o2.DeliveryVehicle = &car
	svc := NewService(fr, realtime.NoopPublisher{}, logger.Noop())

	all, err := svc.ListAvailable(context.Background(), "")
	if err != nil {
		t.Fatalf("ListAvailable error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("pool size = %d; want 2", len(all))
	}

	cars, err := svc.ListAvailable(context.Background(), models.VehicleCar)
	if err != nil {
		t.Fatalf("ListAvailable(Car) error: %v", err)
	}
	if len(cars) != 1 || cars[0].OrderID != "o2" {
		t.Errorf("Car pool = %+v; want only o2", cars)
	}

	if _, err := svc.ListAvailable(context.Background(), "Truck"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("ListAvailable(Truck) = %v; want ErrInvalidInput", err)
	}
}

func TestRateDelivery(t *testing.T) {
	fr := newFakeRepo()
	fr.seedCookedOrder("o1")
	svc := NewService(fr, realtime.NoopPublisher{}, logger.Noop())

	if _, err := svc.AcceptOrder(context.Background(), "courier-a", "o1"); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}

	req := models.RateDeliveryRequest{Rating: 5, Feedback: "fast"}
	if _, err := svc.RateDelivery(context.Background(), "user-1", "o1", req); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("RateDelivery before completion = %v; want ErrInvalidTransition", err)
	}

	fr.assignments["o1"].Status = models.AssignmentCompleted

	if _, err := svc.RateDelivery(context.Background(), "user-9", "o1", req); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("RateDelivery by non-customer = %v; want ErrPermissionDenied", err)
	}

	d, err := svc.RateDelivery(context.Background(), "user-1", "o1", req)
	if err != nil {
		t.Fatalf("RateDelivery error: %v", err)
	}
	if d.Rating == nil || *d.Rating != 5 {
		t.Errorf("rating = %v; want 5", d.Rating)
	}
	if d.Feedback == nil || *d.Feedback != "fast" {
		t.Errorf("feedback = %v; want %q", d.Feedback, "fast")
	}
}
