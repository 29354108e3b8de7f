package gateway

import (
	"context"
	"sync"
)

// stubGateway returns queued errors before succeeding and counts calls.
type stubGateway struct {
	mu     sync.Mutex
	calls  map[string]int
	errs   []error
	order  *Order
	orders []Order
}

func (s *stubGateway) next(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[op]++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *stubGateway) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *stubGateway) ListOrders(_ context.Context, _ OrderQuery) ([]Order, error) {
	if err := s.next("list"); err != nil {
		return nil, err
	}
	return s.orders, nil
}

func (s *stubGateway) GetOrder(_ context.Context, id string) (*Order, error) {
	if err := s.next("get"); err != nil {
		return nil, err
	}
	if s.order == nil || s.order.ID != id {
		return nil, ErrOrderNotFound
	}
	o := *s.order
	return &o, nil
}

func (s *stubGateway) GetMerchant(_ context.Context) (*MerchantProfile, error) {
	if err := s.next("merchant"); err != nil {
		return nil, err
	}
	return &MerchantProfile{ID: "m1"}, nil
}

func (s *stubGateway) RefundOrderLine(_ context.Context, in RefundInput) (*Order, error) {
	if err := s.next("refund"); err != nil {
		return nil, err
	}
	return &Order{ID: in.OrderID}, nil
}
