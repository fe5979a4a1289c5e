// Package session holds the per-virtual-user state that evolves from
// successful responses: pools of known product ids, created orders and
// known users.
package session

import (
	"fmt"

	"github.com/example/ecommerce/loadgen/internal/pool"
)

// Default pool capacities.
const (
	DefaultProductCapacity = 50
	DefaultOrderCapacity   = 10
	DefaultUserCapacity    = 20
)

// Seed sizes for the baseline data every session starts with.
const (
	seedProductCount = 20
	seedUserCount    = 10
)

// OrderRecord is an order accepted by the order service.
type OrderRecord struct {
	OrderID   int     `json:"orderId"`
	OrderDate string  `json:"orderDate"`
	OrderDesc string  `json:"orderDesc"`
	OrderFee  float64 `json:"orderFee"`
}

// UserRecord is a user known to exist in the user service.
type UserRecord struct {
	UserID    int    `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Capacities sets the bound of each pool.
type Capacities struct {
	Products int `yaml:"products" json:"products"`
	Orders   int `yaml:"orders" json:"orders"`
	Users    int `yaml:"users" json:"users"`
}

// DefaultCapacities returns the standard pool bounds.
func DefaultCapacities() Capacities {
	return Capacities{
		Products: DefaultProductCapacity,
		Orders:   DefaultOrderCapacity,
		Users:    DefaultUserCapacity,
	}
}

// withDefaults fills non-positive capacities.
func (c Capacities) withDefaults() Capacities {
	d := DefaultCapacities()
	if c.Products <= 0 {
		c.Products = d.Products
	}
	if c.Orders <= 0 {
		c.Orders = d.Orders
	}
	if c.Users <= 0 {
		c.Users = d.Users
	}
	return c
}

// State is owned by exactly one virtual user. It is created when the user
// starts and discarded when it stops; nothing in it is shared.
type State struct {
	Products *pool.Bounded[int]
	Orders   *pool.Bounded[OrderRecord]
	Users    *pool.Bounded[UserRecord]
}

// New creates a session seeded with product ids 1..20 and ten baseline
// users. The order pool starts empty.
func New(caps Capacities) *State {
	caps = caps.withDefaults()
	s := &State{
		Products: pool.NewBounded[int](caps.Products),
		Orders:   pool.NewBounded[OrderRecord](caps.Orders),
		Users:    pool.NewBounded[UserRecord](caps.Users),
	}

	for id := 1; id <= seedProductCount; id++ {
		s.Products.Push(id)
	}
	for i := 1; i <= seedUserCount; i++ {
		s.Users.Push(UserRecord{
			UserID:    i,
			FirstName: fmt.Sprintf("User%d", i),
			LastName:  fmt.Sprintf("Test%d", i),
		})
	}
	return s
}

// RecordOrder stores an order accepted by the order service.
func (s *State) RecordOrder(o OrderRecord) {
	s.Orders.Push(o)
}

// RecordUser stores a user accepted by the user service.
func (s *State) RecordUser(u UserRecord) {
	s.Users.Push(u)
}

// MergeProductIDs adds up to limit ids observed in a product listing.
// Non-positive ids and ids already pooled are skipped. It returns the
// number of ids added.
func (s *State) MergeProductIDs(ids []int, limit int) int {
	added := 0
	for _, id := range ids {
		if limit > 0 && added >= limit {
			break
		}
		if id <= 0 || s.hasProduct(id) {
			continue
		}
		s.Products.Push(id)
		added++
	}
	return added
}

func (s *State) hasProduct(id int) bool {
	return s.Products.Contains(func(v int) bool { return v == id })
}

// Stats summarises pool occupancy.
type Stats struct {
	Products int `json:"products"`
	Orders   int `json:"orders"`
	Users    int `json:"users"`
}

// Stats returns the current pool sizes.
func (s *State) Stats() Stats {
	return Stats{
		Products: s.Products.Len(),
		Orders:   s.Orders.Len(),
		Users:    s.Users.Len(),
	}
}
