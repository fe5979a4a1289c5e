// Package generator builds randomized but schema-valid request bodies for
// the e-commerce services. Builders read the caller's session pools but
// never mutate them; pools change only after a successful response.
package generator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ecommerce/loadgen/internal/session"
)

// Source is the random source behind every generated value.
// *gofakeit.Faker satisfies it.
type Source interface {
	Number(min, max int) int
	Float64Range(min, max float64) float64
	Bool() bool
}

var (
	productTitles = []string{"Asus", "Samsung", "Apple", "Dell", "HP"}
	orderDescs    = []string{"Electronics purchase", "Bulk order", "Regular purchase", "Promotional order"}
	paymentStates = []string{PaymentInProgress, PaymentCompleted, PaymentFailed, PaymentPending}
	roles         = []string{"ROLE_USER", "ROLE_PREMIUM_USER"}
)

const (
	productImageURL   = "https://example.com/product.jpg"
	favouriteImageURL = "https://bootdey.com/img/Content/avatar/avatar7.png"
	avatarURLFormat   = "https://bootdey.com/img/Content/avatar/avatar%d.png"
	registerPassword  = "testpass123"

	fallbackProductID = 1
	fallbackUserID    = 1
)

// fallbackFavouriteUser is used when the user pool is empty.
var fallbackFavouriteUser = session.UserRecord{UserID: 1, FirstName: "selim", LastName: "horri"}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// Generator produces request bodies from a random source.
type Generator struct {
	src Source
	now func() time.Time
}

// New creates a Generator.
func New(src Source, opts ...Option) *Generator {
	g := &Generator{
		src: src,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Intn returns a uniform integer in [0, n). It panics if n <= 0.
func (g *Generator) Intn(n int) int {
	if n <= 0 {
		panic("generator: Intn called with non-positive n")
	}
	return g.src.Number(0, n-1)
}

// Between returns a uniform integer in [lo, hi].
func (g *Generator) Between(lo, hi int) int {
	return g.src.Number(lo, hi)
}

// Float64Range returns a uniform float in [lo, hi].
func (g *Generator) Float64Range(lo, hi float64) float64 {
	return g.src.Float64Range(lo, hi)
}

// Choice returns one of options uniformly.
func (g *Generator) Choice(options []string) string {
	return options[g.Intn(len(options))]
}

// Timestamp returns the current time in the services' date format.
func (g *Generator) Timestamp() string {
	return FormatTimestamp(g.now())
}

// FormatTimestamp renders t as DD-MM-YYYY__HH:MM:SS:ffffff.
func FormatTimestamp(t time.Time) string {
	return t.Format("02-01-2006__15:04:05") + fmt.Sprintf(":%06d", t.Nanosecond()/int(time.Microsecond))
}

// money draws a value in [lo, hi] rounded to two decimals.
func (g *Generator) money(lo, hi float64) float64 {
	return decimal.NewFromFloat(g.src.Float64Range(lo, hi)).Round(2).InexactFloat64()
}

func (g *Generator) phone() string {
	return fmt.Sprintf("+216%d", g.src.Number(10000000, 99999999))
}

// Product builds a product whose id is drawn from the product pool.
func (g *Generator) Product(s *session.State) Product {
	id, err := s.Products.Pick(g.Intn)
	if err != nil {
		id = fallbackProductID
	}
	return Product{
		ProductID:    id,
		ProductTitle: g.Choice(productTitles),
		ImageURL:     productImageURL,
		SKU:          fmt.Sprintf("SKU%d", g.src.Number(100000, 999999)),
		PriceUnit:    g.money(10, 2000),
		Quantity:     g.src.Number(1, 100),
	}
}

// Order builds an order-creation body. The cart user is drawn from the
// user pool, falling back to user 1.
func (g *Generator) Order(s *session.State) Order {
	userID := fallbackUserID
	if u, err := s.Users.Pick(g.Intn); err == nil {
		userID = u.UserID
	}
	return Order{
		OrderID:   g.src.Number(1000, 99999),
		OrderDate: g.Timestamp(),
		OrderDesc: g.Choice(orderDescs),
		OrderFee:  g.money(100, 5000),
		Cart: &Cart{
			CartID: g.src.Number(1, 1000),
			UserID: userID,
		},
	}
}

// ShippingOrder returns a pooled order, or a synthesized default order
// when none has been created yet.
func (g *Generator) ShippingOrder(s *session.State) Order {
	if r, err := s.Orders.Pick(g.Intn); err == nil {
		return OrderFromRecord(r)
	}
	return Order{
		OrderID:   g.src.Number(1, 100),
		OrderDate: g.Timestamp(),
		OrderDesc: "Default order for shipping",
		OrderFee:  1000,
	}
}

// Shipping composes a shipping request for product and order.
func (g *Generator) Shipping(product Product, order Order) Shipping {
	return Shipping{
		ProductID:       product.ProductID,
		OrderID:         order.OrderID,
		OrderedQuantity: g.src.Number(1, 5),
		Product:         product,
		Order:           order,
	}
}

// FavouriteUser returns a pooled user, or the fixed default user when the
// pool is empty.
func (g *Generator) FavouriteUser(s *session.State) session.UserRecord {
	if u, err := s.Users.Pick(g.Intn); err == nil {
		return u
	}
	return fallbackFavouriteUser
}

// Favourite composes an add-favourite body with embedded user and product.
func (g *Generator) Favourite(user session.UserRecord, product Product) Favourite {
	return Favourite{
		UserID:    user.UserID,
		ProductID: product.ProductID,
		LikeDate:  g.Timestamp(),
		User: FavouriteUser{
			UserID:    user.UserID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			ImageURL:  favouriteImageURL,
			Email:     fmt.Sprintf("user%d@test.com", user.UserID),
			Phone:     g.phone(),
		},
		Product: product,
	}
}

// PaymentOrder returns a pooled order, or a synthesized order with a fee
// in [100, 5000] when none has been created yet.
func (g *Generator) PaymentOrder(s *session.State) Order {
	if r, err := s.Orders.Pick(g.Intn); err == nil {
		return OrderFromRecord(r)
	}
	return Order{
		OrderID:   g.src.Number(1, 100),
		OrderDate: g.Timestamp(),
		OrderDesc: "Payment test order",
		OrderFee:  g.money(100, 5000),
	}
}

// Payment builds a payment for order with a random status.
func (g *Generator) Payment(order Order) Payment {
	return Payment{
		PaymentID:     g.src.Number(1000, 99999),
		IsPayed:       g.src.Bool(),
		PaymentStatus: g.Choice(paymentStates),
		Order:         order,
	}
}

// UserRegistration builds a new user with an embedded credential.
func (g *Generator) UserRegistration() User {
	id := g.src.Number(1000, 99999)
	return User{
		UserID:    id,
		FirstName: fmt.Sprintf("LoadTest%d", g.src.Number(1, 1000)),
		LastName:  fmt.Sprintf("User%d", g.src.Number(1, 1000)),
		ImageURL:  fmt.Sprintf(avatarURLFormat, g.src.Number(1, 8)),
		Email:     fmt.Sprintf("loadtest%d@testing.com", id),
		Phone:     g.phone(),
		Credential: Credential{
			CredentialID:            g.src.Number(1000, 99999),
			Username:                fmt.Sprintf("testuser%d", id),
			Password:                registerPassword,
			RoleBasedAuthority:      g.Choice(roles),
			IsEnabled:               true,
			IsAccountNonExpired:     true,
			IsAccountNonLocked:      true,
			IsCredentialsNonExpired: true,
		},
	}
}

// Profile generates the identity a virtual user acts as.
func (g *Generator) Profile() Profile {
	return Profile{
		UserID:    g.src.Number(1000, 99999),
		FirstName: fmt.Sprintf("TestUser%d", g.src.Number(1, 1000)),
		LastName:  fmt.Sprintf("LastName%d", g.src.Number(1, 1000)),
		Email:     fmt.Sprintf("test%d@loadtest.com", g.src.Number(1, 10000)),
		Phone:     g.phone(),
	}
}
