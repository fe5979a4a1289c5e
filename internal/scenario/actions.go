package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/example/ecommerce/loadgen/internal/classifier"
)

// Service paths behind the gateway.
const (
	ProductsPath   = "/product-service/api/products"
	OrdersPath     = "/order-service/api/orders"
	ShippingsPath  = "/shipping-service/api/shippings"
	FavouritesPath = "/favourite-service/api/favourites"
	PaymentsPath   = "/payment-service/api/payments"
	UsersPath      = "/user-service/api/users"
)

// Services are the targets probed by the health check.
var Services = []string{
	"product-service",
	"order-service",
	"shipping-service",
	"favourite-service",
	"payment-service",
	"user-service",
}

// healthPaths are tried in order until one answers 200.
var healthPaths = []string{"/%s/actuator/health", "/%s/health", "/%s/api/health"}

// productMergeLimit is how many leading items of a listing are merged into the pool.
const productMergeLimit = 5

// ActionFunc executes one action for a user and returns the outcome of
// its last HTTP call.
type ActionFunc func(ctx context.Context, u *User) classifier.Outcome

// GetProducts reads the catalog in one of four ways and feeds product ids
// from a successful listing back into the product pool.
func GetProducts(ctx context.Context, u *User) classifier.Outcome {
	var path, name string
	switch u.Gen.Intn(4) {
	case 0:
		path, name = ProductsPath, ProductsPath
	case 1:
		id := u.Gen.Product(u.State).ProductID
		path, name = ProductsPath+"/"+strconv.Itoa(id), ProductsPath+"/[id]"
	case 2:
		path = ProductsPath + "?category=electronics"
		name = path
	default:
		path = fmt.Sprintf("%s?search=test%d", ProductsPath, u.Gen.Between(1, 5))
		name = ProductsPath + "?search=[term]"
	}

	c := u.get(ctx, classifier.GetProducts, path, name)
	if c.ok() {
		ids := extractProductIDs(c.Body)
		if len(ids) > productMergeLimit {
			ids = ids[:productMergeLimit]
		}
		u.State.MergeProductIDs(ids, productMergeLimit)
	}
	return c.Outcome
}

// extractProductIDs reads productId values from a listing that is either
// a JSON array or an object wrapping the array in "collection". Bodies of
// any other shape yield nothing.
func extractProductIDs(body []byte) []int {
	type item struct {
		ProductID int `json:"productId"`
	}
	var items []item
	if err := json.Unmarshal(body, &items); err != nil {
		var wrapped struct {
			Collection []item `json:"collection"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil
		}
		items = wrapped.Collection
	}

	ids := make([]int, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

// CreateOrder places a random order and pools it on success.
func CreateOrder(ctx context.Context, u *User) classifier.Outcome {
	order := u.Gen.Order(u.State)
	c := u.post(ctx, classifier.CreateOrder, OrdersPath, order)
	if c.ok() {
		u.State.RecordOrder(order.Record())
	}
	return c.Outcome
}

// RequestShipping ships a pooled product for a pooled order, or for a
// default order when none has been created yet.
func RequestShipping(ctx context.Context, u *User) classifier.Outcome {
	product := u.Gen.Product(u.State)
	order := u.Gen.ShippingOrder(u.State)
	return u.post(ctx, classifier.RequestShipping, ShippingsPath, u.Gen.Shipping(product, order)).Outcome
}

// AddFavourite marks a product as liked by a pooled user.
func AddFavourite(ctx context.Context, u *User) classifier.Outcome {
	user := u.Gen.FavouriteUser(u.State)
	product := u.Gen.Product(u.State)
	return u.post(ctx, classifier.AddFavourite, FavouritesPath, u.Gen.Favourite(user, product)).Outcome
}

// MakePayment pays for a pooled order, synthesizing one when the pool is empty.
func MakePayment(ctx context.Context, u *User) classifier.Outcome {
	order := u.Gen.PaymentOrder(u.State)
	return u.post(ctx, classifier.MakePayment, PaymentsPath, u.Gen.Payment(order)).Outcome
}

// RegisterUser creates a user and pools it on success. A conflict means
// the user already exists and leaves the pool unchanged.
func RegisterUser(ctx context.Context, u *User) classifier.Outcome {
	user := u.Gen.UserRegistration()
	c := u.post(ctx, classifier.RegisterUser, UsersPath, user)
	if c.ok() {
		u.State.RecordUser(user.Record())
	}
	return c.Outcome
}

// HealthCheck probes one random service. A 404 moves on to the next
// candidate path; a 200 or any other status ends the probe.
func HealthCheck(ctx context.Context, u *User) classifier.Outcome {
	service := u.Gen.Choice(Services)

	var last classifier.Outcome
	for _, format := range healthPaths {
		path := fmt.Sprintf(format, service)
		c := u.get(ctx, classifier.HealthCheck, path, path)
		last = c.Outcome
		if c.Verdict != classifier.ExpectedNonSuccess {
			break
		}
	}
	return last
}

// FullFlow walks a purchase end to end: list products, create an order,
// pay for it, ship it. Each step runs only if the previous one succeeded.
func FullFlow(ctx context.Context, u *User) classifier.Outcome {
	c := u.get(ctx, classifier.GetProducts, ProductsPath, ProductsPath)
	if !c.ok() {
		return c.Outcome
	}

	order := u.Gen.FlowOrder(u.Identity)
	if c = u.post(ctx, classifier.CreateOrder, OrdersPath, order); !c.ok() {
		return c.Outcome
	}
	u.State.RecordOrder(order.Record())

	if c = u.post(ctx, classifier.MakePayment, PaymentsPath, u.Gen.FlowPayment(order)); !c.ok() {
		return c.Outcome
	}

	return u.post(ctx, classifier.RequestShipping, ShippingsPath, u.Gen.FlowShipping(u.State, order)).Outcome
}

// CheckEverything reads products and then probes a service's health,
// regardless of how the read went.
func CheckEverything(ctx context.Context, u *User) classifier.Outcome {
	GetProducts(ctx, u)
	return HealthCheck(ctx, u)
}
