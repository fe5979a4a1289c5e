package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ecommerce/loadgen/internal/classifier"
	"github.com/example/ecommerce/loadgen/internal/generator"
)

func TestMakePayment_EmptyOrderPoolUsesFallbackOrder(t *testing.T) {
	doer := newStubDoer(map[string]stubResponse{"POST " + PaymentsPath: {status: 201}})
	u, _ := newTestUser(t, doer, 1)
	require.True(t, u.State.Orders.IsEmpty())

	out := MakePayment(context.Background(), u)
	assert.Equal(t, classifier.Success, out.Verdict)

	req := doer.last()
	assert.Equal(t, PaymentsPath, req.Path)
	payment, ok := req.Body.(generator.Payment)
	require.True(t, ok)
	assert.Equal(t, "Payment test order", payment.Order.OrderDesc)
	assert.GreaterOrEqual(t, payment.Order.OrderFee, 100.0)
	assert.LessOrEqual(t, payment.Order.OrderFee, 5000.0)
	assert.True(t, u.State.Orders.IsEmpty(), "payment never pools orders")
}

func TestMakePayment_UsesPooledOrder(t *testing.T) {
	doer := newStubDoer(map[string]stubResponse{
		"POST " + OrdersPath:   {status: 201},
		"POST " + PaymentsPath: {status: 402},
	})
	u, _ := newTestUser(t, doer, 2)

	require.Equal(t, classifier.Success, CreateOrder(context.Background(), u).Verdict)
	pooled, err := u.State.Orders.Newest()
	require.NoError(t, err)

	out := MakePayment(context.Background(), u)
	assert.Equal(t, classifier.ExpectedNonSuccess, out.Verdict)
	assert.NoError(t, out.Err)

	payment := doer.last().Body.(generator.Payment)
	assert.Equal(t, pooled.OrderID, payment.Order.OrderID)
	assert.Nil(t, payment.Order.Cart)
}

func TestCreateOrder_PoolsOnlyOnSuccess(t *testing.T) {
	tests := []struct {
		name        string
		resp        stubResponse
		wantVerdict classifier.Verdict
		wantPooled  int
	}{
		{name: "created", resp: stubResponse{status: 201}, wantVerdict: classifier.Success, wantPooled: 1},
		{name: "ok", resp: stubResponse{status: 200}, wantVerdict: classifier.Success, wantPooled: 1},
		{name: "server error", resp: stubResponse{status: 500}, wantVerdict: classifier.Failure},
		{name: "bad request", resp: stubResponse{status: 400}, wantVerdict: classifier.Failure},
		{name: "transport error", resp: stubResponse{err: errConnRefused}, wantVerdict: classifier.Failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := newStubDoer(map[string]stubResponse{"POST " + OrdersPath: tt.resp})
			u, collector := newTestUser(t, doer, 3)

			out := CreateOrder(context.Background(), u)
			assert.Equal(t, tt.wantVerdict, out.Verdict)
			assert.Equal(t, tt.wantPooled, u.State.Orders.Len())

			s := collector.Snapshot()
			assert.Equal(t, int64(1), s.TotalRequests)
			assert.Equal(t, tt.wantVerdict.CountsAsSuccess(), s.SuccessRequests == 1)
		})
	}
}

func TestCreateOrder_TransportErrorType(t *testing.T) {
	doer := newStubDoer(map[string]stubResponse{"POST " + OrdersPath: {err: errConnRefused}})
	u, collector := newTestUser(t, doer, 3)

	out := CreateOrder(context.Background(), u)
	var te *classifier.TransportError
	require.True(t, errors.As(out.Err, &te))
	assert.ErrorIs(t, out.Err, errConnRefused)
	assert.Empty(t, collector.Snapshot().StatusCodes)
}

func TestRegisterUser(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantVerdict classifier.Verdict
		wantUsers   int
	}{
		{name: "created", status: 201, wantVerdict: classifier.Success, wantUsers: 11},
		{name: "already exists", status: 409, wantVerdict: classifier.ExpectedNonSuccess, wantUsers: 10},
		{name: "server error", status: 500, wantVerdict: classifier.Failure, wantUsers: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := newStubDoer(map[string]stubResponse{"POST " + UsersPath: {status: tt.status}})
			u, collector := newTestUser(t, doer, 4)

			out := RegisterUser(context.Background(), u)
			assert.Equal(t, tt.wantVerdict, out.Verdict)
			assert.Equal(t, tt.wantUsers, u.State.Users.Len())

			s := collector.Snapshot()
			assert.Equal(t, tt.wantVerdict.CountsAsSuccess(), s.SuccessRequests == 1)
		})
	}
}

func TestRegisterUser_PoolsRegisteredIdentity(t *testing.T) {
	doer := newStubDoer(map[string]stubResponse{"POST " + UsersPath: {status: 201}})
	u, _ := newTestUser(t, doer, 5)

	RegisterUser(context.Background(), u)
	sent := doer.last().Body.(generator.User)
	newest, err := u.State.Users.Newest()
	require.NoError(t, err)
	assert.Equal(t, sent.Record(), newest)
}

func TestRequestShipping(t *testing.T) {
	t.Run("bad request is a failure", func(t *testing.T) {
		doer := newStubDoer(map[string]stubResponse{"POST " + ShippingsPath: {status: 400}})
		u, collector := newTestUser(t, doer, 6)

		out := RequestShipping(context.Background(), u)
		assert.Equal(t, classifier.Failure, out.Verdict)
		var use *classifier.UnexpectedStatusError
		require.True(t, errors.As(out.Err, &use))
		assert.Equal(t, 400, use.StatusCode)
		assert.Equal(t, int64(1), collector.FailedRequests())
	})

	t.Run("default order when pool is empty", func(t *testing.T) {
		doer := newStubDoer(map[string]stubResponse{"POST " + ShippingsPath: {status: 201}})
		u, _ := newTestUser(t, doer, 7)

		out := RequestShipping(context.Background(), u)
		assert.Equal(t, classifier.Success, out.Verdict)
		shipping := doer.last().Body.(generator.Shipping)
		assert.Equal(t, "Default order for shipping", shipping.Order.OrderDesc)
		assert.Equal(t, shipping.Order.OrderID, shipping.OrderID)
		assert.Equal(t, shipping.Product.ProductID, shipping.ProductID)
		assert.True(t, u.State.Products.Contains(func(id int) bool { return id == shipping.ProductID }))
	})
}

func TestAddFavourite(t *testing.T) {
	tests := []struct {
		status      int
		wantVerdict classifier.Verdict
	}{
		{201, classifier.Success},
		{409, classifier.ExpectedNonSuccess},
		{404, classifier.Failure},
	}
	for _, tt := range tests {
		doer := newStubDoer(map[string]stubResponse{"POST " + FavouritesPath: {status: tt.status}})
		u, _ := newTestUser(t, doer, 8)

		before := u.State.Stats()
		out := AddFavourite(context.Background(), u)
		assert.Equal(t, tt.wantVerdict, out.Verdict)
		assert.Equal(t, before, u.State.Stats(), "favourites never change the pools")

		fav := doer.last().Body.(generator.Favourite)
		assert.Equal(t, fav.User.UserID, fav.UserID)
		assert.LessOrEqual(t, fav.UserID, 10, "user comes from the seeded pool")
	}
}

func TestGetProducts_MergesListedIDs(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []int
	}{
		{
			name: "array",
			body: `[{"productId":101},{"productId":102},{"productId":103},{"productId":104},{"productId":105},{"productId":106}]`,
			want: []int{101, 102, 103, 104, 105},
		},
		{
			name: "collection",
			body: `{"collection":[{"productId":201},{"productId":3},{"productId":0}]}`,
			want: []int{201},
		},
		{
			name: "single product object",
			body: `{"productId":301,"productTitle":"Asus"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := newStubDoer(map[string]stubResponse{"GET " + ProductsPath: {status: 200, body: tt.body}})
			doer.fallback = stubResponse{status: 200, body: tt.body}
			u, _ := newTestUser(t, doer, 9)

			out := GetProducts(context.Background(), u)
			assert.Equal(t, classifier.Success, out.Verdict)

			values := u.State.Products.Values()
			require.Len(t, values, 20+len(tt.want))
			assert.Equal(t, append([]int{}, tt.want...), append([]int{}, values[20:]...))
		})
	}
}

func TestGetProducts_NotFoundLeavesPool(t *testing.T) {
	doer := newStubDoer(nil)
	doer.fallback = stubResponse{status: 404, body: `[{"productId":999}]`}
	u, collector := newTestUser(t, doer, 10)

	out := GetProducts(context.Background(), u)
	assert.Equal(t, classifier.ExpectedNonSuccess, out.Verdict)
	assert.Equal(t, 20, u.State.Products.Len())
	assert.Equal(t, int64(1), collector.Snapshot().ExpectedResults)
}

func TestGetProducts_RequestNamesAreGrouped(t *testing.T) {
	doer := newStubDoer(nil)
	u, collector := newTestUser(t, doer, 11)

	for range 200 {
		GetProducts(context.Background(), u)
	}

	allowed := map[string]bool{}
	for _, name := range []string{
		ProductsPath,
		ProductsPath + "/[id]",
		ProductsPath + "?category=electronics",
		ProductsPath + "?search=[term]",
	} {
		allowed["GET "+name] = true
	}
	stats := collector.Snapshot().EndpointStats
	assert.Len(t, stats, len(allowed), "all four variants are exercised")
	for name := range stats {
		assert.True(t, allowed[name], name)
	}

	for _, p := range doer.paths() {
		assert.True(t, strings.HasPrefix(p, "GET "+ProductsPath), p)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name        string
		statuses    []int
		wantCalls   int
		wantVerdict classifier.Verdict
	}{
		{name: "actuator answers", statuses: []int{200, 200, 200}, wantCalls: 1, wantVerdict: classifier.Success},
		{name: "second candidate answers", statuses: []int{404, 200, 200}, wantCalls: 2, wantVerdict: classifier.Success},
		{name: "no candidate exists", statuses: []int{404, 404, 404}, wantCalls: 3, wantVerdict: classifier.ExpectedNonSuccess},
		{name: "unhealthy stops the probe", statuses: []int{503, 200, 200}, wantCalls: 1, wantVerdict: classifier.Failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routes := map[string]stubResponse{}
			for _, svc := range Services {
				for i, format := range healthPaths {
					routes["GET "+strings.Replace(format, "%s", svc, 1)] = stubResponse{status: tt.statuses[i]}
				}
			}
			doer := newStubDoer(routes)
			u, collector := newTestUser(t, doer, 12)

			out := HealthCheck(context.Background(), u)
			assert.Equal(t, tt.wantVerdict, out.Verdict)

			paths := doer.paths()
			require.Len(t, paths, tt.wantCalls)
			assert.True(t, strings.HasSuffix(paths[0], "/actuator/health"))
			service := strings.Split(strings.TrimPrefix(paths[0], "GET /"), "/")[0]
			assert.Contains(t, Services, service)
			for _, p := range paths {
				assert.True(t, strings.HasPrefix(p, "GET /"+service+"/"), "one service per probe")
			}
			assert.Equal(t, int64(tt.wantCalls), collector.TotalRequests())
		})
	}
}

func TestFullFlow(t *testing.T) {
	tests := []struct {
		name        string
		routes      map[string]stubResponse
		wantPaths   []string
		wantVerdict classifier.Verdict
		wantOrders  int
	}{
		{
			name: "completes",
			routes: map[string]stubResponse{
				"GET " + ProductsPath:   {status: 200, body: `[]`},
				"POST " + OrdersPath:    {status: 201},
				"POST " + PaymentsPath:  {status: 201},
				"POST " + ShippingsPath: {status: 201},
			},
			wantPaths:   []string{"GET " + ProductsPath, "POST " + OrdersPath, "POST " + PaymentsPath, "POST " + ShippingsPath},
			wantVerdict: classifier.Success,
			wantOrders:  1,
		},
		{
			name:        "product read fails",
			routes:      map[string]stubResponse{"GET " + ProductsPath: {status: 503}},
			wantPaths:   []string{"GET " + ProductsPath},
			wantVerdict: classifier.Failure,
		},
		{
			name: "order creation fails",
			routes: map[string]stubResponse{
				"GET " + ProductsPath: {status: 200},
				"POST " + OrdersPath:  {status: 500},
			},
			wantPaths:   []string{"GET " + ProductsPath, "POST " + OrdersPath},
			wantVerdict: classifier.Failure,
		},
		{
			name: "payment declined",
			routes: map[string]stubResponse{
				"GET " + ProductsPath:  {status: 200},
				"POST " + OrdersPath:   {status: 201},
				"POST " + PaymentsPath: {status: 402},
			},
			wantPaths:   []string{"GET " + ProductsPath, "POST " + OrdersPath, "POST " + PaymentsPath},
			wantVerdict: classifier.ExpectedNonSuccess,
			wantOrders:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := newStubDoer(tt.routes)
			u, _ := newTestUser(t, doer, 13)

			out := FullFlow(context.Background(), u)
			assert.Equal(t, tt.wantVerdict, out.Verdict)
			assert.Equal(t, tt.wantPaths, doer.paths())
			assert.Equal(t, tt.wantOrders, u.State.Orders.Len())
		})
	}
}

func TestFullFlow_PayloadsShareTheOrder(t *testing.T) {
	doer := newStubDoer(nil)
	u, _ := newTestUser(t, doer, 14)

	FullFlow(context.Background(), u)
	require.Len(t, doer.requests, 4)

	order := doer.requests[1].Body.(generator.Order)
	payment := doer.requests[2].Body.(generator.Payment)
	shipping := doer.requests[3].Body.(generator.Shipping)

	require.NotNil(t, order.Cart)
	assert.Equal(t, u.Identity.UserID, order.Cart.UserID)
	assert.Equal(t, 299.99, order.OrderFee)
	assert.Equal(t, order, payment.Order)
	assert.True(t, payment.IsPayed)
	assert.Equal(t, generator.PaymentCompleted, payment.PaymentStatus)
	assert.Equal(t, order.OrderID, shipping.OrderID)
	assert.Equal(t, 1, shipping.OrderedQuantity)
}

func TestCheckEverything_RunsBothSteps(t *testing.T) {
	doer := newStubDoer(nil)
	doer.fallback = stubResponse{status: 500}
	u, _ := newTestUser(t, doer, 15)

	out := CheckEverything(context.Background(), u)
	assert.Equal(t, classifier.HealthCheck, out.Action)

	paths := doer.paths()
	require.Len(t, paths, 2)
	assert.True(t, strings.HasPrefix(paths[0], "GET "+ProductsPath))
	assert.True(t, strings.HasSuffix(paths[1], "/actuator/health"))
}

func TestExtractProductIDs(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []int
	}{
		{name: "array", body: `[{"productId":1},{"productId":2}]`, want: []int{1, 2}},
		{name: "collection", body: `{"collection":[{"productId":7}]}`, want: []int{7}},
		{name: "missing ids", body: `[{"title":"x"}]`, want: []int{0}},
		{name: "empty array", body: `[]`, want: []int{}},
		{name: "not json", body: `<html>`, want: nil},
		{name: "array of numbers", body: `[1,2,3]`, want: nil},
		{name: "empty body", body: ``, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractProductIDs([]byte(tt.body)))
		})
	}
}
