package generator

import "github.com/example/ecommerce/loadgen/internal/session"

const (
	flowOrderDesc = "Complete flow test order"
	flowOrderFee  = 299.99
	flowCartID    = 1
)

// FlowOrder builds the order placed by the end-to-end purchase flow. The
// cart belongs to the virtual user's own profile.
func (g *Generator) FlowOrder(p Profile) Order {
	return Order{
		OrderID:   g.src.Number(10000, 99999),
		OrderDate: g.Timestamp(),
		OrderDesc: flowOrderDesc,
		OrderFee:  flowOrderFee,
		Cart: &Cart{
			CartID: flowCartID,
			UserID: p.UserID,
		},
	}
}

// FlowPayment builds a completed payment for the flow's order.
func (g *Generator) FlowPayment(order Order) Payment {
	return Payment{
		PaymentID:     g.src.Number(10000, 99999),
		IsPayed:       true,
		PaymentStatus: PaymentCompleted,
		Order:         order,
	}
}

// FlowShipping ships a single unit of a pooled product for the flow's order.
func (g *Generator) FlowShipping(s *session.State, order Order) Shipping {
	product := g.Product(s)
	return Shipping{
		ProductID:       product.ProductID,
		OrderID:         order.OrderID,
		OrderedQuantity: 1,
		Product:         product,
		Order:           order,
	}
}
