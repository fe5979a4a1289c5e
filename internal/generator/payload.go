package generator

import "github.com/example/ecommerce/loadgen/internal/session"

// Product is the product entity as the product service serializes it.
type Product struct {
	ProductID    int     `json:"productId"`
	ProductTitle string  `json:"productTitle"`
	ImageURL     string  `json:"imageUrl"`
	SKU          string  `json:"sku"`
	PriceUnit    float64 `json:"priceUnit"`
	Quantity     int     `json:"quantity"`
}

// Cart links an order to a user.
type Cart struct {
	CartID int `json:"cartId"`
	UserID int `json:"userId"`
}

// Order is the order-creation body. Cart is only sent when creating an
// order; orders embedded in shipping and payment bodies omit it unless
// they come from the full flow.
type Order struct {
	OrderID   int     `json:"orderId"`
	OrderDate string  `json:"orderDate"`
	OrderDesc string  `json:"orderDesc"`
	OrderFee  float64 `json:"orderFee"`
	Cart      *Cart   `json:"cart,omitempty"`
}

// Record converts the order into the form kept in the session pool.
func (o Order) Record() session.OrderRecord {
	return session.OrderRecord{
		OrderID:   o.OrderID,
		OrderDate: o.OrderDate,
		OrderDesc: o.OrderDesc,
		OrderFee:  o.OrderFee,
	}
}

// OrderFromRecord rebuilds an embeddable order from a pooled record.
func OrderFromRecord(r session.OrderRecord) Order {
	return Order{
		OrderID:   r.OrderID,
		OrderDate: r.OrderDate,
		OrderDesc: r.OrderDesc,
		OrderFee:  r.OrderFee,
	}
}

// Shipping is the shipping request body. The shipping service expects the
// full product and order entities, not only their ids.
type Shipping struct {
	ProductID       int     `json:"productId"`
	OrderID         int     `json:"orderId"`
	OrderedQuantity int     `json:"orderedQuantity"`
	Product         Product `json:"product"`
	Order           Order   `json:"order"`
}

// FavouriteUser is the user entity embedded in a favourite.
type FavouriteUser struct {
	UserID    int    `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	ImageURL  string `json:"imageUrl"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Favourite is the add-favourite body.
type Favourite struct {
	UserID    int           `json:"userId"`
	ProductID int           `json:"productId"`
	LikeDate  string        `json:"likeDate"`
	User      FavouriteUser `json:"user"`
	Product   Product       `json:"product"`
}

// Credential is the credential embedded in a user registration.
type Credential struct {
	CredentialID            int    `json:"credentialId"`
	Username                string `json:"username"`
	Password                string `json:"password"`
	RoleBasedAuthority      string `json:"roleBasedAuthority"`
	IsEnabled               bool   `json:"isEnabled"`
	IsAccountNonExpired     bool   `json:"isAccountNonExpired"`
	IsAccountNonLocked      bool   `json:"isAccountNonLocked"`
	IsCredentialsNonExpired bool   `json:"isCredentialsNonExpired"`
}

// User is the user registration body.
type User struct {
	UserID     int        `json:"userId"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName"`
	ImageURL   string     `json:"imageUrl"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone"`
	Credential Credential `json:"credential"`
}

// Record converts the registration into the form kept in the session pool.
func (u User) Record() session.UserRecord {
	return session.UserRecord{
		UserID:    u.UserID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// Payment status values accepted by the payment service.
const (
	PaymentInProgress = "IN_PROGRESS"
	PaymentCompleted  = "COMPLETED"
	PaymentFailed     = "FAILED"
	PaymentPending    = "PENDING"
)

// Payment is the make-payment body.
type Payment struct {
	PaymentID     int    `json:"paymentId"`
	IsPayed       bool   `json:"isPayed"`
	PaymentStatus string `json:"paymentStatus"`
	Order         Order  `json:"order"`
}

// Profile identifies the simulated person behind one virtual user.
type Profile struct {
	UserID    int    `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}
