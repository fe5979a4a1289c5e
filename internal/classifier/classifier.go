// Package classifier maps HTTP outcomes of each action to a verdict.
//
// Several non-2xx codes are expected under randomized concurrent load
// (duplicates, declined payments, unknown product ids) and are reported as
// successes so they do not drown real failures in the load report.
package classifier

import (
	"fmt"
	"net/http"
)

// Verdict is the classification of one HTTP response.
type Verdict int

const (
	// Success means the call did what it was asked to.
	Success Verdict = iota
	// ExpectedNonSuccess means the service refused in a way the scenario
	// anticipates. It counts as a success in metrics but never feeds a pool.
	ExpectedNonSuccess
	// Failure means a transport error or an unexpected status code.
	Failure
)

// String returns the verdict name used in logs and metric labels.
func (v Verdict) String() string {
	switch v {
	case Success:
		return "success"
	case ExpectedNonSuccess:
		return "expected"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// CountsAsSuccess reports whether the verdict is a success for metrics.
func (v Verdict) CountsAsSuccess() bool {
	return v == Success || v == ExpectedNonSuccess
}

// Action identifies a kind of HTTP interaction.
type Action string

// Classified actions.
const (
	GetProducts     Action = "get_products"
	CreateOrder     Action = "create_order"
	RequestShipping Action = "request_shipping"
	AddFavourite    Action = "add_favourite"
	MakePayment     Action = "make_payment"
	RegisterUser    Action = "register_user"
	HealthCheck     Action = "health_check"
)

// Actions lists every classified action.
func Actions() []Action {
	return []Action{GetProducts, CreateOrder, RequestShipping, AddFavourite, MakePayment, RegisterUser, HealthCheck}
}

type rule struct {
	success  []int
	expected []int
	// failure describes an unexpected status in the report.
	failure string
	// special overrides failure for specific codes.
	special map[int]string
}

var created = []int{http.StatusOK, http.StatusCreated}

var rules = map[Action]rule{
	GetProducts: {
		success:  []int{http.StatusOK},
		expected: []int{http.StatusNotFound},
		failure:  "unexpected status code",
	},
	CreateOrder: {
		success: created,
		failure: "order creation failed",
	},
	RequestShipping: {
		success: created,
		failure: "shipping creation failed",
		special: map[int]string{
			http.StatusBadRequest: "bad request, possibly invalid order/product relationship",
		},
	},
	AddFavourite: {
		success:  created,
		expected: []int{http.StatusConflict},
		failure:  "favourite creation failed",
	},
	MakePayment: {
		success:  created,
		expected: []int{http.StatusPaymentRequired},
		failure:  "payment processing failed",
	},
	RegisterUser: {
		success:  created,
		expected: []int{http.StatusConflict},
		failure:  "user creation failed",
	},
	HealthCheck: {
		success:  []int{http.StatusOK},
		expected: []int{http.StatusNotFound},
		failure:  "health check failed",
	},
}

func contains(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// Classify is a pure function of action and status code. Unknown actions
// and unlisted codes are failures.
func Classify(action Action, status int) Verdict {
	r, ok := rules[action]
	if !ok {
		return Failure
	}
	switch {
	case contains(r.success, status):
		return Success
	case contains(r.expected, status):
		return ExpectedNonSuccess
	default:
		return Failure
	}
}

// Outcome is the evaluated result of one HTTP call.
type Outcome struct {
	Action     Action
	StatusCode int
	Verdict    Verdict
	// Err is nil unless Verdict is Failure; it is a *TransportError or an
	// *UnexpectedStatusError.
	Err error
}

// Evaluate classifies a call. A non-nil transportErr always yields a
// Failure regardless of status.
func Evaluate(action Action, status int, transportErr error) Outcome {
	o := Outcome{Action: action, StatusCode: status}
	if transportErr != nil {
		o.Verdict = Failure
		o.Err = &TransportError{Action: action, Err: transportErr}
		return o
	}

	o.Verdict = Classify(action, status)
	if o.Verdict == Failure {
		o.Err = &UnexpectedStatusError{
			Action:     action,
			StatusCode: status,
			Message:    failureMessage(action, status),
		}
	}
	return o
}

func failureMessage(action Action, status int) string {
	r, ok := rules[action]
	if !ok {
		return fmt.Sprintf("unknown action %q", action)
	}
	if msg, ok := r.special[status]; ok {
		return msg
	}
	return r.failure
}
