package payment

// PaymentStatus is the lifecycle state of a payment intent
type PaymentStatus string

const (
	StatusCreated               PaymentStatus = "created"
	StatusRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	StatusRequiresConfirmation  PaymentStatus = "requires_confirmation"
	StatusRequiresAction        PaymentStatus = "requires_action"
	StatusProcessing            PaymentStatus = "processing"
	StatusRequiresCapture       PaymentStatus = "requires_capture"
	StatusSucceeded             PaymentStatus = "succeeded"
	StatusCanceled              PaymentStatus = "canceled"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []PaymentStatus{
	StatusCreated,
	StatusRequiresPaymentMethod,
	StatusRequiresConfirmation,
	StatusRequiresAction,
	StatusProcessing,
	StatusRequiresCapture,
	StatusSucceeded,
	StatusCanceled,
}

// IsValid checks if the status is a known PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case StatusCreated, StatusRequiresPaymentMethod, StatusRequiresConfirmation, StatusRequiresAction,
		StatusProcessing, StatusRequiresCapture, StatusSucceeded, StatusCanceled:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusCanceled
}

// CanTransitionTo checks the direct edges of the transition table
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	switch s {
	case StatusCreated:
		return target == StatusRequiresPaymentMethod
	case StatusRequiresPaymentMethod:
		return target == StatusRequiresConfirmation
	case StatusRequiresConfirmation:
		return target == StatusRequiresAction
	case StatusRequiresAction:
		return target == StatusProcessing
	case StatusProcessing:
		return target == StatusSucceeded || target == StatusCanceled || target == StatusRequiresCapture
	case StatusRequiresCapture:
		return target == StatusSucceeded || target == StatusCanceled
	case StatusSucceeded, StatusCanceled:
		return false // Terminal states
	}
	return false
}

// CanReach reports whether target is reachable through one or more forward transitions.
// Providers may skip intermediate states.
func (s PaymentStatus) CanReach(target PaymentStatus) bool {
	return reachable[s][target]
}

var reachable = buildReachability()

func buildReachability() map[PaymentStatus]map[PaymentStatus]bool {
	out := make(map[PaymentStatus]map[PaymentStatus]bool, len(AllStatuses))
	for _, from := range AllStatuses {
		seen := make(map[PaymentStatus]bool)
		stack := []PaymentStatus{from}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, next := range AllStatuses {
				if cur.CanTransitionTo(next) && !seen[next] {
					seen[next] = true
					stack = append(stack, next)
				}
			}
		}
		out[from] = seen
	}
	return out
}
