package swap

import "strings"

// Category labels a failed submission for logs and metrics. Every category is
// retried the same way.
type Category string

const (
	CategoryInsufficientFunds     Category = "insufficient_funds"
	CategoryTransferFromFailed    Category = "transfer_from_failed"
	CategoryInsufficientOutput    Category = "insufficient_output"
	CategoryInsufficientLiquidity Category = "insufficient_liquidity"
	CategoryOther                 Category = "other"
)

func Categorize(err error) Category {
	if err == nil {
		return CategoryOther
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "insufficient funds", "insufficient_funds"):
		return CategoryInsufficientFunds
	case containsAny(msg, "transfer_from_failed", "transferfrom failed", "transfer amount exceeds allowance"):
		return CategoryTransferFromFailed
	case containsAny(msg, "insufficient_output_amount"):
		return CategoryInsufficientOutput
	case containsAny(msg, "insufficient_liquidity"):
		return CategoryInsufficientLiquidity
	default:
		return CategoryOther
	}
}

func (c Category) hint() string {
	switch c {
	case CategoryInsufficientFunds:
		return "wallet cannot cover amount plus gas"
	case CategoryTransferFromFailed:
		return "check token approval for the router"
	case CategoryInsufficientOutput:
		return "output below minimum"
	case CategoryInsufficientLiquidity:
		return "pair has no liquidity yet"
	default:
		return ""
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
