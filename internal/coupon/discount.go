package coupon

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

func ParseType(value string) (Type, bool) {
	switch Type(value) {
	case TypePercentage, TypeFixed:
		return Type(value), true
	default:
		return "", false
	}
}

// LineDiscount computes the discount one coupon grants a single line.
// A fixed discount never exceeds the line's own subtotal, so a line
// total can never go negative. The result is unrounded: amounts are
// rounded once at persistence, not between lines.
func LineDiscount(t Type, couponAmount, unitPrice float64, quantity int32) float64 {
	lineSubtotal := unitPrice * float64(quantity)
	if lineSubtotal <= 0 || couponAmount <= 0 {
		return 0
	}
	switch t {
	case TypePercentage:
		return lineSubtotal * couponAmount / 100
	case TypeFixed:
		if couponAmount > lineSubtotal {
			return lineSubtotal
		}
		return couponAmount
	default:
		return 0
	}
}
