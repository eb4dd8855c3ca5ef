package enums

import "fmt"

// PaymentPurpose marks what a payment collects money for. Payments with an
// unknown purpose pass through the completion processor as no-ops.
type PaymentPurpose string

const (
	PaymentPurposeGoods  PaymentPurpose = "goods"
	PaymentPurposeTicket PaymentPurpose = "ticket"
	PaymentPurposeOther  PaymentPurpose = "other"
)

var validPaymentPurposes = []PaymentPurpose{
	PaymentPurposeGoods,
	PaymentPurposeTicket,
	PaymentPurposeOther,
}

// String implements fmt.Stringer.
func (p PaymentPurpose) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentPurpose.
func (p PaymentPurpose) IsValid() bool {
	for _, candidate := range validPaymentPurposes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentPurpose converts raw input into a PaymentPurpose.
func ParsePaymentPurpose(value string) (PaymentPurpose, error) {
	for _, candidate := range validPaymentPurposes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment purpose %q", value)
}
