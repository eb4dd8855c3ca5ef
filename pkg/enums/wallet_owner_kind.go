package enums

import "fmt"

// WalletOwnerKind identifies which entity a wallet belongs to.
type WalletOwnerKind string

const (
	WalletOwnerSeller    WalletOwnerKind = "seller"
	WalletOwnerOrganizer WalletOwnerKind = "organizer"
	WalletOwnerEvent     WalletOwnerKind = "event"
)

var validWalletOwnerKinds = []WalletOwnerKind{
	WalletOwnerSeller,
	WalletOwnerOrganizer,
	WalletOwnerEvent,
}

// String implements fmt.Stringer.
func (w WalletOwnerKind) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletOwnerKind.
func (w WalletOwnerKind) IsValid() bool {
	for _, candidate := range validWalletOwnerKinds {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletOwnerKind converts raw input into a WalletOwnerKind.
func ParseWalletOwnerKind(value string) (WalletOwnerKind, error) {
	for _, candidate := range validWalletOwnerKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet owner kind %q", value)
}
