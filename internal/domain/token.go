package domain

// TokenRole distinguishes the YES (A) and NO (B) outcome mints.
type TokenRole uint8

const (
	TokenRoleA TokenRole = iota
	TokenRoleB
)

// String returns "yes" or "no".
func (r TokenRole) String() string {
	if r == TokenRoleA {
		return "A"
	}
	return "B"
}

// Mint is a fungible supply and its descriptive metadata.
type Mint struct {
	Authority Address `json:"authority"`
	Supply    uint64  `json:"supply"`
	Decimals  uint8   `json:"decimals"`
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	URI       string  `json:"uri"`
}

// TokenAccount holds an owner's balance of one mint.
type TokenAccount struct {
	Mint   Address `json:"mint"`
	Owner  Address `json:"owner"`
	Amount uint64  `json:"amount"`
}
