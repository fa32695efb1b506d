package domain

import "bytes"

// Account is the unit of persisted state. Owner is the program allowed to
// change Data and debit Lamports. Version is assigned by the store and is
// zero for an account that does not exist yet.
type Account struct {
	Address  Address `json:"address"`
	Owner    Address `json:"owner"`
	Lamports uint64  `json:"lamports"`
	Data     []byte  `json:"data"`
	Version  uint64  `json:"version"`
}

// Exists reports whether the account has been persisted or funded.
func (a Account) Exists() bool {
	return a.Version > 0 || a.Lamports > 0 || len(a.Data) > 0
}

// Clone returns a deep copy so callers can mutate Data freely.
func (a Account) Clone() Account {
	c := a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return c
}

// Equal compares everything except Version.
func (a Account) Equal(b Account) bool {
	return a.Address == b.Address &&
		a.Owner == b.Owner &&
		a.Lamports == b.Lamports &&
		bytes.Equal(a.Data, b.Data)
}
