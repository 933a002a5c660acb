package domain

import "encoding/json"

// Balance holds the two balances shown for a connected account, in display
// units.
type Balance struct {
	PrimaryToken   float64 `json:"primaryToken"`
	SecondaryToken float64 `json:"secondaryToken"`
}

// UserData is what the wallet provider exposes about the connected account.
type UserData struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey,omitempty"`
	Network   string `json:"network"`
	Provider  string `json:"provider"`
}

// Session is an immutable snapshot of the wallet connection. A new value
// replaces the old one on every update.
type Session struct {
	Connected  bool      `json:"connected"`
	Address    string    `json:"address"`
	UserData   *UserData `json:"userData"`
	Balance    Balance   `json:"balance"`
	Generation uint64    `json:"generation"`
}

// MarshalJSON writes address and userData as null while disconnected.
func (s Session) MarshalJSON() ([]byte, error) {
	type plain Session
	out := struct {
		plain
		Address *string `json:"address"`
	}{plain: plain(s)}
	if s.Address != "" {
		out.Address = &s.Address
	}
	return json.Marshal(out)
}

// EmptySession is the disconnected state.
func EmptySession(generation uint64) Session {
	return Session{Generation: generation}
}
