package localstore

import (
	"crypto/subtle"
	"errors"

	"timesheet/internal/ports"
)

const (
	gateKey   = "basicAuth"
	gateValue = "authenticated"
)

// ErrBadCredentials is returned by Gate.Login for a wrong user or password.
var ErrBadCredentials = errors.New("invalid username or password")

// Gate is the basic-auth gate in front of the sheet. A successful login is
// remembered in local storage until Logout.
type Gate struct {
	store    ports.LocalStorage
	username string
	password string
}

// NewGate returns a gate checking against username and password.
func NewGate(store ports.LocalStorage, username, password string) *Gate {
	return &Gate{store: store, username: username, password: password}
}

// Check compares credentials in constant time.
func (g *Gate) Check(username, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(username), []byte(g.username))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(g.password))
	return u&p == 1
}

// Login remembers the device as authenticated when the credentials match.
func (g *Gate) Login(username, password string) error {
	if !g.Check(username, password) {
		return ErrBadCredentials
	}
	return g.store.Set(gateKey, gateValue)
}

// Logout forgets the device.
func (g *Gate) Logout() error {
	return g.store.Remove(gateKey)
}

// IsAuthenticated reports whether this device passed the gate.
func (g *Gate) IsAuthenticated() (bool, error) {
	v, ok, err := g.store.Get(gateKey)
	if err != nil {
		return false, err
	}
	return ok && v == gateValue, nil
}
