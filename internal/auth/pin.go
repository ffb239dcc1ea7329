package auth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/laundrypos/api/internal/enum"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnknownTerminal = errors.New("unknown terminal")
	ErrInvalidPIN      = errors.New("invalid pin")
)

// HashPIN returns the bcrypt hash stored in POS_TERMINAL_PINS.
func HashPIN(pin string) (string, error) {
	if len(pin) < 4 {
		return "", fmt.Errorf("pin must be at least 4 characters")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing pin: %w", err)
	}
	return string(b), nil
}

// PINBook holds the provisioned terminals. Each terminal has its own cashier
// PIN; the optional manager PIN unlocks any known terminal with the manager
// role.
type PINBook struct {
	terminals   map[uuid.UUID]string
	managerHash string
}

func NewPINBook(terminals map[uuid.UUID]string, managerHash string) *PINBook {
	if terminals == nil {
		terminals = map[uuid.UUID]string{}
	}
	return &PINBook{terminals: terminals, managerHash: managerHash}
}

// Verify checks pin against the terminal and returns the role it grants.
func (b *PINBook) Verify(terminalID uuid.UUID, pin string) (string, error) {
	hash, ok := b.terminals[terminalID]
	if !ok {
		return "", ErrUnknownTerminal
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil {
		return enum.RoleCashier, nil
	}
	if b.managerHash != "" && bcrypt.CompareHashAndPassword([]byte(b.managerHash), []byte(pin)) == nil {
		return enum.RoleManager, nil
	}
	return "", ErrInvalidPIN
}

// Known reports whether terminalID is provisioned.
func (b *PINBook) Known(terminalID uuid.UUID) bool {
	_, ok := b.terminals[terminalID]
	return ok
}
