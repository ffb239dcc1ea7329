// Command hashpin provisions terminal PINs. It prints a POS_TERMINAL_PINS
// entry for a terminal, or a POS_MANAGER_PIN_HASH value with -manager.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/laundrypos/api/internal/auth"
)

func main() {
	// CLI flags
	pin := flag.String("pin", "", "PIN to hash (at least 4 characters)")
	terminal := flag.String("terminal", "", "Terminal ID; a new one is generated when empty")
	manager := flag.Bool("manager", false, "Hash a manager PIN instead of a terminal PIN")
	flag.Parse()

	// Fall back to environment variables
	if *pin == "" {
		*pin = os.Getenv("HASHPIN_PIN")
	}
	if *pin == "" {
		log.Fatal("a PIN is required: -pin 1234")
	}

	hash, err := auth.HashPIN(*pin)
	if err != nil {
		log.Fatalf("Failed to hash PIN: %v", err)
	}

	if *manager {
		fmt.Println(hash)
		return
	}

	tid := uuid.New()
	if *terminal != "" {
		tid, err = uuid.Parse(*terminal)
		if err != nil {
			log.Fatalf("Invalid terminal ID: %v", err)
		}
	}
	fmt.Printf("%s=%s\n", tid, hash)
}
