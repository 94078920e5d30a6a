package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// Prints a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: go run ./cmd/hash_password <password>")
		os.Exit(2)
	}
	if len(os.Args[1]) < 8 {
		fmt.Fprintln(os.Stderr, "password too short (min 8)")
		os.Exit(2)
	}
	hpw, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bcrypt failed: %v\n", err)
		os.Exit(1)
	}
	// single quotes keep .env loading from expanding the $ signs
	fmt.Printf("ADMIN_PASSWORD_HASH='%s'\n", hpw)
}
