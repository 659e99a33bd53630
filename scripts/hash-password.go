package main

import (
	"fmt"
	"os"

	"github.com/shoesfit/partner-server-go/internal/util"
)

// Prints a password hash for seeding partners rows by hand.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/hash-password.go <password>\n")
		os.Exit(1)
	}

	password := os.Args[1]
	if n := len(password); n < 8 || n > 100 {
		fmt.Fprintf(os.Stderr, "Error: password must be 8 to 100 characters\n")
		os.Exit(1)
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
