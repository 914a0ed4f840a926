// Prints a random value in the verification token format. Handy for
// exercising scanners and seeding dev fixtures without a running service.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/avillegas/payticket/internal/models"
)

func main() {
	b := make([]byte, models.TokenValueBytesLen)

	_, err := rand.Read(b)
	if err != nil {
		fmt.Printf("error while generating token value: %v", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(b))
}
