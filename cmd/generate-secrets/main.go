package main

import (
	"fmt"
	"log"

	"github.com/parkpass/ticketing-backend/internal/utils"
)

// Secrets this service signs with. PAYMENT_SECRET_KEY is issued by the
// gateway and is not generated here.
var secretNames = []string{"JWT_SECRET"}

func main() {
	fmt.Println("===========================================")
	fmt.Println("Secret generator for the ticketing backend")
	fmt.Println("===========================================")
	fmt.Println()

	secrets, err := utils.GenerateSecrets(secretNames...)
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Add these to your .env file:")
	fmt.Println()
	for _, name := range secretNames {
		fmt.Printf("%s=%s\n", name, secrets[name])
	}
	fmt.Println()
	fmt.Println("Keep these secrets out of version control.")
	fmt.Println("===========================================")
}
