package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ContractLand/terra-bridge-contracts/internal/handlers"
)

// Issues an admin token without the TOTP login, for operators with shell
// access to the node. The secret is read from ADMIN_JWT_SECRET.
func main() {
	jwtSecret := os.Getenv("ADMIN_JWT_SECRET")
	if jwtSecret == "" {
		fmt.Println("❌ ADMIN_JWT_SECRET is not set")
		os.Exit(1)
	}
	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}

	ttl := 24 * time.Hour
	now := time.Now()
	tokenString, err := handlers.GenerateAdminJWTToken([]byte(jwtSecret), username, ttl, now)
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("Admin JWT Token Generated")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("Claims:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Role: admin\n")
	fmt.Printf("  Expires: %s\n", now.Add(ttl).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println("Usage:")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Printf("curl -H 'Authorization: Bearer %s' -X PUT http://localhost:8545/api/v1/admin/home/threshold -d '{\"requiredSignatures\":2}'\n", tokenString)
	fmt.Println()
}
