package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"privatesend-backend/internal/config"
	"privatesend-backend/internal/handlers"
)

// Issues an admin token (or a TOTP secret) from the server's own configuration,
// for operators who cannot use the login endpoint.
func main() {
	configPath := flag.String("config", "", "config file (default config.yaml)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	newTOTP := flag.Bool("totp", false, "generate a new TOTP secret instead of a token")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	admin := config.AppConfig.Admin

	if *newTOTP {
		key, err := handlers.GenerateTOTPKey(admin.Username)
		if err != nil {
			fmt.Printf("Error generating TOTP secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("============================================================")
		fmt.Println("TOTP Secret Generated")
		fmt.Println("============================================================")
		fmt.Printf("Secret: %s\n", key.Secret())
		fmt.Printf("URL:    %s\n", key.URL())
		fmt.Println()
		fmt.Printf("export ADMIN_TOTP_SECRET='%s'\n", key.Secret())
		return
	}

	if admin.JWTSecret == "" {
		fmt.Println("ADMIN_JWT_SECRET is not set; the server would not accept this token")
		os.Exit(1)
	}

	tokenString, err := handlers.GenerateAdminJWTToken(admin.Username, []byte(admin.JWTSecret), *ttl)
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
	fmt.Printf("  Username: %s\n", admin.Username)
	fmt.Printf("  Expires:  %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:%d/api/admin/private-sends?outcome=deposit_only\n",
		tokenString, config.AppConfig.Server.Port)
}
