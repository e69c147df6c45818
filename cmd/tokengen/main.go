// Package main provides a CLI tool for generating local development tokens
// for chatpulse: gateway webhook callback tokens and admin API tokens.
// Webhook tokens are signed with the secret you pass; never reuse the dev
// default outside a laptop.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatpulse/internal/messaging/gateway"
	"chatpulse/internal/session/models"
)

const (
	// Dev webhook secret, used when neither -secret nor GATEWAY_WEBHOOK_SECRET is set.
	devWebhookSecret = "dev-webhook-secret-change-me"

	defaultBaseURL    = "http://localhost:8080"
	defaultWebhookTTL = time.Hour
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in,omitempty"`
	Claims    map[string]any    `json:"claims,omitempty"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	webhookCmd := flag.NewFlagSet("webhook", flag.ExitOnError)
	adminCmd := flag.NewFlagSet("admin", flag.ExitOnError)

	webhookTenant := webhookCmd.String("tenant-id", "", "Tenant ID the token is bound to (required)")
	webhookConn := webhookCmd.String("connection-id", "", "Gateway connection ID; must match the tenant's open connection. Generated if empty.")
	webhookSecret := webhookCmd.String("secret", "", "Signing secret. Defaults to GATEWAY_WEBHOOK_SECRET, then the dev secret.")
	webhookTTL := webhookCmd.Duration("ttl", defaultWebhookTTL, "Token time-to-live")
	webhookBase := webhookCmd.String("base-url", defaultBaseURL, "chatpulse base URL used in the usage example")
	webhookJSON := webhookCmd.Bool("json", false, "Output as JSON")

	adminJSON := adminCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "webhook":
		_ = webhookCmd.Parse(os.Args[2:])
		generateWebhookToken(*webhookTenant, *webhookConn, resolveSecret(*webhookSecret), *webhookTTL, *webhookBase, *webhookJSON)
	case "admin":
		_ = adminCmd.Parse(os.Args[2:])
		generateAdminToken(*adminJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate local development tokens for chatpulse

Usage:
  tokengen <command> [flags]

Commands:
  webhook   Sign a gateway webhook callback token for one tenant
  admin     Generate a random value for ADMIN_API_TOKEN

Examples:
  # Webhook token for tenant "acme" with the dev secret
  tokengen webhook -tenant-id acme

  # Match a running server's secret and shorten the lifetime
  tokengen webhook -tenant-id acme -secret "$GATEWAY_WEBHOOK_SECRET" -ttl 5m

  # Fresh admin token
  tokengen admin -json

Use "tokengen <command> -h" for more information about a command.`)
}

func resolveSecret(flagValue string) string {
	if s := strings.TrimSpace(flagValue); s != "" {
		return s
	}
	if s := strings.TrimSpace(os.Getenv("GATEWAY_WEBHOOK_SECRET")); s != "" {
		return s
	}
	return devWebhookSecret
}

func generateWebhookToken(tenant, connectionID, secret string, ttl time.Duration, baseURL string, jsonOutput bool) {
	tenantID, err := models.ParseTenantID(tenant)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid tenant-id: %v\n", err)
		os.Exit(1)
	}
	if connectionID == "" {
		connectionID = "conn-" + uuid.NewString()
	}
	if ttl <= 0 {
		fmt.Fprintln(os.Stderr, "ttl must be positive")
		os.Exit(1)
	}

	token, err := gateway.SignWebhookToken([]byte(secret), tenantID, connectionID, time.Now(), ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing token: %v\n", err)
		os.Exit(1)
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/webhooks/gateway/" + tenantID.String()
	keyType := "custom"
	if secret == devWebhookSecret {
		keyType = "dev"
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			Type:      "webhook_token",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"sub": tenantID.String(),
				"aud": gateway.WebhookAudience,
				"cid": connectionID,
			},
			Usage: map[string]string{
				"header":      "Authorization: Bearer <token>",
				"endpoint":    endpoint,
				"signing_key": keyType,
			},
		})
		return
	}

	fmt.Println("Gateway Webhook Token (JWT)")
	fmt.Println("===========================")
	fmt.Printf("Signing Key:   %s\n", keyType)
	fmt.Printf("Expires In:    %s\n", ttl)
	fmt.Printf("Tenant ID:     %s\n", tenantID)
	fmt.Printf("Connection ID: %s\n", connectionID)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl -X POST -H \"Authorization: Bearer <token>\" -H \"Content-Type: application/json\" \\\n")
	fmt.Printf("    -d '{\"type\":\"qr\",\"connectionId\":\"%s\",\"qr\":\"demo\"}' %s\n", connectionID, endpoint)
}

func generateAdminToken(jsonOutput bool) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
	if jsonOutput {
		printJSON(tokenOutput{
			Token: token,
			Type:  "admin_token",
			Usage: map[string]string{
				"env":    "ADMIN_API_TOKEN=" + token,
				"header": "X-Admin-Token: " + token,
			},
		})
		return
	}
	fmt.Println("Admin API Token")
	fmt.Println("===============")
	fmt.Printf("Token: %s\n", token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  export ADMIN_API_TOKEN=" + token)
	fmt.Println("  curl -H \"X-Admin-Token: " + token + "\" http://localhost:8080/sessions")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
