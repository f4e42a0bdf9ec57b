package main

import (
	"fmt"
	"os"

	"wsbridge/internal/config"
)

func main() {
	fmt.Println("# wsbridge Environment Variables")
	fmt.Println()
	fmt.Println("Environment variables override values from the configuration file.")
	fmt.Println("Routes can only be configured in the file or in Redis.")
	fmt.Println()
	fmt.Println("## Available Environment Variables")
	fmt.Println()

	for _, example := range config.EnvExample(&config.Config{}) {
		fmt.Printf("- `%s`\n", example)
	}

	fmt.Println()
	fmt.Println("## Examples")
	fmt.Println()
	fmt.Println("```bash")
	fmt.Println("# Listen port, usually provided by the platform")
	fmt.Println("export PROXY_PORT=9090")
	fmt.Println()
	fmt.Println("# Close bridges after one minute without traffic")
	fmt.Println("export WSBRIDGE_TIMING_IDLETIMEOUTSECONDS=60")
	fmt.Println()
	fmt.Println("# Restrict CORS")
	fmt.Println("export WSBRIDGE_CORS_ALLOWORIGIN=https://app.example.com")
	fmt.Println()
	fmt.Println("./wsbridge -config wsbridge.yaml")
	fmt.Println("```")

	os.Exit(0)
}
