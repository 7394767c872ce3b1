package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"nutrition-resolver/internal/api"
	"nutrition-resolver/internal/app"
	"nutrition-resolver/internal/config"
	"nutrition-resolver/internal/fdc"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	switch os.Args[1] {
	case "resolve":
		resolveCmd := flag.NewFlagSet("resolve", flag.ExitOnError)
		asJSON := resolveCmd.Bool("json", false, "Print the raw JSON response")
		resolveCmd.Parse(os.Args[2:])

		text := strings.Join(resolveCmd.Args(), " ")
		if strings.TrimSpace(text) == "" {
			log.Fatal("Usage: nutrition-cli resolve [-json] \"<food description>\"")
		}

		services := mustBuild(ctx, cfg)
		defer services.Close()

		resp, err := services.App.ResolveText(ctx, text)
		if err != nil {
			log.Fatalf("Resolution failed: %v", err)
		}
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(resp)
			return
		}
		printResponse(resp)
	case "cache-cleanup":
		cleanupCmd := flag.NewFlagSet("cache-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", int(cfg.LookupCacheTTL.Hours()/24), "Keep lookups fetched in the last N days")
		cleanupCmd.Parse(os.Args[2:])

		services := mustBuild(ctx, cfg)
		defer services.Close()

		repo := fdc.NewCacheRepository(services.DB.SQL)
		affected, err := repo.DeleteOlderThan(ctx, time.Now().AddDate(0, 0, -*days))
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		remaining, _ := repo.Count(ctx)
		fmt.Printf("Successfully removed %d cached lookups (%d remaining).\n", affected, remaining)
	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(os.Args[2:])

		services := mustBuild(ctx, cfg)
		defer services.Close()

		affected, err := services.Metrics.Cleanup(*days)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)
	case "issue-token":
		tokenCmd := flag.NewFlagSet("issue-token", flag.ExitOnError)
		subject := tokenCmd.String("sub", "cli", "Token subject")
		ttl := tokenCmd.Duration("ttl", 24*time.Hour, "Token lifetime")
		tokenCmd.Parse(os.Args[2:])

		token, err := api.IssueToken(cfg.APIJWTSecret, *subject, *ttl)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func mustBuild(ctx context.Context, cfg *config.Config) *app.Services {
	services, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	return services
}

func printResponse(resp *app.Response) {
	fmt.Printf("Request %s\n\n", resp.RequestID)
	if len(resp.Items) == 0 {
		fmt.Println("No food items found.")
		return
	}

	for _, item := range resp.Items {
		n := item.Nutrients
		fmt.Printf("%-28s %7.0f kcal  P %5.1fg  C %5.1fg  F %5.1fg  [%s]\n",
			fmt.Sprintf("%g %s %s", item.Quantity, item.Unit, item.Name), n.Calories, n.Protein, n.Carbs, n.Fat, item.Source)
		if item.MatchedDescription != "" {
			fmt.Printf("    %s", item.MatchedDescription)
			if item.MatchedPortion != "" {
				fmt.Printf(" (%s)", item.MatchedPortion)
			}
			fmt.Println()
		}
	}

	t := resp.Totals
	fmt.Printf("\n%-28s %7.0f kcal  P %5.1fg  C %5.1fg  F %5.1fg\n", "TOTAL", t.Calories, t.Protein, t.Carbs, t.Fat)
	fmt.Printf("Sources: %v\n", resp.Sources)
}

func printUsage() {
	fmt.Println("Usage: nutrition-cli <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  resolve \"<text>\"   Resolve a food description into calories and macros")
	fmt.Println("  cache-cleanup      Remove old USDA lookup cache entries")
	fmt.Println("  metrics-cleanup    Remove old metric records")
	fmt.Println("  issue-token        Print a bearer token for the HTTP API")
}
