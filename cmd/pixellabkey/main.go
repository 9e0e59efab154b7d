// pixellabkey stores the PixelLab API key in the integration token
// table, where the worker picks it up when PIXELLAB_API_KEY is unset.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra/credentials"
)

func main() {
	_ = godotenv.Load()

	var keyFlag string
	flag.StringVar(&keyFlag, "key", "", "PixelLab API key (falls back to PIXELLAB_API_KEY)")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("PIXELLAB_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "PixelLab API key is required via -key or PIXELLAB_API_KEY")
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "pixellabkey")
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	execCtx, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()
	if err := store.SetPixelLabAPIKey(execCtx, key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist pixellab api key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("PixelLab API key stored successfully")
}
