package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"freight/internal/config"
	"freight/internal/infrastructure/postgres"

	"github.com/spf13/pflag"
)

func main() {
	fix := pflag.Bool("fix", false, "reset processing outbox events to new (stop the worker first)")
	migrate := pflag.Bool("migrate", false, "create missing tables before listing")
	limit := pflag.IntP("limit", "n", 5, "number of rows to list")
	pflag.Parse()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewClient(ctx, postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
		MaxConns: 2,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			fmt.Fprintf(os.Stderr, "Migrate failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Schema is up to date")
	}

	outboxRepo := postgres.NewOutboxRepository(pool)

	if *fix {
		n, err := outboxRepo.ResetProcessing(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Fix failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Reset %d events\n", n)
	}

	shipments, err := postgres.NewShipmentRepository(pool).ListRecent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List shipments failed: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "--- Shipments ---")
	fmt.Fprintln(w, "ID\tSTATUS\tDRIVER\tMESSAGE\tUPDATED")
	for _, s := range shipments {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Status, orDash(s.DriverName), orDash(s.ExternalMessageID), s.UpdatedAt.Format(time.RFC3339))
	}

	events, err := outboxRepo.ListRecent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List outbox failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintln(w, "\n--- Outbox ---")
	fmt.Fprintln(w, "ID\tSTATUS\tTYPE\tSHIPMENT")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Status, e.EventType, e.CorrelationID)
	}
	w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
