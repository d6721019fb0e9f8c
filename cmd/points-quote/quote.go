package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omerorhan/points-quote-service/internal/config"
	"github.com/omerorhan/points-quote-service/internal/service"
)

func quoteCmd() *cobra.Command {
	var req service.QuoteRequest
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute a single points quote against the configured dependencies",
		Long: `Compute one quote and print it as JSON.

Examples:
  points-quote quote --fare 1234.50 --currency USD --cabin ECONOMY --tier SILVER --promo SUMMER25`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runQuote(cmd.Context(), cfg, req)
		},
	}

	cmd.Flags().Float64Var(&req.FareAmount, "fare", 0, "fare amount")
	cmd.Flags().StringVar(&req.Currency, "currency", "USD", "ISO 4217 fare currency")
	cmd.Flags().StringVar(&req.CabinClass, "cabin", string(service.CabinEconomy), "cabin class")
	cmd.Flags().StringVar(&req.CustomerTier, "tier", string(service.TierNone), "customer tier")
	cmd.Flags().StringVar(&req.PromoCode, "promo", "", "promotion code")
	_ = cmd.MarkFlagRequired("fare")

	return cmd
}

func runQuote(ctx context.Context, cfg *config.Config, req service.QuoteRequest) error {
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	qs, err := service.NewQuoteService(append(cfg.ServiceOptions(), service.WithLogger(logger))...)
	if err != nil {
		return err
	}
	if err := qs.Initialize(); err != nil {
		return err
	}
	defer qs.Stop()

	if ctx == nil {
		ctx = context.Background()
	}
	quote, err := qs.Quote(ctx, req)
	if err != nil {
		return fmt.Errorf("quote failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(quote)
}
