package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shreyanshjain05/sparkthon/internal/config"
	"github.com/shreyanshjain05/sparkthon/pkg/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the product catalogue",
	Long: `Create the database schema and load the built-in product catalogue.
Safe to run repeatedly; existing products are left untouched.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	db, err := store.New(store.Config{
		Path:   cfg.Database.Path,
		Logger: zerolog.Nop(),
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	inserted, err := db.Seed(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to seed catalogue: %w", err)
	}

	cmd.Printf("Seeded %d products into %s\n", inserted, cfg.Database.Path)
	return nil
}
