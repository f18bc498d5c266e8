package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/cremosos/core/cmd/api/commands"
)

// @title Cremosos API
// @version 1.0
// @description Catalogue, cart, orders, point of sale, purchasing and reports for Cremosos.

// @contact.name Cremosos
// @contact.email admin@cremosos.com

// @host localhost:3000
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	rootCmd := &cobra.Command{
		Use:          "cremosos",
		Short:        "Cremosos API Server",
		Long:         `Cremosos serves the shop, point of sale and back office of a dessert business on top of a JSON collection store.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&commands.ConfigFile, "config", "c", "", "Path to a config file (yaml, json or toml)")

	// Add commands
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewSeedCommand())
	rootCmd.AddCommand(commands.NewUserCommand())
	rootCmd.AddCommand(commands.NewBackupCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
