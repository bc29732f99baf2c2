package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/cmd/account"
	"github/chapool/wallet-broker/cmd/db"
	"github/chapool/wallet-broker/cmd/env"
	"github/chapool/wallet-broker/cmd/probe"
	"github/chapool/wallet-broker/cmd/server"
	"github/chapool/wallet-broker/cmd/tx"
	"github/chapool/wallet-broker/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: config.GetFormattedBuildArgs(),
	Use:     "app",
	Short:   config.ModuleName,
	Long: fmt.Sprintf(`%v

A multi-chain wallet broker: pages and approver popups talk to it over websocket ports,
approvers resolve pending requests and the broker signs, broadcasts and watches transactions.
Requires configuration through ENV.`, config.ModuleName),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	// attach the subcommands
	rootCmd.AddCommand(
		account.New(),
		db.New(),
		env.New(),
		probe.New(),
		server.New(),
		tx.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Failed to execute root command")
		os.Exit(1)
	}
}
