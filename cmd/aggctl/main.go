// Command aggctl builds, seals and delivers mail to an enclave host and
// opens the replies.
//
//	aggctl keygen
//	aggctl schema envelope.avsc
//	aggctl identities parties.yaml --envelope envelope.avsc
//	aggctl submit --csv sales.csv --envelope envelope.avsc --key <hex>
//	aggctl query --envelope envelope.avsc --key <hex>
//	aggctl attestation --measurements-file allowed.yaml
//
// Every flag can also be set as AGGCTL_<FLAG>, e.g. AGGCTL_HOST.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagHost     = "host"
	flagKey      = "key"
	flagSequence = "sequence"
	flagEnvelope = "envelope"
	flagCSV      = "csv"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "aggctl",
		Short:         "Client for the aggregation enclave host",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Flags are bound when a command runs so subcommands sharing a flag
		// name do not overwrite each other's binding.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
	}

	viper.SetEnvPrefix("aggctl")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	cmd.PersistentFlags().String(flagHost, "http://localhost:8080", "enclave host URL")
	cmd.PersistentFlags().Uint64(flagSequence, 0, "mail sequence number (0: one past the host's last)")

	cmd.AddCommand(
		keygenCmd(),
		schemaCmd(),
		identitiesCmd(),
		submitCmd(),
		queryCmd(),
		attestationCmd(),
	)
	return cmd
}
