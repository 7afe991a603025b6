package main

import (
	"github.com/spf13/cobra"
)

func keyFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagKey, "", "party X25519 private key (hex)")
	return cmd
}

func envelopeFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagEnvelope, "", "envelope schema file (.avsc)")
	return cmd
}
