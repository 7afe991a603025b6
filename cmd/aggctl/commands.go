package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/chhavsingh/180protocol/cmd/common"
	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/protocol"
	"github.com/chhavsingh/180protocol/schema"
	"github.com/chhavsingh/180protocol/services"
	"github.com/chhavsingh/180protocol/tdx"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a party identity key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, sk, err := crypto.GenerateExchangeKey()
			if err != nil {
				return err
			}
			return printJSON(map[string]string{
				"private_key": sk.String(),
				"public_key":  pk.Base64(),
			})
		},
	}
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [envelope.avsc]",
		Short: "Register the envelope schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if _, err := schema.ParseEnvelope(data); err != nil {
				return err
			}
			resp, err := newHostClient().send(protocol.KindSchema, data)
			if err != nil {
				return err
			}
			return printJSON(resp.Status)
		},
	}
}

// partyEntry is one line of the identities file.
type partyEntry struct {
	PublicKey string `yaml:"public_key"`
	Role      string `yaml:"role"`
}

func identitiesCmd() *cobra.Command {
	return envelopeFlag(&cobra.Command{
		Use:   "identities [parties.yaml]",
		Short: "Register a batch of party identities",
		Long:  "The file is a YAML list of {public_key: <base64>, role: provider|consumer|provenance}.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, err := loadEnvelope()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var parties []partyEntry
			if err := yaml.Unmarshal(data, &parties); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			keyField, roleField := set.IdentityFields()
			records := make([]schema.Record, len(parties))
			for i, p := range parties {
				if _, err := protocol.ParseRole(p.Role); err != nil {
					return fmt.Errorf("party %d: %w", i, err)
				}
				records[i] = schema.Record{keyField: p.PublicKey, roleField: p.Role}
			}
			payload, err := schema.NewAvroCodec().Encode(records, set.Identity)
			if err != nil {
				return err
			}

			resp, err := newHostClient().send(protocol.KindIdentity, payload)
			if err != nil {
				return err
			}
			return printJSON(resp.Status)
		},
	})
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Seal and submit provider records from a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, err := loadEnvelope()
			if err != nil {
				return err
			}
			ch, err := partyChannel()
			if err != nil {
				return err
			}

			f, err := os.Open(viper.GetString(flagCSV))
			if err != nil {
				return err
			}
			defer f.Close()
			records, err := schema.RecordsFromCSV(f, set.Input)
			if err != nil {
				return err
			}
			body, err := schema.NewAvroCodec().Encode(records, set.Input)
			if err != nil {
				return err
			}

			client := newHostClient()
			enclaveKey, err := client.channelKey()
			if err != nil {
				return err
			}
			sealed, err := ch.EncryptFor(enclaveKey, body)
			if err != nil {
				return err
			}
			resp, err := client.send(protocol.KindClient, sealed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "submitted %d records\n", len(records))
			return printJSON(resp.Status)
		},
	}
	cmd.Flags().String(flagCSV, "", "CSV file with a header row matching the input schema")
	return keyFlag(envelopeFlag(cmd))
}

func queryCmd() *cobra.Command {
	return keyFlag(envelopeFlag(&cobra.Command{
		Use:   "query",
		Short: "Request the output for this party's role and print it",
		Long:  "A consumer receives the aggregate; a provenance party receives per-provider rewards and ends the cycle.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, err := loadEnvelope()
			if err != nil {
				return err
			}
			ch, err := partyChannel()
			if err != nil {
				return err
			}

			client := newHostClient()
			enclaveKey, err := client.channelKey()
			if err != nil {
				return err
			}
			sealed, err := ch.EncryptFor(enclaveKey, nil)
			if err != nil {
				return err
			}
			resp, err := client.send(protocol.KindClient, sealed)
			if err != nil {
				return err
			}
			if resp.Reply == nil {
				return fmt.Errorf("no reply: this key is registered as a provider")
			}

			out := set.AggregateOutput
			if resp.Reply.Role == protocol.RoleProvenance {
				out = set.ProvenanceOutput
			}
			_, body, err := ch.Decrypt(resp.Reply.Ciphertext)
			if err != nil {
				return err
			}
			records, err := schema.NewAvroCodec().Decode(body, out)
			if err != nil {
				return err
			}
			if resp.Receipt != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "receipt %s, cycle %s\n", resp.Receipt.Object.ID, resp.Reply.CycleID)
			}
			return schema.RenderJSON(cmd.OutOrStdout(), records)
		},
	}))
}

func attestationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attestation",
		Short: "Fetch and verify the host's channel key attestation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			att, err := newHostClient().attestation()
			if err != nil {
				return err
			}

			source, err := common.NewMeasurementSource(viper.GetString("measurements-url"), viper.GetString("measurements-file"))
			if err != nil {
				return err
			}
			provider := tdx.New(tdx.Config{UseTDX: att.AttestationType != (&tdx.DummyProvider{}).AttestationType()})
			measurements, err := services.VerifyHostAttestation(source, provider, att)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "attestation verified (%s)\n", att.AttestationType)
			return printJSON(map[string]any{
				"channel_key":  att.ChannelKey,
				"signing_key":  att.SigningKey,
				"measurements": measurements,
			})
		},
	}
	cmd.Flags().String("measurements-url", "", "URL of the allowed builds list")
	cmd.Flags().String("measurements-file", "", "local allowed builds file")
	return cmd
}
