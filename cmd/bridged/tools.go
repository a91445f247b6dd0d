package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/ContractLand/terra-bridge-contracts/internal/bridge"
	"github.com/ContractLand/terra-bridge-contracts/internal/config"
	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/handlers"
)

func keygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a validator signing key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address:     %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
			fmt.Fprintf(out, "private key: %s\n", hexutil.Encode(crypto.FromECDSA(key)))
			return nil
		},
	}
}

func messageCommand() *cobra.Command {
	var asset, recipient, amount, sourceTx, gasPrice string
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Encode a transfer message and print its hash",
		RunE: func(cmd *cobra.Command, _ []string) error {
			assetAddr, err := config.ParseAddress(asset, true)
			if err != nil {
				return fmt.Errorf("--asset: %w", err)
			}
			to, err := config.ParseAddress(recipient, false)
			if err != nil {
				return fmt.Errorf("--recipient: %w", err)
			}
			value, err := config.ParseAmount(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			ref, err := hexutil.Decode(sourceTx)
			if err != nil || len(ref) != common.HashLength {
				return errors.New("--source-tx must be a 32 byte hex value")
			}
			msg := &bridge.Message{Asset: assetAddr, Recipient: to, Amount: value, SourceTx: common.BytesToHash(ref)}
			if gasPrice != "" {
				if msg.GasPrice, err = config.ParseAmount(gasPrice); err != nil {
					return fmt.Errorf("--gas-price: %w", err)
				}
			}
			raw, err := msg.Encode()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "message: %s\n", hexutil.Encode(raw))
			fmt.Fprintf(out, "hash:    %s\n", crypto.Keccak256Hash(raw).Hex())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&asset, "asset", "", "asset address on the destination chain (zero address for native)")
	f.StringVar(&recipient, "recipient", "", "recipient address")
	f.StringVar(&amount, "amount", "", "amount in canonical 18 decimal units")
	f.StringVar(&sourceTx, "source-tx", "", "transfer reference on the source chain")
	f.StringVar(&gasPrice, "gas-price", "", "optional gas price word")
	for _, name := range []string{"asset", "recipient", "amount", "source-tx"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func signCommand() *cobra.Command {
	var keyHex, messageHex string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign an encoded transfer message with a validator key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
			if err != nil {
				return fmt.Errorf("--key: %w", err)
			}
			raw, err := hexutil.Decode(messageHex)
			if err != nil {
				return fmt.Errorf("--message: %w", err)
			}
			if _, err := bridge.ParseMessage(raw); err != nil {
				return err
			}
			sig, err := bridge.SignMessage(key, raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "signer:    %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
			fmt.Fprintf(out, "signature: %s\n", hexutil.Encode(sig))
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "hex private key")
	cmd.Flags().StringVar(&messageHex, "message", "", "hex encoded message")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

// depositCommand signs a deposit offline and prints the request body for
// POST /api/v1/:side/deposits.
func depositCommand() *cobra.Command {
	var keyHex, ledger, kind, asset, recipient, amount string
	var chainID, nonce uint64
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Sign an outbound deposit with a sender key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
			if err != nil {
				return fmt.Errorf("--key: %w", err)
			}
			ledgerAddr, err := config.ParseAddress(ledger, false)
			if err != nil {
				return fmt.Errorf("--ledger: %w", err)
			}
			k, err := bridge.ParseDepositKind(kind)
			if err != nil {
				return err
			}
			d := &bridge.Deposit{Kind: k, Nonce: nonce}
			if asset != "" {
				if d.Asset, err = config.ParseAddress(asset, true); err != nil {
					return fmt.Errorf("--asset: %w", err)
				}
			}
			if recipient != "" {
				if d.Recipient, err = config.ParseAddress(recipient, false); err != nil {
					return fmt.Errorf("--recipient: %w", err)
				}
			}
			if d.Amount, err = config.ParseAmount(amount); err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			payload, err := d.Encode(chainID, ledgerAddr)
			if err != nil {
				return err
			}
			sig, err := bridge.SignMessage(key, payload)
			if err != nil {
				return err
			}

			body := map[string]interface{}{
				"kind":      k.String(),
				"amount":    d.Amount.String(),
				"nonce":     d.Nonce,
				"signature": hexutil.Encode(sig),
			}
			if asset != "" {
				body["asset"] = d.Asset.Hex()
			}
			if recipient != "" {
				body["recipient"] = d.Recipient.Hex()
			}
			line, err := json.Marshal(body)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sender:    %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
			fmt.Fprintf(out, "payload:   %s\n", hexutil.Encode(payload))
			fmt.Fprintf(out, "signature: %s\n", hexutil.Encode(sig))
			fmt.Fprintf(out, "body:      %s\n", line)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&keyHex, "key", "", "hex private key of the sender")
	f.Uint64Var(&chainID, "chain-id", 0, "chain id of the ledger")
	f.StringVar(&ledger, "ledger", "", "ledger address")
	f.StringVar(&kind, "kind", "native", "native, relay or transfer")
	f.StringVar(&asset, "asset", "", "local token address (omit for native)")
	f.StringVar(&recipient, "recipient", "", "recipient on the other chain (defaults to the sender)")
	f.StringVar(&amount, "amount", "", "amount in the asset's own units")
	f.Uint64Var(&nonce, "nonce", 0, "sender's next deposit nonce")
	for _, name := range []string{"key", "chain-id", "ledger", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func totpCommand() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "totp",
		Short: "Generate an admin TOTP secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := handlers.GenerateTOTPKey(account)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "secret: %s\n", key.Secret())
			fmt.Fprintf(out, "url:    %s\n", key.URL())
			fmt.Fprintln(out, "\nexport ADMIN_TOTP_SECRET="+key.Secret())
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account name shown by the authenticator app")
	return cmd
}

func watchCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print bridge events published on NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.NATS.URL == "" {
				return errors.New("nats.url is not configured")
			}
			publisher, err := events.NewNATSPublisher(events.NATSOptions{
				URL:     cfg.NATS.URL,
				Timeout: time.Duration(cfg.NATS.Timeout) * time.Second,
			})
			if err != nil {
				return err
			}
			defer publisher.Close()

			out := cmd.OutOrStdout()
			sub, err := publisher.Subscribe(subject, func(ev events.Event) {
				line, err := json.Marshal(ev)
				if err != nil {
					return
				}
				fmt.Fprintln(out, string(line))
			})
			if err != nil {
				return err
			}
			defer func() { _ = sub.Unsubscribe() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", events.DefaultSubjects, "NATS subject to follow")
	return cmd
}
