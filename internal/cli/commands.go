package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/minimarket/internal/crypto"
	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/program"
)

func parseAddr(s string) (domain.Address, error) {
	if !common.IsHexAddress(s) {
		return domain.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseSide accepts yes/no and the token letters a/b.
func parseSide(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "a":
		return true, nil
	case "no", "b":
		return false, nil
	}
	return false, fmt.Errorf("side must be yes or no, got %q", s)
}

// parseWhen accepts Unix seconds or RFC3339.
func parseWhen(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("time must be Unix seconds or RFC3339, got %q", s)
	}
	return t, nil
}

func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("amount must be a positive integer, got %q", s)
	}
	return n, nil
}

func newKeygenCommand(g *globals) *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key and store it encrypted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.password == "" {
				return errors.New("a password is required (--password or MINIMARKET_WALLET_KEY_PASSWORD)")
			}
			if !force {
				if _, err := os.Stat(out); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", out)
				}
			}
			s, err := crypto.GenerateSigner()
			if err != nil {
				return err
			}
			sealed, err := crypto.SealKey(s, g.password)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, sealed, 0o600); err != nil {
				return fmt.Errorf("write key file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address:  %s\nkey file: %s\n", s.Address().Hex(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "minimarket.key", "Where to write the encrypted key")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing key file")
	return cmd
}

func newAddressCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Derive program addresses locally",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "program",
		Short: "Print the program id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), g.programID().Hex())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "global",
		Short: "Print the Global record address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), pda.GlobalAddress(g.programID()).Hex())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "market <market-id>",
		Short: "Print a market's record, mint and reserve addresses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ma, err := pda.ForMarket(g.programID(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "market\t%s\n", ma.Market.Hex())
			fmt.Fprintf(w, "mint_yes\t%s\n", ma.MintA.Hex())
			fmt.Fprintf(w, "mint_no\t%s\n", ma.MintB.Hex())
			fmt.Fprintf(w, "reserve_yes\t%s\n", ma.ReserveA.Hex())
			fmt.Fprintf(w, "reserve_no\t%s\n", ma.ReserveB.Hex())
			return w.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "ata <owner> <mint>",
		Short: "Print the token account of owner for mint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			mint, err := parseAddr(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pda.TokenAccountAddress(owner, mint).Hex())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "wallet",
		Short: "Print the address of the configured key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.signer()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Address().Hex())
			return nil
		},
	})
	return cmd
}

func newInitializeCommand(g *globals) *cobra.Command {
	var (
		feeAuthority string
		params       program.InitializeParams
		decimal      uint
	)
	cmd := &cobra.Command{
		Use:   "initialize",
		Short: "Create the Global record; the signer becomes admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.signer()
			if err != nil {
				return err
			}
			params.FeeAuthority = s.Address()
			if feeAuthority != "" {
				if params.FeeAuthority, err = parseAddr(feeAuthority); err != nil {
					return err
				}
			}
			if decimal > 18 {
				return fmt.Errorf("decimal must be at most 18, got %d", decimal)
			}
			params.Decimal = uint8(decimal)
			r, err := g.send(cmd.Context(), s, program.InitializeIx(g.programID(), s.Address(), params))
			if err != nil {
				return err
			}
			printReceipt(cmd.OutOrStdout(), r)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&feeAuthority, "fee-authority", "", "Fee recipient (default: the signer)")
	f.Uint64Var(&params.CreatorFeeAmount, "creator-fee", 1_000_000, "Flat fee charged to create a market")
	f.Uint64Var(&params.MarketCount, "threshold", 100_000_000, "Liquidity a market needs to become active")
	f.UintVar(&decimal, "decimal", 9, "Price precision in decimal places")
	f.Uint16Var(&params.BettingFeeBps, "betting-fee-bps", 200, "Fee on bets in basis points")
	f.Uint16Var(&params.FundFeeBps, "fund-fee-bps", 100, "Fee on liquidity deposits in basis points")
	return cmd
}

func newFaucetCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "faucet <address> <lamports>",
		Short: "Credit lamports on a node with the faucet enabled (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			txID, err := g.client().Faucet(cmd.Context(), addr, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credited %d to %s (tx %s)\n", amount, addr.Hex(), txID)
			return nil
		},
	}
}

func newFeedCommand(g *globals) *cobra.Command {
	var (
		confidence float64
		at         string
	)
	push := &cobra.Command{
		Use:   "push <feed-address> <value>",
		Short: "Record an oracle observation (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			feed, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q", args[1])
			}
			var when time.Time
			if at != "" {
				if when, err = parseWhen(at); err != nil {
					return err
				}
			}
			obs, err := g.client().PushFeed(cmd.Context(), feed, value, confidence, when)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), obs)
		},
	}
	push.Flags().Float64Var(&confidence, "confidence", 0, "Confidence interval of the observation")
	push.Flags().StringVar(&at, "at", "", "Observation time, Unix seconds or RFC3339 (default: now)")

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Manage oracle feeds",
	}
	cmd.AddCommand(push)
	return cmd
}
