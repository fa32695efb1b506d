package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/program"
	"github.com/alanyoungcy/minimarket/internal/service"
)

func newMarketCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Create, fund, trade and resolve markets",
	}
	cmd.AddCommand(newMarketCreateCommand(g))
	cmd.AddCommand(newMarketMintCommand(g))
	cmd.AddCommand(newMarketFundCommand(g))
	cmd.AddCommand(newMarketBetCommand(g))
	cmd.AddCommand(newMarketResolveCommand(g))
	cmd.AddCommand(newMarketShowCommand(g))
	cmd.AddCommand(newMarketListCommand(g))
	cmd.AddCommand(newMarketQuoteCommand(g))
	return cmd
}

// metadataURL is where the node serves the token document of mint.
func (g *globals) metadataURL(mint domain.Address) string {
	return g.apiURL + "/api/metadata/" + mint.Hex()
}

func newMarketCreateCommand(g *globals) *cobra.Command {
	var (
		feed, rangeMode, date string
		params                program.MarketParams
	)
	cmd := &cobra.Command{
		Use:   "create <market-id>",
		Short: "Propose a market settled by an oracle feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := g.signer()
			if err != nil {
				return err
			}
			feedAddr, err := parseAddr(feed)
			if err != nil {
				return err
			}
			if params.Range, err = domain.ParseRangeMode(rangeMode); err != nil {
				return err
			}
			when, err := parseWhen(date)
			if err != nil {
				return err
			}
			params.MarketID = args[0]
			params.Date = when.Unix()

			market, err := pda.MarketAddress(g.programID(), params.MarketID)
			if err != nil {
				return err
			}
			if params.URLA == "" {
				params.URLA = g.metadataURL(pda.MintAddress(g.programID(), market, domain.TokenRoleA))
			}
			if params.URLB == "" {
				params.URLB = g.metadataURL(pda.MintAddress(g.programID(), market, domain.TokenRoleB))
			}

			global, err := g.client().Global(ctx)
			if err != nil {
				return fmt.Errorf("read global: %w", err)
			}
			ix, err := program.InitMarketIx(g.programID(), s.Address(), global.FeeAuthority, feedAddr, params)
			if err != nil {
				return err
			}
			r, err := g.send(ctx, s, ix)
			if err != nil {
				return err
			}
			printReceipt(cmd.OutOrStdout(), r)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&feed, "feed", "", "Oracle feed address (required)")
	f.Float64Var(&params.Value, "value", 0, "Target value the feed is compared with")
	f.StringVar(&rangeMode, "range", "gt", "Comparison: gt, eq or lt")
	f.StringVar(&date, "date", "", "Resolution time, Unix seconds or RFC3339 (required)")
	f.Uint64Var(&params.TokenAmount, "token-amount", 0, "Reserve of each outcome token (required)")
	f.Uint64Var(&params.TokenPrice, "token-price", 0, "Initial token price (required)")
	f.StringVar(&params.NameA, "name-yes", "", "YES token name")
	f.StringVar(&params.SymbolA, "symbol-yes", "", "YES token symbol")
	f.StringVar(&params.URLA, "url-yes", "", "YES token metadata URL (default: served by the node)")
	f.StringVar(&params.NameB, "name-no", "", "NO token name")
	f.StringVar(&params.SymbolB, "symbol-no", "", "NO token symbol")
	f.StringVar(&params.URLB, "url-no", "", "NO token metadata URL (default: served by the node)")
	cmd.MarkFlagRequired("feed")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("token-amount")
	cmd.MarkFlagRequired("token-price")
	return cmd
}

func newMarketMintCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mint <market-id>",
		Short: "Mint the outcome tokens of a created market (creator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := g.signer()
			if err != nil {
				return err
			}
			global, err := g.client().Global(ctx)
			if err != nil {
				return fmt.Errorf("read global: %w", err)
			}
			ix, err := program.MintTokenIx(g.programID(), s.Address(), global.FeeAuthority, args[0])
			if err != nil {
				return err
			}
			r, err := g.send(ctx, s, ix)
			if err != nil {
				return err
			}
			printReceipt(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func newMarketFundCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "fund <market-id> <amount>",
		Short: "Add liquidity to a preparing market",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			s, err := g.signer()
			if err != nil {
				return err
			}
			global, err := g.client().Global(ctx)
			if err != nil {
				return fmt.Errorf("read global: %w", err)
			}
			ix, err := program.AddLiquidityIx(g.programID(), s.Address(), global.FeeAuthority, args[0], amount)
			if err != nil {
				return err
			}
			r, err := g.send(ctx, s, ix)
			if err != nil {
				return err
			}
			printReceipt(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func newMarketBetCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "bet <market-id> <yes|no> <amount>",
		Short: "Buy outcome shares of an active market",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			isYes, err := parseSide(args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			s, err := g.signer()
			if err != nil {
				return err
			}
			c := g.client()
			global, err := c.Global(ctx)
			if err != nil {
				return fmt.Errorf("read global: %w", err)
			}
			snap, err := c.Market(ctx, args[0])
			if err != nil {
				return fmt.Errorf("read market: %w", err)
			}
			ix, err := program.CreateBetIx(g.programID(), s.Address(), snap.Market.Creator, global.FeeAuthority,
				program.BettingParams{MarketID: args[0], Amount: amount, IsYes: isYes})
			if err != nil {
				return err
			}
			r, err := g.send(ctx, s, ix)
			if err != nil {
				return err
			}
			printReceipt(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func newMarketResolveCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <market-id>",
		Short: "Settle a market from its oracle feed (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := g.signer()
			if err != nil {
				return err
			}
			snap, err := g.client().Market(ctx, args[0])
			if err != nil {
				return fmt.Errorf("read market: %w", err)
			}
			ix, err := program.GetResIx(g.programID(), s.Address(), snap.Market.Feed, args[0])
			if err != nil {
				return err
			}
			r, err := g.send(ctx, s, ix)
			if err != nil {
				return err
			}
			printReceipt(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func newMarketShowCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <market-id>",
		Short: "Print a market's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := g.client().Market(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
}

func newMarketListCommand(g *globals) *cobra.Command {
	var (
		status        string
		limit, offset int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List markets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := g.client().Markets(cmd.Context(), status, limit, offset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(page.Markets) == 0 {
				fmt.Fprintln(out, "No markets found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tRANGE\tVALUE\tRESOLVES\tRESERVE\tPRICE_YES\tPRICE_NO")
			for _, s := range page.Markets {
				m := s.Market
				fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%s\t%d\t%d\t%d\n",
					m.MarketID, m.Status, m.Range, m.Value,
					time.Unix(m.Date, 0).UTC().Format(time.RFC3339),
					m.TotalReserve, m.TokenPriceA, m.TokenPriceB)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d of %d market(s)\n", len(page.Markets), page.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: created, prepare, active, resolved")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}

func newMarketQuoteCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <market-id> <yes|no> <amount>",
		Short: "Preview the shares a bet would buy",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			isYes, err := parseSide(args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			q, err := g.client().Quote(cmd.Context(), args[0], amount, isYes)
			if err != nil {
				return err
			}
			printQuote(cmd, q)
			return nil
		},
	}
}

func printQuote(cmd *cobra.Command, q service.BetQuote) {
	side := "NO"
	if q.IsYes {
		side = "YES"
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "market\t%s\n", q.MarketID)
	fmt.Fprintf(w, "side\t%s\n", side)
	fmt.Fprintf(w, "amount\t%d\n", q.Amount)
	fmt.Fprintf(w, "fee\t%d\n", q.Fee)
	fmt.Fprintf(w, "shares\t%d\n", q.Shares)
	fmt.Fprintf(w, "reserves after\t%d yes / %d no\n", q.ReserveYes, q.ReserveNo)
	fmt.Fprintf(w, "prices after\t%d yes / %d no\n", q.PriceYes, q.PriceNo)
	w.Flush()
}
