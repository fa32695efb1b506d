// Package cli implements marketctl, the operator and trader command line
// for a minimarket node.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/minimarket/internal/config"
	"github.com/alanyoungcy/minimarket/internal/crypto"
	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// txLifetime is how long a signed transaction stays submittable.
const txLifetime = time.Minute

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath  string
	apiURL      string
	apiKey      string
	keyFile     string
	password    string
	privateKey  string
	programName string

	cfg *config.Config
	now func() time.Time
}

// NewRootCommand builds the marketctl command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{now: time.Now}

	root := &cobra.Command{
		Use:           "marketctl",
		Short:         "Create, fund, trade and resolve prediction markets",
		Long:          `marketctl signs minimarket transactions locally and submits them to a node's HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "minimarket.toml", "Configuration file (wallet and program sections are used)")
	pf.StringVar(&g.apiURL, "api", "", "Node API base URL (default: wallet.api_url)")
	pf.StringVar(&g.apiKey, "api-key", "", "Admin API key (default: server.api_key)")
	pf.StringVar(&g.keyFile, "key-file", "", "Encrypted key file (default: wallet.key_file)")
	pf.StringVar(&g.password, "password", "", "Key file password (default: wallet.key_password)")
	pf.StringVar(&g.privateKey, "private-key", "", "Raw hex private key; overrides --key-file")
	pf.StringVar(&g.programName, "program", "", "Program name the id is derived from (default: program.name)")

	root.AddCommand(newKeygenCommand(g))
	root.AddCommand(newAddressCommand(g))
	root.AddCommand(newInitializeCommand(g))
	root.AddCommand(newMarketCommand(g))
	root.AddCommand(newFeedCommand(g))
	root.AddCommand(newFaucetCommand(g))
	return root
}

// load merges the config file under the flags. Flags win.
func (g *globals) load() error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	g.cfg = cfg
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&g.apiURL, cfg.Wallet.APIURL)
	fill(&g.apiKey, cfg.Server.APIKey)
	fill(&g.keyFile, cfg.Wallet.KeyFile)
	fill(&g.password, cfg.Wallet.KeyPassword)
	fill(&g.privateKey, cfg.Wallet.PrivateKey)
	fill(&g.programName, cfg.Program.Name)
	return nil
}

func (g *globals) programID() domain.Address { return pda.ProgramID(g.programName) }

func (g *globals) client() *Client { return NewClient(g.apiURL, g.apiKey) }

func (g *globals) signer() (*crypto.Signer, error) {
	return crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey: g.privateKey,
		KeyfilePath:   g.keyFile,
		Password:      g.password,
	})
}

// send signs ix with s and submits it.
func (g *globals) send(ctx context.Context, s *crypto.Signer, ix vm.Instruction) (vm.Receipt, error) {
	now := g.now()
	tx := &vm.Transaction{
		Instruction: ix,
		Nonce:       uint64(now.UnixNano()),
		ValidUntil:  now.Add(txLifetime).Unix(),
	}
	if err := tx.Sign(s); err != nil {
		return vm.Receipt{}, fmt.Errorf("sign transaction: %w", err)
	}
	return g.client().Submit(ctx, tx)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReceipt(w io.Writer, r vm.Receipt) {
	fmt.Fprintf(w, "tx:          %s\n", r.TxID)
	fmt.Fprintf(w, "instruction: %s\n", r.Instruction)
	for _, ev := range r.Events {
		fmt.Fprintf(w, "event:       %s %s\n", ev.Kind, string(ev.Payload))
	}
}
