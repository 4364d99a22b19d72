package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dtk-go/internal/app"
	"dtk-go/internal/chain"
	"dtk-go/internal/config"
	"dtk-go/internal/dtk"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var verbose bool

// newApp reads the config and creates a DTKApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "CreateToken", "DeleteToken").
func newApp(ctx context.Context, operation, parameters string) (*app.DTKApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewDTKApp(ctx, cfg, app.Options{
		Operation:  operation,
		Parameters: parameters,
		Passphrase: app.Passphrase("Passphrase: "),
		Console:    os.Stderr,
		Verbose:    verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "dtk",
	Short:        "Personal data token ledger",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration, wallet and keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if cluster, _ := cmd.Flags().GetString("cluster"); cluster != "" {
			url, err := chain.RPCURLForCluster(cluster)
			if err != nil {
				return err
			}
			cfg.Chain.Cluster = cluster
			cfg.Chain.RPCURL = url
		}
		if storeType, _ := cmd.Flags().GetString("store"); storeType != "" {
			cfg.Store.Type = storeType
			if storeType == "sqlite" {
				cfg.Store.DataDir = defaults["base_dir"]
			}
		}
		if encrypt, _ := cmd.Flags().GetBool("encrypt"); encrypt {
			cfg.Encryption.Type = "age"
		}

		created, err := app.Bootstrap(defaults["config_path"], cfg, app.NewPassphrase)
		for _, line := range created {
			fmt.Printf("Created %s\n", line)
		}
		if err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Wallet:     %s\n", cfg.Wallet.KeypairPath)
		fmt.Printf("Chain:      %s (%s) %s\n", cfg.Chain.Type, cfg.Chain.Cluster, cfg.Chain.RPCURL)
		fmt.Printf("Store:      %s\n", cfg.Store.Type)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		fmt.Printf("Refresh:    %s\n", cfg.Balance.Interval())
		return nil
	},
}

// wallet command
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the signing wallet",
}

var walletKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new wallet keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("out")
		if path == "" {
			defaults, err := app.GetDefaults()
			if err != nil {
				return err
			}
			cfg, err := config.ReadFromFile(defaults["config_path"])
			if err != nil {
				return fmt.Errorf("reading config: %w", err)
			}
			path = cfg.Wallet.KeypairPath
		}

		key, err := chain.GenerateKeypairFile(path)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote keypair to %s\n", path)
		fmt.Printf("Address: %s\n", key.PublicKey())
		return nil
	},
}

var walletAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Show the connected address",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "WalletAddress", "")
		if err != nil {
			return err
		}
		defer a.Close()

		id, ok := a.Address()
		if !ok {
			return dtk.ErrWalletNotConnected
		}
		fmt.Println(id)
		fmt.Println(a.ExplorerURL("address", id.String()))
		return nil
	},
}

var walletBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the wallet balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "WalletBalance", "")
		if err != nil {
			return err
		}
		defer a.Close()

		balance, err := a.Balance(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s SOL\n", balance.StringFixed(4))
		return nil
	},
}

var walletAirdropCmd = &cobra.Command{
	Use:   "airdrop",
	Short: "Request test SOL from the faucet",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Airdrop", "")
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.Airdrop(cmd.Context())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("airdrop was not granted")
		}
		fmt.Printf("Requested %s SOL\n", chain.LamportsToSOL(chain.AirdropLamports))
		return nil
	},
}

// catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List data types with their current prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		demand, err := decimalFlag(cmd, "demand")
		if err != nil {
			return err
		}
		samples, _ := cmd.Flags().GetBool("samples")

		for _, dt := range dtk.Catalog() {
			price := dtk.Price(dt.BasePrice, dt.Privacy, demand)
			fmt.Printf("%-10s %-18s %-7s base %-5s price %s SOL\n",
				dt.ID, dt.Name, dt.Privacy, dt.BasePrice, price.StringFixed(4))
			if samples {
				for k, v := range dtk.SampleData(dt.ID) {
					fmt.Printf("    %s: %v\n", k, v)
				}
			}
		}
		return nil
	},
}

// price command
var priceCmd = &cobra.Command{
	Use:   "price BASE TIER",
	Short: "Compute a token price",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := decimal.NewFromString(args[0])
		if err != nil {
			return fmt.Errorf("invalid base price %q: %w", args[0], err)
		}
		demand, err := decimalFlag(cmd, "demand")
		if err != nil {
			return err
		}
		tier := dtk.PrivacyTier(strings.ToLower(args[1]))

		fmt.Printf("multiplier %s  demand factor %s\n",
			dtk.PrivacyMultiplier(tier), dtk.DemandFactor(demand))
		fmt.Printf("%s SOL\n", dtk.Price(base, tier, demand).StringFixed(4))
		return nil
	},
}

// token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage data tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create TYPE",
	Short: "Mint a new data token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := decimalFlag(cmd, "price")
		if err != nil {
			return err
		}
		days := durationFlag(cmd, "days")

		a, err := newApp(cmd.Context(), "CreateToken", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.CreateToken(cmd.Context(), args[0], price, days)
		if rec != nil {
			fmt.Printf("Minted %s (%s) for %s SOL, valid %d days\n",
				rec.ID, rec.Name, rec.Price.StringFixed(4), rec.DurationDays)
			fmt.Println(a.ExplorerURL("address", rec.ID))
		}
		if err != nil {
			return fmt.Errorf("creating token: %w", err)
		}
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tokens of the connected wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListTokens", "")
		if err != nil {
			return err
		}
		defer a.Close()

		tokens, err := a.Tokens(cmd.Context())
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			fmt.Println("No tokens.")
			return nil
		}

		now := time.Now()
		for _, t := range tokens {
			state := fmt.Sprintf("%s %3dd left", validityBar(t.RemainingFraction(now)), t.RemainingDays(now))
			if t.Expired(now) {
				state = "expired"
			}
			fmt.Printf("%s\n    %-10s %-7s %s SOL  %s  earned %s  used %d\n",
				t.ID, t.DataType, t.Privacy,
				t.Price.StringFixed(4), state, t.TotalEarnings.StringFixed(4), t.UsageCount)
		}
		return nil
	},
}

var tokenStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the token collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "TokenStats", "")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Tokens:        %d\n", s.TotalTokens)
		fmt.Printf("Earnings:      %s SOL\n", s.TotalEarnings.StringFixed(4))
		fmt.Printf("Usage:         %d\n", s.TotalUsage)
		fmt.Printf("Average price: %s SOL\n", s.AveragePrice.StringFixed(4))
		return nil
	},
}

var tokenUsageCmd = &cobra.Command{
	Use:   "usage ID EARNINGS",
	Short: "Record usage of a token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		earnings, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid earnings %q: %w", args[1], err)
		}
		count, _ := cmd.Flags().GetInt("count")

		a, err := newApp(cmd.Context(), "RecordUsage", args[0]+" "+args[1]+" "+strconv.Itoa(count))
		if err != nil {
			return err
		}
		defer a.Close()

		return a.RecordUsage(cmd.Context(), args[0], earnings, count)
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a token from the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DeleteToken", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		return a.DeleteToken(cmd.Context(), args[0])
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh the wallet balance periodically",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		addr, _ := cmd.Flags().GetString("metrics-addr")

		a, err := newApp(cmd.Context(), "Watch", "")
		if err != nil {
			return err
		}
		defer a.Close()

		if addr == "" {
			addr = a.Config().Balance.MetricsAddr
		}
		if addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", a.MetricsHandler())
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
				}
			}()
			defer srv.Close()
			fmt.Printf("Serving metrics on %s/metrics\n", addr)
		}

		err = a.Watch(cmd.Context(), interval, func(u dtk.BalanceUpdate) {
			if u.Err != nil {
				fmt.Printf("%s  %s  balance unavailable: %v\n", u.At.Format(time.TimeOnly), chain.ShortAddress(u.Identity), u.Err)
				return
			}
			fmt.Printf("%s  %s  %s SOL\n", u.At.Format(time.TimeOnly), chain.ShortAddress(u.Identity), u.Balance.StringFixed(4))
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View ledger operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "History", "")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-12s  %s  %-8s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the RPC connection, wallet and store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Status", "")
		if err != nil {
			return err
		}
		defer a.Close()

		if v, err := a.CheckConnection(cmd.Context()); err != nil {
			fmt.Printf("RPC:    %v\n", err)
		} else {
			fmt.Printf("RPC:    solana-core %s\n", v)
		}
		if id, ok := a.Address(); ok {
			fmt.Printf("Wallet: %s\n", id)
		} else {
			fmt.Println("Wallet: not connected")
		}
		if err := a.CheckStore(cmd.Context()); err != nil {
			fmt.Printf("Store:  %v\n", err)
		} else {
			fmt.Printf("Store:  %s ok\n", a.Config().Store.Type)
		}
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a snapshot of the sqlite store to DEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Backup", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Backup(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("backing up store: %w", err)
		}
		fmt.Printf("Store backed up to %s\n", args[0])
		return nil
	},
}

// validityBar renders the remaining share of a token's validity.
func validityBar(fraction float64) string {
	const width = 10
	filled := int(fraction*width + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// durationFlag reads a validity flag clamped to [1, 365]. An unset flag
// yields 0 so the ledger applies its default.
func durationFlag(cmd *cobra.Command, name string) int {
	if !cmd.Flags().Changed(name) {
		return 0
	}
	days, _ := cmd.Flags().GetInt(name)
	return dtk.ClampDuration(days)
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return d, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("cluster", "", "Solana cluster (devnet, testnet, mainnet-beta)")
	configInitCmd.Flags().String("store", "", "Token store (memory, filesystem, sqlite, redis, s3)")
	configInitCmd.Flags().Bool("encrypt", false, "Encrypt stored tokens with age")

	// wallet subcommands
	walletCmd.AddCommand(walletKeygenCmd)
	walletCmd.AddCommand(walletAddressCmd)
	walletCmd.AddCommand(walletBalanceCmd)
	walletCmd.AddCommand(walletAirdropCmd)
	walletKeygenCmd.Flags().StringP("out", "o", "", "Keypair file (defaults to the configured wallet)")

	// token subcommands
	tokenCmd.AddCommand(tokenCreateCmd)
	tokenCmd.AddCommand(tokenListCmd)
	tokenCmd.AddCommand(tokenStatsCmd)
	tokenCmd.AddCommand(tokenUsageCmd)
	tokenCmd.AddCommand(tokenDeleteCmd)
	tokenCreateCmd.Flags().String("price", "", "Explicit price in SOL (defaults to the catalog price)")
	tokenCreateCmd.Flags().Int("days", dtk.DefaultDurationDays, "Validity in days, clamped to 1-365")
	tokenUsageCmd.Flags().IntP("count", "n", 1, "Number of usage events")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().String("demand", "1", "Demand signal")
	catalogCmd.Flags().Bool("samples", false, "Show a data sample for each type")
	rootCmd.AddCommand(priceCmd)
	priceCmd.Flags().String("demand", "1", "Demand signal")
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("interval", 0, "Refresh interval (defaults to the configured value)")
	watchCmd.Flags().String("metrics-addr", "", "Serve prometheus metrics on this address")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(backupCmd)
}
