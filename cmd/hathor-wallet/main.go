// hathor-wallet is a command-line wallet for the Hathor network.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/config"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/log"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/rpcclient"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/storage"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/token"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/internal/wallet"
	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.DefaultMainnet()

	// Parse global flags that appear before the subcommand.
	args := os.Args[1:]
	confPath := ""
	for len(args) > 0 {
		switch {
		case args[0] == "--conf" && len(args) > 1:
			confPath = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--conf="):
			confPath = args[0][len("--conf="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			cfg = config.Default(config.NetworkType(args[1]))
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			cfg = config.Default(config.NetworkType(args[0][len("--network="):]))
			args = args[1:]
		case args[0] == "--node" && len(args) > 1:
			cfg.Node.URL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--node="):
			cfg.Node.URL = args[0][len("--node="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			cfg.DataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			cfg.DataDir = args[0][len("--datadir="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if confPath != "" {
		values, err := config.LoadFile(confPath)
		if err != nil {
			fatal("load config: %v", err)
		}
		if err := config.ApplyFileConfig(cfg, values); err != nil {
			fatal("apply config: %v", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		fatal("invalid config: %v", err)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}

	if cfg.Network == config.Testnet {
		types.SetAddressVersion(types.TestnetP2PKHVersion)
	} else {
		types.SetAddressVersion(types.MainnetP2PKHVersion)
	}

	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "init":
		cmdInit(cfg, cmdArgs)
	case "import":
		cmdImport(cfg, cmdArgs)
	case "list":
		cmdList(cfg)
	case "address":
		cmdAddress(cfg, cmdArgs)
	case "balance":
		cmdBalance(cfg, cmdArgs)
	case "send":
		cmdSend(cfg, cmdArgs)
	case "consolidate":
		cmdConsolidate(cfg, cmdArgs)
	case "token":
		cmdToken(cfg, cmdArgs)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: hathor-wallet [global flags] <command> [flags]

Global flags:
  --conf <path>       Config file (key = value format)
  --network <net>     mainnet (default) or testnet
  --node <url>        Node base URL
  --datadir <path>    Data directory (default: ~/.hathor-wallet)

Commands:
  init --name <w>                 Create a new wallet (prints the mnemonic)
  import --name <w>               Import a wallet from a mnemonic
  list                            List wallets
  address --wallet <w>            Show the current receiving address
  balance --wallet <w> [--token <uid>]
                                  Show a token balance
  send --wallet <w> --to <addr> --amount <n> [--token <uid>]
                                  Send tokens
  consolidate --wallet <w> --to <addr> [--token <uid>] [--bigger-than <n>] [--smaller-than <n>] [--max-amount <n>]
                                  Merge utxos into one output
  token create --wallet <w> --name <n> --symbol <s> --amount <n> [--fee-policy]
                                  Create a new custom token
`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// openWallet loads the named wallet, opens its scoped database and syncs
// its address history from the node.
func openWallet(cfg *config.Config, name string) (*wallet.Wallet, storage.DB, error) {
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return nil, nil, err
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		return nil, nil, err
	}
	seed, _, err := ks.Load(name, password)
	if err != nil {
		return nil, nil, err
	}

	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return nil, nil, err
	}
	account, err := master.DeriveAccount(0)
	if err != nil {
		return nil, nil, err
	}

	db, err := storage.NewBadger(filepath.Join(cfg.DBDir(), "wallets"))
	if err != nil {
		return nil, nil, err
	}
	scoped := storage.NewPrefixDB(db, []byte(name+"/"))

	client := rpcclient.NewWithTimeout(cfg.Node.URL, time.Duration(cfg.Node.TimeoutSeconds)*time.Second)
	w, err := wallet.Open(scoped, account, wallet.Options{
		GapLimit:   cfg.Wallet.GapLimit,
		MaxInputs:  cfg.Wallet.MaxInputs,
		MaxOutputs: cfg.Wallet.MaxOutputs,
		Submitter:  client,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	if err := syncWallet(w, client); err != nil {
		db.Close()
		return nil, nil, err
	}
	return w, db, nil
}

// syncWallet pulls node parameters and the full address history.
func syncWallet(w *wallet.Wallet, client *rpcclient.Client) error {
	ctx := context.Background()

	info, err := client.Version(ctx)
	if err != nil {
		return fmt.Errorf("fetch node info: %w", err)
	}
	w.SetServerLimits(info.MaxInputs, info.MaxOutputs)
	w.SetHeight(info.Height)

	// History can grow the address set; loop until no new addresses
	// appear within the gap window.
	synced := make(map[string]bool)
	for {
		var pending []string
		for _, e := range w.Addresses() {
			if addr := e.Address.String(); !synced[addr] {
				pending = append(pending, addr)
				synced[addr] = true
			}
		}
		if len(pending) == 0 {
			break
		}
		events, err := client.AddressHistory(ctx, pending)
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}
		for _, ev := range events {
			if err := w.ApplyEvent(ev); err != nil {
				log.Sync.Warn().Err(err).Str("tx_id", ev.TxID.String()).Msg("history event rejected")
			}
		}
	}

	// The node pages history per address, so a spend can land before its
	// funding transaction. One rebuild settles the index.
	if err := w.ProcessHistory(); err != nil {
		return fmt.Errorf("reprocess history: %w", err)
	}
	return nil
}

func cmdInit(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	name := fs.String("name", "", "wallet name")
	fs.Parse(args)
	if *name == "" {
		fatal("--name is required")
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}
	createWallet(cfg, *name, mnemonic)

	fmt.Println("Wallet created. Write down the recovery phrase:")
	fmt.Println()
	fmt.Println("  " + mnemonic)
}

func cmdImport(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	name := fs.String("name", "", "wallet name")
	mnemonic := fs.String("mnemonic", "", "24-word recovery phrase")
	fs.Parse(args)
	if *name == "" || *mnemonic == "" {
		fatal("--name and --mnemonic are required")
	}
	if !wallet.ValidateMnemonic(*mnemonic) {
		fatal("invalid mnemonic")
	}
	createWallet(cfg, *name, *mnemonic)
	fmt.Println("Wallet imported.")
}

func createWallet(cfg *config.Config, name, mnemonic string) {
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	password, err := readPassword("Choose a password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}
	if err := ks.Create(name, string(cfg.Network), seed, password, wallet.DefaultParams()); err != nil {
		fatal("create wallet: %v", err)
	}
}

func cmdList(cfg *config.Config) {
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	names, err := ks.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets.")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func cmdAddress(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	name := fs.String("wallet", "", "wallet name")
	fs.Parse(args)
	if *name == "" {
		fatal("--wallet is required")
	}

	w, db, err := openWallet(cfg, *name)
	if err != nil {
		fatal("%v", err)
	}
	defer db.Close()

	entry, err := w.CurrentAddress()
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(entry.Address)
}

func parseToken(s string) types.TokenID {
	if s == "" {
		return types.NativeTokenID
	}
	id, err := types.ParseTokenID(s)
	if err != nil {
		fatal("invalid token uid %q: %v", s, err)
	}
	return id
}

func cmdBalance(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	name := fs.String("wallet", "", "wallet name")
	tokenUID := fs.String("token", "", "token uid (default: HTR)")
	fs.Parse(args)
	if *name == "" {
		fatal("--wallet is required")
	}

	w, db, err := openWallet(cfg, *name)
	if err != nil {
		fatal("%v", err)
	}
	defer db.Close()

	bal, err := w.GetBalance(parseToken(*tokenUID))
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Unlocked:     %d\n", bal.Unlocked)
	fmt.Printf("Locked:       %d\n", bal.Locked)
	fmt.Printf("Transactions: %d\n", bal.Transactions)
	if bal.UnlockedAuthorities.Mint > 0 || bal.UnlockedAuthorities.Melt > 0 {
		fmt.Printf("Authorities:  mint=%d melt=%d\n",
			bal.UnlockedAuthorities.Mint, bal.UnlockedAuthorities.Melt)
	}
}

func cmdSend(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	name := fs.String("wallet", "", "wallet name")
	to := fs.String("to", "", "destination address")
	amount := fs.String("amount", "", "amount to send")
	tokenUID := fs.String("token", "", "token uid (default: HTR)")
	fs.Parse(args)
	if *name == "" || *to == "" || *amount == "" {
		fatal("--wallet, --to and --amount are required")
	}

	dest, err := types.ParseAddress(*to)
	if err != nil {
		fatal("invalid address: %v", err)
	}
	value, err := strconv.ParseInt(*amount, 10, 64)
	if err != nil {
		fatal("invalid amount: %v", err)
	}

	w, db, err := openWallet(cfg, *name)
	if err != nil {
		fatal("%v", err)
	}
	defer db.Close()

	built, err := w.SendTransaction(context.Background(), dest, value, wallet.SendOptions{
		Token: parseToken(*tokenUID),
	})
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Sent. tx: %s\n", built.ID())
}

func cmdConsolidate(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("consolidate", flag.ExitOnError)
	name := fs.String("wallet", "", "wallet name")
	to := fs.String("to", "", "destination address (must be owned)")
	tokenUID := fs.String("token", "", "token uid (default: HTR)")
	biggerThan := fs.Uint64("bigger-than", 0, "only utxos strictly above this value")
	smallerThan := fs.Uint64("smaller-than", 0, "only utxos strictly below this value")
	maxAmount := fs.Uint64("max-amount", 0, "cap on total consolidated value")
	fs.Parse(args)
	if *name == "" || *to == "" {
		fatal("--wallet and --to are required")
	}

	dest, err := types.ParseAddress(*to)
	if err != nil {
		fatal("invalid address: %v", err)
	}

	w, db, err := openWallet(cfg, *name)
	if err != nil {
		fatal("%v", err)
	}
	defer db.Close()

	res, err := w.ConsolidateUtxos(context.Background(), dest, wallet.ConsolidateOptions{
		Token:             parseToken(*tokenUID),
		AmountBiggerThan:  *biggerThan,
		AmountSmallerThan: *smallerThan,
		MaxAmount:         *maxAmount,
	})
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Consolidated %d utxos (total %d) into %s. tx: %s\n",
		res.TotalConsolidated, res.TotalAmount, dest, res.TxID)
}

func cmdToken(cfg *config.Config, args []string) {
	if len(args) == 0 || args[0] != "create" {
		usage()
		os.Exit(1)
	}
	fs := flag.NewFlagSet("token create", flag.ExitOnError)
	name := fs.String("wallet", "", "wallet name")
	tokenName := fs.String("name", "", "token name")
	symbol := fs.String("symbol", "", "token symbol")
	amount := fs.Uint64("amount", 0, "initial supply")
	feePolicy := fs.Bool("fee-policy", false, "create under the fee policy instead of deposit")
	fs.Parse(args[1:])
	if *name == "" || *tokenName == "" || *symbol == "" || *amount == 0 {
		fatal("--wallet, --name, --symbol and --amount are required")
	}

	w, db, err := openWallet(cfg, *name)
	if err != nil {
		fatal("%v", err)
	}
	defer db.Close()

	policy := token.PolicyDeposit
	if *feePolicy {
		policy = token.PolicyFee
	}
	_, id, err := w.CreateToken(context.Background(), *tokenName, *symbol, *amount, wallet.CreateTokenOptions{
		Policy:     policy,
		CreateMint: true,
		CreateMelt: true,
	})
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Token created: %s (%s) uid %s\n", *tokenName, *symbol, id)
}
