package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/urfave/cli.v1"

	"github.com/fortiblox/x1-agentmarket/pkg/client"
	"github.com/fortiblox/x1-agentmarket/pkg/crypto"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/compute_budget"
)

const requestTimeout = 60 * time.Second

var (
	keygenCommand = cli.Command{
		Name:      "keygen",
		Usage:     "Generate a new key file",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "outfile, o", Usage: "Where to write the key (default: --keypair)"},
			cli.BoolFlag{Name: "force", Usage: "Overwrite an existing key file"},
		},
		Action: keygen,
	}
	addressCommand = cli.Command{
		Name:   "address",
		Usage:  "Print the public key of --keypair",
		Action: address,
	}
	airdropCommand = cli.Command{
		Name:      "airdrop",
		Usage:     "Request SOL from the node's faucet",
		ArgsUsage: "<amount-sol> [recipient]",
		Action:    airdrop,
	}
	balanceCommand = cli.Command{
		Name:      "balance",
		Usage:     "Show an account balance",
		ArgsUsage: "[account]",
		Action:    balance,
	}
	registerCommand = cli.Command{
		Name:  "register",
		Usage: "Register a new agent owned by --keypair",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "name", Usage: "Agent name"},
			cli.StringFlag{Name: "description", Usage: "What the agent does"},
			cli.StringFlag{Name: "endpoint", Usage: "URL callers reach the agent at"},
			cli.StringFlag{Name: "price", Usage: "Price per invocation in SOL", Value: "0"},
			cli.StringFlag{Name: "record-keypair", Usage: "Key file for the record address (default: random)"},
		},
		Action: register,
	}
	invokeCommand = cli.Command{
		Name:      "invoke",
		Usage:     "Pay an agent its price from --keypair",
		ArgsUsage: "<record>",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "owner", Usage: "Owner account to pay (default: read from the record)"},
		},
		Action: invoke,
	}
	showCommand = cli.Command{
		Name:      "show",
		Usage:     "Show an agent record",
		ArgsUsage: "<record>",
		Flags:     []cli.Flag{jsonFlag},
		Action:    show,
	}
	listCommand = cli.Command{
		Name:  "list",
		Usage: "List registered agents",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "owner", Usage: "Only agents owned by this account"},
			cli.BoolFlag{Name: "mine", Usage: "Only agents owned by --keypair"},
			jsonFlag,
		},
		Action: list,
	}
	idlCommand = cli.Command{
		Name:   "idl",
		Usage:  "Print the program interface description",
		Action: idl,
	}
)

func newClient(ctx *cli.Context) (*client.Client, error) {
	var opts []client.Option
	if id := ctx.GlobalString(programIDFlag.Name); id != "" {
		pk, err := solana.PublicKeyFromBase58(id)
		if err != nil {
			return nil, fmt.Errorf("invalid program id: %w", err)
		}
		opts = append(opts, client.WithProgramID(pk))
	}
	limit := ctx.GlobalUint(computeUnitLimitFlag.Name)
	if limit > uint(compute_budget.MaxComputeUnits) {
		return nil, fmt.Errorf("compute unit limit %d exceeds %d", limit, compute_budget.MaxComputeUnits)
	}
	if price := ctx.GlobalUint64(priorityFeeFlag.Name); price > 0 || limit > 0 {
		opts = append(opts, client.WithComputeBudget(uint32(limit), price))
	}
	return client.New(ctx.GlobalString("url"), opts...), nil
}

func signer(ctx *cli.Context) (solana.PrivateKey, error) {
	path := ctx.GlobalString("keypair")
	key, err := client.LoadPrivateKey(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no key file at %s, run 'agentctl keygen' first", path)
		}
		return nil, err
	}
	return key, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func publicKeyArg(ctx *cli.Context, index int, what string) (solana.PublicKey, error) {
	arg := ctx.Args().Get(index)
	if arg == "" {
		return solana.PublicKey{}, fmt.Errorf("missing %s argument", what)
	}
	pk, err := solana.PublicKeyFromBase58(arg)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", what, arg, err)
	}
	return pk, nil
}

func keygen(ctx *cli.Context) error {
	path := ctx.String("outfile")
	if path == "" {
		path = ctx.GlobalString("keypair")
	}
	if _, err := os.Stat(path); err == nil && !ctx.Bool("force") {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if err := crypto.SaveKeypairFile(path, kp); err != nil {
		return err
	}
	fmt.Printf("Wrote new keypair to %s\n", path)
	fmt.Printf("pubkey: %s\n", kp.Pubkey())
	return nil
}

func address(ctx *cli.Context) error {
	key, err := signer(ctx)
	if err != nil {
		return err
	}
	fmt.Println(key.PublicKey())
	return nil
}

func airdrop(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return errors.New("missing amount argument")
	}
	lamports, err := client.ParseSOL(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	var to solana.PublicKey
	if ctx.NArg() > 1 {
		if to, err = publicKeyArg(ctx, 1, "recipient"); err != nil {
			return err
		}
	} else {
		key, err := signer(ctx)
		if err != nil {
			return err
		}
		to = key.PublicKey()
	}

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	rctx, cancel := requestContext()
	defer cancel()

	sig, err := c.Airdrop(rctx, to, lamports)
	if err != nil {
		return err
	}
	fmt.Printf("Airdropped %s to %s\n", client.FormatSOL(lamports), to)
	fmt.Printf("Signature: %s\n", sig)
	return nil
}

func balance(ctx *cli.Context) error {
	var account solana.PublicKey
	var err error
	if ctx.NArg() > 0 {
		if account, err = publicKeyArg(ctx, 0, "account"); err != nil {
			return err
		}
	} else {
		key, err := signer(ctx)
		if err != nil {
			return err
		}
		account = key.PublicKey()
	}

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	rctx, cancel := requestContext()
	defer cancel()

	lamports, err := c.Balance(rctx, account)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%d lamports)\n", client.FormatSOL(lamports), lamports)
	return nil
}

func register(ctx *cli.Context) error {
	price, err := client.ParseSOL(ctx.String("price"))
	if err != nil {
		return fmt.Errorf("invalid price: %w", err)
	}
	args := agentmarket.RegisterAgent{
		AgentName:   ctx.String("name"),
		Description: ctx.String("description"),
		Endpoint:    ctx.String("endpoint"),
		Price:       price,
	}
	if args.AgentName == "" || args.Endpoint == "" {
		return errors.New("--name and --endpoint are required")
	}

	owner, err := signer(ctx)
	if err != nil {
		return err
	}
	record, err := recordKey(ctx.String("record-keypair"))
	if err != nil {
		return err
	}

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	rctx, cancel := requestContext()
	defer cancel()

	sig, err := c.RegisterAgentAt(rctx, owner, record, args)
	if err != nil {
		return describe(err)
	}
	fmt.Printf("Registered agent %q\n", args.AgentName)
	fmt.Printf("Record:    %s\n", record.PublicKey())
	fmt.Printf("Signature: %s\n", sig)
	return nil
}

func recordKey(path string) (solana.PrivateKey, error) {
	if path == "" {
		return solana.NewRandomPrivateKey()
	}
	return client.LoadPrivateKey(path)
}

func invoke(ctx *cli.Context) error {
	record, err := publicKeyArg(ctx, 0, "record")
	if err != nil {
		return err
	}
	user, err := signer(ctx)
	if err != nil {
		return err
	}
	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	rctx, cancel := requestContext()
	defer cancel()

	var sig solana.Signature
	if owner := ctx.String("owner"); owner != "" {
		ownerKey, perr := solana.PublicKeyFromBase58(owner)
		if perr != nil {
			return fmt.Errorf("invalid owner: %w", perr)
		}
		sig, err = c.InvokeAgentWithOwner(rctx, user, record, ownerKey)
	} else {
		sig, err = c.InvokeAgent(rctx, user, record)
	}
	if err != nil {
		return describe(err)
	}
	fmt.Printf("Invoked agent %s\n", record)
	fmt.Printf("Signature: %s\n", sig)
	return nil
}

// agentView is the printed form of a record.
type agentView struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Endpoint    string `json:"endpoint"`
	Price       uint64 `json:"price"`
	Owner       string `json:"owner"`
}

func newAgentView(addr solana.PublicKey, a *agentmarket.Agent) agentView {
	return agentView{
		Address:     addr.String(),
		Name:        a.Name,
		Description: a.Description,
		Endpoint:    a.Endpoint,
		Price:       a.Price,
		Owner:       a.Owner.String(),
	}
}

func (v agentView) print(w io.Writer) {
	fmt.Fprintf(w, "Agent:       %s\n", v.Name)
	fmt.Fprintf(w, "Record:      %s\n", v.Address)
	fmt.Fprintf(w, "Owner:       %s\n", v.Owner)
	fmt.Fprintf(w, "Endpoint:    %s\n", v.Endpoint)
	fmt.Fprintf(w, "Price:       %s\n", client.FormatSOL(v.Price))
	fmt.Fprintf(w, "Description: %s\n", v.Description)
}

func show(ctx *cli.Context) error {
	record, err := publicKeyArg(ctx, 0, "record")
	if err != nil {
		return err
	}
	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	rctx, cancel := requestContext()
	defer cancel()

	agent, err := c.GetAgent(rctx, record)
	if err != nil {
		return err
	}
	view := newAgentView(record, agent)
	if ctx.Bool("json") {
		return printJSON(view)
	}
	view.print(os.Stdout)
	return nil
}

func list(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	rctx, cancel := requestContext()
	defer cancel()

	var agents []client.AgentAccount
	switch {
	case ctx.Bool("mine"):
		key, serr := signer(ctx)
		if serr != nil {
			return serr
		}
		agents, err = c.ListAgentsByOwner(rctx, key.PublicKey())
	case ctx.String("owner") != "":
		owner, perr := solana.PublicKeyFromBase58(ctx.String("owner"))
		if perr != nil {
			return fmt.Errorf("invalid owner: %w", perr)
		}
		agents, err = c.ListAgentsByOwner(rctx, owner)
	default:
		agents, err = c.ListAgents(rctx)
	}
	if err != nil {
		return err
	}

	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, newAgentView(a.Address, a.Agent))
	}
	if ctx.Bool("json") {
		return printJSON(views)
	}
	if len(views) == 0 {
		fmt.Println("No agents registered")
		return nil
	}
	for i, v := range views {
		if i > 0 {
			fmt.Println()
		}
		v.print(os.Stdout)
	}
	return nil
}

func idl(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	rctx, cancel := requestContext()
	defer cancel()

	desc, err := c.IDL(rctx)
	if err != nil {
		return err
	}
	return printJSON(desc)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe adds the program logs of a rejected transaction to err.
func describe(err error) error {
	var se *client.SendError
	if !errors.As(err, &se) || len(se.Logs) == 0 {
		return err
	}
	for _, line := range se.Logs {
		fmt.Fprintln(os.Stderr, "  "+line)
	}
	return err
}
