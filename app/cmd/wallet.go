package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/talentchain/go-walletd/lib/types"
)

var WalletCmd = &cli.Command{
	Name:  "wallet",
	Usage: "Interact with the connected wallet",
	Subcommands: []*cli.Command{
		walletBalanceCmd,
		walletSignCmd,
		walletTransferCmd,
		walletHealthCmd,
	},
}

var walletBalanceCmd = &cli.Command{
	Name:  "balance",
	Usage: "Show the connected account balance",
	Action: func(cctx *cli.Context) error {
		napi, closer, err := getAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		bal, err := napi.Balance(cctx.Context)
		if err != nil {
			return err
		}
		fmt.Println(bal)
		return nil
	},
}

var walletSignCmd = &cli.Command{
	Name:      "sign",
	Usage:     "Sign a message with the connected account",
	ArgsUsage: "<message>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("expected one message argument")
		}

		napi, closer, err := getAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		fmt.Println("Waiting for wallet approval...")
		sig, err := napi.SignMessage(cctx.Context, []byte(cctx.Args().First()))
		if err != nil {
			return err
		}
		fmt.Printf("0x%s\n", hex.EncodeToString(sig))
		return nil
	},
}

var walletTransferCmd = &cli.Command{
	Name:  "transfer",
	Usage: "Send native currency to an account",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "to",
			Usage:    "recipient account id or address",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "amount",
			Usage:    "amount in the smallest unit, decimal",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		napi, closer, err := getAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		fmt.Println("Waiting for wallet approval...")
		txid, err := napi.SendTransaction(cctx.Context, &types.TxRequest{
			To:    cctx.String("to"),
			Value: cctx.String("amount"),
		})
		if err != nil {
			return err
		}
		fmt.Printf("submitted: %s\n", txid)
		return nil
	},
}

var walletHealthCmd = &cli.Command{
	Name:  "health",
	Usage: "Probe the live connection",
	Action: func(cctx *cli.Context) error {
		napi, closer, err := getAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		ok, err := napi.CheckHealth(cctx.Context)
		if err != nil {
			return err
		}
		if ok {
			fmt.Println("healthy")
		} else {
			fmt.Println("unhealthy")
		}
		return nil
	},
}
