package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/talentchain/go-walletd/lib/types"
)

var SessionCmd = &cli.Command{
	Name:  "session",
	Usage: "Manage the wallet session",
	Subcommands: []*cli.Command{
		sessionConnectCmd,
		sessionDisconnectCmd,
		sessionStatusCmd,
		sessionResetCmd,
	},
}

var sessionConnectCmd = &cli.Command{
	Name:      "connect",
	Usage:     "Connect a wallet backend (ledger | injected | relay)",
	ArgsUsage: "<backend>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("expected one backend name, got %d args", cctx.NArg())
		}
		bt, err := types.ParseBackendType(cctx.Args().First())
		if err != nil {
			return err
		}

		napi, closer, err := getAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		fmt.Printf("Connecting %s, approve the request in your wallet...\n", bt)
		rec, err := napi.Connect(cctx.Context, bt)
		if err != nil {
			return err
		}

		fmt.Printf("Connected %s\n", rec.DisplayAddress)
		fmt.Printf("  backend:  %s\n", rec.Backend)
		fmt.Printf("  network:  %s (chain %d)\n", rec.NetworkName, rec.ChainID)
		fmt.Printf("  balance:  %s\n", rec.Balance)
		return nil
	},
}

var sessionDisconnectCmd = &cli.Command{
	Name:  "disconnect",
	Usage: "Disconnect the current session",
	Action: func(cctx *cli.Context) error {
		napi, closer, err := getAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := napi.Disconnect(cctx.Context); err != nil {
			return err
		}
		fmt.Println("Disconnected")
		return nil
	},
}

var sessionStatusCmd = &cli.Command{
	Name:  "status",
	Usage: "Show connection state and session details",
	Action: func(cctx *cli.Context) error {
		napi, closer, err := getAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		info, err := napi.ConnectionInfo(cctx.Context)
		if err != nil {
			return err
		}

		fmt.Printf("State: %s\n", info.State)
		if info.Session != nil {
			bs, err := json.MarshalIndent(info.Session, "", "\t")
			if err != nil {
				return err
			}
			fmt.Println(string(bs))
		} else if ok, err := napi.CanRestore(cctx.Context); err == nil && ok {
			fmt.Println("A saved session can be restored silently")
		}
		return nil
	},
}

var sessionResetCmd = &cli.Command{
	Name:  "reset",
	Usage: "Force-clear local connection state",
	Action: func(cctx *cli.Context) error {
		napi, closer, err := getAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := napi.ResetConnection(cctx.Context); err != nil {
			return err
		}
		fmt.Println("Connection state cleared")
		return nil
	},
}
