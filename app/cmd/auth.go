package cmd

import (
	"fmt"

	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	wauth "github.com/talentchain/go-walletd/submodule/auth"
)

var AuthCmd = &cli.Command{
	Name:  "auth",
	Usage: "Manage API tokens",
	Subcommands: []*cli.Command{
		authCreateTokenCmd,
	},
}

var authCreateTokenCmd = &cli.Command{
	Name:  "create-token",
	Usage: "Create an API token",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "perm",
			Usage: "permission to assign to the token, one of: read, write, sign, admin",
			Value: "read",
		},
	},
	Action: func(cctx *cli.Context) error {
		napi, closer, err := getAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		perm := cctx.String("perm")
		idx := 0
		for i, p := range wauth.AllPermissions {
			if auth.Permission(perm) == p {
				idx = i + 1
			}
		}
		if idx == 0 {
			return xerrors.Errorf("unknown permission %q", perm)
		}

		tk, err := napi.AuthNew(cctx.Context, wauth.AllPermissions[:idx])
		if err != nil {
			return err
		}
		fmt.Println(string(tk))
		return nil
	},
}
