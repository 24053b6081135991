package cmd

import (
	"github.com/filecoin-project/go-jsonrpc"
	"github.com/urfave/cli/v2"

	"github.com/talentchain/go-walletd/api"
	"github.com/talentchain/go-walletd/api/client"
)

const FlagNodeRepo = "repo"

var CommonCmd []*cli.Command

func init() {
	CommonCmd = []*cli.Command{
		InitCmd,
		DaemonCmd,
		SessionCmd,
		WalletCmd,
		EventsCmd,
		AuthCmd,
		ConfigCmd,
	}
}

// getAPI dials the running daemon for the cli's repo dir.
func getAPI(cctx *cli.Context) (api.WalletNode, jsonrpc.ClientCloser, error) {
	repoDir := cctx.String(FlagNodeRepo)
	addr, headers, err := client.GetWalletClientInfo(repoDir)
	if err != nil {
		return nil, nil, err
	}
	return client.NewWalletNode(cctx.Context, addr, headers)
}
