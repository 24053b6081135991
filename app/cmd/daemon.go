package cmd

import (
	"fmt"
	_ "net/http/pprof"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/talentchain/go-walletd/build"
	"github.com/talentchain/go-walletd/lib/repo"
	basenode "github.com/talentchain/go-walletd/submodule/node"
)

const apiAddrKwd = "api"

var DaemonCmd = &cli.Command{
	Name:  "daemon",
	Usage: "Run the wallet session daemon",

	Subcommands: []*cli.Command{
		daemonStartCmd,
		daemonStopCmd,
	},
}

var daemonStartCmd = &cli.Command{
	Name:  "start",
	Usage: "Start the walletd daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  apiAddrKwd,
			Usage: "set the api addr to use",
			Value: "",
		},
	},
	Action: func(cctx *cli.Context) error {
		return daemonStartFunc(cctx)
	},
}

func daemonStartFunc(cctx *cli.Context) error {
	fmt.Printf("Initializing daemon...\n")

	printVersion()

	repoDir := cctx.String(FlagNodeRepo)

	rep, err := repo.NewFSRepo(repoDir, nil)
	if err != nil {
		return err
	}

	// The node will also close the repo but there are many places we could
	// fail before we get to that. It can't hurt to close it twice.
	defer rep.Close()

	cfg := rep.Config()
	if apiAddr := cctx.String(apiAddrKwd); apiAddr != "" {
		cfg.API.APIAddress = apiAddr
		if err := rep.ReplaceConfig(cfg); err != nil {
			return err
		}
	}

	node, err := basenode.New(cctx.Context, rep)
	if err != nil {
		return err
	}

	if err := node.Start(cctx.Context); err != nil {
		return err
	}

	ready := make(chan interface{}, 1)
	go func() {
		<-ready

		if sess := node.Manager().Current(); sess != nil {
			fmt.Printf("Restored %s session for %s\n", sess.Backend, sess.DisplayAddress)
		}
		fmt.Printf("Daemon is ready\n")
	}()

	return node.RunRPCAndWait(cctx.Context, ready)
}

var daemonStopCmd = &cli.Command{
	Name:  "stop",
	Usage: "Stop a running walletd daemon",
	Action: func(cctx *cli.Context) error {
		napi, closer, err := getAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		// the daemon disconnects the session as part of its shutdown
		return napi.Shutdown(cctx.Context)
	},
}

func printVersion() {
	v := build.UserVersion()
	fmt.Printf("walletd version: %s\n", v)
	fmt.Printf("System version: %s\n", runtime.GOARCH+"/"+runtime.GOOS)
	fmt.Printf("Golang version: %s\n", runtime.Version())
}
