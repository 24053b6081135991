package cmd

import (
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/talentchain/go-walletd/config"
	logging "github.com/talentchain/go-walletd/lib/log"
	"github.com/talentchain/go-walletd/lib/repo"
)

var log = logging.Logger("main")

var InitCmd = &cli.Command{
	Name:  "init",
	Usage: "Initialize a walletd repo",
	Action: func(cctx *cli.Context) error {
		repoDir := cctx.String(FlagNodeRepo)

		exist, err := repo.Exists(repoDir)
		if err != nil {
			return err
		}
		if exist {
			return xerrors.Errorf("repo at '%s' is already initialized", repoDir)
		}

		log.Infof("Initializing repo at '%s'", repoDir)

		rep, err := repo.NewFSRepo(repoDir, config.NewDefaultConfig())
		if err != nil {
			return err
		}
		return rep.Close()
	},
}
