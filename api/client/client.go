// Package client dials a running walletd daemon over its jsonrpc API.
package client

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/mitchellh/go-homedir"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"golang.org/x/xerrors"

	"github.com/talentchain/go-walletd/api"
)

// GetWalletClientInfo reads the daemon's listen address and auth token out
// of the repo directory.
func GetWalletClientInfo(repoDir string) (string, http.Header, error) {
	repoPath, err := homedir.Expand(repoDir)
	if err != nil {
		return "", nil, err
	}

	rpcBytes, err := os.ReadFile(filepath.Join(repoPath, "api"))
	if err != nil {
		return "", nil, xerrors.Errorf("daemon not running? read api file: %w", err)
	}

	headers := http.Header{}
	if tokenBytes, err := os.ReadFile(filepath.Join(repoPath, "token")); err == nil {
		headers.Add("Authorization", "Bearer "+string(tokenBytes))
	}

	apima, err := multiaddr.NewMultiaddr(string(rpcBytes))
	if err != nil {
		return "", nil, err
	}
	_, addr, err := manet.DialArgs(apima)
	if err != nil {
		return "", nil, err
	}

	return "ws://" + addr + "/rpc/v0", headers, nil
}

// NewWalletNode opens a jsonrpc client against addr.
func NewWalletNode(ctx context.Context, addr string, requestHeader http.Header) (api.WalletNode, jsonrpc.ClientCloser, error) {
	var res api.WalletNodeStruct
	closer, err := jsonrpc.NewMergeClient(ctx, addr, "TalentChain",
		api.GetInternalStructs(&res), requestHeader)

	return &res, closer, err
}
