// Package health holds the advisory checks the session manager consults
// before restoring and while connected. Checks never mutate state.
package health

import (
	"context"
	"time"

	logging "github.com/talentchain/go-walletd/lib/log"
	"github.com/talentchain/go-walletd/lib/types"
	"github.com/talentchain/go-walletd/submodule/connect"
)

var logger = logging.Logger("health")

// checkTimeout bounds each probe so a hung backend cannot stall the caller.
const checkTimeout = 10 * time.Second

type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// CanRestoreSilently reports whether conn still holds authorization for the
// recorded account without prompting anyone.
func (m *Monitor) CanRestoreSilently(ctx context.Context, conn connect.Connector, rec *types.SessionRecord) bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	accounts, err := conn.Accounts(ctx, rec)
	if err != nil {
		logger.Debugf("silent-restore probe for %s: %s", rec.Backend, err)
		return false
	}
	for _, acc := range accounts {
		if types.SameAccount(acc, rec.AccountID) {
			return true
		}
	}
	return false
}

// Healthy probes the connection with a lightweight balance read.
func (m *Monitor) Healthy(ctx context.Context, conn connect.Connector, sess *types.Session) bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if _, err := conn.Balance(ctx, sess.AccountID); err != nil {
		logger.Debugf("health probe for %s: %s", sess.Backend, err)
		return false
	}
	return true
}
