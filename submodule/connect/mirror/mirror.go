// Package mirror reads account state from a ledger mirror REST endpoint.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/talentchain/go-walletd/lib/types"
)

const requestTimeout = 10 * time.Second

// Client fetches account balances from a mirror node. The mirror is
// read-only and requires no authentication.
type Client struct {
	base string
	hc   *http.Client
}

func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: requestTimeout},
	}
}

type accountResp struct {
	Balance struct {
		Balance int64 `json:"balance"`
	} `json:"balance"`
}

// Balance returns the account balance in the ledger's smallest unit,
// formatted as a decimal string.
func (c *Client) Balance(ctx context.Context, account string) (string, error) {
	url := fmt.Sprintf("%s/api/v1/accounts/%s", c.base, account)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", xerrors.Errorf("mirror query: %w", types.ErrTimeout)
		}
		return "", xerrors.Errorf("mirror query: %w: %s", types.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", xerrors.Errorf("mirror query %s: %w: status %d", account, types.ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", xerrors.Errorf("mirror read: %w: %s", types.ErrTransport, err)
	}

	var ar accountResp
	if err := json.Unmarshal(body, &ar); err != nil {
		return "", xerrors.Errorf("mirror decode: %s", err)
	}
	return strconv.FormatInt(ar.Balance.Balance, 10), nil
}
