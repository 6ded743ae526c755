package cmd

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"

	"onchaindice/internal/app"
	"onchaindice/internal/codec"
)

// nodeClient wraps the CometBFT RPC for txs and ABCI queries.
type nodeClient struct {
	rpc *rpchttp.HTTP
}

func newNodeClient(v *viper.Viper) (*nodeClient, error) {
	c, err := rpchttp.New(v.GetString(flagNode))
	if err != nil {
		return nil, fmt.Errorf("rpc client: %w", err)
	}
	return &nodeClient{rpc: c}, nil
}

func (c *nodeClient) query(ctx context.Context, path string, out any) error {
	res, err := c.rpc.ABCIQuery(ctx, path, nil)
	if err != nil {
		return err
	}
	if res.Response.Code != 0 {
		return fmt.Errorf("query %s: %s", path, res.Response.Log)
	}
	return json.Unmarshal(res.Response.Value, out)
}

func (c *nodeClient) params(ctx context.Context) (app.ParamsView, error) {
	var p app.ParamsView
	err := c.query(ctx, "/params", &p)
	return p, err
}

func (c *nodeClient) nextNonce(ctx context.Context, addr common.Address) (uint64, error) {
	var acct struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := c.query(ctx, "/account/"+addr.Hex(), &acct); err != nil {
		return 0, err
	}
	return acct.Nonce + 1, nil
}

// broadcast signs value as key's next tx and waits for it to be committed.
func (c *nodeClient) broadcast(ctx context.Context, key *ecdsa.PrivateKey, typ string, value any) (map[string]string, error) {
	nonce, err := c.nextNonce(ctx, crypto.PubkeyToAddress(key.PublicKey))
	if err != nil {
		return nil, err
	}
	tx, err := codec.NewSignedTx(typ, value, nonce, key)
	if err != nil {
		return nil, err
	}
	return c.broadcastRaw(ctx, tx)
}

func (c *nodeClient) broadcastRaw(ctx context.Context, tx []byte) (map[string]string, error) {
	res, err := c.rpc.BroadcastTxCommit(ctx, tx)
	if err != nil {
		return nil, err
	}
	if res.CheckTx.Code != 0 {
		return nil, fmt.Errorf("check tx: code=%d %s", res.CheckTx.Code, res.CheckTx.Log)
	}
	if res.TxResult.Code != 0 {
		return nil, fmt.Errorf("tx failed: %s/%d %s", res.TxResult.Codespace, res.TxResult.Code, res.TxResult.Log)
	}
	attrs := map[string]string{"txHash": res.Hash.String()}
	for _, ev := range res.TxResult.Events {
		attrs["event"] = ev.Type
		for _, a := range ev.Attributes {
			attrs[a.Key] = a.Value
		}
	}
	return attrs, nil
}
