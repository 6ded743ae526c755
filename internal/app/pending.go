package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"onchaindice/internal/fhe"
)

const pendingFile = "pending.cbor"

// batch is the computation log of one successful tx. Batches reach the
// coprocessor one at a time so that a rejected batch only strands the
// handles of its own tx.
type batch struct {
	Height int64             `cbor:"1,keyasint"`
	TxIdx  int               `cbor:"2,keyasint"`
	Comps  []fhe.Computation `cbor:"3,keyasint"`
}

func loadPending(dir string) ([]batch, error) {
	b, err := os.ReadFile(filepath.Join(dir, pendingFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pending: %w", err)
	}
	var out []batch
	if err := cbor.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode pending: %w", err)
	}
	return out, nil
}

// savePending replaces the journal atomically. An empty journal removes the
// file.
func savePending(dir string, batches []batch) error {
	path := filepath.Join(dir, pendingFile)
	if len(batches) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove pending: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	b, err := cbor.Marshal(batches)
	if err != nil {
		return fmt.Errorf("encode pending: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write pending: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename pending: %w", err)
	}
	return nil
}

// FlushPending hands every journaled batch to the coprocessor in commit
// order and returns how many are still waiting. Batches the coprocessor
// rejects stay journaled and are retried on the next flush; the coprocessor
// stores results by handle, so replaying a batch is harmless.
func (a *DiceApp) FlushPending(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked(ctx)
}

func (a *DiceApp) flushLocked(ctx context.Context) (int, error) {
	if a.cop == nil {
		a.pending = nil
	}
	if len(a.pending) == 0 {
		return 0, savePending(filepath.Join(a.home, "app"), nil)
	}
	var kept []batch
	for _, b := range a.pending {
		if err := a.cop.Process(ctx, b.Comps); err != nil {
			a.logger.Error("coprocessor rejected computations", "height", b.Height, "tx", b.TxIdx, "count", len(b.Comps), "err", err)
			kept = append(kept, b)
			continue
		}
		a.logger.Debug("flushed computations", "height", b.Height, "tx", b.TxIdx, "count", len(b.Comps))
	}
	a.pending = kept
	if err := savePending(filepath.Join(a.home, "app"), kept); err != nil {
		return len(kept), err
	}
	return len(kept), nil
}
