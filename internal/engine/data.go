package engine

import (
	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/metrics"
	"firestige.xyz/strix/internal/registry"
)

// dissectData is the fallback for bytes no dissector claimed.
func (e *Engine) dissectData(c *registry.Call) error {
	n := c.Cursor.Len()
	root, err := c.AddRoot(0, -1)
	if err != nil {
		return err
	}
	root.SetText("Data (%d bytes)", n)
	d, err := c.Add(root, hfData, 0, n)
	if err != nil {
		return err
	}
	d.SetText("%d unclaimed bytes", n)
	c.Tree.AddGenerated(root, hfDataLen, core.UintValue(32, uint64(n))).SetHidden()

	if e.metrics {
		metrics.UnclaimedBytesTotal.Add(float64(n))
	}
	return nil
}
