package main

import (
	"log"

	"launch-snipe/internal/jsonl"
)

type snipeLogEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"`

	Mode string `json:"mode,omitempty"` // dry | live

	Deployer     string `json:"deployer,omitempty"`
	Topic        string `json:"topic,omitempty"`
	VerifyOrigin bool   `json:"verify_origin,omitempty"`

	// Detection.
	Token       string `json:"token,omitempty"`
	Tier        string `json:"tier,omitempty"`
	EventTx     string `json:"event_tx,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	RxMs        int64  `json:"rx_ms,omitempty"`
	DetectLagMs int64  `json:"detect_lag_ms,omitempty"`

	// Swap.
	TokenIn  string `json:"token_in,omitempty"`
	AmountIn string `json:"amount_in,omitempty"`
	Attempt  int    `json:"attempt,omitempty"`
	SwapTx   string `json:"swap_tx,omitempty"`
	Category string `json:"category,omitempty"`

	Ok  bool   `json:"ok,omitempty"`
	Err string `json:"err,omitempty"`

	UptimeMs int64 `json:"uptime_ms,omitempty"`
}

func snipeMode(enableTrading bool) string {
	if enableTrading {
		return "live"
	}
	return "dry"
}

func logSnipeEvent(w *jsonl.Writer, ev snipeLogEvent) {
	if w == nil {
		return
	}
	if err := w.Write(ev); err != nil {
		log.Printf("[warn] event log write failed: %v", err)
	}
}
