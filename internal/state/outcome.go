package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrAlreadyResolved = errors.New("launch already resolved")

// Outcome records the result of a finished run so a restart does not snipe
// the same deployment twice.
type Outcome struct {
	ChainID  int64  `json:"chain_id"`
	Deployer string `json:"deployer"`
	Topic    string `json:"topic"`

	Token       string `json:"token"`
	Tier        string `json:"tier"`
	EventTx     string `json:"event_tx"`
	BlockNumber uint64 `json:"block_number"`
	DetectedAt  int64  `json:"detected_at_ms"`

	SwapTx    string `json:"swap_tx,omitempty"`
	SwapError string `json:"swap_error,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

// Matches reports whether o was produced for the same deployer and topic.
func (o Outcome) Matches(chainID int64, deployer, topic string) bool {
	return o.ChainID == chainID &&
		strings.EqualFold(o.Deployer, deployer) &&
		strings.EqualFold(o.Topic, topic)
}

func LoadOutcome(path string) (Outcome, bool, error) {
	if path == "" {
		return Outcome{}, false, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Outcome{}, false, nil
		}
		return Outcome{}, false, err
	}

	var o Outcome
	if err := json.Unmarshal(b, &o); err != nil {
		return Outcome{}, false, fmt.Errorf("parse outcome %s: %w", path, err)
	}
	return o, true, nil
}

// CheckNotResolved fails with ErrAlreadyResolved when path holds an outcome
// for the same deployment.
func CheckNotResolved(path string, chainID int64, deployer, topic string) error {
	o, ok, err := LoadOutcome(path)
	if err != nil || !ok {
		return err
	}
	if !o.Matches(chainID, deployer, topic) {
		return nil
	}
	return fmt.Errorf("%w: token=%s tx=%s (%s)", ErrAlreadyResolved, o.Token, o.EventTx, path)
}

// SaveOutcome writes o atomically via a temp file and rename.
func SaveOutcome(path string, o Outcome) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
