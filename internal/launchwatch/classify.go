package launchwatch

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Tier is the confidence a candidate was emitted on behalf of a trusted
// caller. Values are ordered by decreasing decision confidence.
type Tier uint8

const (
	TierTrustedExact Tier = iota
	TierTrustedPattern
	TierDistrustedExact
	TierDistrustedPattern
	TierUnverified
)

func (t Tier) String() string {
	switch t {
	case TierTrustedExact:
		return "TRUSTED_EXACT"
	case TierTrustedPattern:
		return "TRUSTED_PATTERN"
	case TierDistrustedExact:
		return "DISTRUSTED_EXACT"
	case TierDistrustedPattern:
		return "DISTRUSTED_PATTERN"
	case TierUnverified:
		return "UNVERIFIED"
	default:
		return fmt.Sprintf("Tier(%d)", uint8(t))
	}
}

func (t Tier) Trusted() bool {
	return t == TierTrustedExact || t == TierTrustedPattern
}

func (t Tier) Distrusted() bool {
	return t == TierDistrustedExact || t == TierDistrustedPattern
}

// DefaultTokenIndex is the position of the launched token in the decoded
// address sequence of the target event.
const DefaultTokenIndex = 1

type Candidate struct {
	Token     common.Address
	Tier      Tier
	Addresses []common.Address
}

// Classifier assigns a Tier using only the event payload. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	trusted    map[common.Address]struct{}
	distrusted map[common.Address]struct{}

	trustedHex    []string
	distrustedHex []string

	tokenIndex int
}

func NewClassifier(trusted, distrusted []common.Address, tokenIndex int) (*Classifier, error) {
	if len(trusted) == 0 {
		return nil, fmt.Errorf("at least one trusted caller required")
	}
	if tokenIndex < 0 || tokenIndex >= MaxAddresses {
		return nil, fmt.Errorf("token index %d out of range [0,%d)", tokenIndex, MaxAddresses)
	}

	c := &Classifier{
		trusted:    make(map[common.Address]struct{}, len(trusted)),
		distrusted: make(map[common.Address]struct{}, len(distrusted)),
		tokenIndex: tokenIndex,
	}
	for _, a := range trusted {
		c.trusted[a] = struct{}{}
		c.trustedHex = append(c.trustedHex, hex.EncodeToString(a.Bytes()))
	}
	for _, a := range distrusted {
		if _, ok := c.trusted[a]; ok {
			return nil, fmt.Errorf("address %s is both trusted and distrusted", a.Hex())
		}
		c.distrusted[a] = struct{}{}
		c.distrustedHex = append(c.distrustedHex, hex.EncodeToString(a.Bytes()))
	}
	return c, nil
}

// Classify returns false when the event carries too few addresses to name a
// token. Exact matches are resolved in sequence order; the payload pattern
// fallback checks distrusted identities first.
func (c *Classifier) Classify(addrs []common.Address, payload []byte) (Candidate, bool) {
	if len(addrs) < 2 || c.tokenIndex >= len(addrs) {
		return Candidate{}, false
	}
	cand := Candidate{Token: addrs[c.tokenIndex], Addresses: addrs}

	for _, a := range addrs {
		if _, ok := c.trusted[a]; ok {
			cand.Tier = TierTrustedExact
			return cand, true
		}
		if _, ok := c.distrusted[a]; ok {
			cand.Tier = TierDistrustedExact
			return cand, true
		}
	}

	text := hex.EncodeToString(payload)
	switch {
	case containsAny(text, c.distrustedHex):
		cand.Tier = TierDistrustedPattern
	case containsAny(text, c.trustedHex):
		cand.Tier = TierTrustedPattern
	default:
		cand.Tier = TierUnverified
	}
	return cand, true
}

func (c *Classifier) IsTrusted(addr common.Address) bool {
	_, ok := c.trusted[addr]
	return ok
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
