package paywall

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/xxh3"

	"github.com/Resinat/Paygate/internal/model"
)

// Key is a 128-bit identity for a (paywall id, event) fetch.
type Key [16]byte

// Hex returns the lowercase hex encoding of the key.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

func (k Key) String() string {
	return k.Hex()
}

// FetchKey derives the cache key for fetching paywallID for event. Only the
// parts of the event that influence the response participate: the raw name
// and both parameter maps. encoding/json sorts map keys at every level, so
// equal inputs always hash equally. Parameters that cannot be encoded fall
// back to keying on the name alone.
func FetchKey(paywallID string, event *model.EventData) Key {
	canonical := map[string]any{"paywall_id": paywallID}
	if event != nil {
		canonical["event"] = event.RawName
		if len(event.SuperwallParameters) > 0 {
			canonical["superwall"] = event.SuperwallParameters
		}
		if len(event.CustomParameters) > 0 {
			canonical["custom"] = event.CustomParameters
		}
	}
	raw, err := json.Marshal(canonical)
	if err != nil {
		delete(canonical, "superwall")
		delete(canonical, "custom")
		raw, _ = json.Marshal(canonical)
	}
	return hashBytes(raw)
}

func hashBytes(data []byte) Key {
	h128 := xxh3.Hash128(data)
	var k Key
	binary.LittleEndian.PutUint64(k[:8], h128.Lo)
	binary.LittleEndian.PutUint64(k[8:], h128.Hi)
	return k
}
