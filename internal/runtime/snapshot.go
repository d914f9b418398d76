package runtime

import "encoding/json"

// encodeSnapshot serializes the Match for StateStore persistence. Kept
// as a thin wrapper rather than inlined so the wire format can diverge
// from arena.Match's JSON tags later without touching call sites.
func encodeSnapshot(m interface{}) ([]byte, error) {
	return json.Marshal(m)
}
