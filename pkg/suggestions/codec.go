package suggestions

import (
	"github.com/bytedance/sonic"

	"github.com/metasync/seo-gateway/pkg/types"
)

// Map keys are sorted so equal payloads always encode to equal bytes.
var jsonAPI = sonic.Config{
	UseNumber:   true,
	SortMapKeys: true,
}.Froze()

// entry is what the live key holds: either a payload or a negative marker.
type entry struct {
	Negative bool           `json:"negative,omitempty"`
	Payload  *types.Payload `json:"payload,omitempty"`
	StoredAt int64          `json:"stored_at"`
}

func encodeEntry(e entry) (string, error) {
	data, err := jsonAPI.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeEntry(raw string) (entry, error) {
	var e entry
	err := jsonAPI.UnmarshalFromString(raw, &e)
	return e, err
}

// DecodePayload parses an upstream response body.
func DecodePayload(body []byte) (*types.Payload, error) {
	var p types.Payload
	if err := jsonAPI.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
