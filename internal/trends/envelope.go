package trends

import (
	"encoding/json"
	"fmt"
)

const (
	fieldKeywordCount = "searchedKeywordCount"
	fieldSearchMeta   = "searchMeta"
)

// Envelope is the caller-visible result. Payload fields are merged at the
// top level when encoded, next to searchedKeywordCount and searchMeta.
type Envelope struct {
	Payload              map[string]any
	SearchedKeywordCount int
	SearchMeta           SearchMeta
}

// MarshalJSON flattens the payload into the envelope object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+2)
	for k, v := range e.Payload {
		out[k] = v
	}
	out[fieldKeywordCount] = e.SearchedKeywordCount
	out[fieldSearchMeta] = e.SearchMeta
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}
