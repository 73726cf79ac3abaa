package client

import (
	"bytes"
	"encoding/json"

	"github.com/go-go-golems/samarth/pkg/conversation"
)

type rawQueryResponse struct {
	Answer   json.RawMessage `json:"answer"`
	Sources  json.RawMessage `json:"sources"`
	Data     json.RawMessage `json:"data"`
	Metadata json.RawMessage `json:"metadata"`
}

// decodeQueryResponse normalizes the query endpoint body. It reports false when
// the body is empty, null, or not a JSON object.
func decodeQueryResponse(b []byte) (*QueryResponse, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil, false
	}

	var raw rawQueryResponse
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, false
	}

	ret := &QueryResponse{
		Sources:  []conversation.SourceCitation{},
		Data:     decodeObject(raw.Data),
		Metadata: decodeObject(raw.Metadata),
	}

	var answer string
	if json.Unmarshal(raw.Answer, &answer) == nil {
		ret.Answer = answer
	}

	if isJSONArray(raw.Sources) {
		var sources []conversation.SourceCitation
		if json.Unmarshal(raw.Sources, &sources) == nil {
			ret.Sources = sources
		}
	}

	return ret, true
}

func decodeObject(b json.RawMessage) map[string]interface{} {
	ret := map[string]interface{}{}
	if !bytes.HasPrefix(bytes.TrimSpace(b), []byte("{")) {
		return ret
	}
	var m map[string]interface{}
	if json.Unmarshal(b, &m) == nil && m != nil {
		return m
	}
	return ret
}

func isJSONArray(b json.RawMessage) bool {
	return bytes.HasPrefix(bytes.TrimSpace(b), []byte("["))
}
