package advisor

import (
	"encoding/json"
	"strings"

	"stockpilot/pkg/types"
)

// decisionPayload is the JSON shape the model is asked to produce.
type decisionPayload struct {
	Decisions []decisionEntry `json:"decisions"`
}

type decisionEntry struct {
	Action       string  `json:"action"`
	Ticker       string  `json:"ticker"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
	PositionSize float64 `json:"position_size"`
	Quantity     int     `json:"quantity"`
}

// ExtractJSON locates the outermost balanced brace pair in s and returns it.
// Model responses routinely wrap the payload in prose or truncate it; the
// scan tolerates leading/trailing text and stops at the first object that
// closes. String literals and escapes are honored so braces inside values
// do not confuse the depth count.
func ExtractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseDecisions converts a raw model response into proposed orders.
// HOLD decisions and entries without a ticker are dropped; confidence is
// clamped to [0,1]. ok is false when no JSON object could be recovered.
func ParseDecisions(response string) (orders []types.ProposedOrder, holds int, ok bool) {
	payload, found := ExtractJSON(response)
	if !found {
		return nil, 0, false
	}

	var parsed decisionPayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, 0, false
	}

	for _, d := range parsed.Decisions {
		action := strings.ToUpper(strings.TrimSpace(d.Action))
		ticker := strings.ToUpper(strings.TrimSpace(d.Ticker))
		if ticker == "" {
			continue
		}
		if action == "HOLD" {
			holds++
			continue
		}
		if action != string(types.SideBuy) && action != string(types.SideSell) {
			continue
		}

		confidence := d.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		orders = append(orders, types.ProposedOrder{
			Ticker:     ticker,
			Side:       types.OrderSide(action),
			Quantity:   d.Quantity,
			Weight:     d.PositionSize,
			Rationale:  d.Reasoning,
			Confidence: confidence,
		})
	}
	return orders, holds, true
}
