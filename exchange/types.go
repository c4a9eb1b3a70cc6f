// Package exchange is a thin typed client over the perp-futures info
// endpoint and subscription WebSocket, grounded on the teacher's
// market/api_client.go pattern (typed request/response structs, a
// *http.Client field, JSON-boundary parsing). Numeric fields arrive from
// the wire as strings; they are parsed once here into float64/int64 so the
// rest of the codebase carries typed numbers (§9 design note).
package exchange

import (
	"encoding/json"
	"strconv"
)

// Number unmarshals either a JSON string or number into a float64.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

type MarginSummary struct {
	AccountValue Number `json:"accountValue"`
}

type WirePosition struct {
	Coin            string  `json:"coin"`
	Szi             Number  `json:"szi"`
	EntryPx         Number  `json:"entryPx"`
	PositionValue   Number  `json:"positionValue"`
	UnrealizedPnl   Number  `json:"unrealizedPnl"`
	MarginUsed      Number  `json:"marginUsed"`
	LiquidationPx   *Number `json:"liquidationPx"`
	Leverage        struct {
		Type  string `json:"type"`
		Value Number `json:"value"`
	} `json:"leverage"`
}

type AssetPosition struct {
	Position WirePosition `json:"position"`
}

type ClearinghouseState struct {
	MarginSummary  MarginSummary   `json:"marginSummary"`
	AssetPositions []AssetPosition `json:"assetPositions"`
}

type Fill struct {
	Coin       string `json:"coin"`
	Px         Number `json:"px"`
	Sz         Number `json:"sz"`
	Side       string `json:"side"` // "B" buy, "A" sell
	Time       int64  `json:"time"` // epoch millis
	ClosedPnl  Number `json:"closedPnl"`
	Dir        string `json:"dir"`
	Hash       string `json:"hash"`
	Fee        Number `json:"fee"`
	Oid        int64  `json:"oid"`
	Crossed    bool   `json:"crossed"`
	Liquidation bool  `json:"liquidation,omitempty"`
}

type OpenOrder struct {
	Coin       string  `json:"coin"`
	Side       string  `json:"side"`
	LimitPx    Number  `json:"limitPx"`
	Sz         Number  `json:"sz"`
	Oid        int64   `json:"oid"`
	Timestamp  int64   `json:"timestamp"`
	OrigSz     Number  `json:"origSz"`
	OrderType  string  `json:"orderType"`
	ReduceOnly bool    `json:"reduceOnly"`
	TriggerPx  *Number `json:"triggerPx,omitempty"`
	IsTrigger  bool    `json:"isTrigger"`
}

type Candle struct {
	T int64  `json:"t"`
	O Number `json:"o"`
	H Number `json:"h"`
	L Number `json:"l"`
	C Number `json:"c"`
	V Number `json:"v"`
	N int64  `json:"n"`
}

type AssetCtx struct {
	Funding      Number `json:"funding"`
	Premium      Number `json:"premium"`
	OpenInterest Number `json:"openInterest"`
	MarkPx       Number `json:"markPx"`
	MidPx        Number `json:"midPx"`
}

// WsFill mirrors Fill for the WS userFills channel payload.
type WsFill = Fill

type WsFillsData struct {
	User  string   `json:"user"`
	Fills []WsFill `json:"fills"`
}

type WsTrade struct {
	Coin string `json:"coin"`
	Side string `json:"side"`
	Px   Number `json:"px"`
	Sz   Number `json:"sz"`
	Time int64  `json:"time"`
}

type WsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Unavailable marks a result as unavailable due to a transient upstream
// failure (§4.1, §7) — callers skip the address this cycle and keep prior
// state rather than propagating an error up the call stack.
type Unavailable struct {
	Reason string
}

func (u *Unavailable) Error() string { return "exchange: unavailable: " + u.Reason }
