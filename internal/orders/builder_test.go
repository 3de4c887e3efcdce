package orders

import (
	"testing"

	"github.com/shopspring/decimal"

	"executor/internal/broker"
	"executor/internal/planning"
)

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"10.005", "10.01"},
		{"10.004", "10"},
		{"1", "1"},
		{"0.99995", "1"},
		{"0.123456", "0.1235"},
		{"0.00004", "0"},
	}
	for _, tt := range tests {
		got := RoundPrice(decimal.RequireFromString(tt.in))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Fatalf("RoundPrice(%s)=%s want %s", tt.in, got, tt.want)
		}
	}
}

func TestRoundPriceIdempotent(t *testing.T) {
	for i := 0; i < 5000; i++ {
		x := decimal.New(int64(i*37+1), -5)
		once := RoundPrice(x)
		if twice := RoundPrice(once); !twice.Equal(once) {
			t.Fatalf("RoundPrice not idempotent for %s: %s then %s", x, once, twice)
		}
	}
}

func TestBuildMarketNoExit(t *testing.T) {
	for _, side := range []string{"buy", "sell"} {
		for _, tif := range []string{"day", "gtc"} {
			pc := planning.Context{Side: side, EntryType: "market", TimeInForce: tif, ExitStyle: planning.ExitNone}
			req, status := Build("AAPL", 7, pc, Options{})
			if status != StatusOK || req == nil {
				t.Fatalf("%s/%s: status=%s", side, tif, status)
			}
			if req.Type != broker.OrderMarket || string(req.Side) != side || string(req.TimeInForce) != tif {
				t.Fatalf("%s/%s: req=%+v", side, tif, req)
			}
			if !req.Qty.Equal(decimal.NewFromInt(7)) || req.LimitPrice != nil {
				t.Fatalf("%s/%s: qty/limit=%s/%v", side, tif, req.Qty, req.LimitPrice)
			}
			if req.Class != broker.ClassSimple || req.StopLoss != nil || req.TakeProfit != nil {
				t.Fatalf("%s/%s: unexpected exit legs %+v", side, tif, req)
			}
		}
	}
}

func TestBuildLimitRoundsPrice(t *testing.T) {
	pc := planning.Context{Side: "buy", EntryType: "limit", TimeInForce: "day", LimitPrice: d("0.123456")}
	req, status := Build("PENNY", 100, pc, Options{})
	if status != StatusOK {
		t.Fatalf("status=%s", status)
	}
	if req.Type != broker.OrderLimit || !req.LimitPrice.Equal(decimal.RequireFromString("0.1235")) {
		t.Fatalf("req=%+v limit=%s", req, req.LimitPrice)
	}
}

func TestBuildEntryOnlyIgnoresExits(t *testing.T) {
	pc := planning.Context{
		Side: "buy", EntryType: "limit", TimeInForce: "day",
		LimitPrice: d("10"), ExitStyle: planning.ExitBracket,
		StopLoss: d("9"), TakeProfit: d("12"),
	}
	req, status := Build("AAPL", 1, pc, Options{AttachExits: false})
	if status != StatusOK || req.Class != broker.ClassSimple || req.StopLoss != nil {
		t.Fatalf("status=%s req=%+v", status, req)
	}
}

func TestBuildStatuses(t *testing.T) {
	tests := []struct {
		name string
		pc   planning.Context
		opts Options
		want string
	}{
		{"bad side", planning.Context{Side: "short", EntryType: "market", TimeInForce: "day"}, Options{}, StatusInvalid},
		{"bad entry", planning.Context{Side: "buy", EntryType: "stop", TimeInForce: "day"}, Options{}, StatusInvalid},
		{"bad exit", planning.Context{Side: "buy", EntryType: "market", TimeInForce: "day", ExitStyle: "trail"}, Options{AttachExits: true}, StatusInvalid},
		{"missing limit", planning.Context{Side: "buy", EntryType: "limit", TimeInForce: "day"}, Options{}, StatusMissingLimitPrice},
		{"market bracket", planning.Context{Side: "buy", EntryType: "market", TimeInForce: "day", ExitStyle: planning.ExitBracket, StopLoss: d("9"), TakeProfit: d("11")}, Options{AttachExits: true}, StatusUnsupportedMarketBracket},
		{"bracket missing prices", planning.Context{Side: "buy", EntryType: "limit", TimeInForce: "day", LimitPrice: d("10"), ExitStyle: planning.ExitBracket, StopLoss: d("9")}, Options{AttachExits: true}, StatusMissingBracketPrices},
		{"stop collapses to zero", planning.Context{Side: "buy", EntryType: "limit", TimeInForce: "day", LimitPrice: d("0.0001"), ExitStyle: planning.ExitBracket, StopLoss: d("1"), TakeProfit: d("2")}, Options{AttachExits: true}, StatusInvalid},
	}
	for _, tt := range tests {
		req, status := Build("X", 1, tt.pc, tt.opts)
		if status != tt.want || req != nil {
			t.Fatalf("%s: status=%s want %s (req=%+v)", tt.name, status, tt.want, req)
		}
	}
}

func TestBuildMarketBracketWhenAllowed(t *testing.T) {
	pc := planning.Context{
		Side: "buy", EntryType: "market", TimeInForce: "gtc", ExitStyle: planning.ExitBracket,
		StopLoss: d("9"), TakeProfit: d("11"), EntryPriceHint: d("10"),
	}
	req, status := Build("AAPL", 2, pc, Options{AttachExits: true, AllowMarketBracket: true})
	if status != StatusOK || req.Class != broker.ClassBracket {
		t.Fatalf("status=%s req=%+v", status, req)
	}
	if !req.StopLoss.Equal(decimal.NewFromInt(9)) || !req.TakeProfit.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("legs=%s/%s", req.StopLoss, req.TakeProfit)
	}
}

func TestBuildLimitBracketNudges(t *testing.T) {
	pc := planning.Context{
		Side: "buy", EntryType: "limit", TimeInForce: "day", ExitStyle: planning.ExitBracket,
		LimitPrice: d("10.00"), StopLoss: d("10.50"), TakeProfit: d("9.00"),
	}
	req, status := Build("AAPL", 1, pc, Options{AttachExits: true})
	if status != StatusOK {
		t.Fatalf("status=%s", status)
	}
	if !req.StopLoss.Equal(decimal.RequireFromString("9.99")) || !req.TakeProfit.Equal(decimal.RequireFromString("10.01")) {
		t.Fatalf("stop=%s tp=%s", req.StopLoss, req.TakeProfit)
	}
}

// For every limit+bracket combination the builder either returns invalid or
// legs strictly around the entry.
func TestBuildLimitBracketInvariant(t *testing.T) {
	prices := []string{"0.0001", "0.0002", "0.05", "0.5", "0.9999", "1", "1.005", "2.5", "9.99", "10", "10.01", "150.129"}
	checked := 0
	for _, lp := range prices {
		for _, sl := range prices {
			for _, tp := range prices {
				pc := planning.Context{
					Side: "buy", EntryType: "limit", TimeInForce: "day", ExitStyle: planning.ExitBracket,
					LimitPrice: d(lp), StopLoss: d(sl), TakeProfit: d(tp),
				}
				req, status := Build("X", 1, pc, Options{AttachExits: true})
				if status == StatusInvalid {
					continue
				}
				if status != StatusOK {
					t.Fatalf("lp=%s sl=%s tp=%s: status=%s", lp, sl, tp, status)
				}
				if !(req.StopLoss.LessThan(*req.LimitPrice) && req.LimitPrice.LessThan(*req.TakeProfit)) {
					t.Fatalf("lp=%s sl=%s tp=%s: got stop=%s entry=%s tp=%s", lp, sl, tp, req.StopLoss, req.LimitPrice, req.TakeProfit)
				}
				checked++
			}
		}
	}
	if checked == 0 {
		t.Fatalf("no valid combinations checked")
	}
}
