package pnl

import (
	"errors"
	"reflect"
	"testing"

	"investment-tracker/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func lot(portfolio, code, price string, qty int64, date string) models.Position {
	return models.Position{
		ID:        uuid.New(),
		Code:      code,
		Name:      code,
		BuyPrice:  d(price),
		BuyDate:   models.MustParseDate(date),
		Quantity:  qty,
		Status:    models.PositionStatusOpen,
		Portfolio: portfolio,
	}
}

func closedLot(portfolio, code, price string, qty int64, buyDate, sellPrice, sellDate string) models.Position {
	p := lot(portfolio, code, price, qty, buyDate)
	p.MarkClosed(d(sellPrice), models.MustParseDate(sellDate))
	return p
}

func quotes(prices map[string]string) map[string]models.Quote {
	q := make(map[string]models.Quote, len(prices))
	for code, price := range prices {
		q[code] = models.Quote{Code: code, Price: d(price)}
	}
	return q
}

var defaultSizing = NewFullPositions(50000, nil, nil)

func TestAggregate_SingleInstrument(t *testing.T) {
	positions := []models.Position{
		lot("P", "X", "10", 100, "2024-01-01"),
		lot("P", "X", "12", 50, "2024-02-01"),
	}

	result, err := Aggregate(positions, quotes(map[string]string{"X": "11"}), defaultSizing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 portfolio, got %d", len(result))
	}

	p := result[0]
	if !p.SumPositionCost.Equal(d("1600")) {
		t.Errorf("expected sum_position_cost 1600, got %s", p.SumPositionCost)
	}
	if !p.SumProfitLosses.Equal(d("50")) {
		t.Errorf("expected sum_profit_losses 50, got %s", p.SumProfitLosses)
	}
	if !p.SumProfitLossesRate.Equal(d("0.03125")) {
		t.Errorf("expected sum_profit_losses_rate 0.03125, got %s", p.SumProfitLossesRate)
	}
	if !p.SumCurrentValue.Equal(d("1650")) {
		t.Errorf("expected sum_current_value 1650, got %s", p.SumCurrentValue)
	}
	if !p.FullPosition.Equal(d("50000")) {
		t.Errorf("expected full_position 50000, got %s", p.FullPosition)
	}

	if len(p.TargetProfitLosses) != 1 {
		t.Fatalf("expected 1 instrument, got %d", len(p.TargetProfitLosses))
	}
	x := p.TargetProfitLosses[0]
	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"position_cost", x.PositionCost, "1600"},
		{"current_value", x.CurrentValue, "1650"},
		{"target_profit_loss", x.TargetProfitLoss, "50"},
		{"target_profit_loss_rate", x.TargetProfitLossRate, "0.03125"},
		{"cost_position_rate", x.CostPositionRate, "0.032"},
		{"current_position_rate", x.CurrentPositionRate, "0.033"},
		{"recommended_buy_in_point", x.RecommendedBuyInPoint, "10.8"},
		{"recommended_sale_out_point", x.RecommendedSaleOutPoint, "13.2"},
		{"real_price", x.RealPrice, "11"},
	}
	for _, c := range checks {
		if !c.got.Equal(d(c.want)) {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, c.got)
		}
	}
	if x.TotalQuantity != 150 {
		t.Errorf("expected total_quantity 150, got %d", x.TotalQuantity)
	}

	lots := x.PositionProfitLosses
	if len(lots) != 2 {
		t.Fatalf("expected 2 lots, got %d", len(lots))
	}
	if !lots[0].ProfitLoss.Equal(d("100")) || !lots[1].ProfitLoss.Equal(d("-50")) {
		t.Errorf("unexpected lot P&L: %s, %s", lots[0].ProfitLoss, lots[1].ProfitLoss)
	}
	if !lots[0].ProfitLossRate.Equal(d("0.1")) {
		t.Errorf("expected lot rate 0.1, got %s", lots[0].ProfitLossRate)
	}
}

func TestAggregate_FirstSeenOrder(t *testing.T) {
	positions := []models.Position{
		lot("b", "z", "1", 1, "2024-01-03"),
		lot("a", "y", "1", 1, "2024-01-02"),
		lot("b", "x", "1", 1, "2024-01-01"),
		lot("a", "w", "1", 1, "2024-01-05"),
		lot("b", "z", "2", 1, "2024-01-04"),
	}
	q := quotes(map[string]string{"w": "1", "x": "1", "y": "1", "z": "1"})

	result, err := Aggregate(positions, q, defaultSizing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var portfolios []string
	codes := map[string][]string{}
	for _, p := range result {
		portfolios = append(portfolios, p.Portfolio)
		for _, tpl := range p.TargetProfitLosses {
			codes[p.Portfolio] = append(codes[p.Portfolio], tpl.Code)
		}
	}
	if !reflect.DeepEqual(portfolios, []string{"b", "a"}) {
		t.Errorf("unexpected portfolio order: %v", portfolios)
	}
	if !reflect.DeepEqual(codes["b"], []string{"z", "x"}) {
		t.Errorf("unexpected instrument order in b: %v", codes["b"])
	}
	if !reflect.DeepEqual(codes["a"], []string{"y", "w"}) {
		t.Errorf("unexpected instrument order in a: %v", codes["a"])
	}

	z := result[0].TargetProfitLosses[0].PositionProfitLosses
	if z[0].ID != positions[0].ID || z[1].ID != positions[4].ID {
		t.Error("lots must keep their input order")
	}
}

func TestAggregate_IgnoresClosedRecords(t *testing.T) {
	positions := []models.Position{
		lot("P", "X", "10", 100, "2024-01-01"),
		closedLot("P", "X", "10", 30, "2024-01-01", "20", "2024-02-01"),
		closedLot("P", "Y", "5", 10, "2024-01-01", "6", "2024-02-01"),
	}

	result, err := Aggregate(positions, quotes(map[string]string{"X": "11"}), defaultSizing)
	if err != nil {
		t.Fatalf("closed-only codes must not need quotes: %v", err)
	}
	if len(result[0].TargetProfitLosses) != 1 {
		t.Fatalf("expected only X, got %d instruments", len(result[0].TargetProfitLosses))
	}
	if result[0].TargetProfitLosses[0].TotalQuantity != 100 {
		t.Errorf("closed slice must not count, got %d", result[0].TargetProfitLosses[0].TotalQuantity)
	}
}

func TestAggregate_MissingQuotes(t *testing.T) {
	positions := []models.Position{
		lot("P", "a", "1", 1, "2024-01-01"),
		lot("P", "b", "1", 1, "2024-01-01"),
		lot("Q", "c", "1", 1, "2024-01-01"),
		lot("Q", "b", "1", 1, "2024-01-01"),
	}

	result, err := Aggregate(positions, quotes(map[string]string{"a": "1"}), defaultSizing)
	if result != nil {
		t.Error("expected no partial result")
	}
	if !errors.Is(err, models.ErrQuoteUnavailable) {
		t.Fatalf("expected quote unavailable, got %v", err)
	}
	var e *models.Error
	if !errors.As(err, &e) {
		t.Fatal("expected *models.Error")
	}
	if !reflect.DeepEqual(e.Codes, []string{"b", "c"}) {
		t.Errorf("expected all missing codes in order, got %v", e.Codes)
	}
}

func TestAggregate_Empty(t *testing.T) {
	result, err := Aggregate(nil, nil, defaultSizing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || len(result) != 0 {
		t.Errorf("expected empty non-nil result, got %v", result)
	}
}

func TestAggregate_LatestBuy(t *testing.T) {
	tests := []struct {
		name      string
		positions []models.Position
		wantBuyIn string
	}{
		{
			name: "latest date wins regardless of order",
			positions: []models.Position{
				lot("P", "X", "20", 1, "2024-03-01"),
				lot("P", "X", "10", 1, "2024-01-01"),
			},
			wantBuyIn: "18",
		},
		{
			name: "equal dates go to the last lot scanned",
			positions: []models.Position{
				lot("P", "X", "10", 1, "2024-03-01"),
				lot("P", "X", "30", 1, "2024-03-01"),
			},
			wantBuyIn: "27",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Aggregate(tt.positions, quotes(map[string]string{"X": "15"}), defaultSizing)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := result[0].TargetProfitLosses[0].RecommendedBuyInPoint
			if !got.Equal(d(tt.wantBuyIn)) {
				t.Errorf("expected %s, got %s", tt.wantBuyIn, got)
			}
		})
	}
}

func TestAggregate_Name(t *testing.T) {
	p := lot("P", "sh600519", "100", 1, "2024-01-01")
	p.Name = "Moutai"

	named := map[string]models.Quote{"sh600519": {Code: "sh600519", Name: "贵州茅台", Price: d("1")}}
	result, err := Aggregate([]models.Position{p}, named, defaultSizing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result[0].TargetProfitLosses[0].Name != "贵州茅台" {
		t.Errorf("expected quote name, got %s", result[0].TargetProfitLosses[0].Name)
	}

	result, err = Aggregate([]models.Position{p}, quotes(map[string]string{"sh600519": "1"}), defaultSizing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result[0].TargetProfitLosses[0].Name != "Moutai" {
		t.Errorf("expected lot name fallback, got %s", result[0].TargetProfitLosses[0].Name)
	}
}

func TestAggregate_FullPositionOverrides(t *testing.T) {
	sizing := NewFullPositions(50000, map[string]float64{"growth": 100000}, map[string]float64{"SH600519": 10000})
	positions := []models.Position{
		lot("growth", "aapl", "100", 10, "2024-01-01"),
		lot("growth", "sh600519", "100", 10, "2024-01-01"),
		lot("default", "aapl", "100", 10, "2024-01-01"),
	}

	result, err := Aggregate(positions, quotes(map[string]string{"aapl": "100", "sh600519": "100"}), sizing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	growth := result[0]
	if !growth.FullPosition.Equal(d("100000")) {
		t.Errorf("expected portfolio override, got %s", growth.FullPosition)
	}
	if !growth.TargetProfitLosses[0].CostPositionRate.Equal(d("0.01")) {
		t.Errorf("expected 1000/100000, got %s", growth.TargetProfitLosses[0].CostPositionRate)
	}
	if !growth.TargetProfitLosses[1].FullPosition.Equal(d("10000")) {
		t.Errorf("expected instrument override, got %s", growth.TargetProfitLosses[1].FullPosition)
	}
	if !growth.TargetProfitLosses[1].CostPositionRate.Equal(d("0.1")) {
		t.Errorf("expected 1000/10000, got %s", growth.TargetProfitLosses[1].CostPositionRate)
	}
	if !result[1].FullPosition.Equal(d("50000")) {
		t.Errorf("expected default full position, got %s", result[1].FullPosition)
	}
}

func TestFullPositions_Fallback(t *testing.T) {
	var zero FullPositions
	if !zero.ForPortfolio("any").Equal(DefaultFullPosition) {
		t.Errorf("expected built-in default, got %s", zero.ForPortfolio("any"))
	}
	if !zero.ForInstrument("any", "x").Equal(DefaultFullPosition) {
		t.Errorf("expected built-in default, got %s", zero.ForInstrument("any", "x"))
	}
}

func TestOpenCodes(t *testing.T) {
	positions := []models.Position{
		lot("P", "b", "1", 1, "2024-01-01"),
		closedLot("P", "c", "1", 1, "2024-01-01", "2", "2024-01-02"),
		lot("Q", "a", "1", 1, "2024-01-01"),
		lot("P", "b", "1", 1, "2024-01-01"),
	}
	if got := OpenCodes(positions); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("unexpected codes: %v", got)
	}
}
