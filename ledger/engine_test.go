package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"investment-tracker/models"
	"investment-tracker/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestEngine(t *testing.T) (*Engine, *repository.Repository) {
	t.Helper()
	repo, err := repository.NewRepository(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(repo.Close)
	return NewEngine(repo, "main"), repo
}

func buy(t *testing.T, e *Engine, code, price string, qty int64, date string) *models.Position {
	t.Helper()
	pos, err := e.Buy(context.Background(), models.CreatePositionRequest{
		Code:     code,
		BuyPrice: decimal.RequireFromString(price),
		BuyDate:  models.MustParseDate(date),
		Quantity: qty,
	})
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	return pos
}

func TestBuy(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()

	pos, err := e.Buy(ctx, models.CreatePositionRequest{
		Code:     " SH600519 ",
		BuyPrice: decimal.RequireFromString("1688.5"),
		BuyDate:  models.MustParseDate("2024-01-15"),
		Quantity: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pos.Code != "sh600519" {
		t.Errorf("expected normalized code, got %q", pos.Code)
	}
	if pos.Name != "sh600519" {
		t.Errorf("expected name to default to code, got %q", pos.Name)
	}
	if pos.Portfolio != "main" {
		t.Errorf("expected engine default portfolio, got %q", pos.Portfolio)
	}
	if !pos.IsOpen() {
		t.Errorf("expected OPEN, got %s", pos.Status)
	}

	stored, err := repo.Get(ctx, pos.ID)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if !stored.BuyPrice.Equal(pos.BuyPrice) || stored.Quantity != 100 {
		t.Errorf("stored record differs: %+v", stored)
	}
}

func TestBuy_Validation(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.CreatePositionRequest
	}{
		{"zero quantity", models.CreatePositionRequest{Code: "a", BuyPrice: decimal.NewFromInt(1), BuyDate: models.Today(), Quantity: 0}},
		{"negative quantity", models.CreatePositionRequest{Code: "a", BuyPrice: decimal.NewFromInt(1), BuyDate: models.Today(), Quantity: -5}},
		{"zero price", models.CreatePositionRequest{Code: "a", BuyPrice: decimal.Zero, BuyDate: models.Today(), Quantity: 1}},
		{"negative price", models.CreatePositionRequest{Code: "a", BuyPrice: decimal.NewFromInt(-1), BuyDate: models.Today(), Quantity: 1}},
		{"empty code", models.CreatePositionRequest{Code: "  ", BuyPrice: decimal.NewFromInt(1), BuyDate: models.Today(), Quantity: 1}},
		{"missing date", models.CreatePositionRequest{Code: "a", BuyPrice: decimal.NewFromInt(1), Quantity: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Buy(ctx, tt.req)
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no records after rejected buys, got %d", n)
	}
}

func TestBuy_ExplicitPortfolio(t *testing.T) {
	e, _ := newTestEngine(t)

	pos, err := e.Buy(context.Background(), models.CreatePositionRequest{
		Code:      "aapl",
		Name:      "Apple",
		BuyPrice:  decimal.NewFromInt(180),
		BuyDate:   models.MustParseDate("2024-02-01"),
		Quantity:  10,
		Portfolio: "us",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.Portfolio != "us" || pos.Name != "Apple" {
		t.Errorf("unexpected position: %+v", pos)
	}
}

func TestNewEngine_DefaultPortfolio(t *testing.T) {
	_, repo := newTestEngine(t)
	e := NewEngine(repo, "")

	pos := buy(t, e, "600000", "10", 100, "2024-01-01")
	if pos.Portfolio != models.DefaultPortfolio {
		t.Errorf("expected %q, got %q", models.DefaultPortfolio, pos.Portfolio)
	}
}

func TestClose(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	pos := buy(t, e, "600000", "10", 100, "2024-01-01")

	closed, err := e.Close(ctx, pos.ID, decimal.NewFromInt(12), models.MustParseDate("2024-01-11"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !closed.IsClosed() {
		t.Fatalf("expected CLOSED, got %s", closed.Status)
	}
	if closed.Quantity != 100 {
		t.Errorf("expected sold quantity to be kept, got %d", closed.Quantity)
	}
	if !closed.ProfitLoss.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected P&L 200, got %s", closed.ProfitLoss)
	}
	if !closed.ProfitLossRate.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("expected rate 0.2, got %s", closed.ProfitLossRate)
	}
	if *closed.HoldingDays != 10 {
		t.Errorf("expected 10 holding days, got %d", *closed.HoldingDays)
	}

	stored, err := repo.Get(ctx, pos.ID)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if !stored.IsClosed() || stored.SellPrice == nil || !stored.SellPrice.Equal(decimal.NewFromInt(12)) {
		t.Errorf("stored record not closed: %+v", stored)
	}
	if pl, ok := stored.RealizedProfitLoss(); !ok || !pl.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected realized P&L recomputable from record, got %s", pl)
	}

	open, err := repo.GetOpen(ctx)
	if err != nil {
		t.Fatalf("GetOpen failed: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("closed lot should leave no OPEN records, got %d", len(open))
	}
}

func TestClose_Errors(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	pos := buy(t, e, "600000", "10", 100, "2024-01-10")

	if _, err := e.Close(ctx, uuid.New(), decimal.NewFromInt(12), models.MustParseDate("2024-02-01")); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := e.Close(ctx, pos.ID, decimal.Zero, models.MustParseDate("2024-02-01")); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error for zero price, got %v", err)
	}
	if _, err := e.Close(ctx, pos.ID, decimal.NewFromInt(12), models.Date{}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error for missing date, got %v", err)
	}
	if _, err := e.Close(ctx, pos.ID, decimal.NewFromInt(12), models.MustParseDate("2024-01-09")); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error for sell before buy, got %v", err)
	}

	if _, err := e.Close(ctx, pos.ID, decimal.NewFromInt(12), models.MustParseDate("2024-01-10")); err != nil {
		t.Fatalf("same-day close should succeed: %v", err)
	}
	before, err := repo.Get(ctx, pos.ID)
	if err != nil {
		t.Fatalf("failed to read closed record: %v", err)
	}

	_, err = e.Close(ctx, pos.ID, decimal.NewFromInt(13), models.MustParseDate("2024-02-01"))
	if !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("expected invalid state on second close, got %v", err)
	}
	if models.KindOf(err) != models.KindInvalidState {
		t.Errorf("expected kind INVALID_STATE, got %s", models.KindOf(err))
	}

	after, err := repo.Get(ctx, pos.ID)
	if err != nil {
		t.Fatalf("failed to re-read closed record: %v", err)
	}
	if !after.SellPrice.Equal(*before.SellPrice) || !after.SellPrice.Equal(decimal.NewFromInt(12)) {
		t.Errorf("sell price changed by rejected close: %s -> %s", before.SellPrice, after.SellPrice)
	}
	if *after.SellDate != *before.SellDate {
		t.Errorf("sell date changed by rejected close: %v -> %v", *before.SellDate, *after.SellDate)
	}
	if !after.ProfitLoss.Equal(*before.ProfitLoss) || !after.ProfitLoss.Equal(decimal.NewFromInt(200)) {
		t.Errorf("profit/loss changed by rejected close: %s -> %s", before.ProfitLoss, after.ProfitLoss)
	}
}

func TestReduce(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	pos := buy(t, e, "600000", "10", 100, "2024-01-01")

	res, err := e.Reduce(ctx, pos.ID, 30, decimal.NewFromInt(12), models.MustParseDate("2024-01-31"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Remaining.ID != pos.ID {
		t.Error("remaining lot must keep the original id")
	}
	if res.Remaining.Quantity != 70 || !res.Remaining.IsOpen() {
		t.Errorf("expected OPEN remainder of 70, got %d %s", res.Remaining.Quantity, res.Remaining.Status)
	}
	if res.Closed.ID == pos.ID {
		t.Error("closed slice must have a new id")
	}
	if res.Closed.ParentID == nil || *res.Closed.ParentID != pos.ID {
		t.Errorf("expected parent id %s, got %v", pos.ID, res.Closed.ParentID)
	}
	if res.Closed.Quantity != 30 || !res.Closed.IsClosed() {
		t.Errorf("expected CLOSED slice of 30, got %d %s", res.Closed.Quantity, res.Closed.Status)
	}
	if !res.Closed.ProfitLoss.Equal(decimal.NewFromInt(60)) {
		t.Errorf("expected slice P&L 60, got %s", res.Closed.ProfitLoss)
	}
	if !res.Closed.ProfitLossRate.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("expected slice rate 0.2, got %s", res.Closed.ProfitLossRate)
	}
	if *res.Closed.HoldingDays != 30 {
		t.Errorf("expected 30 holding days, got %d", *res.Closed.HoldingDays)
	}
	if res.Closed.Code != pos.Code || res.Closed.Portfolio != pos.Portfolio || !res.Closed.BuyPrice.Equal(pos.BuyPrice) {
		t.Errorf("slice must inherit lot identity: %+v", res.Closed)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
	var total int64
	for _, p := range all {
		total += p.Quantity
	}
	if total != 100 {
		t.Errorf("open plus sold quantity must equal the bought quantity, got %d", total)
	}
}

func TestReduce_Errors(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	pos := buy(t, e, "600000", "10", 100, "2024-01-10")
	sellDate := models.MustParseDate("2024-02-01")

	tests := []struct {
		name     string
		id       uuid.UUID
		quantity int64
		price    decimal.Decimal
		date     models.Date
		want     error
	}{
		{"zero quantity", pos.ID, 0, decimal.NewFromInt(12), sellDate, models.ErrValidation},
		{"negative quantity", pos.ID, -1, decimal.NewFromInt(12), sellDate, models.ErrValidation},
		{"whole lot", pos.ID, 100, decimal.NewFromInt(12), sellDate, models.ErrValidation},
		{"more than held", pos.ID, 150, decimal.NewFromInt(12), sellDate, models.ErrValidation},
		{"zero price", pos.ID, 10, decimal.Zero, sellDate, models.ErrValidation},
		{"sell before buy", pos.ID, 10, decimal.NewFromInt(12), models.MustParseDate("2024-01-01"), models.ErrValidation},
		{"unknown id", uuid.New(), 10, decimal.NewFromInt(12), sellDate, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Reduce(ctx, tt.id, tt.quantity, tt.price, tt.date)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	stored, err := repo.Get(ctx, pos.ID)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if stored.Quantity != 100 || !stored.IsOpen() {
		t.Errorf("rejected reduces must not change the lot: %+v", stored)
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}

	if _, err := e.Close(ctx, pos.ID, decimal.NewFromInt(12), sellDate); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := e.Reduce(ctx, pos.ID, 10, decimal.NewFromInt(12), sellDate); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("expected invalid state for closed lot, got %v", err)
	}
}

// failingInsertStore fails every Insert, including inside Atomic.
type failingInsertStore struct {
	repository.PositionStore
}

func (s failingInsertStore) Insert(ctx context.Context, pos *models.Position) error {
	return models.NewStorageError("failed to insert positions", errors.New("disk full"))
}

func (s failingInsertStore) Atomic(ctx context.Context, fn func(repository.PositionStore) error) error {
	return s.PositionStore.Atomic(ctx, func(tx repository.PositionStore) error {
		return fn(failingInsertStore{tx})
	})
}

func TestReduce_RollsBackOnInsertFailure(t *testing.T) {
	_, repo := newTestEngine(t)
	ctx := context.Background()

	e := NewEngine(failingInsertStore{repo}, "main")
	pos, err := repo.Create(ctx, models.CreatePositionRequest{
		Code:     "600000",
		BuyPrice: decimal.NewFromInt(10),
		BuyDate:  models.MustParseDate("2024-01-01"),
		Quantity: 100,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = e.Reduce(ctx, pos.ID, 40, decimal.NewFromInt(11), models.MustParseDate("2024-01-05"))
	if !errors.Is(err, models.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}

	stored, err := repo.Get(ctx, pos.ID)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if stored.Quantity != 100 {
		t.Errorf("decrement must roll back with the failed insert, got quantity %d", stored.Quantity)
	}
}

func TestReduce_ConcurrentSlicesNeverOversell(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	pos := buy(t, e, "600000", "10", 10, "2024-01-01")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Reduce(ctx, pos.ID, 1, decimal.NewFromInt(11), models.MustParseDate("2024-01-02")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 9 {
		t.Errorf("expected 9 successful reductions, got %d", succeeded)
	}
	stored, err := repo.Get(ctx, pos.ID)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if stored.Quantity != 1 {
		t.Errorf("expected 1 unit left, got %d", stored.Quantity)
	}
	if n, _ := repo.Count(ctx); n != 10 {
		t.Errorf("expected 10 records, got %d", n)
	}
}

func TestDelete(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	pos := buy(t, e, "600000", "10", 100, "2024-01-01")

	if err := e.Delete(ctx, pos.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.Get(ctx, pos.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}

	other := buy(t, e, "600036", "30", 10, "2024-01-02")
	before, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Delete(ctx, pos.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
	if err := e.Delete(ctx, uuid.New()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found for unknown id, got %v", err)
	}
	after, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(after) != len(before) || len(after) != 1 || after[0].ID != other.ID {
		t.Errorf("failed delete changed the ledger: before %d records, after %d", len(before), len(after))
	}
	if !after[0].BuyPrice.Equal(before[0].BuyPrice) || after[0].Quantity != before[0].Quantity {
		t.Errorf("failed delete changed the surviving record: %+v -> %+v", before[0], after[0])
	}
}

func TestReset(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	buy(t, e, "a", "1", 1, "2024-01-01")
	buy(t, e, "b", "2", 2, "2024-01-02")

	if err := e.Reset(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty store, got %d", n)
	}
}
