package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinledger/internal/domain"
	"coinledger/internal/ports"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: noopLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTrade(id string) *domain.Trade {
	open := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Trade{
		ID:                id,
		PortfolioID:       "pf-1",
		CoinSymbol:        "BTC",
		Type:              domain.Long,
		Status:            domain.StatusFilled,
		EntryPrice:        100000,
		EntryFee:          1,
		SumPlusFee:        101000,
		Amount:            1.0,
		DepositPercent:    50,
		OpenDate:          open,
		FilledDate:        open.Add(time.Minute),
		InitialEntryPrice: 100000,
		InitialAmount:     1.0,
		OriginalAmount:    1.0,
		RemainingAmount:   1.0,
	}
}

func TestInsertAndFindByID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	want := sampleTrade("t-1")
	require.NoError(t, repo.Insert(ctx, want))

	got, err := repo.FindByID(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.PortfolioID, got.PortfolioID)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.EntryPrice, got.EntryPrice)
	assert.Equal(t, want.SumPlusFee, got.SumPlusFee)
	assert.Equal(t, want.InitialEntryPrice, got.InitialEntryPrice)
	assert.Equal(t, want.RemainingAmount, got.RemainingAmount)
	assert.True(t, want.OpenDate.Equal(got.OpenDate))
	assert.True(t, want.FilledDate.Equal(got.FilledDate))
	assert.True(t, got.CloseDate.IsZero(), "close date stays NULL until the trade closes")
	assert.Empty(t, got.ParentTradeID)
}

func TestFindByIDMissingReturnsNil(t *testing.T) {
	repo := setupTestRepo(t)
	got, err := repo.FindByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsertDuplicate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, sampleTrade("t-1")))
	err := repo.Insert(ctx, sampleTrade("t-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)
}

func TestUpdateTrade(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	trade := sampleTrade("t-1")
	require.NoError(t, repo.Insert(ctx, trade))

	trade.Status = domain.StatusClosed
	trade.ExitPrice = 110000
	trade.ExitFee = 1
	trade.CloseDate = trade.OpenDate.Add(time.Hour)
	require.NoError(t, repo.Update(ctx, trade))

	got, err := repo.FindByID(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.Equal(t, 110000.0, got.ExitPrice)
	assert.True(t, trade.CloseDate.Equal(got.CloseDate))
}

func TestUpdateMissingTrade(t *testing.T) {
	repo := setupTestRepo(t)
	err := repo.Update(context.Background(), sampleTrade("ghost"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestDeleteTrade(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, sampleTrade("t-1")))
	require.NoError(t, repo.Delete(ctx, "t-1"))

	got, err := repo.FindByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = repo.Delete(ctx, "t-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestFindByPortfolioOrdersByOpenDate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	later := sampleTrade("t-later")
	later.OpenDate = later.OpenDate.Add(time.Hour)
	require.NoError(t, repo.Insert(ctx, later))
	require.NoError(t, repo.Insert(ctx, sampleTrade("t-earlier")))

	other := sampleTrade("t-other")
	other.PortfolioID = "pf-2"
	require.NoError(t, repo.Insert(ctx, other))

	trades, err := repo.FindByPortfolio(ctx, "pf-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "t-earlier", trades[0].ID)
	assert.Equal(t, "t-later", trades[1].ID)
}

func TestFindByParent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	parent := sampleTrade("parent")
	require.NoError(t, repo.Insert(ctx, parent))

	child := sampleTrade("child")
	child.Type = domain.Short
	child.ParentTradeID = "parent"
	require.NoError(t, repo.Insert(ctx, child))

	children, err := repo.FindByParent(ctx, "parent")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "child", children[0].ID)
	assert.Equal(t, "parent", children[0].ParentTradeID)

	none, err := repo.FindByParent(ctx, "child")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransactCommitsWriteSet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	parent := sampleTrade("parent")
	require.NoError(t, repo.Insert(ctx, parent))

	err := repo.Transact(ctx, func(view ports.TradeRepository) error {
		parent.Amount = 0.5
		parent.SumPlusFee = 50500
		if err := view.Update(ctx, parent); err != nil {
			return err
		}
		short := sampleTrade("short")
		short.Type = domain.Short
		short.ParentTradeID = "parent"
		return view.Insert(ctx, short)
	})
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, "parent")
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Amount)

	short, err := repo.FindByID(ctx, "short")
	require.NoError(t, err)
	require.NotNil(t, short)
}

func TestTransactRollsBackOnError(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	parent := sampleTrade("parent")
	require.NoError(t, repo.Insert(ctx, parent))

	err := repo.Transact(ctx, func(view ports.TradeRepository) error {
		updated := sampleTrade("parent")
		updated.Amount = 0.5
		if err := view.Update(ctx, updated); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	got, err := repo.FindByID(ctx, "parent")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Amount, "update rolled back")
}

func TestPortfolioRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	portfolios := repo.Portfolios()

	want := &domain.Portfolio{
		ID:           "pf-1",
		OwnerID:      "user-1",
		Name:         "main",
		TotalDeposit: 10000,
		Coins: []domain.Coin{
			{Symbol: "BTC", Percentage: 60, DecimalPlaces: 8},
			{Symbol: "ETH", Percentage: 40, DecimalPlaces: 6},
		},
		InitialCoins: []domain.InitialCoin{
			{Symbol: "BTC", Amount: 2.0},
		},
	}
	require.NoError(t, portfolios.Insert(ctx, want))

	got, err := portfolios.FindByID(ctx, "pf-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.TotalDeposit, got.TotalDeposit)
	require.Len(t, got.Coins, 2)
	assert.Equal(t, 8, got.Coins[0].DecimalPlaces)
	require.Len(t, got.InitialCoins, 1)
	assert.Equal(t, 2.0, got.InitialCoins[0].Amount)

	missing, err := portfolios.FindByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPortfolioUpdateReplacesCoins(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	portfolios := repo.Portfolios()

	p := &domain.Portfolio{
		ID: "pf-1", OwnerID: "user-1", Name: "main", TotalDeposit: 10000,
		Coins:        []domain.Coin{{Symbol: "BTC", Percentage: 100, DecimalPlaces: 8}},
		InitialCoins: []domain.InitialCoin{{Symbol: "BTC", Amount: 1.0}},
	}
	require.NoError(t, portfolios.Insert(ctx, p))

	p.Name = "renamed"
	p.Coins = []domain.Coin{
		{Symbol: "BTC", Percentage: 50, DecimalPlaces: 8},
		{Symbol: "ETH", Percentage: 50, DecimalPlaces: 6},
	}
	require.NoError(t, portfolios.Update(ctx, p))

	got, err := portfolios.FindByID(ctx, "pf-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	require.Len(t, got.Coins, 2)

	err = portfolios.Update(ctx, &domain.Portfolio{ID: "ghost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestFindPortfoliosByOwner(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	portfolios := repo.Portfolios()

	require.NoError(t, portfolios.Insert(ctx, &domain.Portfolio{ID: "pf-1", OwnerID: "user-1", Name: "a"}))
	require.NoError(t, portfolios.Insert(ctx, &domain.Portfolio{ID: "pf-2", OwnerID: "user-1", Name: "b"}))
	require.NoError(t, portfolios.Insert(ctx, &domain.Portfolio{ID: "pf-3", OwnerID: "user-2", Name: "c"}))

	owned, err := portfolios.FindByOwner(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "a", owned[0].Name)
	assert.Equal(t, "b", owned[1].Name)
}
