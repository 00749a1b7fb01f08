package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"signalrunner/src/model"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func orderRows(orders ...model.Order) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "symbol", "base_asset", "side", "role", "status", "created_at", "updated_at"})
	for _, order := range orders {
		rows.AddRow(order.ID, order.Symbol, order.BaseAsset, order.Side, order.Role, order.Status, order.CreatedAt, order.UpdatedAt)
	}
	return rows
}

func TestOrderRepositoryFindNonTerminal(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE status IN ($1,$2,$3) ORDER BY created_at ASC, id ASC`)).
		WithArgs(model.OrderStatusNew, model.OrderStatusActive, model.OrderStatusPartiallyFilled).
		WillReturnRows(orderRows(
			model.Order{ID: 1, Symbol: "BTCUSDT", Status: model.OrderStatusActive, CreatedAt: createdAt},
			model.Order{ID: 2, Symbol: "ETHUSDT", Status: model.OrderStatusNew, CreatedAt: createdAt.Add(time.Hour)},
		))

	results, err := repo.FindNonTerminal(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(results))
	}
	if results[0].Symbol != "BTCUSDT" || results[1].Symbol != "ETHUSDT" {
		t.Fatalf("orders not returned in expected order: %+v", results)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryFindLatestPrimarySinceNotFound(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	since := time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE symbol = $1 AND role = $2 AND created_at > $3 ORDER BY created_at DESC, id DESC,"orders"."id" LIMIT $4`)).
		WithArgs("BTCUSDT", model.OrderRolePrimary, since, 1).
		WillReturnRows(orderRows())

	result, err := repo.FindLatestPrimarySince(context.Background(), "BTCUSDT", since)
	if err != nil {
		t.Fatalf("expected (nil, nil) on empty result, got error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil order, got %+v", result)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryUpdateStatusRejectsTerminal(t *testing.T) {
	mockDB, _ := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	for _, status := range []string{model.OrderStatusFilled, model.OrderStatusCanceled, model.OrderStatusError} {
		if err := repo.UpdateStatus(context.Background(), 1, status); err == nil {
			t.Fatalf("terminal status %q must be rejected by UpdateStatus", status)
		}
	}
}

func TestOrderRepositoryMarkTerminalValidation(t *testing.T) {
	mockDB, _ := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	if err := repo.MarkTerminal(context.Background(), 1, model.OrderStatusActive, model.SourceOrderHistory, decimal.Zero, time.Now()); err == nil {
		t.Fatal("non-terminal status must be rejected")
	}
	if err := repo.MarkTerminal(context.Background(), 1, model.OrderStatusFilled, "", decimal.Zero, time.Now()); err == nil {
		t.Fatal("terminal write without a confirmation source must be rejected")
	}
	if err := repo.MarkTerminal(context.Background(), 1, model.OrderStatusError, model.SourceOrderHistory, decimal.Zero, time.Now()); err == nil {
		t.Fatal("error is not a reconcilable terminal status")
	}
}
