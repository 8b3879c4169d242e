package assignment

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"mandoob-dispatch-services/internal/config"
	"mandoob-dispatch-services/internal/db"
	"mandoob-dispatch-services/internal/geofence"
	"mandoob-dispatch-services/internal/lifecycle"
)

// Exercises the acceptance compare-and-swap against a real database:
// N drivers race for one pending order, exactly one may win and every
// loser must see a conflict. Skipped unless TEST_DATABASE_URL points
// at a disposable postgres.
func TestAcceptOrderConcurrent(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	if err := db.Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Load()
	gf := geofence.New(pool, cfg)
	orders := lifecycle.NewManager(pool, cfg.ConfirmationWindow)
	coord := New(pool, gf, orders)

	var userID int64
	email := fmt.Sprintf("accept-race-%d@test.local", time.Now().UnixNano())
	if err := pool.QueryRow(ctx, `
		insert into users (name, email) values ('accept race user', $1) returning id
	`, email).Scan(&userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	const contenders = 8
	driverIDs := make([]int64, contenders)
	for i := range driverIDs {
		if err := pool.QueryRow(ctx, `
			insert into drivers (name, vehicle_type, current_lat, current_lng,
			                     is_online, is_active, last_activity_at, wallet_balance)
			values ($1, 'bike', 33.51, 36.29, true, true, now(), 500)
			returning id
		`, fmt.Sprintf("accept race driver %d", i)).Scan(&driverIDs[i]); err != nil {
			t.Fatalf("insert driver: %v", err)
		}
	}

	var orderID int64
	if err := pool.QueryRow(ctx, `
		insert into orders (user_id, delivery_address, delivery_fee, status,
		                    is_immediate, confirmation_expires_at)
		values ($1, 'race street 1', 20, 'pending', true, now() + interval '5 minutes')
		returning id
	`, userID).Scan(&orderID); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	defer func() {
		_, _ = pool.Exec(ctx, `delete from orders where id = $1`, orderID)
		for _, id := range driverIDs {
			_, _ = pool.Exec(ctx, `delete from drivers where id = $1`, id)
		}
		_, _ = pool.Exec(ctx, `delete from users where id = $1`, userID)
	}()

	now := time.Now()
	wins := make(chan int64, contenders)
	losses := make(chan string, contenders)
	var wg sync.WaitGroup
	for _, driverID := range driverIDs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			snap, derr := coord.AcceptOrder(ctx, lifecycle.KindOrder, orderID, id, now)
			if derr != nil {
				losses <- derr.Code
				return
			}
			if snap.DriverID != nil && *snap.DriverID == id {
				wins <- id
			}
		}(driverID)
	}
	wg.Wait()
	close(wins)
	close(losses)

	var winner int64
	winCount := 0
	for id := range wins {
		winner = id
		winCount++
	}
	if winCount != 1 {
		t.Fatalf("expected exactly one winning driver, got %d", winCount)
	}
	for code := range losses {
		if code != "ORDER_ALREADY_TAKEN" {
			t.Errorf("loser got %q, want ORDER_ALREADY_TAKEN", code)
		}
	}

	var assigned *int64
	var status string
	if err := pool.QueryRow(ctx, `
		select driver_id, status from orders where id = $1
	`, orderID).Scan(&assigned, &status); err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if assigned == nil || *assigned != winner {
		t.Fatalf("order driver_id = %v, want winner %d", assigned, winner)
	}
	if status != string(lifecycle.StatusShipping) {
		t.Fatalf("order status = %q, want %q", status, lifecycle.StatusShipping)
	}
}
