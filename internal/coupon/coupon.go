package coupon

import (
	"context"
	"errors"
	"strings"
	"time"

	"mandoob-dispatch-services/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	ErrCouponNotFound           = "COUPON_NOT_FOUND"
	ErrCouponNotActiveYet       = "COUPON_NOT_ACTIVE_YET"
	ErrCouponExpired            = "COUPON_EXPIRED"
	ErrCouponUsageLimitReached  = "COUPON_USAGE_LIMIT_REACHED"
	ErrCouponUserLimitReached   = "COUPON_USER_LIMIT_REACHED"
	ErrCouponNotApplicableItems = "COUPON_NOT_APPLICABLE_ITEMS"
	ErrCouponAlreadyApplied     = "COUPON_ALREADY_APPLIED"
)

type Coupon struct {
	ID                int64
	Code              string
	Type              Type
	Amount            float64
	UsageLimitTotal   *int32
	UsageLimitPerUser *int32
	StartAt           *time.Time
	EndAt             *time.Time

	// ProductScope lists the products the coupon applies to. Empty means
	// the coupon applies to every product.
	ProductScope []int64
}

type queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Lock resolves a coupon by code and locks its row for the rest of the
// transaction, so two concurrent checkouts cannot both pass the usage
// limit check. The lock is load-bearing; do not drop it.
func Lock(ctx context.Context, tx queryer, code string, userID int64, now time.Time) (*Coupon, *domain.Error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	var c Coupon
	var rawType string
	err := tx.QueryRow(ctx, `
		select id, code, type, amount, usage_limit_total, usage_limit_per_user, start_at, end_at
		from coupons
		where upper(code) = $1
		for update
	`, code).Scan(&c.ID, &c.Code, &rawType, &c.Amount, &c.UsageLimitTotal, &c.UsageLimitPerUser, &c.StartAt, &c.EndAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.Validation(ErrCouponNotFound, "Invalid coupon code", nil)
		}
		return nil, domain.System("COUPON_LOAD_FAILED", "Could not load coupon")
	}

	t, ok := ParseType(rawType)
	if !ok {
		return nil, domain.Validation(ErrCouponNotFound, "Invalid coupon code", nil)
	}
	c.Type = t

	if c.StartAt != nil && now.Before(*c.StartAt) {
		return nil, domain.Validation(ErrCouponNotActiveYet, "Coupon is not active yet", map[string]any{"startAt": *c.StartAt})
	}
	if c.EndAt != nil && now.After(*c.EndAt) {
		return nil, domain.Validation(ErrCouponExpired, "Coupon has expired", map[string]any{"endAt": *c.EndAt})
	}

	if c.UsageLimitTotal != nil {
		var used int64
		if err := tx.QueryRow(ctx, `select count(*) from coupon_usages where coupon_id = $1`, c.ID).Scan(&used); err != nil {
			return nil, domain.System("COUPON_LOAD_FAILED", "Could not check coupon usage")
		}
		if used >= int64(*c.UsageLimitTotal) {
			return nil, domain.Validation(ErrCouponUsageLimitReached, "Coupon usage limit reached", map[string]any{
				"usageLimitTotal": *c.UsageLimitTotal,
				"used":            used,
			})
		}
	}

	if c.UsageLimitPerUser != nil {
		var used int64
		if err := tx.QueryRow(ctx, `
			select count(*) from coupon_usages where coupon_id = $1 and user_id = $2
		`, c.ID, userID).Scan(&used); err != nil {
			return nil, domain.System("COUPON_LOAD_FAILED", "Could not check coupon usage")
		}
		if used >= int64(*c.UsageLimitPerUser) {
			return nil, domain.Validation(ErrCouponUserLimitReached, "You have already used this coupon", map[string]any{
				"usageLimitPerUser": *c.UsageLimitPerUser,
				"used":              used,
			})
		}
	}

	rows, err := tx.Query(ctx, `select product_id from coupon_products where coupon_id = $1`, c.ID)
	if err != nil {
		return nil, domain.System("COUPON_LOAD_FAILED", "Could not load coupon product scope")
	}
	defer rows.Close()
	for rows.Next() {
		var productID int64
		if err := rows.Scan(&productID); err != nil {
			return nil, domain.System("COUPON_LOAD_FAILED", "Could not load coupon product scope")
		}
		c.ProductScope = append(c.ProductScope, productID)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.System("COUPON_LOAD_FAILED", "Could not load coupon product scope")
	}

	return &c, nil
}

type LineInput struct {
	ProductID int64
	UnitPrice float64
	Quantity  int32
}

func (c *Coupon) AppliesTo(productID int64) bool {
	if len(c.ProductScope) == 0 {
		return true
	}
	for _, id := range c.ProductScope {
		if id == productID {
			return true
		}
	}
	return false
}

// Allocate computes the per-line discount for every eligible line. A
// coupon matching none of the lines is a validation error, not a silent
// no-op.
func (c *Coupon) Allocate(lines []LineInput) ([]float64, *domain.Error) {
	discounts := make([]float64, len(lines))
	matched := false
	for i, line := range lines {
		if !c.AppliesTo(line.ProductID) {
			continue
		}
		matched = true
		discounts[i] = LineDiscount(c.Type, c.Amount, line.UnitPrice, line.Quantity)
	}
	if !matched {
		return nil, domain.Validation(ErrCouponNotApplicableItems, "Coupon does not apply to any item in the cart", map[string]any{
			"scopedProducts": len(c.ProductScope),
		})
	}
	return discounts, nil
}

// RecordUsage writes the usage row. The unique (coupon_id, order_id)
// constraint stops a coupon being applied twice to the same order.
func RecordUsage(ctx context.Context, tx queryer, couponID, userID, orderID int64) *domain.Error {
	_, err := tx.Exec(ctx, `
		insert into coupon_usages (coupon_id, user_id, order_id) values ($1, $2, $3)
	`, couponID, userID, orderID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Conflict(ErrCouponAlreadyApplied, "Coupon is already applied to this order", nil)
		}
		return domain.System("COUPON_USAGE_FAILED", "Could not record coupon usage")
	}
	return nil
}
