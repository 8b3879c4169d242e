package checkout

import (
	"testing"
)

func int32ptr(v int32) *int32 { return &v }
func boolptr(v bool) *bool    { return &v }
func int64ptr(v int64) *int64 { return &v }

func TestValidateLine(t *testing.T) {
	cases := []struct {
		name     string
		line     cartLine
		wantCode string
	}{
		{
			name: "valid product line",
			line: cartLine{ProductID: 1, Quantity: 2, ProductStock: 5, IsAccepted: true},
		},
		{
			name:     "product not accepted",
			line:     cartLine{ProductID: 1, Quantity: 1, ProductStock: 5, IsAccepted: false},
			wantCode: "PRODUCT_UNAVAILABLE",
		},
		{
			name:     "product out of stock",
			line:     cartLine{ProductID: 1, Quantity: 6, ProductStock: 5, IsAccepted: true},
			wantCode: "INSUFFICIENT_STOCK",
		},
		{
			name: "valid variant line",
			line: cartLine{
				ProductID: 1, VariantID: int64ptr(7), Quantity: 2, IsAccepted: true,
				VariantStock: int32ptr(3), VariantActive: boolptr(true),
			},
		},
		{
			name: "inactive variant",
			line: cartLine{
				ProductID: 1, VariantID: int64ptr(7), Quantity: 1, IsAccepted: true,
				VariantStock: int32ptr(3), VariantActive: boolptr(false),
			},
			wantCode: "VARIANT_UNAVAILABLE",
		},
		{
			name: "variant out of stock",
			line: cartLine{
				ProductID: 1, VariantID: int64ptr(7), Quantity: 4, IsAccepted: true,
				VariantStock: int32ptr(3), VariantActive: boolptr(true),
			},
			wantCode: "INSUFFICIENT_STOCK",
		},
		{
			name: "variant stock ignores parent product stock",
			line: cartLine{
				ProductID: 1, VariantID: int64ptr(7), Quantity: 2, IsAccepted: true,
				ProductStock: 0, VariantStock: int32ptr(3), VariantActive: boolptr(true),
			},
		},
		{
			name:     "zero quantity",
			line:     cartLine{ProductID: 1, Quantity: 0, ProductStock: 5, IsAccepted: true},
			wantCode: "INVALID_QUANTITY",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := validateLine(tc.line)
			if tc.wantCode == "" {
				if got != nil {
					t.Fatalf("expected valid line, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected error code %s, got nil", tc.wantCode)
			}
			if got.Code != tc.wantCode {
				t.Fatalf("expected code %s, got %s", tc.wantCode, got.Code)
			}
		})
	}
}

func TestTotals(t *testing.T) {
	lines := []cartLine{
		{UnitPrice: 100.00, Quantity: 2, AllocatedDisc: 20.00},
		{UnitPrice: 9.99, Quantity: 3},
	}

	subtotal, discount, total := totals(lines, 15)
	if subtotal != 229.97 {
		t.Fatalf("expected subtotal 229.97, got %v", subtotal)
	}
	if discount != 20.00 {
		t.Fatalf("expected discount 20.00, got %v", discount)
	}
	if total != 224.97 {
		t.Fatalf("expected total 224.97, got %v", total)
	}
}

func TestTotalsNeverNegative(t *testing.T) {
	lines := []cartLine{{UnitPrice: 10, Quantity: 1, AllocatedDisc: 10}}
	_, _, total := totals(lines, 0)
	if total != 0 {
		t.Fatalf("expected total 0, got %v", total)
	}
}

func TestDistinctStores(t *testing.T) {
	lines := []cartLine{
		{StoreID: 3}, {StoreID: 1}, {StoreID: 3}, {StoreID: 2}, {StoreID: 1},
	}
	got := distinctStores(lines)
	want := []int64{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
