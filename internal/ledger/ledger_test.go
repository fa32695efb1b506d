package ledger

import (
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		amount  uint64
		bps     Bps
		wantFee uint64
		wantNet uint64
	}{
		{amount: 100, bps: 200, wantFee: 2, wantNet: 98},
		{amount: 150_000, bps: 100, wantFee: 1_500, wantNet: 148_500},
		{amount: 49, bps: 200, wantFee: 0, wantNet: 49},
		{amount: 1000, bps: 0, wantFee: 0, wantNet: 1000},
		{amount: 1000, bps: MaxBps, wantFee: 1000, wantNet: 0},
		{amount: math.MaxUint64, bps: 5000, wantFee: math.MaxUint64 / 2, wantNet: math.MaxUint64 - math.MaxUint64/2},
	}
	for _, tt := range tests {
		fee, net, err := SplitFee(tt.amount, tt.bps)
		if err != nil {
			t.Fatalf("SplitFee(%d, %d): %v", tt.amount, tt.bps, err)
		}
		if fee != tt.wantFee || net != tt.wantNet {
			t.Errorf("SplitFee(%d, %d) = %d, %d; want %d, %d", tt.amount, tt.bps, fee, net, tt.wantFee, tt.wantNet)
		}
		if fee+net != tt.amount {
			t.Errorf("SplitFee(%d, %d) does not conserve the amount", tt.amount, tt.bps)
		}
	}
}

func TestSplitFeeRejectsRateAbove100(t *testing.T) {
	if _, _, err := SplitFee(100, MaxBps+1); !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("err = %v, want ErrInvalidParams", err)
	}
}

func TestPercentToBps(t *testing.T) {
	tests := []struct {
		pct     float64
		want    Bps
		wantErr bool
	}{
		{pct: 2.0, want: 200},
		{pct: 1.0, want: 100},
		{pct: 0.25, want: 25},
		{pct: 100, want: MaxBps},
		{pct: 0.125, wantErr: true},
		{pct: -1, wantErr: true},
		{pct: 101, wantErr: true},
		{pct: math.NaN(), wantErr: true},
	}
	for _, tt := range tests {
		got, err := PercentToBps(tt.pct)
		if tt.wantErr {
			if err == nil {
				t.Errorf("PercentToBps(%v) = %d, want error", tt.pct, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("PercentToBps(%v) = %d, %v; want %d", tt.pct, got, err, tt.want)
		}
	}
}

func TestCheckDeposit(t *testing.T) {
	if err := CheckDeposit(50_000); !errors.Is(err, domain.ErrInvalidFundAmount) {
		t.Fatalf("50_000: err = %v, want ErrInvalidFundAmount", err)
	}
	if err := CheckDeposit(MinDeposit); err != nil {
		t.Fatalf("floor itself rejected: %v", err)
	}
}

func TestCheckedArithmetic(t *testing.T) {
	if _, err := Add(math.MaxUint64, 1); !errors.Is(err, domain.ErrArithmetic) {
		t.Errorf("Add overflow: err = %v", err)
	}
	if _, err := Sub(1, 2); !errors.Is(err, domain.ErrArithmetic) {
		t.Errorf("Sub underflow: err = %v", err)
	}
	if s, err := Add(2, 3); err != nil || s != 5 {
		t.Errorf("Add(2, 3) = %d, %v", s, err)
	}
}
