package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeroInterest() LoanTerms {
	return LoanTerms{Interest: 0, Years: 10, LTVRatio: 1, LTIMultiplier: 100, MinSpareYears: 0}
}

func TestNewLoan(t *testing.T) {
	terms := zeroInterest()
	terms.LTIMultiplier = 5

	l, err := NewLoan(terms, 10, 100, 12000, 2000)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, l.Amount)
	assert.Equal(t, 84.0, l.MonthlyPayment)
	assert.Equal(t, 10000.0, l.TotalRepayment)
	assert.Equal(t, 21.0, l.WeeklyPayment())

	l, err = NewLoan(terms, 10, 10, 12000, 0)
	require.NoError(t, err)
	assert.Equal(t, 2400.0, l.Amount, "capped by years of income")

	l, err = NewLoan(DefaultLoanTerms(), 10, 1000, 10000, 0)
	require.NoError(t, err)
	assert.Greater(t, l.TotalRepayment, l.Amount, "interest accrues")
}

func TestNilLoan(t *testing.T) {
	var l *Loan
	assert.Zero(t, l.WeeklyPayment())
	assert.Zero(t, l.LoanAmount())
}

func TestFindLoan(t *testing.T) {
	terms := zeroInterest()
	base := LoanRequest{Price: 10000, WeeklyIncome: 20, LifetimeWeeks: 52 * 20, WillingToLend: true}

	tests := []struct {
		name      string
		edit      func(*LoanRequest)
		wantYears int // 0 means no loan
	}{
		{"extends the term until it fits", func(*LoanRequest) {}, 11},
		{"unwilling", func(r *LoanRequest) { r.WillingToLend = false }, 0},
		{"unwilling but bypassed", func(r *LoanRequest) { r.WillingToLend, r.Bypass, r.WeeklyIncome = false, true, 100 }, 10},
		{"no income left", func(r *LoanRequest) { r.RunningDelta = 20 }, 0},
		{"already saved", func(r *LoanRequest) { r.Funds = 10000 }, 0},
		{"lifetime too short", func(r *LoanRequest) { r.LifetimeWeeks = 52 }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.edit(&req)
			l, err := FindLoan(terms, req)
			require.NoError(t, err)
			if tt.wantYears == 0 {
				assert.Nil(t, l)
				return
			}
			require.NotNil(t, l)
			assert.Equal(t, tt.wantYears, l.Years)
			assert.LessOrEqual(t, l.WeeklyPayment(), req.WeeklyIncome-req.RunningDelta)
		})
	}
}

func TestGates(t *testing.T) {
	assert.True(t, Affordable(100, 50, &Loan{Amount: 50}))
	assert.False(t, Affordable(101, 50, &Loan{Amount: 50}))
	assert.True(t, Affordable(50, 50, nil))

	assert.True(t, Sustainable(10, 5, &Loan{MonthlyPayment: 12}, nil))
	assert.False(t, Sustainable(10, 5, &Loan{MonthlyPayment: 12}, &Loan{MonthlyPayment: 12}))

	assert.Equal(t, 2.0, RunningDelta(Running{Fuel: 52}, Running{Fuel: 104, Opex: 52}))
}

func TestPerceivedControl(t *testing.T) {
	assert.Equal(t, 1.0, Affordability(0, 0))
	assert.Equal(t, 0.5, Affordability(50, 100))
	assert.Equal(t, 1.0, Affordability(200, 100))

	assert.Equal(t, 1.0, IncomeScore(10, -1))
	assert.Equal(t, 0.0, IncomeScore(0, 5))
	assert.Equal(t, 0.5, IncomeScore(10, 5))
	assert.Equal(t, 0.0, IncomeScore(10, 50))

	assert.InDelta(t, 0.5, PerceivedControl(50, 100, 10, 5), 1e-12)
}

func TestRiskiness(t *testing.T) {
	assert.InDelta(t, 0.15, Riskiness(100, nil, PeerExposure{}, 0.3), 1e-12)

	peers := PeerExposure{Successors: 4, Known: 2, Dissatisfied: 1}
	assert.InDelta(t, 0.5, Riskiness(100, &Loan{Amount: 50}, peers, 0.5), 1e-12)

	assert.InDelta(t, 0.5, Riskiness(100, &Loan{Amount: 500}, PeerExposure{Successors: 1, Known: 1}, 0.5), 1e-12,
		"loan share is capped at 1")
}
