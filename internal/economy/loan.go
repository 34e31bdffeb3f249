// Package economy holds the pure economic gates consulted by houseowners and
// intermediaries: loan amortisation, affordability and sustainability
// checks, and riskiness scoring. Nothing here owns simulation state.
package economy

import (
	"errors"
	"fmt"
	"math"
)

// ErrNegativePayment marks a loan whose amortisation produced a negative
// instalment, which only happens with corrupt inputs.
var ErrNegativePayment = errors.New("negative monthly payment")

// LoanTerms are the lending conditions of the run.
type LoanTerms struct {
	Interest      float64 `mapstructure:"interest"`       // annual rate
	Years         int     `mapstructure:"years"`          // initial term
	LTVRatio      float64 `mapstructure:"ltv_ratio"`      // loan-to-value cap
	LTIMultiplier float64 `mapstructure:"lti_multiplier"` // years of net income lendable
	MinSpareYears int     `mapstructure:"min_spare_years"`
}

// DefaultLoanTerms mirror a typical consumer energy-retrofit loan.
func DefaultLoanTerms() LoanTerms {
	return LoanTerms{Interest: 0.0221, Years: 10, LTVRatio: 1, LTIMultiplier: 5, MinSpareYears: 10}
}

// Loan is an annuity loan attached to one heating-system snapshot.
type Loan struct {
	Amount         float64 `json:"amount"`
	Years          int     `json:"years"`
	Interest       float64 `json:"interest"`
	MonthlyPayment float64 `json:"monthly_payment"`
	TotalRepayment float64 `json:"total_repayment"`
}

// WeeklyPayment is the instalment charged against weekly income.
func (l *Loan) WeeklyPayment() float64 {
	if l == nil {
		return 0
	}
	return l.MonthlyPayment / 4
}

// LoanAmount is nil-safe.
func (l *Loan) LoanAmount() float64 {
	if l == nil {
		return 0
	}
	return l.Amount
}

// NewLoan sizes a loan for a purchase of price given existing funds and the
// weekly income available for repayment.
func NewLoan(terms LoanTerms, years int, weeklyIncome, price, funds float64) (*Loan, error) {
	monthlyIncome := weeklyIncome * 4
	affordable := math.Min(terms.LTVRatio*price, monthlyIncome*12*terms.LTIMultiplier)
	required := math.Max(0, price-funds)
	amount := math.Ceil(math.Min(required, affordable))

	l := &Loan{Amount: amount, Years: years, Interest: terms.Interest}
	mi := terms.Interest / 12
	n := float64(years * 12)
	growth := math.Pow(1+mi, n)
	l.TotalRepayment = math.Floor(amount * growth)
	if mi == 0 {
		l.MonthlyPayment = math.Floor(math.Ceil(amount / n))
	} else {
		l.MonthlyPayment = math.Floor(math.Ceil(amount * (mi * growth) / (growth - 1)))
	}
	if l.MonthlyPayment < 0 {
		return nil, fmt.Errorf("loan of %.0f over %d years: %w", amount, years, ErrNegativePayment)
	}
	return l, nil
}

// LoanRequest describes one attempt to finance a system.
type LoanRequest struct {
	Price         float64
	Funds         float64 // budget already saved
	WeeklyIncome  float64
	RunningDelta  float64 // weekly running-cost change of the new system
	LifetimeWeeks int
	WillingToLend bool
	Bypass        bool // ignore unwillingness (final purchase step)
}

// FindLoan searches for the shortest term whose weekly instalment fits the
// income left after the running-cost change. It returns nil when no term up
// to the system lifetime minus the spare years is acceptable.
func FindLoan(terms LoanTerms, req LoanRequest) (*Loan, error) {
	expected := math.Max(0, req.WeeklyIncome-req.RunningDelta)
	if expected == 0 {
		return nil, nil
	}
	if !req.WillingToLend && !req.Bypass {
		return nil, nil
	}

	loan, err := NewLoan(terms, terms.Years, expected, req.Price, req.Funds)
	if err != nil {
		return nil, err
	}
	if loan.Amount == 0 {
		return nil, nil
	}

	limit := float64(req.LifetimeWeeks)/52 - float64(terms.MinSpareYears)
	increment := 1
	for loan.WeeklyPayment() > expected {
		loan, err = NewLoan(terms, terms.Years+increment, expected, req.Price, req.Funds)
		if err != nil {
			return nil, err
		}
		increment++
		if float64(increment) > limit || loan.Amount == 0 {
			return nil, nil
		}
	}
	return loan, nil
}
