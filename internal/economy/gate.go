package economy

import "math"

// Running is the yearly running cost of a system: fuel plus opex.
type Running struct {
	Fuel float64
	Opex float64
}

// Weekly returns the running cost per week.
func (r Running) Weekly() float64 {
	return (r.Fuel + r.Opex) / 52
}

// RunningDelta is the weekly running-cost change of moving from current to next.
func RunningDelta(current, next Running) float64 {
	return next.Weekly() - current.Weekly()
}

// Affordable reports whether price is covered by budget plus loan.
func Affordable(price, budget float64, loan *Loan) bool {
	return price <= budget+loan.LoanAmount()
}

// Sustainable reports whether weekly income covers the running-cost change,
// the new loan's instalment and the instalment of an existing loan.
func Sustainable(income, runningDelta float64, newLoan, existing *Loan) bool {
	return income-(runningDelta+newLoan.WeeklyPayment())-existing.WeeklyPayment() >= 0
}

// Affordability is the perceived-control share of the price already saved.
func Affordability(budget, price float64) float64 {
	if price <= 0 {
		return 1
	}
	return math.Max(0, math.Min(1, budget/price))
}

// IncomeScore is the perceived-control share of weekly income left after a
// running-cost increase.
func IncomeScore(income, runningDelta float64) float64 {
	if runningDelta < 0 {
		return 1
	}
	if income <= 0 {
		return 0
	}
	return math.Max(0, 1-runningDelta/income)
}

// PerceivedControl combines affordability and income headroom.
func PerceivedControl(budget, price, income, runningDelta float64) float64 {
	return math.Sqrt(IncomeScore(income, runningDelta) * Affordability(budget, price))
}
