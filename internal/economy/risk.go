package economy

import "math"

// PeerExposure summarises what an agent's successors report about a system.
type PeerExposure struct {
	Successors   int // total successors in the social graph
	Known        int // successors that reported a satisfaction for the system
	Dissatisfied int // of those, how many were dissatisfied
}

// Riskiness averages loan exposure and peer-dissatisfaction exposure.
// Peers that never reported count as dissatisfied with weight
// uncertaintyFactor; without any successors the whole uncertainty term is
// the uncertainty factor.
func Riskiness(price float64, loan *Loan, peers PeerExposure, uncertaintyFactor float64) float64 {
	loanRisk := 0.0
	if loan != nil && price > 0 {
		loanRisk = math.Min(1, loan.Amount/price)
	}

	uncertaintyRisk := uncertaintyFactor
	if peers.Successors > 0 {
		unknown := peers.Successors - peers.Known
		uncertaintyRisk = (float64(peers.Dissatisfied) + uncertaintyFactor*float64(unknown)) / float64(peers.Successors)
	}

	return (loanRisk + uncertaintyRisk) / 2
}
