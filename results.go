package main

import (
	"sort"
)

type whiskeyTally struct {
	count   int
	nose    int
	palate  int
	finish  int
	balance int
	total   float64
	high    float64
	low     float64
}

// computeResults aggregates every ballot into per-whiskey means and
// assigns competition ranks (1, 2, 2, 4) by mean weighted total.
// Whiskeys nobody scored trail the field in pour order, tied one rank
// below the last scored entry.
func computeResults(whiskeys []Whiskey, scores []Score) []WhiskeyResult {
	tallies := make(map[string]*whiskeyTally, len(whiskeys))

	for _, sc := range scores {
		tally, ok := tallies[sc.WhiskeyID]
		if !ok {
			tally = &whiskeyTally{}
			tallies[sc.WhiskeyID] = tally
		}

		tally.count++
		tally.nose += sc.Nose
		tally.palate += sc.Palate
		tally.finish += sc.Finish
		tally.balance += sc.Balance
		tally.total += sc.Total

		if tally.count == 1 || sc.Total > tally.high {
			tally.high = sc.Total
		}

		if tally.count == 1 || sc.Total < tally.low {
			tally.low = sc.Total
		}
	}

	var scored, unscored []WhiskeyResult

	for i := range whiskeys {
		w := whiskeys[i]

		result := WhiskeyResult{
			Whiskey: w.view(true),
		}

		tally, ok := tallies[w.ID]
		if !ok || tally.count == 0 {
			unscored = append(unscored, result)

			continue
		}

		n := float64(tally.count)

		result.Scores = tally.count
		result.MeanTotal = round2(tally.total / n)
		result.HighTotal = tally.high
		result.LowTotal = tally.low
		result.MeanNose = round2(float64(tally.nose) / n)
		result.MeanPalate = round2(float64(tally.palate) / n)
		result.MeanFinish = round2(float64(tally.finish) / n)
		result.MeanBalance = round2(float64(tally.balance) / n)

		scored = append(scored, result)
	}

	// Ties keep pour order so the output is deterministic.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].MeanTotal > scored[j].MeanTotal
	})

	rank := 0

	for i := range scored {
		if i == 0 || scored[i].MeanTotal != scored[i-1].MeanTotal {
			rank = i + 1
		}

		scored[i].Rank = rank
	}

	for i := range unscored {
		unscored[i].Rank = len(scored) + 1
	}

	return append(scored, unscored...)
}
