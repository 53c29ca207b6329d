package normalize

import (
	"time"

	"github.com/PresidentofMexico/openai-usage-metrics/internal/config"
	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
)

// applyCosts prices records against the current cost model.
//
// Usage-based tools bill per counted unit per feature. Seat-based tools
// bill a flat monthly rate attributed once per user per billing period
// regardless of how many usage columns the user appears in; the seat cost
// lands on the user's first monthly record for that period. Weekly-cadence
// records carry no seat cost since the billing period is the calendar
// month.
func (n *Normalizer) applyCosts(records []usagedomain.CanonicalUsageRecord) {
	rates := n.rates.Get()

	type seatKey struct {
		tool  string
		user  string
		month time.Time
	}
	seatCharged := map[seatKey]bool{}

	for i := range records {
		r := &records[i]
		tool := rates.ForTool(r.ToolSource)
		if tool == nil {
			continue
		}

		switch tool.Model {
		case config.CostModelUsage:
			r.CostUSD = r.UsageCount * tool.PerUnitUSD[r.Feature]
		case config.CostModelSeat:
			if r.Cadence != usagedomain.CadenceMonthly {
				continue
			}
			k := seatKey{tool: r.ToolSource, user: r.UserKey, month: r.PeriodStart}
			if seatCharged[k] {
				continue
			}
			seatCharged[k] = true
			r.CostUSD = tool.SeatMonthlyUSD
		}
	}
}
