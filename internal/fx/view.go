package fx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/carry"
	"github.com/argos/carry-engine/internal/model"
	"github.com/argos/carry-engine/internal/spread"
)

// View is the reconciliation output restated in another currency.
type View struct {
	Currency   string               `json:"currency"`
	Daily      []model.DailyRecord  `json:"daily"`
	Spread     []model.SpreadRecord `json:"spread"`
	Funding    *model.FundingKPIs   `json:"funding_kpis"`
	SpreadKPIs *model.SpreadKPIs    `json:"spread_kpis"`
}

// Input is the native-currency output to rebase.
type Input struct {
	Daily        []model.DailyRecord
	Spread       []model.SpreadRecord
	PeriodRate   decimal.Decimal
	MaxDailyLoss decimal.Decimal
}

// Rebase converts in at the given conversion series. The funding and spread
// KPI bundles are summarized again from the converted daily series. The
// maximum daily loss is converted at the rate of the last day with a valid
// spread, the day the traffic light is evaluated on.
func Rebase(currency string, in Input, rates []model.ConversionRate) (*View, error) {
	aligned, err := Align(rates, dates(in))
	if err != nil {
		return nil, err
	}

	view := &View{
		Currency: currency,
		Daily:    NormalizeDaily(in.Daily, aligned),
		Spread:   NormalizeSpread(in.Spread, aligned),
	}
	view.Funding = carry.Summarize(view.Daily, in.PeriodRate)

	maxLoss := in.MaxDailyLoss
	if last, ok := lastValid(in.Spread); ok {
		if rate, ok := aligned.Rate(last); ok {
			maxLoss = maxLoss.Div(rate)
		}
	}
	view.SpreadKPIs = spread.Summarize(view.Spread, maxLoss)
	return view, nil
}

func dates(in Input) []time.Time {
	seen := make(map[string]struct{}, len(in.Daily)+len(in.Spread))
	var out []time.Time
	add := func(day time.Time) {
		key := model.DateKey(day)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, day)
	}
	for _, rec := range in.Daily {
		add(rec.Date)
	}
	for _, rec := range in.Spread {
		add(rec.Date)
	}
	return out
}

func lastValid(records []model.SpreadRecord) (time.Time, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Spread.Valid {
			return records[i].Date, true
		}
	}
	return time.Time{}, false
}
