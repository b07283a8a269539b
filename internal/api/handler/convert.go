package handler

import (
	"github.com/breatheroute/emissions/internal/api/models"
	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/inventory"
)

// runStatus derives the lifecycle state of a finished run.
func runStatus(s inventory.RunSummary) models.RunStatus {
	switch {
	case s.Skipped > 0:
		return models.RunStatusCancelled
	case s.Completed == s.Dates:
		return models.RunStatusCompleted
	case s.Completed == 0 && s.Failures > 0:
		return models.RunStatusFailed
	default:
		return models.RunStatusPartial
	}
}

func toRunSummary(s inventory.RunSummary) models.RunSummary {
	out := models.RunSummary{
		RunID:     s.RunID,
		Status:    runStatus(s),
		From:      models.Date(s.From),
		To:        models.Date(s.To),
		Mode:      string(s.Mode),
		StartedAt: models.Timestamp(s.StartedAt),
		Dates:     s.Dates,
		Completed: s.Completed,
		Skipped:   s.Skipped,
		Failures:  s.Failures,
	}
	if !s.FinishedAt.IsZero() {
		ts := models.Timestamp(s.FinishedAt)
		out.FinishedAt = &ts
	}
	return out
}

func toRunDetail(report *inventory.Report, withLinks bool) models.RunDetail {
	totals := report.Totals()

	detail := models.RunDetail{
		RunSummary:      toRunSummary(report.Summary()),
		DurationSeconds: report.Duration().Seconds(),
		Totals:          pollutantTotals(totals),
		Network:         emissionTotals(totals),
		FailedLinks:     report.FailedLinks(),
	}
	if len(report.ColdStart) > 0 {
		detail.ColdStart = emissionTotals(report.ColdStart)
	}
	if len(report.VehicleKilometres) > 0 {
		detail.VehicleKilometres = make(map[string]map[string]float64, len(report.VehicleKilometres))
		for class, volumes := range report.VehicleKilometres {
			byVehicle := make(map[string]float64, len(volumes))
			for vc, km := range volumes {
				byVehicle[string(vc)] = km
			}
			detail.VehicleKilometres[class.Label()] = byVehicle
		}
	}
	if withLinks {
		detail.Links = make(map[string]models.EmissionTotals, len(report.Links))
		for id, res := range report.Links {
			detail.Links[id] = emissionTotals(res)
		}
	}
	if len(report.Hourly) > 0 {
		detail.Hourly = make(map[string][]map[string]float64, len(report.Hourly))
		for date, hours := range report.Hourly {
			series := make([]map[string]float64, len(hours))
			for h, res := range hours {
				series[h] = pollutantTotals(res)
			}
			detail.Hourly[date] = series
		}
	}
	for _, f := range report.Failures {
		detail.Failures = append(detail.Failures, models.RunFailure{
			Date:   models.Date(f.Date),
			LinkID: f.LinkID,
			Stage:  f.Stage,
			Error:  f.Error,
		})
	}
	return detail
}

func emissionTotals(res emission.Result) models.EmissionTotals {
	out := make(models.EmissionTotals)
	for key, mass := range res {
		class := string(key.Class)
		if out[class] == nil {
			out[class] = make(map[string]float64)
		}
		out[class][string(key.Pollutant)] += mass
	}
	return out
}

func pollutantTotals(res emission.Result) map[string]float64 {
	out := make(map[string]float64)
	for key, mass := range res {
		out[string(key.Pollutant)] += mass
	}
	return out
}
