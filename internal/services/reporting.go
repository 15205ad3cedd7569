package services

import (
	"context"
	"fmt"

	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
)

// DriverKPI is a per-driver rollup of terminal assignments.
type DriverKPI struct {
	Completed          int     `json:"completed"`
	Cancelled          int     `json:"cancelled"`
	Failed             int     `json:"failed"`
	AvgDeliveryMinutes float64 `json:"avg_delivery_minutes"`
}

// Report is the KPI aggregate over historical assignment records.
type Report struct {
	Total              int                  `json:"total"`
	Delivered          int                  `json:"delivered"`
	Cancelled          int                  `json:"cancelled"`
	Failed             int                  `json:"failed"`
	OnTimeRate         float64              `json:"on_time_rate"`
	AvgDeliveryMinutes float64              `json:"avg_delivery_minutes"`
	PerDriver          map[string]DriverKPI `json:"per_driver"`
}

// Reporting computes delivery KPIs from persisted assignment history. It is
// read-only and never mutates source records.
type Reporting struct {
	assignments ports.AssignmentRepository
	cfg         config.Dispatch
}

func NewReporting(assignments ports.AssignmentRepository, cfg config.Dispatch) *Reporting {
	return &Reporting{assignments: assignments, cfg: cfg}
}

// Generate aggregates terminal assignments matching the filters. On-time
// means delivered at or before the route ETA plus the configured grace; the
// rate's denominator counts only deliveries with a computable ETA.
func (r *Reporting) Generate(ctx context.Context, f ports.ReportFilters) (_ *Report, err error) {
	defer obs.Time(ctx, "reporting.Generate")(&err)

	records, err := r.assignments.ListForReport(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}

	report := &Report{PerDriver: make(map[string]DriverKPI)}

	var (
		totalMinutes  float64
		durationCount int
		onTime        int
		etaKnown      int
		driverMinutes = make(map[string]float64)
		driverCount   = make(map[string]int)
	)

	for _, a := range records {
		report.Total++

		kpi := report.PerDriver[a.DriverID]
		switch a.Status {
		case domain.StatusDelivered:
			report.Delivered++
			kpi.Completed++

			if a.ResolvedAt != nil {
				minutes := a.ResolvedAt.Sub(a.CreatedAt).Minutes()
				totalMinutes += minutes
				durationCount++
				driverMinutes[a.DriverID] += minutes
				driverCount[a.DriverID]++

				if eta, ok := plannedArrival(a); ok {
					etaKnown++
					if !a.ResolvedAt.After(eta.Add(r.cfg.OnTimeGrace)) {
						onTime++
					}
				}
			}
		case domain.StatusCancelled:
			report.Cancelled++
			kpi.Cancelled++
		case domain.StatusFailed:
			report.Failed++
			kpi.Failed++
		default:
			// Non-terminal rows are a repository contract breach; count the
			// total but attribute nothing else.
		}
		// Failed assignments end with no driver bound; they contribute to the
		// totals only.
		if a.DriverID != "" {
			report.PerDriver[a.DriverID] = kpi
		}
	}

	if durationCount > 0 {
		report.AvgDeliveryMinutes = totalMinutes / float64(durationCount)
	}
	if etaKnown > 0 {
		report.OnTimeRate = float64(onTime) / float64(etaKnown)
	}
	for id, kpi := range report.PerDriver {
		if n := driverCount[id]; n > 0 {
			kpi.AvgDeliveryMinutes = driverMinutes[id] / float64(n)
			report.PerDriver[id] = kpi
		}
	}

	return report, nil
}
