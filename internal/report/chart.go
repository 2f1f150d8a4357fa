package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartHandler renders a junction's detection history as an HTML line chart.
// Query params:
//   - junction_id (required)
//   - period (optional; default daily)
func ChartHandler(st Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		junctionID := r.URL.Query().Get("junction_id")
		if junctionID == "" {
			chartError(w, http.StatusBadRequest, "junction_id is required")
			return
		}

		period := PeriodDaily
		if p := r.URL.Query().Get("period"); p != "" {
			parsed, err := ParsePeriod(p)
			if err != nil {
				chartError(w, http.StatusBadRequest, err.Error())
				return
			}
			period = parsed
		}

		since := time.Now().UTC().Add(-period.Window())
		times, counts, err := st.JunctionSeries(r.Context(), junctionID, since)
		if err != nil {
			chartError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load history: %v", err))
			return
		}
		if len(counts) == 0 {
			chartError(w, http.StatusNotFound, "no detection history for junction")
			return
		}

		x := make([]string, len(times))
		y := make([]opts.LineData, len(counts))
		for i := range counts {
			x[i] = times[i].Format("01-02 15:04")
			y[i] = opts.LineData{Value: counts[i]}
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{PageTitle: "Traffic History", Theme: "dark", Width: "1200px", Height: "600px"}),
			charts.WithTitleOpts(opts.Title{
				Title:    fmt.Sprintf("Junction %s", junctionID),
				Subtitle: fmt.Sprintf("period=%s samples=%d", period, len(counts)),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Vehicles"}),
		)
		line.SetXAxis(x).AddSeries("vehicles", y,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		)

		var buf bytes.Buffer
		if err := line.Render(&buf); err != nil {
			chartError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}

func chartError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
