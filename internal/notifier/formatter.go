package notifier

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"time"

	"FXForecaster/internal/model"
	"FXForecaster/internal/recorder"
)

const rule = "_____________________________________________________________________\n"

// round5 formats v rounded to five decimals without trailing zeros.
func round5(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e5)/1e5, 'f', -1, 64)
}

// FormatReport renders the console block for one prediction.
func FormatReport(r model.PredictionResult) string {
	diff, dir := r.UnitDiff()
	var b strings.Builder
	b.WriteString(rule)
	fmt.Fprintf(&b, "Current Price:              %v\n", r.Quote.Price)
	fmt.Fprintf(&b, "Open Price:                 %v\n", r.Quote.Open)
	fmt.Fprintf(&b, "Daily High:                 %v\n", r.Quote.High)
	fmt.Fprintf(&b, "Daily Low:                  %v\n", r.Quote.Low)
	fmt.Fprintf(&b, "Predicted Closing Price:    %s\n", round5(r.Value))
	fmt.Fprintf(&b, "Predicted price is:         %s units %s than current price.\n", round5(diff), dir)
	fmt.Fprintf(&b, "Prediction Confidence:      %v%%\n", r.Confidence)
	fmt.Fprintf(&b, "Time to Market Close:       %s\n", r.TimeToClose)
	b.WriteString(rule)
	return b.String()
}

// FormatPredictionHTML formats a prediction as a Telegram message.
func FormatPredictionHTML(r model.PredictionResult) string {
	diff, dir := r.UnitDiff()
	arrow := "🔼"
	if dir == model.DirectionLower {
		arrow = "🔽"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📈 <b>%s close forecast</b> | %s\n\n", html.EscapeString(r.Symbol), r.ProducedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Price: %v (open %v, high %v, low %v)\n", r.Quote.Price, r.Quote.Open, r.Quote.High, r.Quote.Low)
	fmt.Fprintf(&b, "Predicted close: <b>%s</b>\n", round5(r.Value))
	fmt.Fprintf(&b, "%s %s units %s\n", arrow, round5(diff), dir)
	fmt.Fprintf(&b, "Confidence: %v%% | to close: %s\n", r.Confidence, r.TimeToClose)
	if r.ArtifactVersion != "" {
		fmt.Fprintf(&b, "Model: <code>%s</code>\n", html.EscapeString(r.ArtifactVersion))
	}
	return b.String()
}

// FormatRetrain formats the outcome of a retrain run.
func FormatRetrain(run *recorder.RetrainRun) string {
	var b strings.Builder
	if run.Outcome == "ok" {
		fmt.Fprintf(&b, "✅ <b>Retrain complete</b> | %s\n\n", html.EscapeString(run.Symbol))
		fmt.Fprintf(&b, "Version: <code>%s</code>\n", html.EscapeString(run.Version))
		fmt.Fprintf(&b, "Rows: %d (+%d)\n", run.Rows, run.Added)
		if !run.DataFrom.IsZero() {
			fmt.Fprintf(&b, "Window: %s .. %s\n", run.DataFrom.Format("2006-01-02"), run.DataTo.Format("2006-01-02"))
		}
	} else {
		fmt.Fprintf(&b, "❌ <b>Retrain failed</b> | %s\n\n", html.EscapeString(run.Symbol))
		fmt.Fprintf(&b, "Stage: %s\n", run.Stage)
		fmt.Fprintf(&b, "Error: %s\n", html.EscapeString(run.Error))
		b.WriteString("Previous model stays in service.\n")
	}
	fmt.Fprintf(&b, "Took: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	return b.String()
}
