package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/erp/cashflow/internal/domain/shared"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	trendArtifactVersion = "1.0.0"
	monthEndRegressorDay = 25
	trendWindowDays      = 30
	secondsPerDay        = 86400
	minVariance          = 1e-6
)

// TrendOptions configures the cash-flow trend forecaster.
type TrendOptions struct {
	MinHistoryDays        int
	ValidationDays        int
	ChangepointCount      int
	ChangepointRange      float64
	ChangepointPriorScale float64
	SeasonalityPriorScale float64
	IntervalWidth         float64
	YearlyMinSpanDays     int
	FitIterations         int
}

// DefaultTrendOptions mirrors the production configuration.
func DefaultTrendOptions() TrendOptions {
	return TrendOptions{
		MinHistoryDays:        60,
		ValidationDays:        30,
		ChangepointCount:      25,
		ChangepointRange:      0.8,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		IntervalWidth:         0.8,
		YearlyMinSpanDays:     730,
		FitIterations:         5,
	}
}

type seasonalComponent struct {
	Name   string  `json:"name"`
	Period float64 `json:"period"`
	Order  int     `json:"order"`
}

var (
	weeklySeasonality  = seasonalComponent{Name: "weekly", Period: 7, Order: 3}
	monthlySeasonality = seasonalComponent{Name: "monthly", Period: 30.5, Order: 5}
	yearlySeasonality  = seasonalComponent{Name: "yearly", Period: 365.25, Order: 10}
)

// TrendMetrics reports accuracy over the held-out validation window.
type TrendMetrics struct {
	MAE            float64 `json:"mae"`
	RMSE           float64 `json:"rmse"`
	MAPE           float64 `json:"mape"`
	TotalErrorPct  float64 `json:"total_error_pct"`
	ValidationDays int     `json:"validation_days"`
	TrainingDays   int     `json:"training_days"`
}

// Map flattens the metrics for storage alongside the model record
func (m TrendMetrics) Map() map[string]float64 {
	return map[string]float64{
		"mae":             m.MAE,
		"rmse":            m.RMSE,
		"mape":            m.MAPE,
		"total_error_pct": m.TotalErrorPct,
		"validation_days": float64(m.ValidationDays),
		"training_days":   float64(m.TrainingDays),
	}
}

// ForecastPoint is one forecast day. Bounds span the configured interval width.
type ForecastPoint struct {
	Date  time.Time `json:"date"`
	Yhat  float64   `json:"yhat"`
	Lower float64   `json:"yhat_lower"`
	Upper float64   `json:"yhat_upper"`
	Trend float64   `json:"trend"`
}

// TrendAnalysis is a coarse direction signal for operators.
type TrendAnalysis struct {
	Direction        string  `json:"trend_direction"`
	Strength         string  `json:"trend_strength"`
	ChangePct        float64 `json:"trend_change_pct"`
	StartValue       float64 `json:"trend_start"`
	EndValue         float64 `json:"trend_end"`
	AvgDailyCashflow float64 `json:"avg_daily_cashflow"`
}

// TrendForecaster models daily cash inflow as a piecewise-linear trend
// scaled by multiplicative Fourier seasonality and a month-end regressor.
// It is immutable after fitting and safe for concurrent use.
type TrendForecaster struct {
	start         time.Time
	trainingEnd   time.Time
	tScale        float64
	yScale        float64
	changepoints  []float64
	theta         []float64 // intercept, slope, then one rate change per changepoint
	seasonal      []seasonalComponent
	beta          []float64 // Fourier terms in component order, then the month-end regressor
	halfWidth     float64
	intervalWidth float64
	trainingDays  int
	metrics       TrendMetrics
	trainedAt     time.Time
}

// Metrics returns the validation metrics
func (f *TrendForecaster) Metrics() TrendMetrics { return f.metrics }

// TrainingEnd returns the last day of the training window
func (f *TrendForecaster) TrainingEnd() time.Time { return f.trainingEnd }

// TrainedAt returns when the forecaster was fitted
func (f *TrendForecaster) TrainedAt() time.Time { return f.trainedAt }

// Seasonalities lists the fitted seasonal component names
func (f *TrendForecaster) Seasonalities() []string {
	names := make([]string, len(f.seasonal))
	for i, c := range f.seasonal {
		names[i] = c.Name
	}
	return names
}

// TrainTrendForecaster holds out the last ValidationDays of series, fits on
// the rest and scores the held-out window. A cancelled ctx stops the fit
// between iterations.
func TrainTrendForecaster(ctx context.Context, series DailySeries, opts TrendOptions, now time.Time) (*TrendForecaster, error) {
	if series.Span() < opts.MinHistoryDays {
		return nil, NewInsufficientHistoryError(series.Span(), opts.MinHistoryDays)
	}

	cutoff := shared.AddDays(series[len(series)-1].Date, -opts.ValidationDays)
	train, validation := series.SplitAt(cutoff)
	if len(train) < 2 {
		return nil, NewInsufficientHistoryError(len(train), opts.MinHistoryDays)
	}

	f := &TrendForecaster{
		start:         train[0].Date,
		trainingEnd:   train[len(train)-1].Date,
		intervalWidth: opts.IntervalWidth,
		trainingDays:  len(train),
		trainedAt:     now,
	}
	if err := f.fit(ctx, train, opts); err != nil {
		return nil, err
	}

	actual := validation.Values()
	predicted := make([]float64, len(validation))
	for i, p := range validation {
		predicted[i] = f.pointAt(p.Date).Yhat
	}
	f.metrics = TrendMetrics{
		MAE:            MeanAbsoluteError(actual, predicted),
		RMSE:           RootMeanSquaredError(actual, predicted),
		MAPE:           OffsetMAPE(actual, predicted),
		TotalErrorPct:  TotalErrorPercent(actual, predicted),
		ValidationDays: len(validation),
		TrainingDays:   len(train),
	}
	return f, nil
}

func (f *TrendForecaster) fit(ctx context.Context, train DailySeries, opts TrendOptions) error {
	n := len(train)
	f.tScale = math.Max(1, float64(shared.DaysBetween(f.start, f.trainingEnd)))

	y := train.Values()
	f.yScale = 0
	for _, v := range y {
		f.yScale = math.Max(f.yScale, math.Abs(v))
	}
	if f.yScale == 0 {
		f.yScale = 1
	}
	ys := make([]float64, n)
	ts := make([]float64, n)
	for i, p := range train {
		ys[i] = p.Value / f.yScale
		ts[i] = f.scaledTime(p.Date)
	}

	f.changepoints = placeChangepoints(ts, opts.ChangepointCount, opts.ChangepointRange)
	f.seasonal = []seasonalComponent{weeklySeasonality, monthlySeasonality}
	if float64(shared.DaysBetween(f.start, f.trainingEnd)) >= float64(opts.YearlyMinSpanDays) {
		f.seasonal = append(f.seasonal, yearlySeasonality)
	}

	T := mat.NewDense(n, 2+len(f.changepoints), nil)
	for i, t := range ts {
		T.SetRow(i, f.trendRow(t))
	}
	X := mat.NewDense(n, f.seasonalWidth(), nil)
	for i, p := range train {
		X.SetRow(i, f.seasonalRow(p.Date))
	}

	_, pt := T.Dims()
	_, px := X.Dims()
	f.beta = make([]float64, px)
	sigma2 := math.Max(stat.Variance(ys, nil), minVariance)
	if math.IsNaN(sigma2) {
		sigma2 = minVariance
	}

	g := make([]float64, n)
	mult := make([]float64, n)
	for it := 0; it < opts.FitIterations; it++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fit stopped at iteration %d: %w", it, err)
		}
		for i := 0; i < n; i++ {
			mult[i] = 1 + dot(X.RawRowView(i), f.beta)
		}
		A := scaleRows(T, mult)
		theta, err := ridgeSolve(A, ys, f.trendPenalty(pt, sigma2, opts))
		if err != nil {
			return fmt.Errorf("fit trend: %w", err)
		}
		f.theta = theta

		resid := make([]float64, n)
		for i := 0; i < n; i++ {
			g[i] = dot(T.RawRowView(i), f.theta)
			resid[i] = ys[i] - g[i]
		}
		B := scaleRows(X, g)
		beta, err := ridgeSolve(B, resid, uniformPenalty(px, sigma2/(opts.SeasonalityPriorScale*opts.SeasonalityPriorScale)))
		if err != nil {
			return fmt.Errorf("fit seasonality: %w", err)
		}
		f.beta = beta

		var sse float64
		for i := 0; i < n; i++ {
			r := ys[i] - g[i]*(1+dot(X.RawRowView(i), f.beta))
			sse += r * r
		}
		sigma2 = math.Max(sse/float64(n), minVariance)
	}

	abs := make([]float64, n)
	for i := 0; i < n; i++ {
		fitted := g[i] * (1 + dot(X.RawRowView(i), f.beta))
		abs[i] = math.Abs(ys[i] - fitted)
	}
	sort.Float64s(abs)
	f.halfWidth = stat.Quantile(f.intervalWidth, stat.Empirical, abs, nil)
	return nil
}

func (f *TrendForecaster) trendPenalty(width int, sigma2 float64, opts TrendOptions) []float64 {
	const baseScale = 5.0
	pen := make([]float64, width)
	pen[0] = sigma2 / (baseScale * baseScale)
	pen[1] = sigma2 / (baseScale * baseScale)
	cp := sigma2 / (opts.ChangepointPriorScale * opts.ChangepointPriorScale)
	for j := 2; j < width; j++ {
		pen[j] = cp
	}
	return pen
}

// placeChangepoints spreads count changepoints uniformly over the first
// fraction of the training rows, never on the first row.
func placeChangepoints(ts []float64, count int, fraction float64) []float64 {
	histSize := int(math.Floor(float64(len(ts)) * fraction))
	if count+1 > histSize {
		count = histSize - 1
	}
	if count <= 0 {
		return nil
	}
	out := make([]float64, 0, count)
	step := float64(histSize-1) / float64(count)
	for j := 1; j <= count; j++ {
		out = append(out, ts[int(math.Round(float64(j)*step))])
	}
	return out
}

func (f *TrendForecaster) scaledTime(d time.Time) float64 {
	return float64(shared.DaysBetween(f.start, d)) / f.tScale
}

func (f *TrendForecaster) trendRow(t float64) []float64 {
	row := make([]float64, 2+len(f.changepoints))
	row[0] = 1
	row[1] = t
	for j, s := range f.changepoints {
		if t >= s {
			row[2+j] = t - s
		}
	}
	return row
}

func (f *TrendForecaster) seasonalWidth() int {
	w := 1
	for _, c := range f.seasonal {
		w += 2 * c.Order
	}
	return w
}

func (f *TrendForecaster) seasonalRow(d time.Time) []float64 {
	days := float64(shared.DateOf(d).Unix()) / secondsPerDay
	row := make([]float64, 0, f.seasonalWidth())
	for _, c := range f.seasonal {
		for k := 1; k <= c.Order; k++ {
			x := 2 * math.Pi * float64(k) * days / c.Period
			row = append(row, math.Sin(x), math.Cos(x))
		}
	}
	return append(row, boolFeature(d.Day() >= monthEndRegressorDay))
}

// pointAt evaluates the model on d without clamping.
func (f *TrendForecaster) pointAt(d time.Time) ForecastPoint {
	g := dot(f.trendRow(f.scaledTime(d)), f.theta)
	yhat := g * (1 + dot(f.seasonalRow(d), f.beta))

	width := f.halfWidth
	if h := shared.DaysBetween(f.trainingEnd, d); h > 0 {
		width *= math.Sqrt(1 + float64(h)/float64(f.trainingDays))
	}
	return ForecastPoint{
		Date:  shared.DateOf(d),
		Yhat:  yhat * f.yScale,
		Lower: (yhat - width) * f.yScale,
		Upper: (yhat + width) * f.yScale,
		Trend: g * f.yScale,
	}
}

// Forecast returns daysAhead days starting the day after the training
// cutoff. Point estimates and bounds are never negative.
func (f *TrendForecaster) Forecast(daysAhead int) []ForecastPoint {
	if daysAhead <= 0 {
		return nil
	}
	out := make([]ForecastPoint, daysAhead)
	for i := 0; i < daysAhead; i++ {
		p := f.pointAt(shared.AddDays(f.trainingEnd, i+1))
		p.Yhat = math.Max(0, p.Yhat)
		p.Lower = math.Max(0, p.Lower)
		p.Upper = math.Max(0, p.Upper)
		out[i] = p
	}
	return out
}

// TrendAnalysis compares the trend component across the last 30 training days.
func (f *TrendForecaster) TrendAnalysis() TrendAnalysis {
	first := shared.AddDays(f.trainingEnd, -(trendWindowDays - 1))
	start := f.pointAt(first).Trend
	end := f.pointAt(f.trainingEnd).Trend

	var sum float64
	for i := 0; i < trendWindowDays; i++ {
		sum += f.pointAt(shared.AddDays(first, i)).Yhat
	}

	change := end - start
	pct := change / (start + 1) * 100
	a := TrendAnalysis{
		Direction:        "decreasing",
		Strength:         "weak",
		ChangePct:        pct,
		StartValue:       start,
		EndValue:         end,
		AvgDailyCashflow: sum / trendWindowDays,
	}
	if change > 0 {
		a.Direction = "increasing"
	}
	switch abs := math.Abs(pct); {
	case abs > 10:
		a.Strength = "strong"
	case abs > 5:
		a.Strength = "moderate"
	}
	return a
}

type trendArtifact struct {
	Version       string              `json:"version"`
	Start         time.Time           `json:"start"`
	TrainingEnd   time.Time           `json:"training_end"`
	TScale        float64             `json:"t_scale"`
	YScale        float64             `json:"y_scale"`
	Changepoints  []float64           `json:"changepoints"`
	Theta         []float64           `json:"theta"`
	Seasonal      []seasonalComponent `json:"seasonalities"`
	Beta          []float64           `json:"beta"`
	HalfWidth     float64             `json:"half_width"`
	IntervalWidth float64             `json:"interval_width"`
	TrainingDays  int                 `json:"training_days"`
	Metrics       TrendMetrics        `json:"metrics"`
	TrainedAt     time.Time           `json:"trained_at"`
}

// MarshalArtifact serializes the fitted state.
func (f *TrendForecaster) MarshalArtifact() ([]byte, error) {
	return json.Marshal(trendArtifact{
		Version:       trendArtifactVersion,
		Start:         f.start,
		TrainingEnd:   f.trainingEnd,
		TScale:        f.tScale,
		YScale:        f.yScale,
		Changepoints:  f.changepoints,
		Theta:         f.theta,
		Seasonal:      f.seasonal,
		Beta:          f.beta,
		HalfWidth:     f.halfWidth,
		IntervalWidth: f.intervalWidth,
		TrainingDays:  f.trainingDays,
		Metrics:       f.metrics,
		TrainedAt:     f.trainedAt,
	})
}

// UnmarshalTrendForecaster restores a forecaster saved by MarshalArtifact.
func UnmarshalTrendForecaster(data []byte) (*TrendForecaster, error) {
	var a trendArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode trend forecaster artifact: %w", err)
	}
	f := &TrendForecaster{
		start:         a.Start,
		trainingEnd:   a.TrainingEnd,
		tScale:        a.TScale,
		yScale:        a.YScale,
		changepoints:  a.Changepoints,
		theta:         a.Theta,
		seasonal:      a.Seasonal,
		beta:          a.Beta,
		halfWidth:     a.HalfWidth,
		intervalWidth: a.IntervalWidth,
		trainingDays:  a.TrainingDays,
		metrics:       a.Metrics,
		trainedAt:     a.TrainedAt,
	}
	if len(f.theta) != 2+len(f.changepoints) || len(f.beta) != f.seasonalWidth() || f.tScale <= 0 || f.trainingDays <= 0 {
		return nil, fmt.Errorf("decode trend forecaster artifact: inconsistent parameter dimensions")
	}
	return f, nil
}

// ridgeSolve minimizes |A·x − b|² + Σ penalty[j]·x[j]².
func ridgeSolve(A *mat.Dense, b []float64, penalty []float64) ([]float64, error) {
	_, p := A.Dims()
	normal := mat.NewSymDense(p, nil)
	normal.SymOuterK(1, A.T())
	for j := 0; j < p; j++ {
		normal.SetSym(j, j, normal.At(j, j)+penalty[j])
	}

	var rhs mat.VecDense
	rhs.MulVec(A.T(), mat.NewVecDense(len(b), b))

	var x mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(normal) {
		if err := chol.SolveVecTo(&x, &rhs); err != nil {
			return nil, err
		}
	} else if err := x.SolveVec(normal, &rhs); err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, &x), nil
}

func uniformPenalty(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func scaleRows(m *mat.Dense, w []float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		src := m.RawRowView(i)
		dst := out.RawRowView(i)
		for j := range src {
			dst[j] = src[j] * w[i]
		}
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
