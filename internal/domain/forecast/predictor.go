package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// PredictorKind tags which delay model a payment predictor carries.
type PredictorKind string

const (
	// PredictorClassifierOnly has no late training rows at all; delay is always zero.
	PredictorClassifierOnly PredictorKind = "classifier_only"
	// PredictorWithRegressor carries a delay regressor fitted on late rows.
	PredictorWithRegressor PredictorKind = "classifier_regressor"
	// PredictorDegenerateRegressor saw too few late rows and falls back to a zero regressor.
	PredictorDegenerateRegressor PredictorKind = "degenerate_regressor"
)

const (
	paymentArtifactVersion = "1.0.0"
	// a delay regressor needs strictly more late rows than this
	minLateExamples = 10
)

// TrainingOptions configures payment predictor training.
type TrainingOptions struct {
	MinSamples   int
	TestFraction float64
	Seed         uint64
	Boosting     BoostingParams
}

// DefaultTrainingOptions requires 50 examples and holds out 20% with seed 42.
func DefaultTrainingOptions() TrainingOptions {
	return TrainingOptions{
		MinSamples:   50,
		TestFraction: 0.2,
		Seed:         42,
		Boosting:     DefaultBoostingParams(),
	}
}

// PaymentMetrics reports held-out quality of a trained predictor.
type PaymentMetrics struct {
	Accuracy     float64 `json:"accuracy"`
	Precision    float64 `json:"precision"`
	Recall       float64 `json:"recall"`
	F1           float64 `json:"f1"`
	MAE          float64 `json:"mae"`
	R2           float64 `json:"r2"`
	TrainSamples int     `json:"train_samples"`
	TestSamples  int     `json:"test_samples"`
	LateSamples  int     `json:"late_samples"`
}

// Map flattens the metrics for storage alongside the model record
func (m PaymentMetrics) Map() map[string]float64 {
	return map[string]float64{
		"accuracy":      m.Accuracy,
		"precision":     m.Precision,
		"recall":        m.Recall,
		"f1":            m.F1,
		"mae":           m.MAE,
		"r2":            m.R2,
		"train_samples": float64(m.TrainSamples),
		"test_samples":  float64(m.TestSamples),
		"late_samples":  float64(m.LateSamples),
	}
}

// delayModel is the uniform interface over fitted and fallback regressors.
type delayModel interface {
	predictDelay(x []float64) float64
}

type zeroDelay struct{}

func (zeroDelay) predictDelay([]float64) float64 { return 0 }

type boostedDelay struct{ m *GradientBoostedTrees }

func (b boostedDelay) predictDelay(x []float64) float64 { return b.m.Predict(x) }

// PaymentPredictor scores feature vectors into payment outcomes. It is
// immutable after training or loading and safe for concurrent use.
type PaymentPredictor struct {
	kind          PredictorKind
	classifier    *GradientBoostedTrees
	regressor     *GradientBoostedTrees
	delay         delayModel
	featureNames  []string
	schemaVersion int
	metrics       PaymentMetrics
	trainedAt     time.Time
}

// Kind reports which delay model the predictor carries
func (p *PaymentPredictor) Kind() PredictorKind { return p.kind }

// Metrics returns the held-out evaluation
func (p *PaymentPredictor) Metrics() PaymentMetrics { return p.metrics }

// FeatureNames returns the feature order recorded at training time
func (p *PaymentPredictor) FeatureNames() []string {
	out := make([]string, len(p.featureNames))
	copy(out, p.featureNames)
	return out
}

// TrainedAt returns when the predictor was fitted
func (p *PaymentPredictor) TrainedAt() time.Time { return p.trainedAt }

// TrainPaymentPredictor fits the on-time classifier and, given enough late
// rows, the late-only delay regressor. A cancelled ctx stops the fit
// between boosting rounds.
func TrainPaymentPredictor(ctx context.Context, examples []TrainingExample, opts TrainingOptions, now time.Time) (*PaymentPredictor, error) {
	if len(examples) < opts.MinSamples {
		return nil, NewInsufficientDataError(len(examples), opts.MinSamples)
	}

	trainIdx, testIdx := splitIndices(len(examples), opts.TestFraction, opts.Seed)

	X := make([][]float64, len(examples))
	for i := range examples {
		X[i] = examples[i].Features.Values()
	}

	xTrain := make([][]float64, len(trainIdx))
	yTrain := make([]float64, len(trainIdx))
	var lateX [][]float64
	var lateY []float64
	for k, i := range trainIdx {
		xTrain[k] = X[i]
		yTrain[k] = boolFeature(examples[i].OnTime)
		if examples[i].DelayDays > 0 {
			lateX = append(lateX, X[i])
			lateY = append(lateY, float64(examples[i].DelayDays))
		}
	}

	classifier, err := FitGradientBoostedTrees(ctx, xTrain, yTrain, ObjectiveLogistic, opts.Boosting)
	if err != nil {
		return nil, fmt.Errorf("fit on-time classifier: %w", err)
	}

	p := &PaymentPredictor{
		classifier:    classifier,
		featureNames:  FeatureNames(),
		schemaVersion: FeatureSchemaVersion,
		trainedAt:     now,
	}

	switch {
	case len(lateY) == 0:
		p.kind = PredictorClassifierOnly
	case len(lateY) <= minLateExamples:
		p.kind = PredictorDegenerateRegressor
	default:
		regressor, err := FitGradientBoostedTrees(ctx, lateX, lateY, ObjectiveSquared, opts.Boosting)
		if err != nil {
			return nil, fmt.Errorf("fit delay regressor: %w", err)
		}
		p.kind = PredictorWithRegressor
		p.regressor = regressor
	}
	p.bindDelayModel()

	p.metrics = p.evaluate(examples, X, testIdx)
	p.metrics.TrainSamples = len(trainIdx)
	p.metrics.TestSamples = len(testIdx)
	p.metrics.LateSamples = len(lateY)
	return p, nil
}

// splitIndices shuffles 0..n-1 with a fixed seed and holds out the first
// ceil(n*testFraction) as the test split.
func splitIndices(n int, testFraction float64, seed uint64) (train, test []int) {
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return perm[nTest:], perm[:nTest]
}

func (p *PaymentPredictor) evaluate(examples []TrainingExample, X [][]float64, testIdx []int) PaymentMetrics {
	actual := make([]bool, len(testIdx))
	predicted := make([]bool, len(testIdx))
	var lateActual, latePred []float64
	for k, i := range testIdx {
		actual[k] = examples[i].OnTime
		predicted[k] = p.classifier.Predict(X[i]) >= onTimeThreshold
		if examples[i].DelayDays > 0 {
			lateActual = append(lateActual, float64(examples[i].DelayDays))
			latePred = append(latePred, p.delay.predictDelay(X[i]))
		}
	}

	cls := ScoreClassifier(actual, predicted)
	m := PaymentMetrics{
		Accuracy:  cls.Accuracy,
		Precision: cls.Precision,
		Recall:    cls.Recall,
		F1:        cls.F1,
	}
	if p.kind == PredictorWithRegressor && len(lateActual) > 0 {
		m.MAE = MeanAbsoluteError(lateActual, latePred)
		m.R2 = RSquared(lateActual, latePred)
	}
	return m
}

func (p *PaymentPredictor) bindDelayModel() {
	if p.kind == PredictorWithRegressor && p.regressor != nil {
		p.delay = boostedDelay{m: p.regressor}
		return
	}
	p.delay = zeroDelay{}
}

// Predict scores v as of today.
func (p *PaymentPredictor) Predict(v FeatureVector, today time.Time) (PaymentOutcome, error) {
	if p.schemaVersion != FeatureSchemaVersion {
		return PaymentOutcome{}, NewFeatureSchemaMismatchError(
			fmt.Sprintf("model schema v%d, runtime schema v%d", p.schemaVersion, FeatureSchemaVersion))
	}
	x, err := v.Ordered(p.featureNames)
	if err != nil {
		return PaymentOutcome{}, err
	}
	if len(x) != p.classifier.NumFeatures {
		return PaymentOutcome{}, NewFeatureSchemaMismatchError(
			fmt.Sprintf("model expects %d features, got %d", p.classifier.NumFeatures, len(x)))
	}

	prob := p.classifier.Predict(x)
	delay := 0
	if prob < onTimeThreshold {
		delay = int(math.Max(0, math.Trunc(p.delay.predictDelay(x))))
	}
	return newPaymentOutcome(prob, delay, int(v.DaysUntilDue), today), nil
}

type paymentArtifact struct {
	Version       string                `json:"version"`
	SchemaVersion int                   `json:"schema_version"`
	Kind          PredictorKind         `json:"kind"`
	FeatureNames  []string              `json:"feature_columns"`
	Classifier    *GradientBoostedTrees `json:"classifier"`
	Regressor     *GradientBoostedTrees `json:"regressor,omitempty"`
	Metrics       PaymentMetrics        `json:"metrics"`
	TrainedAt     time.Time             `json:"trained_at"`
}

// MarshalArtifact serializes the classifier, regressor, feature order and
// metrics as one bundle.
func (p *PaymentPredictor) MarshalArtifact() ([]byte, error) {
	return json.Marshal(paymentArtifact{
		Version:       paymentArtifactVersion,
		SchemaVersion: p.schemaVersion,
		Kind:          p.kind,
		FeatureNames:  p.featureNames,
		Classifier:    p.classifier,
		Regressor:     p.regressor,
		Metrics:       p.metrics,
		TrainedAt:     p.trainedAt,
	})
}

// UnmarshalPaymentPredictor restores a predictor saved by MarshalArtifact.
func UnmarshalPaymentPredictor(data []byte) (*PaymentPredictor, error) {
	var a paymentArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode payment predictor artifact: %w", err)
	}
	if a.Classifier == nil || len(a.FeatureNames) == 0 {
		return nil, fmt.Errorf("decode payment predictor artifact: missing classifier or feature columns")
	}
	switch a.Kind {
	case PredictorClassifierOnly, PredictorDegenerateRegressor:
	case PredictorWithRegressor:
		if a.Regressor == nil {
			return nil, fmt.Errorf("decode payment predictor artifact: %s without regressor", a.Kind)
		}
	default:
		return nil, fmt.Errorf("decode payment predictor artifact: unknown kind %q", a.Kind)
	}

	p := &PaymentPredictor{
		kind:          a.Kind,
		classifier:    a.Classifier,
		regressor:     a.Regressor,
		featureNames:  a.FeatureNames,
		schemaVersion: a.SchemaVersion,
		metrics:       a.Metrics,
		trainedAt:     a.TrainedAt,
	}
	p.bindDelayModel()
	return p, nil
}
