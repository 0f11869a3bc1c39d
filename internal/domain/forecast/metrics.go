package forecast

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ClassificationReport holds binary classification scores, positive class = 1.
type ClassificationReport struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
}

// ScoreClassifier compares predicted and actual 0/1 labels. Undefined
// ratios (no predicted or no actual positives) score zero.
func ScoreClassifier(actual, predicted []bool) ClassificationReport {
	var tp, tn, fp, fn float64
	for i := range actual {
		switch {
		case actual[i] && predicted[i]:
			tp++
		case !actual[i] && !predicted[i]:
			tn++
		case !actual[i] && predicted[i]:
			fp++
		default:
			fn++
		}
	}
	total := tp + tn + fp + fn
	r := ClassificationReport{}
	if total > 0 {
		r.Accuracy = (tp + tn) / total
	}
	if tp+fp > 0 {
		r.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		r.Recall = tp / (tp + fn)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r
}

// MeanAbsoluteError of predictions against actual values; 0 for empty input.
func MeanAbsoluteError(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

// RootMeanSquaredError of predictions against actual values; 0 for empty input.
func RootMeanSquaredError(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	return floats.Distance(actual, predicted, 2) / math.Sqrt(float64(len(actual)))
}

// RSquared is the coefficient of determination. It is 0 when fewer than two
// values exist or the actual values are constant.
func RSquared(actual, predicted []float64) float64 {
	if len(actual) < 2 {
		return 0
	}
	if stat.Variance(actual, nil) == 0 {
		return 0
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}

// OffsetMAPE is the mean absolute percentage error with the denominator
// offset by one so zero-valued days stay finite.
func OffsetMAPE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i]-predicted[i]) / (actual[i] + 1)
	}
	return sum / float64(len(actual)) * 100
}

// TotalErrorPercent compares total predicted and actual volume.
func TotalErrorPercent(actual, predicted []float64) float64 {
	sa, sp := floats.Sum(actual), floats.Sum(predicted)
	return math.Abs(sp-sa) / (sa + 1) * 100
}
