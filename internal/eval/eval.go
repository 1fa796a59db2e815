package eval

import (
	"fmt"
	"sort"
)

// #region evaluate
// Evaluate computes accuracy, precision, recall and F1 from parallel label
// sequences. Binary problems (labels within {0, 1}) score the positive class;
// anything else is macro-averaged over the union of observed labels.
// Zero denominators yield 0, never an error.
func Evaluate(truth, pred []int) (MetricSet, error) {
	if len(truth) == 0 {
		return nil, ErrEmptyLabels
	}
	if len(truth) != len(pred) {
		return nil, fmt.Errorf("%w: %d true vs %d predicted", ErrLengthMismatch, len(truth), len(pred))
	}

	var correct int
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}

	labels := observedLabels(truth, pred)
	var precision, recall, f1 float64
	switch averagingFor(labels) {
	case AverageBinary:
		c := countClass(truth, pred, PositiveLabel)
		precision, recall, f1 = c.precision(), c.recall(), c.f1()
	default:
		for _, l := range labels {
			c := countClass(truth, pred, l)
			precision += c.precision()
			recall += c.recall()
			f1 += c.f1()
		}
		n := float64(len(labels))
		precision, recall, f1 = precision/n, recall/n, f1/n
	}

	return MetricSet{
		MetricAccuracy:  float64(correct) / float64(len(truth)),
		MetricPrecision: precision,
		MetricRecall:    recall,
		MetricF1:        f1,
	}, nil
}

// AveragingFor reports which averaging Evaluate applies to the given labels.
func AveragingFor(truth, pred []int) Averaging {
	return averagingFor(observedLabels(truth, pred))
}

// #endregion evaluate

// #region helpers
type classCounts struct {
	tp, fp, fn int
}

func countClass(truth, pred []int, label int) classCounts {
	var c classCounts
	for i := range truth {
		switch {
		case truth[i] == label && pred[i] == label:
			c.tp++
		case truth[i] != label && pred[i] == label:
			c.fp++
		case truth[i] == label && pred[i] != label:
			c.fn++
		}
	}
	return c
}

func (c classCounts) precision() float64 { return safeDiv(c.tp, c.tp+c.fp) }
func (c classCounts) recall() float64    { return safeDiv(c.tp, c.tp+c.fn) }
func (c classCounts) f1() float64        { return safeDiv(2*c.tp, 2*c.tp+c.fp+c.fn) }

func safeDiv(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func observedLabels(truth, pred []int) []int {
	seen := make(map[int]struct{})
	for _, l := range truth {
		seen[l] = struct{}{}
	}
	for _, l := range pred {
		seen[l] = struct{}{}
	}
	labels := make([]int, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

func averagingFor(labels []int) Averaging {
	for _, l := range labels {
		if l != 0 && l != PositiveLabel {
			return AverageMacro
		}
	}
	return AverageBinary
}

// #endregion helpers
