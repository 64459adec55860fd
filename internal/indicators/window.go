package indicators

import "math"

// The helpers below operate on whole columns. NaN marks an undefined entry;
// a windowed value is defined only when every input in its window is.

func undefinedColumn(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Shift moves every value n positions later. The first n entries become
// undefined.
func Shift(x []float64, n int) []float64 {
	out := undefinedColumn(len(x))
	for i := n; i < len(x); i++ {
		out[i] = x[i-n]
	}
	return out
}

// Diff returns x[i] - x[i-n].
func Diff(x []float64, n int) []float64 {
	out := undefinedColumn(len(x))
	for i := n; i < len(x); i++ {
		out[i] = x[i] - x[i-n]
	}
	return out
}

// PctChange returns (x[i] - x[i-n]) / x[i-n]. A zero base is undefined.
func PctChange(x []float64, n int) []float64 {
	out := undefinedColumn(len(x))
	for i := n; i < len(x); i++ {
		if x[i-n] == 0 {
			continue
		}
		out[i] = (x[i] - x[i-n]) / x[i-n]
	}
	return out
}

// rolling applies fn to every complete, fully defined trailing window of w.
func rolling(x []float64, w int, fn func(win []float64) float64) []float64 {
	out := undefinedColumn(len(x))
	if w <= 0 {
		return out
	}
	lastNaN := -1
	for i, v := range x {
		if math.IsNaN(v) {
			lastNaN = i
		}
		if i < w-1 || lastNaN > i-w {
			continue
		}
		out[i] = fn(x[i-w+1 : i+1])
	}
	return out
}

func mean(win []float64) float64 {
	sum := 0.0
	for _, v := range win {
		sum += v
	}
	return sum / float64(len(win))
}

// RollingSum is the trailing sum over w values.
func RollingSum(x []float64, w int) []float64 {
	return rolling(x, w, func(win []float64) float64 {
		sum := 0.0
		for _, v := range win {
			sum += v
		}
		return sum
	})
}

// RollingMean is the trailing simple mean over w values.
func RollingMean(x []float64, w int) []float64 {
	return rolling(x, w, mean)
}

// RollingStd is the trailing sample standard deviation (n-1 denominator).
// A window of one value has no sample deviation and stays undefined.
func RollingStd(x []float64, w int) []float64 {
	if w < 2 {
		return undefinedColumn(len(x))
	}
	return rolling(x, w, func(win []float64) float64 {
		m := mean(win)
		ss := 0.0
		for _, v := range win {
			d := v - m
			ss += d * d
		}
		return math.Sqrt(ss / float64(len(win)-1))
	})
}

// RollingMin is the trailing minimum over w values.
func RollingMin(x []float64, w int) []float64 {
	return rolling(x, w, func(win []float64) float64 {
		m := win[0]
		for _, v := range win[1:] {
			if v < m {
				m = v
			}
		}
		return m
	})
}

// RollingMax is the trailing maximum over w values.
func RollingMax(x []float64, w int) []float64 {
	return rolling(x, w, func(win []float64) float64 {
		m := win[0]
		for _, v := range win[1:] {
			if v > m {
				m = v
			}
		}
		return m
	})
}

// RollingMeanAbsDev is the trailing mean absolute deviation from the window mean.
func RollingMeanAbsDev(x []float64, w int) []float64 {
	return rolling(x, w, func(win []float64) float64 {
		m := mean(win)
		dev := 0.0
		for _, v := range win {
			dev += math.Abs(v - m)
		}
		return dev / float64(len(win))
	})
}

// EWM is the exponentially weighted mean with smoothing 2/(span+1), computed
// recursively without bias adjustment. Undefined inputs are skipped but still
// decay the previous weight; the last value is carried across them. Leading
// undefined inputs stay undefined.
func EWM(x []float64, span int) []float64 {
	out := undefinedColumn(len(x))
	if len(x) == 0 || span <= 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	decay := 1 - alpha

	weighted := x[0]
	oldWt := 1.0
	if !math.IsNaN(weighted) {
		out[0] = weighted
	}
	for i := 1; i < len(x); i++ {
		cur := x[i]
		observed := !math.IsNaN(cur)
		switch {
		case !math.IsNaN(weighted):
			oldWt *= decay
			if observed {
				if weighted != cur {
					weighted = (oldWt*weighted + alpha*cur) / (oldWt + alpha)
				}
				oldWt = 1
			}
		case observed:
			weighted = cur
		}
		out[i] = weighted
	}
	return out
}

// CumSum is the running sum. Undefined inputs are undefined in the output
// and do not contribute to later sums.
func CumSum(x []float64) []float64 {
	out := make([]float64, len(x))
	sum := 0.0
	for i, v := range x {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		sum += v
		out[i] = sum
	}
	return out
}

// ratio divides element-wise; a zero or undefined denominator is undefined.
func ratio(num, den []float64) []float64 {
	out := undefinedColumn(len(num))
	for i := range num {
		if den[i] == 0 || math.IsNaN(den[i]) || math.IsNaN(num[i]) {
			continue
		}
		out[i] = num[i] / den[i]
	}
	return out
}
