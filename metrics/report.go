package metrics

// fitnessWeights scores [precision, recall, mAP@0.5, mAP@0.5:0.95].
var fitnessWeights = [4]float64{0.0, 0.0, 0.1, 0.9}

// Fitness collapses the four headline metrics into the single scalar
// used to rank checkpoints.
func Fitness(precision, recall, map50, map5095 float64) float64 {
	vals := [4]float64{precision, recall, map50, map5095}
	sum := 0.0
	for i, w := range fitnessWeights {
		sum += w * vals[i]
	}
	return sum
}

// ClassReport carries the per-class row of an evaluation summary.
type ClassReport struct {
	Class     int     `json:"class"`
	Name      string  `json:"name,omitempty"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	AP50      float64 `json:"ap_50"`
	AP        float64 `json:"ap_50_95"`
}

// Report is the aggregate evaluation summary, shaped for JSON artifacts.
type Report struct {
	Classes       []ClassReport `json:"classes"`
	MeanPrecision float64       `json:"mean_precision"`
	MeanRecall    float64       `json:"mean_recall"`
	MeanF1        float64       `json:"mean_f1"`
	MAP50         float64       `json:"map_50"`
	MAP           float64       `json:"map_50_95"`
	Fitness       float64       `json:"fitness"`
}

// NewReport summarizes an APResult. names maps class index to label and
// may be nil or shorter than the class range.
func NewReport(res *APResult, names []string) *Report {
	r := &Report{Classes: make([]ClassReport, len(res.Classes))}
	for i, c := range res.Classes {
		row := ClassReport{
			Class:     c,
			Precision: res.Precision[i],
			Recall:    res.Recall[i],
			F1:        res.F1[i],
		}
		if c >= 0 && c < len(names) {
			row.Name = names[c]
		}
		if len(res.AP[i]) > 0 {
			row.AP50 = res.AP[i][0]
			sum := 0.0
			for _, ap := range res.AP[i] {
				sum += ap
			}
			row.AP = sum / float64(len(res.AP[i]))
		}
		r.Classes[i] = row
		r.MeanPrecision += row.Precision
		r.MeanRecall += row.Recall
		r.MeanF1 += row.F1
		r.MAP50 += row.AP50
		r.MAP += row.AP
	}
	if n := float64(len(res.Classes)); n > 0 {
		r.MeanPrecision /= n
		r.MeanRecall /= n
		r.MeanF1 /= n
		r.MAP50 /= n
		r.MAP /= n
	}
	r.Fitness = Fitness(r.MeanPrecision, r.MeanRecall, r.MAP50, r.MAP)
	return r
}
