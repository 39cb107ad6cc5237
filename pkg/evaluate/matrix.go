package evaluate

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// Aggregator consumes the outcome stream of a run
type Aggregator interface {
	Add(o Outcome) error
}

// ConfusionMatrix sums outcome values by (true, predicted) label pair.
// It is not safe for concurrent use; Runner feeds it from one goroutine.
type ConfusionMatrix struct {
	cells  map[string]map[string]float64 // true -> predicted -> sum
	labels map[string]struct{}
}

// NewConfusionMatrix returns an empty matrix
func NewConfusionMatrix() *ConfusionMatrix {
	return &ConfusionMatrix{
		cells:  make(map[string]map[string]float64),
		labels: make(map[string]struct{}),
	}
}

// Add sums o into its cell. Tuples without the outcome marker are rejected.
func (m *ConfusionMatrix) Add(o Outcome) error {
	if o.Marker != OutcomeMarker {
		return fmt.Errorf("unexpected tuple marker %q", o.Marker)
	}
	m.add(o.True, o.Predicted, o.Value)
	return nil
}

func (m *ConfusionMatrix) add(trueLabel, predicted string, v float64) {
	row, ok := m.cells[trueLabel]
	if !ok {
		row = make(map[string]float64)
		m.cells[trueLabel] = row
	}
	row[predicted] += v
	m.labels[trueLabel] = struct{}{}
	m.labels[predicted] = struct{}{}
}

// Merge adds every cell of other into m
func (m *ConfusionMatrix) Merge(other *ConfusionMatrix) {
	for t, row := range other.cells {
		for p, v := range row {
			m.add(t, p, v)
		}
	}
}

// Count returns the summed value for a label pair
func (m *ConfusionMatrix) Count(trueLabel, predicted string) float64 {
	return m.cells[trueLabel][predicted]
}

// Labels returns every label seen as true or predicted, sorted
func (m *ConfusionMatrix) Labels() []string {
	labels := make([]string, 0, len(m.labels))
	for l := range m.labels {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Total returns the mass of the whole matrix
func (m *ConfusionMatrix) Total() float64 {
	var sum float64
	for _, row := range m.cells {
		for _, v := range row {
			sum += v
		}
	}
	return sum
}

// Correct returns the diagonal mass
func (m *ConfusionMatrix) Correct() float64 {
	var sum float64
	for t, row := range m.cells {
		sum += row[t]
	}
	return sum
}

// Incorrect returns the off-diagonal mass
func (m *ConfusionMatrix) Incorrect() float64 {
	return m.Total() - m.Correct()
}

// Accuracy is Correct/Total, 0 for an empty matrix
func (m *ConfusionMatrix) Accuracy() float64 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	return m.Correct() / total
}

// Recall is the share of documents labelled l that were predicted l
func (m *ConfusionMatrix) Recall(l string) float64 {
	var row float64
	for _, v := range m.cells[l] {
		row += v
	}
	if row == 0 {
		return 0
	}
	return m.cells[l][l] / row
}

// Precision is the share of documents predicted l that were labelled l
func (m *ConfusionMatrix) Precision(l string) float64 {
	var col float64
	for _, row := range m.cells {
		col += row[l]
	}
	if col == 0 {
		return 0
	}
	return m.cells[l][l] / col
}

// Write prints a summary and the matrix as an aligned table
func (m *ConfusionMatrix) Write(w io.Writer) error {
	labels := m.Labels()
	total := m.Total()

	fmt.Fprintf(w, "📊 Summary\n")
	fmt.Fprintf(w, "═══════════════════════════════════════\n")
	fmt.Fprintf(w, "  Correctly classified:   %.0f\t(%.2f%%)\n", m.Correct(), 100*m.Accuracy())
	incorrectPct := 0.0
	if total > 0 {
		incorrectPct = 100 * m.Incorrect() / total
	}
	fmt.Fprintf(w, "  Incorrectly classified: %.0f\t(%.2f%%)\n", m.Incorrect(), incorrectPct)
	fmt.Fprintf(w, "  Total classified:       %.0f\n\n", total)

	fmt.Fprintf(w, "🧮 Confusion Matrix (rows = true label, columns = predicted)\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	header := make([]string, 0, len(labels)+3)
	header = append(header, "")
	header = append(header, labels...)
	header = append(header, "total", "recall")
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for _, t := range labels {
		cols := make([]string, 0, len(labels)+3)
		cols = append(cols, t)
		var row float64
		for _, p := range labels {
			v := m.Count(t, p)
			row += v
			cols = append(cols, fmt.Sprintf("%.0f", v))
		}
		cols = append(cols, fmt.Sprintf("%.0f", row), fmt.Sprintf("%.3f", m.Recall(t)))
		fmt.Fprintln(tw, strings.Join(cols, "\t")+"\t")
	}

	precision := make([]string, 0, len(labels)+1)
	precision = append(precision, "precision")
	for _, p := range labels {
		precision = append(precision, fmt.Sprintf("%.3f", m.Precision(p)))
	}
	fmt.Fprintln(tw, strings.Join(precision, "\t")+"\t\t\t")

	return tw.Flush()
}

type matrixJSON struct {
	Labels    []string    `json:"labels"`
	Matrix    [][]float64 `json:"matrix"`
	Correct   float64     `json:"correct"`
	Incorrect float64     `json:"incorrect"`
	Total     float64     `json:"total"`
	Accuracy  float64     `json:"accuracy"`
}

// MarshalJSON encodes the matrix as a dense label-ordered grid
func (m *ConfusionMatrix) MarshalJSON() ([]byte, error) {
	labels := m.Labels()
	out := matrixJSON{
		Labels:    labels,
		Matrix:    make([][]float64, len(labels)),
		Correct:   m.Correct(),
		Incorrect: m.Incorrect(),
		Total:     m.Total(),
		Accuracy:  m.Accuracy(),
	}
	for i, t := range labels {
		out.Matrix[i] = make([]float64, len(labels))
		for j, p := range labels {
			out.Matrix[i][j] = m.Count(t, p)
		}
	}
	return json.Marshal(out)
}

var _ Aggregator = (*ConfusionMatrix)(nil)
