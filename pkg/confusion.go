package pkg

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"rookery/pkg/model"
)

// ConfusionMatrix cross-tabulates actual against predicted classes. Rows are
// the actual class, columns the predicted one, both in label index order.
type ConfusionMatrix struct {
	Classes []string
	Counts  [][]int
}

func NewConfusionMatrix(labels model.NameMap) *ConfusionMatrix {
	size := labels.Size()
	classes := make([]string, size)
	for i := range classes {
		classes[i] = labels.IndexToName[i]
	}
	counts := make([][]int, size)
	for i := range counts {
		counts[i] = make([]int, size)
	}
	return &ConfusionMatrix{Classes: classes, Counts: counts}
}

func (c *ConfusionMatrix) Add(actual, predicted int) {
	c.Counts[actual][predicted]++
}

// Accuracy is the fraction of counts on the diagonal.
func (c *ConfusionMatrix) Accuracy() float64 {
	correct := 0
	total := 0
	for i, row := range c.Counts {
		for j, count := range row {
			total += count
			if i == j {
				correct += count
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// LogRows emits one line per actual class with its counts toward every
// predicted class.
func (c *ConfusionMatrix) LogRows() {
	for i, class := range c.Classes {
		event := log.Info().Str("Actual", class)
		for j, predicted := range c.Classes {
			event = event.Int(predicted, c.Counts[i][j])
		}
		event.Msg("")
	}
}

// WriteCSV emits the matrix with a leading header row of predicted classes.
func (c *ConfusionMatrix) WriteCSV(writer io.Writer) error {
	if _, err := fmt.Fprint(writer, "actual"); err != nil {
		return err
	}
	for _, class := range c.Classes {
		if _, err := fmt.Fprintf(writer, ",%s", class); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(writer); err != nil {
		return err
	}
	for i, class := range c.Classes {
		if _, err := fmt.Fprint(writer, class); err != nil {
			return err
		}
		for j := range c.Classes {
			if _, err := fmt.Fprintf(writer, ",%d", c.Counts[i][j]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(writer); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConfusionMatrix) WriteCSVFile(fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("error creating confusion matrix file %s: %w", fileName, err)
	}
	defer file.Close()
	return c.WriteCSV(file)
}
