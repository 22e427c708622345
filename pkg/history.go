package pkg

import (
	"fmt"
	"io"
	"os"
)

// EpochLosses holds the losses recorded at the end of one training epoch.
type EpochLosses struct {
	Epoch     int
	TrainLoss float64
	EvalLoss  float64
}

// History accumulates the loss curves of a training run for later plotting.
type History struct {
	Epochs []EpochLosses
}

func (h *History) Append(epoch int, trainLoss, evalLoss float64) {
	h.Epochs = append(h.Epochs, EpochLosses{Epoch: epoch, TrainLoss: trainLoss, EvalLoss: evalLoss})
}

// WriteCSV emits one epoch,train_loss,eval_loss row per epoch.
func (h *History) WriteCSV(writer io.Writer) error {
	if _, err := fmt.Fprintln(writer, "epoch,train_loss,eval_loss"); err != nil {
		return err
	}
	for _, e := range h.Epochs {
		if _, err := fmt.Fprintf(writer, "%d,%.5f,%.5f\n", e.Epoch, e.TrainLoss, e.EvalLoss); err != nil {
			return err
		}
	}
	return nil
}

func (h *History) WriteCSVFile(fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("error creating history file %s: %w", fileName, err)
	}
	defer file.Close()
	return h.WriteCSV(file)
}
