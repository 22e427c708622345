package pkg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistoryWriteCSV(t *testing.T) {
	h := &History{}
	h.Append(0, 1.25, 1.5)
	h.Append(1, 0.75, 0.9)

	var b bytes.Buffer
	require.NoError(t, h.WriteCSV(&b))
	require.Equal(t,
		"epoch,train_loss,eval_loss\n"+
			"0,1.25000,1.50000\n"+
			"1,0.75000,0.90000\n",
		b.String())
}
