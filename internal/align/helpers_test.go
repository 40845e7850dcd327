package align

import (
	"time"

	"github.com/glendonC/mallards/internal/contracts"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// dailySeries places one record per day at noon with the given amounts.
func dailySeries(volumes []float64) contracts.Dataset {
	records := make([]contracts.TransactionRecord, 0, len(volumes))
	for i, v := range volumes {
		records = append(records, contracts.TransactionRecord{
			Timestamp: day0.Add(time.Duration(i)*24*time.Hour + 12*time.Hour),
			Amount:    v,
		})
	}
	return contracts.Dataset{ID: "test", Records: records}
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
