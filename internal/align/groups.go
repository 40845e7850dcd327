package align

import (
	"runtime"
	"sort"
	"sync"

	"github.com/glendonC/mallards/internal/contracts"
)

type groupTask struct {
	dimension string
	value     string
	records   []contracts.TransactionRecord
	schema    contracts.Schema
}

// recomputeGroups scores each (dimension, value) slice of the dataset
// independently. Groups share nothing, so they run on a bounded set of
// goroutines and are merged back in (dimension, value) order.
func recomputeGroups(ds contracts.Dataset, s Settings) []contracts.GroupReport {
	tasks := groupTasks(ds, s.GroupBy)
	if len(tasks) == 0 {
		return nil
	}

	out := make([]contracts.GroupReport, len(tasks))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for i := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			t := tasks[i]
			scope := t.dimension + "=" + t.value
			st := buildStream(ds.ID, scope, t.records, t.schema, s)
			out[i] = contracts.GroupReport{
				Dimension:    t.dimension,
				Value:        t.value,
				Status:       st.status,
				CurrentScore: st.current,
				TrendPercent: st.trend,
				Thresholds:   st.thresholds,
				History:      st.points,
				Events:       st.events,
			}
		}(i)
	}
	wg.Wait()
	return out
}

// groupTasks partitions records per requested dimension. Dimensions whose
// column is missing from the schema are skipped.
func groupTasks(ds contracts.Dataset, groupBy []string) []groupTask {
	var tasks []groupTask
	for _, dim := range groupBy {
		var key func(contracts.TransactionRecord) string
		schema := ds.Schema
		switch dim {
		case DimensionRegion:
			if !ds.Schema.HasRegion {
				continue
			}
			key = func(r contracts.TransactionRecord) string { return r.Region }
			// a single-region slice is trivially even
			schema.HasRegion = false
		case DimensionType:
			if !ds.Schema.HasType {
				continue
			}
			key = func(r contracts.TransactionRecord) string { return r.Type }
			schema.HasType = false
		default:
			continue
		}

		parts := make(map[string][]contracts.TransactionRecord)
		for _, r := range ds.Records {
			v := key(r)
			if v == "" {
				continue
			}
			parts[v] = append(parts[v], r)
		}
		values := make([]string, 0, len(parts))
		for v := range parts {
			values = append(values, v)
		}
		sort.Strings(values)
		for _, v := range values {
			tasks = append(tasks, groupTask{dimension: dim, value: v, records: parts[v], schema: schema})
		}
	}
	return tasks
}
