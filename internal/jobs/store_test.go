package jobs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout/internal/pipeline"
)

func TestStoreCreateAndGet(t *testing.T) {
	st := NewStore()

	created, err := st.Create("job-1", "alpha", "study goroutines")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, created.State)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := st.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Label)
	assert.Equal(t, "study goroutines", got.Goal)

	_, err = st.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreCreateRejectsDuplicateID(t *testing.T) {
	st := NewStore()

	_, err := st.Create("job-1", "alpha", "goal")
	require.NoError(t, err)

	_, err = st.Create("job-1", "beta", "another goal")
	assert.ErrorIs(t, err, ErrDuplicateJob)
}

func TestStoreConcurrentCreateHasOneWinner(t *testing.T) {
	st := NewStore()

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = st.Create("contested", "label", "goal")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateJob)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestStoreGetReturnsSnapshot(t *testing.T) {
	st := NewStore()
	_, err := st.Create("job-1", "alpha", "goal")
	require.NoError(t, err)

	_, err = st.Update("job-1", func(j *Job) {
		j.StageLog = append(j.StageLog, pipeline.StageResult{Name: "one", Success: true})
	})
	require.NoError(t, err)

	snap, err := st.Get("job-1")
	require.NoError(t, err)
	snap.StageLog[0].Name = "tampered"
	snap.Label = "tampered"

	fresh, err := st.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, "one", fresh.StageLog[0].Name)
	assert.Equal(t, "alpha", fresh.Label)
}

func TestStoreUpdateLifecycle(t *testing.T) {
	st := NewStore()
	_, err := st.Create("job-1", "alpha", "goal")
	require.NoError(t, err)

	run, err := st.Update("job-1", func(j *Job) { j.State = StatusRunning })
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.State)

	done, err := st.Update("job-1", func(j *Job) {
		j.State = StatusCompleted
		j.Result = "# report"
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.State)
	assert.Equal(t, "# report", done.Result)
}

func TestStoreUpdateRejectsIllegalTransitions(t *testing.T) {
	cases := []struct {
		name string
		from Status
		to   Status
	}{
		{"pending to completed", StatusPending, StatusCompleted},
		{"pending to failed", StatusPending, StatusFailed},
		{"running to cancelled", StatusRunning, StatusCancelled},
		{"completed to running", StatusCompleted, StatusRunning},
		{"failed to pending", StatusFailed, StatusPending},
		{"cancelled to running", StatusCancelled, StatusRunning},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := NewStore()
			_, err := st.Create("job-1", "alpha", "goal")
			require.NoError(t, err)

			if tc.from != StatusPending {
				force(t, st, "job-1", tc.from)
			}

			_, err = st.Update("job-1", func(j *Job) { j.State = tc.to })
			assert.ErrorIs(t, err, ErrInvalidTransition)

			got, err := st.Get("job-1")
			require.NoError(t, err)
			assert.Equal(t, tc.from, got.State, "rejected update must leave the record untouched")
		})
	}
}

// force walks the record to the target state through legal transitions only.
func force(t *testing.T, st *Store, id string, target Status) {
	t.Helper()
	path := map[Status][]Status{
		StatusRunning:   {StatusRunning},
		StatusCompleted: {StatusRunning, StatusCompleted},
		StatusFailed:    {StatusRunning, StatusFailed},
		StatusCancelled: {StatusCancelled},
	}
	for _, s := range path[target] {
		state := s
		_, err := st.Update(id, func(j *Job) { j.State = state })
		require.NoError(t, err)
	}
}

func TestStoreUpdateAllowsNonStateMutationInTerminalState(t *testing.T) {
	st := NewStore()
	_, err := st.Create("job-1", "alpha", "goal")
	require.NoError(t, err)
	force(t, st, "job-1", StatusCompleted)

	got, err := st.Update("job-1", func(j *Job) { j.ReportPath = "reports/alpha_report.md" })
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.State)
	assert.Equal(t, "reports/alpha_report.md", got.ReportPath)
}

func TestStoreUpdatePreservesIdentityFields(t *testing.T) {
	st := NewStore()
	created, err := st.Create("job-1", "alpha", "goal")
	require.NoError(t, err)

	got, err := st.Update("job-1", func(j *Job) {
		j.ID = "spoofed"
		j.CreatedAt = time.Time{}
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, created.CreatedAt, got.CreatedAt)
	assert.True(t, got.UpdatedAt.After(created.UpdatedAt) || got.UpdatedAt.Equal(created.UpdatedAt))
}

func TestStoreListOrdersAndFilters(t *testing.T) {
	st := NewStore()
	for _, id := range []string{"a", "b", "c"} {
		_, err := st.Create(id, id, "goal "+id)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	force(t, st, "b", StatusCompleted)

	all := st.List("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "ordering follows creation time, not update time")
	assert.Equal(t, "a", all[2].ID)

	completed := st.List(StatusCompleted, 0)
	require.Len(t, completed, 1)
	assert.Equal(t, "b", completed[0].ID)

	limited := st.List("", 2)
	assert.Len(t, limited, 2)
}

func TestStoreDeleteOlderThanSkipsLiveJobs(t *testing.T) {
	st := NewStore()
	_, err := st.Create("done", "done", "goal")
	require.NoError(t, err)
	_, err = st.Create("live", "live", "goal")
	require.NoError(t, err)
	force(t, st, "done", StatusCompleted)

	deleted := st.DeleteOlderThan(time.Now().UTC().Add(time.Hour))
	assert.Equal(t, 1, deleted)

	assert.False(t, st.Exists("done"))
	assert.True(t, st.Exists("live"), "pending and running jobs are never evicted")
}

func TestParseStatus(t *testing.T) {
	got, ok := ParseStatus("completed")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got)

	_, ok = ParseStatus("bogus")
	assert.False(t, ok)
}
