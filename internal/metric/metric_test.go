package metric_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperflow/internal/domain"
	"paperflow/internal/metric"
)

func date(y int, m time.Month, d int) *domain.Date {
	v := domain.NewDate(y, m, d)
	return &v
}

func TestCompute_Frequency(t *testing.T) {
	assert.Equal(t, 0, metric.Compute(nil, nil, nil).UpdateFrequency)
	assert.Equal(t, 1, metric.Compute(nil, nil, nil).VersionCount)

	two := []domain.Version{{Label: "v1"}, {Label: "v2"}}
	m := metric.Compute(two, nil, nil)
	assert.Equal(t, 2, m.VersionCount)
	assert.Equal(t, 1, m.UpdateFrequency)
}

func TestCompute_SubmissionToPublication(t *testing.T) {
	tests := []struct {
		name      string
		submitted *domain.Date
		published *domain.Date
		want      *int
		negative  bool
	}{
		{"both known", date(2021, 1, 1), date(2022, 1, 1), intPtr(365), false},
		{"centuries apart", date(1700, 1, 1), date(2022, 1, 1), intPtr(117608), false},
		{"same day is zero, not absent", date(2021, 1, 1), date(2021, 1, 1), intPtr(0), false},
		{"published before submitted", date(2021, 6, 1), date(2021, 1, 1), nil, true},
		{"no published", date(2021, 1, 1), nil, nil, false},
		{"no submitted", nil, date(2021, 1, 1), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metric.Compute(nil, tt.submitted, tt.published)
			assert.Equal(t, tt.negative, m.NegativeDelta)
			if tt.want == nil {
				assert.Nil(t, m.SubmissionToPublicationDays)
				return
			}
			require.NotNil(t, m.SubmissionToPublicationDays)
			assert.Equal(t, *tt.want, *m.SubmissionToPublicationDays)
		})
	}
}

func TestApply(t *testing.T) {
	p := &domain.CanonicalPaper{
		PaperID:       "2101.00001",
		JournalRef:    "J. Phys (2022)",
		SubmittedDate: date(2021, 1, 1),
		PublishedDate: date(2022, 1, 1),
		Versions:      []domain.Version{{Label: "v1", Synthetic: true}},
	}
	metric.Apply(p)

	assert.Equal(t, 1, p.VersionCount)
	assert.Equal(t, 0, p.UpdateFrequency)
	assert.True(t, p.IsPublished)
	require.NotNil(t, p.SubmissionToPublicationDays)
	assert.Equal(t, 365, *p.SubmissionToPublicationDays)
}

func intPtr(v int) *int { return &v }
