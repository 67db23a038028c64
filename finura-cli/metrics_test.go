package finuracli

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/tj/assert"
)

type mockCloudWatch struct {
	cloudwatchiface.CloudWatchAPI
	inputs []*cloudwatch.PutMetricDataInput
}

func (m *mockCloudWatch) PutMetricDataWithContext(_ context.Context, input *cloudwatch.PutMetricDataInput, _ ...request.Option) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, input)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetrics(t *testing.T) {
	service := Service{Name: "finura-presence", Version: "abc"}

	t.Run("nil client discards", func(t *testing.T) {
		m := NewMetrics(service, nil)
		m.Event(context.Background(), SweepDemotedMetric)
		m.Timing(context.Background(), SweepDurationMetric, time.Now())
	})

	t.Run("count", func(t *testing.T) {
		cw := &mockCloudWatch{}
		m := NewMetrics(service, cw)
		m.Count(context.Background(), SweepDemotedMetric, 3)

		assert.Len(t, cw.inputs, 1)
		datum := cw.inputs[0].MetricData[0]
		assert.Equal(t, namespace, *cw.inputs[0].Namespace)
		assert.Equal(t, string(SweepDemotedMetric), *datum.MetricName)
		assert.EqualValues(t, 3, *datum.Value)
		assert.Equal(t, cloudwatch.StandardUnitCount, *datum.Unit)

		names := map[string]string{}
		for _, d := range datum.Dimensions {
			names[*d.Name] = *d.Value
		}
		assert.Equal(t, "finura-presence", names[string(ServiceNameDimension)])
		assert.Equal(t, "abc", names[string(ServiceVersionDimension)])
	})

	t.Run("gauge", func(t *testing.T) {
		cw := &mockCloudWatch{}
		m := NewMetrics(service, cw)
		m.Gauge(context.Background(), TrackedUsersMetric, 2)

		assert.Len(t, cw.inputs, 1)
		datum := cw.inputs[0].MetricData[0]
		assert.Equal(t, string(TrackedUsersMetric), *datum.MetricName)
		assert.EqualValues(t, 2, *datum.Value)
		assert.Equal(t, cloudwatch.StandardUnitNone, *datum.Unit)
	})
}
