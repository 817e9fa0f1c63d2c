package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestCloudWatchEmitter_RecordBatch(t *testing.T) {
	cw := &mockCloudWatchClient{}
	emitter := NewCloudWatchEmitter(cw, "ShopBridge/Ingest", discardLogger())

	emitter.RecordBatch(context.Background(), BatchResult{
		OrdersSeen:        5,
		OrdersProcessed:   3,
		OrdersDuplicate:   1,
		OrdersSkipped:     1,
		ActionsDispatched: 7,
	})

	require.Len(t, cw.calls, 1)
	input := cw.calls[0]
	assert.Equal(t, "ShopBridge/Ingest", *input.Namespace)
	require.Len(t, input.MetricData, 6)

	values := map[string]float64{}
	for _, d := range input.MetricData {
		assert.Equal(t, cwtypes.StandardUnitCount, d.Unit)
		values[*d.MetricName] = *d.Value
	}
	assert.Equal(t, 5.0, values["OrdersSeen"])
	assert.Equal(t, 3.0, values["OrdersProcessed"])
	assert.Equal(t, 1.0, values["OrdersDuplicate"])
	assert.Equal(t, 7.0, values["ActionsDispatched"])
}

// Metric publication failures are swallowed; metrics must never fail ingest.
func TestCloudWatchEmitter_RecordBatch_ErrorSwallowed(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	emitter := NewCloudWatchEmitter(cw, "ShopBridge/Ingest", discardLogger())

	emitter.RecordBatch(context.Background(), BatchResult{OrdersSeen: 1})

	assert.Len(t, cw.calls, 1)
}
