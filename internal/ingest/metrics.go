package ingest

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Emitter publishes ingest metrics. Emission is best-effort and must never
// fail the ingest pass.
type Emitter interface {
	RecordBatch(ctx context.Context, result BatchResult)
}

// NopEmitter discards all metrics. Used when metrics are disabled.
type NopEmitter struct{}

func (NopEmitter) RecordBatch(context.Context, BatchResult) {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchEmitter implements Emitter.
var _ Emitter = (*CloudWatchEmitter)(nil)

// CloudWatchEmitter publishes per-batch ingest counters to a CloudWatch
// namespace. One PutMetricData call per batch carries all counters.
type CloudWatchEmitter struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchEmitter creates an Emitter publishing to the given namespace.
func NewCloudWatchEmitter(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchEmitter{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordBatch emits the batch counters:
//
//   - OrdersSeen, OrdersProcessed, OrdersDuplicate, OrdersSkipped
//   - ItemsSkipped, ActionsDispatched
func (m *CloudWatchEmitter) RecordBatch(ctx context.Context, result BatchResult) {
	counters := []struct {
		name  string
		value int
	}{
		{"OrdersSeen", result.OrdersSeen},
		{"OrdersProcessed", result.OrdersProcessed},
		{"OrdersDuplicate", result.OrdersDuplicate},
		{"OrdersSkipped", result.OrdersSkipped},
		{"ItemsSkipped", result.ItemsSkipped},
		{"ActionsDispatched", result.ActionsDispatched},
	}

	data := make([]cwtypes.MetricDatum, 0, len(counters))
	for _, c := range counters {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(c.name),
			Value:      aws.Float64(float64(c.value)),
			Unit:       cwtypes.StandardUnitCount,
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish ingest metrics",
			"error", err,
			"namespace", m.namespace,
		)
	}
}
