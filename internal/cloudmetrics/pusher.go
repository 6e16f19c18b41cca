package cloudmetrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/directory/internal/config"
	obstracing "github.com/smallbiznis/directory/internal/observability/tracing"
	"go.uber.org/zap"
)

const (
	exporterRemoteWrite = "prometheus_remote_write"
	exporterPushgateway = "prometheus_pushgateway"

	pushTimeout = 5 * time.Second
	// errorBodyLimit caps how much of a rejected push response ends up in
	// the returned error.
	errorBodyLimit = 256
)

// Pusher ships the gauges of a registry to an external collector.
type Pusher interface {
	Push(ctx context.Context, registry *prometheus.Registry) error
}

// NewPusher picks the pusher named by EXPORT_EXPORTER. A missing or invalid
// endpoint disables the export with a warning instead of failing startup.
func NewPusher(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	export := cfg.Export
	if !export.Enabled {
		return nil
	}
	disabled := func(reason string, fields ...zap.Field) Pusher {
		logger.Warn("saturation export disabled", append(fields, zap.String("reason", reason))...)
		return nil
	}

	endpoint := strings.TrimSpace(export.Endpoint)
	if endpoint == "" {
		return disabled("export endpoint is required")
	}
	environment := strings.TrimSpace(cfg.Environment)

	switch exporter := strings.ToLower(strings.TrimSpace(export.Exporter)); exporter {
	case exporterRemoteWrite, "":
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return disabled("invalid export endpoint", zap.Error(err))
		}
		p := NewRemoteWritePusher(endpoint, export.AuthToken)
		if environment != "" {
			p.externalLabels = map[string]string{"environment": environment}
		}
		return p
	case exporterPushgateway:
		return NewPushgatewayPusher(endpoint, cfg.AppName, map[string]string{"environment": environment})
	default:
		return disabled("unknown exporter", zap.String("exporter", exporter))
	}
}

// RemoteWritePusher sends the registry as a Prometheus remote_write request.
type RemoteWritePusher struct {
	endpoint       string
	authToken      string
	externalLabels map[string]string
	httpClient     *http.Client
	now            func() time.Time
}

func NewRemoteWritePusher(endpoint, authToken string) *RemoteWritePusher {
	return &RemoteWritePusher{
		endpoint:   endpoint,
		authToken:  strings.TrimSpace(authToken),
		httpClient: obstracing.WrapHTTPClient(&http.Client{Timeout: pushTimeout}),
		now:        time.Now,
	}
}

func (p *RemoteWritePusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	body, ok, err := encodeWriteRequest(families, p.externalLabels, p.now().UnixMilli())
	if err != nil || !ok {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if msg := strings.TrimSpace(string(detail)); msg != "" {
		return fmt.Errorf("remote write returned %s: %s", resp.Status, msg)
	}
	return fmt.Errorf("remote write returned %s", resp.Status)
}

// encodeWriteRequest builds the snappy-compressed protobuf body. It reports
// false when the registry holds no counter or gauge samples.
func encodeWriteRequest(families []*dto.MetricFamily, external map[string]string, timestampMs int64) ([]byte, bool, error) {
	var series []prompb.TimeSeries
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			value, ok := sampleValue(family.GetType(), metric)
			if !ok {
				continue
			}
			series = append(series, prompb.TimeSeries{
				Labels:  seriesLabels(family.GetName(), metric.GetLabel(), external),
				Samples: []prompb.Sample{{Value: value, Timestamp: timestampMs}},
			})
		}
	}
	if len(series) == 0 {
		return nil, false, nil
	}
	raw, err := (&prompb.WriteRequest{Timeseries: series}).Marshal()
	if err != nil {
		return nil, false, fmt.Errorf("marshal write request: %w", err)
	}
	return snappy.Encode(nil, raw), true, nil
}

// seriesLabels merges metric labels over external labels and sorts them by
// name, as remote_write receivers require.
func seriesLabels(name string, pairs []*dto.LabelPair, external map[string]string) []prompb.Label {
	merged := make(map[string]string, len(pairs)+len(external)+1)
	for k, v := range external {
		merged[k] = v
	}
	for _, pair := range pairs {
		merged[pair.GetName()] = pair.GetValue()
	}
	merged["__name__"] = name

	labels := make([]prompb.Label, 0, len(merged))
	for k, v := range merged {
		labels = append(labels, prompb.Label{Name: k, Value: v})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels
}

func sampleValue(kind dto.MetricType, metric *dto.Metric) (float64, bool) {
	switch {
	case metric == nil:
		return 0, false
	case kind == dto.MetricType_GAUGE && metric.GetGauge() != nil:
		return metric.GetGauge().GetValue(), true
	case kind == dto.MetricType_COUNTER && metric.GetCounter() != nil:
		return metric.GetCounter().GetValue(), true
	default:
		return 0, false
	}
}

// PushgatewayPusher replaces the directory's group on a Pushgateway.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	return &PushgatewayPusher{
		endpoint: strings.TrimSpace(endpoint),
		job:      strings.TrimSpace(job),
		grouping: grouping,
	}
}

func (p *PushgatewayPusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	if p.endpoint == "" || p.job == "" {
		return errors.New("pushgateway endpoint and job are required")
	}
	pusher := push.New(p.endpoint, p.job).Gatherer(registry)
	for key, value := range p.grouping {
		if key, value = strings.TrimSpace(key), strings.TrimSpace(value); key != "" && value != "" {
			pusher = pusher.Grouping(key, value)
		}
	}
	return pusher.PushContext(ctx)
}
