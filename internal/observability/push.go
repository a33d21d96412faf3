package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job name of batch runs.
const PushJob = "wxstats"

// Push replaces the metrics of the run grouping on the Pushgateway at url
// with everything g gathers.
func Push(ctx context.Context, url, run string, g prometheus.Gatherer) error {
	err := push.New(url, PushJob).
		Grouping("run", run).
		Gatherer(g).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push %s metrics: %w", run, err)
	}
	return nil
}
