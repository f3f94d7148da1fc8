package analytics

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// EnsureTopics creates the analytics topics, ignoring ones that already exist.
func EnsureTopics(ctx context.Context, client *kgo.Client, topics Topics, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(client)

	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, topics.All()...)
	if err != nil {
		return errors.Wrap(err, "create topics")
	}
	for _, detail := range resp {
		if detail.Err != nil && !strings.Contains(detail.Err.Error(), "already exists") {
			return errors.Wrapf(detail.Err, "create topic %s", detail.Topic)
		}
	}

	zctx.From(ctx).Info("Analytics topics ensured", zap.Strings("topics", topics.All()))
	return nil
}
