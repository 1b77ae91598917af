//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"talentgate/internal/audit"
	"talentgate/internal/audit/kafka"
	"talentgate/pkg/testutil/containers"
)

type PublisherSuite struct {
	suite.Suite
	brokers []string
}

func TestPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.brokers = mgr.GetRedpanda(s.T()).Brokers
}

func (s *PublisherSuite) TestPublishRoundTrip() {
	// Per-test topic keeps suites isolated on the shared broker.
	topic := "talentgate.audit." + uuid.NewString()

	publisher, err := kafka.New(s.brokers, topic)
	s.Require().NoError(err)
	defer publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	want := audit.Entry{
		SequenceID: 7,
		ID:         uuid.New(),
		EventType:  audit.EventReveal,
		Provider:   "providerX",
		Region:     "EU",
		Decision:   "approved",
		Context:    map[string]string{"kind": "reveal"},
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
	}
	s.Require().NoError(publisher.Publish(ctx, want))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal([]byte(audit.EventReveal), records[0].Key)

	var got audit.Entry
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(want.SequenceID, got.SequenceID)
	s.Equal(want.ID, got.ID)
	s.Equal(want.EventType, got.EventType)
	s.Equal(want.Context, got.Context)
	s.True(want.Timestamp.Equal(got.Timestamp))
}

func (s *PublisherSuite) TestNewToleratesExistingTopic() {
	topic := "talentgate.audit." + uuid.NewString()

	first, err := kafka.New(s.brokers, topic)
	s.Require().NoError(err)
	first.Close()

	second, err := kafka.New(s.brokers, topic)
	s.Require().NoError(err)
	second.Close()
}
