package ingestion_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"PlotMarket/internal/command"
	"PlotMarket/internal/ingestion"
	"PlotMarket/internal/testutil"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// These tests need the NATS from docker-compose.test.yml:
//
//	docker compose -f docker-compose.test.yml up -d
//	INTEGRATION_TEST=1 go test ./internal/ingestion/

func connectJS(t *testing.T) jetstream.JetStream {
	t.Helper()
	testutil.RequireIntegration(t)

	nc, js, err := ingestion.ConnectNATS(testutil.TestNATSURL())
	if err != nil {
		t.Skipf("test nats not available: %v (start with: docker compose -f docker-compose.test.yml up -d)", err)
	}
	t.Cleanup(nc.Close)
	return js
}

func TestSubscribe_DeliversPublishedCommand(t *testing.T) {
	js := connectJS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		t.Fatalf("ensure streams: %v", err)
	}

	commandChan := make(chan ingestion.RawCommand, 16)
	sub := ingestion.NewNATSSubscriber(js, commandChan)
	if err := sub.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Stop()

	commandID := uuid.New()
	farmer := uuid.New()
	payload := fmt.Sprintf(
		`{"command_id":%q,"sequence":1,"timestamp_us":1748779200000000,"farmer":%q,"units":500}`,
		commandID, farmer,
	)
	if _, err := js.Publish(ctx, "market.field.sow", []byte(payload)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case raw := <-commandChan:
		if raw.Subject != "market.field.sow" {
			t.Errorf("subject: got %s", raw.Subject)
		}
		cmd, err := ingestion.ParseRawCommand(raw)
		if err != nil {
			t.Fatalf("parse delivered command: %v", err)
		}
		sow, ok := cmd.(*command.Sow)
		if !ok {
			t.Fatalf("got %T, want *command.Sow", cmd)
		}
		if sow.CommandID != commandID || sow.Farmer != farmer || sow.Units != 500 {
			t.Errorf("sow: got %+v", sow)
		}
		raw.AckFunc()
	case <-ctx.Done():
		t.Fatal("command not delivered before timeout")
	}
}

func TestOutboundPublisher_PublishesAppliedEvents(t *testing.T) {
	js := connectJS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		t.Fatalf("ensure outbound stream: %v", err)
	}

	// Ephemeral consumer positioned before the publish so only this
	// test's event is seen.
	consumer, err := js.CreateOrUpdateConsumer(ctx, "MARKET_EVENTS", jetstream.ConsumerConfig{
		FilterSubject:     "market.events.ListingFilled",
		AckPolicy:         jetstream.AckExplicitPolicy,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}

	input := make(chan ingestion.PublishableEvent, 1)
	publisher := ingestion.NewOutboundPublisher(js, input)
	pubCtx, pubCancel := context.WithCancel(ctx)
	defer pubCancel()
	go publisher.Run(pubCtx)

	account := uuid.New().String()
	input <- ingestion.PublishableEvent{
		Sequence:       7,
		EventType:      "ListingFilled",
		IdempotencyKey: uuid.New().String(),
		Account:        &account,
		Payload:        map[string]uint64{"units": 500, "payment": 250},
		StateHash:      make([]byte, 32),
		Timestamp:      time.Now().UTC(),
	}

	msg, err := consumer.Next(jetstream.FetchMaxWait(10 * time.Second))
	if err != nil {
		t.Fatalf("fetch published event: %v", err)
	}
	msg.Ack()

	if got := msg.Subject(); got != "market.events.ListingFilled" {
		t.Errorf("subject: got %s", got)
	}
	var evt ingestion.PublishableEvent
	if err := json.Unmarshal(msg.Data(), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.Sequence != 7 || evt.EventType != "ListingFilled" {
		t.Errorf("event: got seq=%d type=%s", evt.Sequence, evt.EventType)
	}
	if evt.Account == nil || *evt.Account != account {
		t.Errorf("account: got %v, want %s", evt.Account, account)
	}
}
