package mq

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/glendonC/mallards/internal/contracts"
)

type capture struct {
	msgs []kafka.Message
}

func (c *capture) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestPublishEventsFlattensGroups(t *testing.T) {
	report := contracts.AlignmentReport{
		DatasetID: "loans",
		TimeRange: "week",
		Detector:  "volume",
		Events:    []contracts.Event{{ID: "a", Severity: contracts.SeverityHigh}},
		Groups: []contracts.GroupReport{
			{Dimension: "region", Value: "north", Events: []contracts.Event{{ID: "b"}, {ID: "c"}}},
			{Dimension: "region", Value: "south"},
		},
	}
	w := &capture{}
	n, err := PublishEvents(context.Background(), w, report)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n != 3 || len(w.msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(w.msgs))
	}

	notice, err := ParseMessageJSON[contracts.EventNotice](w.msgs[1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if notice.GroupKey != "region=north" || notice.Event.ID != "b" || string(w.msgs[1].Key) != "loans" {
		t.Fatalf("unexpected notice %+v", notice)
	}
}

func TestPublishEventsSkipsEmptyReports(t *testing.T) {
	w := &capture{}
	n, err := PublishEvents(context.Background(), w, contracts.AlignmentReport{DatasetID: "loans"})
	if err != nil || n != 0 || len(w.msgs) != 0 {
		t.Fatalf("expected no messages, got n=%d err=%v", n, err)
	}
}

func TestEventNoticesCarryEmitTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	notices := EventNotices(contracts.AlignmentReport{Events: []contracts.Event{{ID: "x"}}}, at)
	if len(notices) != 1 || !notices[0].Emitted.Equal(at) {
		t.Fatalf("unexpected notices %+v", notices)
	}
}
