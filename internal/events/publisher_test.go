package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/invalidation"
)

func decode(msg *sarama.ProducerMessage) (invalidation.Event, string, error) {
	var ev invalidation.Event
	k, err := msg.Key.Encode()
	if err != nil {
		return ev, "", err
	}
	v, err := msg.Value.Encode()
	if err != nil {
		return ev, "", err
	}
	if err := json.Unmarshal(v, &ev); err != nil {
		return ev, "", err
	}
	return ev, string(k), nil
}

func TestPublishImport_SendsKeyedEvent(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, ProducerConfig())
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != DefaultTopic {
			return fmt.Errorf("topic=%q", msg.Topic)
		}
		ev, key, err := decode(msg)
		if err != nil {
			return err
		}
		if key != "kth/building" {
			return fmt.Errorf("key=%q", key)
		}
		if err := ev.Validate(); err != nil {
			return err
		}
		if ev.Source != "api-1" || ev.Imported != 2 || !slices.Equal(ev.Slugs, []string{"library", "gym"}) {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return nil
	})

	p := newPublisher(mp, "", "api-1", 4, nil)
	if !p.PublishImport("kth", model.KindBuilding, []string{"library", "gym"}) {
		t.Fatalf("PublishImport dropped the event")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublishImport_SequenceIncreases(t *testing.T) {
	var (
		mu   sync.Mutex
		seqs []uint64
	)
	record := func(msg *sarama.ProducerMessage) error {
		ev, _, err := decode(msg)
		if err != nil {
			return err
		}
		mu.Lock()
		seqs = append(seqs, ev.Seq)
		mu.Unlock()
		return nil
	}
	mp := mocks.NewAsyncProducer(t, ProducerConfig())
	for range 3 {
		mp.ExpectInputWithMessageCheckerFunctionAndSucceed(record)
	}

	p := newPublisher(mp, "imports", "api-1", 8, nil)
	for _, k := range []model.Kind{model.KindPOI, model.KindPOI, model.KindPath} {
		p.PublishImport("kth", k, nil)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seqs) != 3 {
		t.Fatalf("got %d events want 3", len(seqs))
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("sequence not increasing: %v", seqs)
		}
	}
}

func TestPublisher_ProducerErrorDoesNotBlockClose(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, ProducerConfig())
	mp.ExpectInputAndFail(errors.New("broker down"))

	p := newPublisher(mp, "", "api-1", 1, nil)
	p.PublishImport("kth", model.KindBuilding, []string{"a"})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublisher_DropsAfterClose(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, ProducerConfig())
	p := newPublisher(mp, "", "api-1", 1, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.PublishImport("kth", model.KindBuilding, nil) {
		t.Fatalf("PublishImport accepted an event after Close")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
