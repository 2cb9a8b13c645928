package kafka

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type docEvent struct {
	Op         string `json:"op"`
	DocumentID int64  `json:"document_id"`
}

func TestEncodeEvents(t *testing.T) {
	messages, err := encodeEvents([]Event{
		{Key: "7", Value: docEvent{Op: "index", DocumentID: 7}},
		{Key: "8", Value: map[string]int{"n": 1}},
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "7", string(messages[0].Key))
	assert.JSONEq(t, `{"op":"index","document_id":7}`, string(messages[0].Value))

	_, err = encodeEvents([]Event{{Key: "bad", Value: make(chan int)}})
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[docEvent]([]byte(`{"op":"deindex","document_id":3}`))
	require.NoError(t, err)
	assert.Equal(t, docEvent{Op: "deindex", DocumentID: 3}, got)

	_, err = DecodeJSON[docEvent]([]byte(`{not json`))
	assert.Error(t, err)
}

type fakeReader struct {
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func newTestConsumer(reader *fakeReader, handler MessageHandler) *Consumer {
	return &Consumer{reader: reader, logger: slog.Default(), handler: handler}
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Offset: 1}, {Offset: 2}}}
	ctx, cancel := context.WithCancel(context.Background())
	handled := 0
	c := newTestConsumer(reader, func(context.Context, []byte, []byte) error {
		handled++
		if handled == 2 {
			cancel()
		}
		return nil
	})

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []int64{1, 2}, reader.committed)
	assert.True(t, reader.closed)
}

func TestConsumerStopsOnHandlerError(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	boom := errors.New("store down")
	c := newTestConsumer(reader, func(_ context.Context, _ []byte, value []byte) error {
		if string(value) == "fail" {
			return boom
		}
		return nil
	})
	reader.messages[1].Value = []byte("fail")

	err := c.Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []int64{1}, reader.committed, "nothing at or past the failed offset is committed")
	assert.Len(t, reader.messages, 1, "the loop does not fetch past the failed message")
	assert.True(t, reader.closed)
}
