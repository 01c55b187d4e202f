package publish_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/observability/logging"
	"market-xbot/internal/usecase/publish"
)

/* ───────── スタブ ───────── */

type stubPublisher struct {
	id    string
	err   error
	panic bool
	calls int
	texts []string
}

func (p *stubPublisher) Publish(_ context.Context, text string) (string, error) {
	p.calls++
	p.texts = append(p.texts, text)
	if p.panic {
		panic("client exploded")
	}
	return p.id, p.err
}

/* ───────── テスト ───────── */

func TestGate_Published(t *testing.T) {
	pub := &stubPublisher{id: "1790000000000000000"}
	gate := publish.NewGate(pub, logging.Discard())

	out := gate.Publish(context.Background(), "$NVDA 🐂")

	assert.Equal(t, publish.StatusPublished, out.Status)
	assert.Equal(t, "1790000000000000000", out.PostID)
	assert.NoError(t, out.Err)
	assert.True(t, out.Published())
	assert.Equal(t, []string{"$NVDA 🐂"}, pub.texts)
}

func TestGate_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want publish.Status
	}{
		{"denied", fmt.Errorf("x api: %w", entity.ErrPublishDenied), publish.StatusDenied},
		{"other failure", errors.New("connection reset"), publish.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &stubPublisher{err: tt.err}
			gate := publish.NewGate(pub, logging.Discard())

			out := gate.Publish(context.Background(), "text")

			assert.Equal(t, tt.want, out.Status)
			assert.ErrorIs(t, out.Err, tt.err)
			assert.False(t, out.Published())
			assert.Equal(t, 1, pub.calls, "publication must be attempted exactly once")
		})
	}
}

func TestGate_RecoversPanic(t *testing.T) {
	pub := &stubPublisher{panic: true}
	gate := publish.NewGate(pub, logging.Discard())

	var out publish.Outcome
	assert.NotPanics(t, func() { out = gate.Publish(context.Background(), "text") })

	assert.Equal(t, publish.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, publish.ErrPublisherPanic)
}

func TestGate_DryRun(t *testing.T) {
	gate := publish.NewGate(nil, logging.Discard())

	out := gate.Publish(context.Background(), "text")

	assert.False(t, gate.Enabled())
	assert.Equal(t, publish.StatusSkipped, out.Status)
	assert.ErrorIs(t, out.Err, publish.ErrDisabled)
}

func TestGate_EmptyText(t *testing.T) {
	pub := &stubPublisher{id: "1"}
	gate := publish.NewGate(pub, logging.Discard())

	out := gate.Publish(context.Background(), "")

	assert.Equal(t, publish.StatusSkipped, out.Status)
	assert.ErrorIs(t, out.Err, publish.ErrEmptyText)
	assert.Zero(t, pub.calls)
}
