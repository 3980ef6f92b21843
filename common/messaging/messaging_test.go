package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClient struct {
	connected bool
	rtt       time.Duration
	rttErr    error
}

func (f *fakeClient) Publish(ctx context.Context, subject string, data []byte) error { return nil }
func (f *fakeClient) PublishMsg(ctx context.Context, msg *Message) error            { return nil }
func (f *fakeClient) Subscribe(subject string, handler MessageHandler) (Subscription, error) {
	return nil, nil
}
func (f *fakeClient) QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error) {
	return nil, nil
}
func (f *fakeClient) Drain() error                 { return nil }
func (f *fakeClient) Close() error                 { return nil }
func (f *fakeClient) IsConnected() bool            { return f.connected }
func (f *fakeClient) RTT() (time.Duration, error) { return f.rtt, f.rttErr }

func TestCheckClientHealth(t *testing.T) {
	tests := []struct {
		name      string
		client    Client
		connected bool
		latency   time.Duration
		wantErr   bool
	}{
		{name: "nil client", client: nil, wantErr: true},
		{name: "disconnected", client: &fakeClient{}, wantErr: true},
		{name: "rtt failure", client: &fakeClient{connected: true, rttErr: errors.New("timeout")}, connected: true, wantErr: true},
		{name: "healthy", client: &fakeClient{connected: true, rtt: 3 * time.Millisecond}, connected: true, latency: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := CheckClientHealth(tt.client)
			assert.Equal(t, tt.connected, status.Connected)
			assert.Equal(t, tt.wantErr, status.Error != "")
			assert.Equal(t, tt.latency, status.Latency)
		})
	}
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "context.attributes.changed", SubjectAttributeChanged)
	assert.Equal(t, "cep.delivery.failed", SubjectDeliveryFailed)
	assert.NotEmpty(t, QueueFeedWorkers)
}
