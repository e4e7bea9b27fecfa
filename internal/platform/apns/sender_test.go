package apns_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hearthhub/go-realtime-notify/internal/platform/apns"
	"github.com/hearthhub/go-realtime-notify/pkg/dispatch"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Push(n *apns2.Notification) (*apns2.Response, error) {
	args := m.Called(n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apns2.Response), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func apnsToken(t string) notify.PushToken {
	return notify.PushToken{Platform: notify.PlatformAPNS, Token: t}
}

func TestSender_Dispatch(t *testing.T) {
	ctx := context.Background()
	msg := dispatch.PushMessage{Title: "Chores due", Body: "Kitchen needs cleaning"}

	t.Run("mixed outcomes per token", func(t *testing.T) {
		mockClient := new(MockClient)
		sender := apns.NewSenderWithClient(mockClient, "dev.hearthhub.app", newTestLogger())

		mockClient.On("Push", mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "token-good"
		})).Return(&apns2.Response{StatusCode: 200}, nil).Once()
		mockClient.On("Push", mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "token-dead"
		})).Return(&apns2.Response{StatusCode: 410, Reason: apns2.ReasonUnregistered}, nil).Once()
		mockClient.On("Push", mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "token-slow"
		})).Return(nil, errors.New("connection reset")).Once()

		outcomes, err := sender.Dispatch(ctx, []notify.PushToken{
			apnsToken("token-good"), apnsToken("token-dead"), apnsToken("token-slow"),
		}, msg)
		require.NoError(t, err)
		require.Len(t, outcomes, 3)

		assert.Equal(t, notify.StatusSent, outcomes[0].Status)
		assert.Equal(t, notify.StatusInvalidTarget, outcomes[1].Status)
		assert.Equal(t, notify.StatusFailed, outcomes[2].Status)
		mockClient.AssertExpectations(t)
	})

	t.Run("empty token list is a no-op", func(t *testing.T) {
		mockClient := new(MockClient)
		sender := apns.NewSenderWithClient(mockClient, "dev.hearthhub.app", newTestLogger())

		outcomes, err := sender.Dispatch(ctx, nil, msg)
		require.NoError(t, err)
		assert.Empty(t, outcomes)
		mockClient.AssertNotCalled(t, "Push", mock.Anything)
	})

	t.Run("cancelled context aborts remaining sends", func(t *testing.T) {
		mockClient := new(MockClient)
		sender := apns.NewSenderWithClient(mockClient, "dev.hearthhub.app", newTestLogger())

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := sender.Dispatch(cctx, []notify.PushToken{apnsToken("token-a")}, msg)
		require.Error(t, err)
		mockClient.AssertNotCalled(t, "Push", mock.Anything)
	})
}

func TestNewSender_RejectsBadKey(t *testing.T) {
	_, err := apns.NewSender(apns.Config{
		KeyID:        "KEY1",
		TeamID:       "TEAM1",
		BundleID:     "dev.hearthhub.app",
		P8KeyContent: "not a pem block",
	}, newTestLogger())
	require.Error(t, err)
}
