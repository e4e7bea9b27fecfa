package push_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hearthhub/go-realtime-notify/internal/platform/push"
	"github.com/hearthhub/go-realtime-notify/pkg/dispatch"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Dispatch(ctx context.Context, tokens []notify.PushToken, msg dispatch.PushMessage) ([]notify.DeliveryOutcome, error) {
	args := m.Called(ctx, tokens, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]notify.DeliveryOutcome), args.Error(1)
}

func sentOutcome(t notify.PushToken) notify.DeliveryOutcome {
	return notify.DeliveryOutcome{Target: notify.PushTarget(t), Provider: notify.ProviderPush, Status: notify.StatusSent}
}

func TestGateway_SendMulticast(t *testing.T) {
	ctx := context.Background()
	msg := dispatch.PushMessage{Title: "Chores", Body: "Take out the bins"}

	fcmToken := notify.PushToken{Platform: notify.PlatformFCM, Token: "fcm-1"}
	apnsToken := notify.PushToken{Platform: notify.PlatformAPNS, Token: "apns-1"}

	t.Run("Routes tokens to their platform sender", func(t *testing.T) {
		fcmMock := new(mockSender)
		apnsMock := new(mockSender)
		gw := push.NewGateway(map[notify.PushPlatform]push.Sender{
			notify.PlatformFCM:  fcmMock,
			notify.PlatformAPNS: apnsMock,
		}, newTestLogger())

		fcmMock.On("Dispatch", ctx, []notify.PushToken{fcmToken}, msg).
			Return([]notify.DeliveryOutcome{sentOutcome(fcmToken)}, nil)
		apnsMock.On("Dispatch", ctx, []notify.PushToken{apnsToken}, msg).
			Return([]notify.DeliveryOutcome{sentOutcome(apnsToken)}, nil)

		receipt := gw.SendMulticast(ctx, []notify.PushToken{fcmToken, apnsToken}, msg)

		assert.Equal(t, 2, receipt.SuccessCount)
		assert.Equal(t, 0, receipt.FailureCount)
		fcmMock.AssertExpectations(t)
		apnsMock.AssertExpectations(t)
	})

	t.Run("Unconfigured gateway is a deterministic no-op", func(t *testing.T) {
		gw := push.NewGateway(nil, newTestLogger())

		receipt := gw.SendMulticast(ctx, []notify.PushToken{fcmToken, apnsToken}, msg)

		assert.Equal(t, 0, receipt.SuccessCount)
		assert.Equal(t, 2, receipt.FailureCount)
		require.Len(t, receipt.Outcomes, 2)
		for _, out := range receipt.Outcomes {
			assert.Equal(t, notify.StatusFailed, out.Status)
			assert.Equal(t, "configuration-missing", out.Detail)
		}
	})

	t.Run("Platform with no sender fails its tokens only", func(t *testing.T) {
		fcmMock := new(mockSender)
		gw := push.NewGateway(map[notify.PushPlatform]push.Sender{
			notify.PlatformFCM: fcmMock,
		}, newTestLogger())

		fcmMock.On("Dispatch", ctx, []notify.PushToken{fcmToken}, msg).
			Return([]notify.DeliveryOutcome{sentOutcome(fcmToken)}, nil)

		receipt := gw.SendMulticast(ctx, []notify.PushToken{fcmToken, apnsToken}, msg)

		assert.Equal(t, 1, receipt.SuccessCount)
		assert.Equal(t, 1, receipt.FailureCount)
	})

	t.Run("Transport error fails the batch with a transient detail", func(t *testing.T) {
		fcmMock := new(mockSender)
		gw := push.NewGateway(map[notify.PushPlatform]push.Sender{
			notify.PlatformFCM: fcmMock,
		}, newTestLogger())

		fcmMock.On("Dispatch", ctx, mock.Anything, msg).Return(nil, errors.New("network down"))

		receipt := gw.SendMulticast(ctx, []notify.PushToken{fcmToken}, msg)

		require.Len(t, receipt.Outcomes, 1)
		assert.Equal(t, notify.StatusFailed, receipt.Outcomes[0].Status)
		assert.Equal(t, "transient", receipt.Outcomes[0].Detail)
	})

	t.Run("Deadline exceeded is distinguishable as a timeout", func(t *testing.T) {
		fcmMock := new(mockSender)
		gw := push.NewGateway(map[notify.PushPlatform]push.Sender{
			notify.PlatformFCM: fcmMock,
		}, newTestLogger())

		wrapped := errors.Join(errors.New("fcm transport failed"), context.DeadlineExceeded)
		fcmMock.On("Dispatch", mock.Anything, mock.Anything, msg).Return(nil, wrapped)

		receipt := gw.SendMulticast(ctx, []notify.PushToken{fcmToken}, msg)

		require.Len(t, receipt.Outcomes, 1)
		assert.Equal(t, "timeout", receipt.Outcomes[0].Detail)
	})
}

func TestGateway_Send(t *testing.T) {
	ctx := context.Background()
	msg := dispatch.PushMessage{Title: "Hi"}
	token := notify.PushToken{Platform: notify.PlatformFCM, Token: "t-1"}

	fcmMock := new(mockSender)
	gw := push.NewGateway(map[notify.PushPlatform]push.Sender{notify.PlatformFCM: fcmMock}, newTestLogger())

	fcmMock.On("Dispatch", ctx, []notify.PushToken{token}, msg).
		Return([]notify.DeliveryOutcome{sentOutcome(token)}, nil).Once()
	assert.True(t, gw.Send(ctx, token, msg))

	fcmMock.On("Dispatch", ctx, []notify.PushToken{token}, msg).
		Return([]notify.DeliveryOutcome{{
			Target: notify.PushTarget(token), Provider: notify.ProviderPush,
			Status: notify.StatusInvalidTarget, Detail: "unregistered",
		}}, nil).Once()
	assert.False(t, gw.Send(ctx, token, msg))
}
