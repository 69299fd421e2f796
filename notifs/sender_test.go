package notifs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMulticastClient struct {
	mock.Mock
}

func (m *mockMulticastClient) SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	args := m.Called(message)
	response, _ := args.Get(0).(*messaging.BatchResponse)
	return response, args.Error(1)
}

func makeTokens(n int) []string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d", i)
	}
	return tokens
}

func allDelivered(n int) *messaging.BatchResponse {
	response := &messaging.BatchResponse{SuccessCount: n}
	for i := 0; i < n; i++ {
		response.Responses = append(response.Responses, &messaging.SendResponse{Success: true, MessageID: fmt.Sprint(i)})
	}
	return response
}

func TestChunkTokens(t *testing.T) {
	tokens := makeTokens(2501)
	chunks := chunkTokens(tokens, 1000)
	if assert.Len(t, chunks, 3) {
		assert.Len(t, chunks[0], 1000)
		assert.Len(t, chunks[1], 1000)
		assert.Len(t, chunks[2], 501)
		assert.Equal(t, "t2500", chunks[2][500])
	}

	assert.Empty(t, chunkTokens(nil, 1000))
	assert.Len(t, chunkTokens([]string{"a"}, 1000), 1)
}

func TestFailuresFromResponses(t *testing.T) {
	tokens := []string{"a", "b", "c"}
	responses := []*messaging.SendResponse{
		{Success: true, MessageID: "1"},
		{Error: errors.New("registration token is not registered")},
		{},
		{Error: errors.New("extra response")},
	}
	assert.Equal(t, []DeliveryFailure{
		{Token: "b", Reason: "registration token is not registered"},
		{Token: "c", Reason: "unknown error"},
	}, failuresFromResponses(tokens, responses))

	assert.Empty(t, failuresFromResponses(tokens, nil))
}

func TestFCMSenderSendMulticast(t *testing.T) {
	client := new(mockMulticastClient)
	first := allDelivered(maxTokensPerRequest)
	first.SuccessCount--
	first.FailureCount = 1
	first.Responses[3] = &messaging.SendResponse{Error: errors.New("requested entity was not found")}

	client.On("SendEachForMulticast", mock.MatchedBy(func(m *messaging.MulticastMessage) bool {
		return len(m.Tokens) == maxTokensPerRequest && m.Tokens[0] == "t0"
	})).Return(first, nil).Once()
	client.On("SendEachForMulticast", mock.MatchedBy(func(m *messaging.MulticastMessage) bool {
		return len(m.Tokens) == 2 && m.Tokens[0] == fmt.Sprintf("t%d", maxTokensPerRequest)
	})).Return(allDelivered(2), nil).Once()

	sender := &FCMSender{client: client}
	result, err := sender.SendMulticast(&Message{
		Tokens: makeTokens(maxTokensPerRequest + 2),
		Title:  "Neu: U1",
		Body:   "Signal fault",
		Data:   map[string]string{"disturbanceId": "ma_1", "screen": ScreenDisturbanceDetail},
	})
	require.NoError(t, err)
	client.AssertExpectations(t)

	assert.Equal(t, maxTokensPerRequest+1, result.SuccessCount)
	assert.Equal(t, []DeliveryFailure{{Token: "t3", Reason: "requested entity was not found"}}, result.Failures)

	sent := client.Calls[0].Arguments.Get(0).(*messaging.MulticastMessage)
	assert.Equal(t, "Neu: U1", sent.Notification.Title)
	assert.Equal(t, "Signal fault", sent.Notification.Body)
	assert.Equal(t, "ma_1", sent.Data["disturbanceId"])
	assert.Equal(t, "high", sent.Android.Priority)
}

func TestFCMSenderKeepsPartialResultOnError(t *testing.T) {
	client := new(mockMulticastClient)
	first := allDelivered(maxTokensPerRequest)
	first.SuccessCount--
	first.Responses[0] = &messaging.SendResponse{Error: errors.New("invalid registration token")}
	client.On("SendEachForMulticast", mock.Anything).Return(first, nil).Once()
	client.On("SendEachForMulticast", mock.Anything).Return(nil, errors.New("unavailable")).Once()

	sender := &FCMSender{client: client}
	result, err := sender.SendMulticast(&Message{Tokens: makeTokens(maxTokensPerRequest + 1)})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, maxTokensPerRequest-1, result.SuccessCount)
	assert.Equal(t, []DeliveryFailure{{Token: "t0", Reason: "invalid registration token"}}, result.Failures)
}
