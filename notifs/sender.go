package notifs

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// maxTokensPerRequest is the FCM limit of registration tokens per multicast
const maxTokensPerRequest = 500

const defaultSendTimeout = 30 * time.Second

// DeliveryFailure is a device token the push provider could not deliver to
type DeliveryFailure struct {
	Token  string
	Reason string
}

// MulticastResult is the outcome of a multicast push
type MulticastResult struct {
	SuccessCount int
	Failures     []DeliveryFailure
}

// Sender sends one notification to many devices at once
type Sender interface {
	SendMulticast(msg *Message) (*MulticastResult, error)
}

// multicastClient is implemented by *messaging.Client
type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMSender is a Sender that uses the Firebase Cloud Messaging HTTP v1 API
type FCMSender struct {
	client  multicastClient
	Timeout time.Duration
}

// NewFCMSender returns a FCMSender authenticated with the given service
// account credentials (the JSON key file contents)
func NewFCMSender(ctx context.Context, credentialsJSON string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("NewFCMSender: %s", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewFCMSender: %s", err)
	}
	return &FCMSender{
		client:  client,
		Timeout: defaultSendTimeout,
	}, nil
}

// SendMulticast implements Sender. When an error is returned, the result
// still holds the outcome of the requests that completed.
func (s *FCMSender) SendMulticast(msg *Message) (*MulticastResult, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	result := &MulticastResult{}
	for _, chunk := range chunkTokens(msg.Tokens, maxTokensPerRequest) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		response, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: chunk,
			Data:   msg.Data,
			Notification: &messaging.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
		})
		cancel()
		if err != nil {
			return result, fmt.Errorf("SendMulticast: %s", err)
		}
		result.SuccessCount += response.SuccessCount
		result.Failures = append(result.Failures, failuresFromResponses(chunk, response.Responses)...)
	}
	return result, nil
}

// failuresFromResponses matches per-message responses, which come in the same
// order as the tokens, to their tokens
func failuresFromResponses(tokens []string, responses []*messaging.SendResponse) []DeliveryFailure {
	failures := []DeliveryFailure{}
	for i, r := range responses {
		if i >= len(tokens) {
			break
		}
		if r == nil || r.Success {
			continue
		}
		reason := "unknown error"
		if r.Error != nil {
			reason = r.Error.Error()
		}
		failures = append(failures, DeliveryFailure{Token: tokens[i], Reason: reason})
	}
	return failures
}

func chunkTokens(tokens []string, size int) [][]string {
	chunks := [][]string{}
	for len(tokens) > size {
		chunks = append(chunks, tokens[:size])
		tokens = tokens[size:]
	}
	if len(tokens) > 0 {
		chunks = append(chunks, tokens)
	}
	return chunks
}
