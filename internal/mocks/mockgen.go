//go:build generate

package mocks

//go:generate sh -c "go run go.uber.org/mock/mockgen -typed -package mocks -destination feedback_sender.go github.com/tfrc-go/tfrc-go FeedbackSender"
