package gateway

import (
	"context"
	"fmt"

	"github.com/rahul/flowdesk/internal/store"
	"github.com/rahul/flowdesk/internal/workflow"
)

// Messenger defines the interface for communication gateways (Telegram, ...)
type Messenger interface {
	// Start begins the message listening loop and blocks until ctx is done
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Runner handles one request on behalf of an external identity and returns
// the formatted report.
type Runner interface {
	Run(ctx context.Context, request, identity string) (string, error)
}

// HistoryLister lists recent runs of an identity, newest first.
type HistoryLister interface {
	Recent(ctx context.Context, identity string, limit int) ([]store.RunRecord, error)
}

// Deliver runs request for chatID and sends the outcome to that chat: the
// report on success, the user-facing failure message otherwise. The run
// error is returned after the message is sent.
func Deliver(ctx context.Context, m Messenger, r Runner, chatID, request string) error {
	report, runErr := r.Run(ctx, request, chatID)
	if runErr != nil {
		report = workflow.UserMessage(runErr)
	}
	if err := m.Send(chatID, report); err != nil {
		return fmt.Errorf("delivering report to %s: %w", chatID, err)
	}
	return runErr
}
