package approval

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// ErrNoPopup is returned when an approval window cannot be opened because
// no popup shell is connected.
var ErrNoPopup = errors.New("popup shell not connected")

// PopupOpener opens approval windows by posting window lifecycle events
// to the popup shell channel. The shell renders the approval route and
// reports the user's decision back as an approval-response request.
type PopupOpener struct {
	sender Sender
	logger *slog.Logger
}

// NewPopupOpener creates an opener that drives the popup shell channel.
func NewPopupOpener(sender Sender, logger *slog.Logger) *PopupOpener {
	return &PopupOpener{
		sender: sender,
		logger: logger.With("component", "popup-opener"),
	}
}

// Open asks the popup shell to show the approval route in a fresh window
// and returns the generated window identifier.
func (o *PopupOpener) Open(ctx context.Context, route string) (string, error) {
	windowID := uuid.New().String()
	data, err := json.Marshal(protocol.OpenWindowParams{WindowID: windowID, Route: route})
	if err != nil {
		return "", err
	}

	env := protocol.Envelope{
		Type:   protocol.TypeEvent,
		Action: protocol.ActionOpenWindow,
		Data:   data,
		Metadata: protocol.Metadata{
			MessageID: uuid.New().String(),
			From:      protocol.ContextBackground,
			To:        protocol.ContextPopup,
			WindowID:  windowID,
		},
	}
	if !o.sender.Send(protocol.ChannelPopup, env) {
		return "", ErrNoPopup
	}
	return windowID, nil
}

// Close asks the popup shell to dismiss a window. Closing a window the
// shell no longer has is not an error.
func (o *PopupOpener) Close(windowID string) error {
	env := protocol.Envelope{
		Type:   protocol.TypeEvent,
		Action: protocol.ActionCloseWindow,
		Metadata: protocol.Metadata{
			MessageID: uuid.New().String(),
			From:      protocol.ContextBackground,
			To:        protocol.ContextPopup,
			WindowID:  windowID,
		},
	}
	if !o.sender.Send(protocol.ChannelPopup, env) {
		o.logger.Debug("close-window dropped, popup gone", "window_id", windowID)
	}
	return nil
}
