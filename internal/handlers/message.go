package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"chatwave-backend/internal/chat"
	"chatwave-backend/internal/logger"
	"chatwave-backend/internal/models"
)

// HandleMessage applies one inbound websocket event to the client. Failures
// are reported back as error events.
func HandleMessage(ctx context.Context, client *chat.Client, push chat.Sink, data []byte) {
	var in models.WSMessage
	if err := json.Unmarshal(data, &in); err != nil {
		push(models.EventError, "", "invalid message")
		return
	}

	var err error
	switch in.Event {
	case models.EventSelect:
		err = client.Select(in.ChatID)
	case models.EventLeave:
		client.Leave()
	case models.EventSend:
		_, err = client.Send(ctx, in.Text, nil)
	case models.EventEdit:
		_, err = client.Edit(ctx, in.MessageID, in.Text)
	case models.EventDelete:
		err = client.Delete(ctx, in.MessageID)
	case models.EventStar:
		_, err = client.ToggleStar(ctx, in.MessageID)
	case models.EventInput:
		client.InputChanged(in.Text)
	case models.EventSummarize:
		// Summaries can take a while; keep reading meanwhile.
		go func() {
			if _, err := client.Summarize(ctx); err != nil {
				push(models.EventError, in.ChatID, toAppError(err).Message)
			}
		}()
	default:
		err = fmt.Errorf("unknown event %q", in.Event)
		logger.Debug().Str("event", in.Event).Msg("unknown websocket event")
		push(models.EventError, in.ChatID, err.Error())
		return
	}

	if err != nil {
		push(models.EventError, in.ChatID, in.Event+": "+toAppError(err).Message)
	}
}
