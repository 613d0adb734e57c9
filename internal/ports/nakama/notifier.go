package nakama

import (
	"context"
	"encoding/json"

	"bisca/internal/app"
	"bisca/internal/domain"

	"github.com/heroiclabs/nakama-common/runtime"
)

// notificationAPI is the slice of runtime.NakamaModule the notifier
// needs, narrowed so tests can record sends.
type notificationAPI interface {
	NotificationSend(ctx context.Context, userID, subject string, content map[string]interface{}, code int, sender string, persistent bool) error
}

// Notification codes per event kind, for client-side dispatch.
const (
	notificationCodeGameCreated   = 110
	notificationCodePlayerJoined  = 111
	notificationCodeCardPlayed    = 112
	notificationCodeTrickResolved = 113
	notificationCodeGameEnded     = 114
	notificationCodeGameResigned  = 115
)

var notificationCodes = map[app.EventKind]int{
	app.EventGameCreated:   notificationCodeGameCreated,
	app.EventPlayerJoined:  notificationCodePlayerJoined,
	app.EventCardPlayed:    notificationCodeCardPlayed,
	app.EventTrickResolved: notificationCodeTrickResolved,
	app.EventGameEnded:     notificationCodeGameEnded,
	app.EventGameResigned:  notificationCodeGameResigned,
}

// eventNotifier relays engine events to participants as persistent Nakama
// notifications. The acting player already holds the resulting state from
// the RPC response and guests and bots have no notification inbox, so all
// three are skipped.
type eventNotifier struct {
	nk notificationAPI
}

func newEventNotifier(nk notificationAPI) *eventNotifier {
	return &eventNotifier{nk: nk}
}

func (n *eventNotifier) dispatch(ctx context.Context, logger runtime.Logger, game *domain.Game, actor domain.PlayerRef, events []app.Event) {
	if n.nk == nil {
		return
	}
	for _, ev := range events {
		targets := ev.Recipients
		if len(targets) == 0 {
			targets = game.Sides[:]
		}
		content := eventContent(ev.Payload)
		code := notificationCodes[ev.Kind]

		for _, target := range targets {
			if !target.IsHuman() || target.Equal(actor) {
				continue
			}
			if err := n.nk.NotificationSend(ctx, target.ID, string(ev.Kind), content, code, "", true); err != nil {
				logger.Warn("Failed to send %s notification to %s: %v", ev.Kind, target.ID, err)
			}
		}
	}
}

// eventContent flattens a typed payload into the map NotificationSend
// requires.
func eventContent(payload any) map[string]interface{} {
	data, err := json.Marshal(payload)
	if err != nil {
		return map[string]interface{}{}
	}
	var content map[string]interface{}
	if err := json.Unmarshal(data, &content); err != nil {
		return map[string]interface{}{}
	}
	return content
}
