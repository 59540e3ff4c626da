package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/ribamar/pkg/dispatch"
	"github.com/rhuss/ribamar/pkg/mailer"
)

type notificationInput struct {
	Key      string         `json:"key" validate:"required"`
	Template string         `json:"template" validate:"required"`
	Data     map[string]any `json:"data"`
}

// Notifications serves the notification entity.
type Notifications struct{}

// Post mails a template to the account owning credential key.
func (Notifications) Post(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	var input notificationInput
	if err := in.Decode(&input); err != nil {
		return nil, err
	}
	if msgs := validate(d, input); msgs != nil {
		return reject(in, http.StatusBadRequest, msgs...)
	}

	known, err := credentialTaken(ctx, d.Store, input.Key)
	if err != nil {
		return nil, err
	}
	if !known {
		return reject(in, http.StatusBadRequest, msgUnknownCredential)
	}

	if d.Mailer != nil {
		to, err := d.Mailer.Notify(ctx, input.Template, input.Key, input.Data)
		if errors.Is(err, mailer.ErrUnknownTemplate) {
			return reject(in, http.StatusBadRequest, msgUnknownTemplate)
		}
		if err != nil {
			return nil, fmt.Errorf("notifying %s: %w", input.Key, err)
		}
		if to != "" {
			loggerOf(d).Info("account notified",
				slog.String("credential", input.Key),
				slog.String("template", input.Template),
				slog.String("to", to),
			)
		}
	}

	in.SetStatus(http.StatusOK)
	return nil, nil
}
