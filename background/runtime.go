package background

import (
	"context"

	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/rs/zerolog/log"
)

// ProcessRuntime hosts the coordinator in a server process. Opening the
// popup notifies a listening interactive surface; a reload asks the process
// to rebuild itself.
type ProcessRuntime struct {
	manifest  Manifest
	transport messaging.Transport
	onReload  func()
}

func NewProcessRuntime(manifest Manifest, transport messaging.Transport, onReload func()) *ProcessRuntime {
	return &ProcessRuntime{
		manifest:  manifest,
		transport: transport,
		onReload:  onReload,
	}
}

func (r *ProcessRuntime) Manifest() Manifest {
	return r.manifest
}

func (r *ProcessRuntime) Reload(context.Context) error {
	if r.onReload != nil {
		go r.onReload()
	}
	return nil
}

func (r *ProcessRuntime) OpenPopup(ctx context.Context) error {
	msg, err := messaging.NewMessage(constants.OpenPopupMessage, nil)
	if err != nil {
		return err
	}
	if err := r.transport.Publish(ctx, constants.PopupEndpoint, msg); err != nil {
		log.Info().Err(err).Msg("No interactive surface listening")
	}
	return nil
}
