package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "doggobot/pkg/logx"
)

// notifyReady tells systemd (Type=notify) the bot is up. Outside systemd
// NOTIFY_SOCKET is unset and this does nothing.
func notifyReady(log logx.Logger) { sdNotify(log, daemon.SdNotifyReady) }

func notifyStopping(log logx.Logger) { sdNotify(log, daemon.SdNotifyStopping) }

func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
