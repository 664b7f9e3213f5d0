package comwechat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/honus/comwechat/internal/auth"
	"github.com/honus/comwechat/internal/channel"
	"github.com/honus/comwechat/internal/hook"
)

const (
	callableProcessTransfer      = "process_transfer"
	callableProcessFriendRequest = "process_friend_request"
	callableAddFriend            = "add_friend"

	resultSuccess = "Success"
	resultFailed  = "Failed"
)

// signedCommand attaches a token binding callable to kwargs, so that only
// commands this adapter issued can be invoked later.
func (a *Adapter) signedCommand(name, callable string, kwargs map[string]string) (channel.Command, error) {
	signed, err := auth.SignCommand(callable, kwargs, a.opts.CommandSecret, a.opts.CommandTokenTTL)
	if err != nil {
		return channel.Command{}, fmt.Errorf("sign command %s: %w", callable, err)
	}
	return channel.Command{Name: name, CallableName: callable, Kwargs: signed}, nil
}

// InvokeCommand runs a command previously attached to a system message.
func (a *Adapter) InvokeCommand(ctx context.Context, callable string, kwargs map[string]string) (string, error) {
	if err := auth.VerifyCommand(callable, kwargs, a.opts.CommandSecret); err != nil {
		a.logger.Warn("reject command", slog.String("callable", callable), slog.Any("error", err))
		return "", err
	}
	var (
		res hook.Result
		err error
	)
	switch callable {
	case callableProcessTransfer:
		res, err = a.client.GetTransfer(ctx, kwargs["transcationid"], kwargs["transferid"], kwargs["wxid"])
	case callableProcessFriendRequest:
		res, err = a.client.VerifyApply(ctx, kwargs["v3"], kwargs["v4"])
	case callableAddFriend:
		res, err = a.client.AddContactByV3(ctx, kwargs["v3"], "")
	default:
		return "", fmt.Errorf("unknown command: %s", callable)
	}
	if err != nil {
		return "", err
	}
	if res.Failed() {
		return resultFailed, nil
	}
	return resultSuccess, nil
}
