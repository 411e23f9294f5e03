package dispatcher

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/haukened/dontvisit/internal/blocker/domain"
)

type chain []PageChannel

// ChainChannels returns a PageChannel that asks each channel in turn and
// answers with the first successful response. When none succeeds the error
// wraps domain.ErrChannelUnavailable.
func ChainChannels(channels ...PageChannel) PageChannel {
	out := make(chain, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			out = append(out, ch)
		}
	}
	return out
}

func (c chain) SendMessage(ctx context.Context, tab domain.TabID, req domain.Request) (domain.Response, error) {
	var errs *multierror.Error
	for _, ch := range c {
		resp, err := ch.SendMessage(ctx, tab, req)
		if err == nil && resp.Success {
			return resp, nil
		}
		if err == nil {
			err = fmt.Errorf("request %q not handled", req.Action)
		}
		errs = multierror.Append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if errs == nil {
		return domain.Response{}, fmt.Errorf("%w: no page channels", domain.ErrChannelUnavailable)
	}
	return domain.Response{}, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, errs.ErrorOrNil())
}
