package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/dontvisit/internal/blocker/domain"
)

func TestChainChannels_FirstSuccessWins(t *testing.T) {
	first, second := new(MockPages), new(MockPages)
	req := domain.Request{Action: domain.ActionShowWarning, BlockedURL: "https://x.com/"}
	first.On("SendMessage", mock.Anything, domain.TabID("7"), req).Return(domain.Response{}, domain.ErrChannelUnavailable)
	second.On("SendMessage", mock.Anything, domain.TabID("7"), req).Return(domain.HandledResponse(true), nil)

	resp, err := ChainChannels(first, nil, second).SendMessage(context.Background(), "7", req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestChainChannels_StopsAtFirstSuccess(t *testing.T) {
	first, second := new(MockPages), new(MockPages)
	first.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(domain.HandledResponse(true), nil)

	_, err := ChainChannels(first, second).SendMessage(context.Background(), "7", domain.Request{Action: domain.ActionShowWarning})
	require.NoError(t, err)
	second.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestChainChannels_AllFail(t *testing.T) {
	first, second := new(MockPages), new(MockPages)
	first.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(domain.HandledResponse(false), nil)
	second.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(domain.Response{}, errors.New("socket closed"))

	_, err := ChainChannels(first, second).SendMessage(context.Background(), "7", domain.Request{Action: domain.ActionShowWarning})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	assert.Contains(t, err.Error(), "not handled")
	assert.Contains(t, err.Error(), "socket closed")
}

func TestChainChannels_Empty(t *testing.T) {
	_, err := ChainChannels().SendMessage(context.Background(), "7", domain.Request{})
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
}
