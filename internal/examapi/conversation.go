package examapi

import (
	"context"
	"net/http"
)

func (c *Client) OpenConversation(ctx context.Context, req ConversationOpenRequest) (ConversationOpenResponse, error) {
	var out ConversationOpenResponse
	err := c.do(ctx, "open conversation", http.MethodPost, "/conversation/open", nil, req, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, req ConversationMessageRequest) (ConversationMessageResponse, error) {
	var out ConversationMessageResponse
	err := c.do(ctx, "send conversation message", http.MethodPost, "/conversation/message", nil, req, &out)
	return out, err
}
