package client

import (
	"context"
	"fmt"
	"letsplay/pkg/model"
	"net/url"
)

const userIDHeader = "X-User-ID"

// LetsPlayClient wraps the public endpoints of the bookings service. Calls
// act on behalf of the user set with AsUser.
type LetsPlayClient struct {
	httpClient *HttpClient
}

func NewLetsPlayClient(baseURL string) *LetsPlayClient {
	return &LetsPlayClient{
		httpClient: NewHttpClient(baseURL),
	}
}

// AsUser returns a client that sends userID in the X-User-ID header.
func (c *LetsPlayClient) AsUser(userID string) *LetsPlayClient {
	return &LetsPlayClient{httpClient: c.httpClient.WithHeader(userIDHeader, userID)}
}

func (c *LetsPlayClient) HTTP() *HttpClient {
	return c.httpClient
}

func (c *LetsPlayClient) CreateBooking(ctx context.Context, in *model.BookingCreate, idempotencyKey string) (*Response, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}
	return c.httpClient.POST(ctx, "/api/v1/bookings", in, headers)
}

func (c *LetsPlayClient) GetBooking(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/bookings/id/"+url.PathEscape(id), nil)
}

func (c *LetsPlayClient) GetSagaRun(ctx context.Context, bookingID string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/bookings/id/"+url.PathEscape(bookingID)+"/saga", nil)
}

func (c *LetsPlayClient) ListPublicBookings(ctx context.Context, limit int, offset int64) (*Response, error) {
	return c.httpClient.GET(ctx, fmt.Sprintf("/api/v1/bookings/public?limit=%d&offset=%d", limit, offset), nil)
}

func (c *LetsPlayClient) CreateJoinRequest(ctx context.Context, bookingID string, in *model.JoinRequestCreate) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/bookings/id/"+url.PathEscape(bookingID)+"/join-requests", in, nil)
}

func (c *LetsPlayClient) ListJoinRequests(ctx context.Context, bookingID string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/bookings/id/"+url.PathEscape(bookingID)+"/join-requests", nil)
}

func (c *LetsPlayClient) RespondToJoinRequest(ctx context.Context, requestID string, status string) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/join-requests/id/"+url.PathEscape(requestID)+"/respond",
		&model.JoinRequestResponse{Status: status}, nil)
}

func (c *LetsPlayClient) ListNotifications(ctx context.Context, userID string, limit int, offset int64) (*Response, error) {
	path := fmt.Sprintf("/api/v1/users/id/%s/notifications?limit=%d&offset=%d", url.PathEscape(userID), limit, offset)
	return c.httpClient.GET(ctx, path, nil)
}

func (c *LetsPlayClient) DecodeBooking(resp *Response) (*model.Booking, error) {
	var booking model.Booking
	if err := resp.DecodeData(&booking); err != nil {
		return nil, fmt.Errorf("decode booking from %s: %w", resp, err)
	}
	return &booking, nil
}

func (c *LetsPlayClient) DecodeJoinRequest(resp *Response) (*model.JoinRequest, error) {
	var req model.JoinRequest
	if err := resp.DecodeData(&req); err != nil {
		return nil, fmt.Errorf("decode join request from %s: %w", resp, err)
	}
	return &req, nil
}

func (c *LetsPlayClient) DecodeSagaRun(resp *Response) (*model.SagaRun, error) {
	var run model.SagaRun
	if err := resp.DecodeData(&run); err != nil {
		return nil, fmt.Errorf("decode saga run from %s: %w", resp, err)
	}
	return &run, nil
}
