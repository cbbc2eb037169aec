package pi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	authScheme      = "Key"
	maxResponseSize = 1 << 20
	defaultTimeout  = 30 * time.Second
)

// Api is a thin client for the Pi platform REST API. It performs no retries,
// every failure is handed back to the caller.
type Api struct {
	URL    string
	APIKey string
	Client *http.Client
}

func NewApi(baseUrl, apiKey string) *Api {
	return &Api{
		URL:    strings.TrimRight(baseUrl, "/"),
		APIKey: apiKey,
		Client: &http.Client{Timeout: defaultTimeout},
	}
}

func (pi *Api) CreatePayment(ctx context.Context, args PaymentArgs) (*Payment, error) {
	return Post[Payment](ctx, pi, "/payments", createPaymentRequest{Payment: args})
}

func (pi *Api) GetPayment(ctx context.Context, paymentId string) (*Payment, error) {
	return Get[Payment](ctx, pi, paymentPath(paymentId, ""))
}

func (pi *Api) ApprovePayment(ctx context.Context, paymentId string) (*Payment, error) {
	return Post[Payment](ctx, pi, paymentPath(paymentId, "approve"), nil)
}

// SubmitTransaction tells the platform that txid was broadcast for the payment
// so that it can start verifying it against the chain.
func (pi *Api) SubmitTransaction(ctx context.Context, paymentId, txid string) (*Payment, error) {
	return Post[Payment](ctx, pi, paymentPath(paymentId, "submit"), txidRequest{Txid: txid})
}

func (pi *Api) CompletePayment(ctx context.Context, paymentId, txid string) (*Payment, error) {
	return Post[Payment](ctx, pi, paymentPath(paymentId, "complete"), txidRequest{Txid: txid})
}

func (pi *Api) CancelPayment(ctx context.Context, paymentId string) (*Payment, error) {
	return Post[Payment](ctx, pi, paymentPath(paymentId, "cancel"), nil)
}

func (pi *Api) IncompleteServerPayments(ctx context.Context) ([]Payment, error) {
	resp, err := Get[incompletePaymentsResponse](ctx, pi, "/payments/incomplete_server_payments")
	if err != nil {
		return nil, err
	}
	return resp.IncompleteServerPayments, nil
}

// Me resolves a user access token obtained by the frontend SDK. The user token
// is sent instead of the application key.
func (pi *Api) Me(ctx context.Context, accessToken string) (*User, error) {
	return do[User](ctx, pi, http.MethodGet, "/me", nil, "Bearer "+accessToken)
}

func Get[T any](ctx context.Context, pi *Api, endpoint string) (*T, error) {
	return do[T](ctx, pi, http.MethodGet, endpoint, nil, "")
}

func Post[T any](ctx context.Context, pi *Api, endpoint string, requestBody any) (*T, error) {
	return do[T](ctx, pi, http.MethodPost, endpoint, requestBody, "")
}

func Delete[T any](ctx context.Context, pi *Api, endpoint string) (*T, error) {
	return do[T](ctx, pi, http.MethodDelete, endpoint, nil, "")
}

func do[T any](
	ctx context.Context, pi *Api, method, endpoint string, requestBody any, authorization string,
) (*T, error) {
	var body io.Reader
	if requestBody != nil {
		rawBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(rawBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, pi.URL+"/v2"+endpoint, body)
	if err != nil {
		return nil, err
	}
	if authorization == "" {
		authorization = authScheme + " " + pi.APIKey
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := pi.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer res.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, toServiceError(res.StatusCode, rawBody)
	}

	var resp T
	if len(bytes.TrimSpace(rawBody)) == 0 {
		return &resp, nil
	}
	if err := json.Unmarshal(rawBody, &resp); err != nil {
		return nil, fmt.Errorf("could not parse pi response with status %d: %v", res.StatusCode, err)
	}
	return &resp, nil
}

func toServiceError(statusCode int, rawBody []byte) *ServiceError {
	svcErr := &ServiceError{StatusCode: statusCode, Body: string(rawBody)}

	var errResp errorResponse
	if err := json.Unmarshal(rawBody, &errResp); err == nil && errResp.Error != "" {
		svcErr.Code = errResp.Error
		svcErr.Message = errResp.ErrorMessage
		if svcErr.Message == "" {
			svcErr.Message = errResp.Error
		}
		return svcErr
	}

	svcErr.Message = strings.TrimSpace(string(rawBody))
	if svcErr.Message == "" {
		svcErr.Message = http.StatusText(statusCode)
	}
	return svcErr
}

func paymentPath(paymentId, action string) string {
	path := "/payments/" + url.PathEscape(paymentId)
	if action != "" {
		path += "/" + action
	}
	return path
}
