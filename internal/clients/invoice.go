package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

const maxReceiptSize = 10 << 20

type InvoiceClient struct{ c *Client }

func NewInvoiceClient(c *Client) *InvoiceClient { return &InvoiceClient{c: c} }

type Receipt struct {
	ContentType string
	Body        []byte
}

func (ic *InvoiceClient) Receipt(ctx context.Context, token, orderID string) (Receipt, error) {
	headers := bearer(token)
	headers.Set("Accept", "application/pdf")

	resp, err := ic.c.Do(ctx, http.MethodGet, "/invoices/"+url.PathEscape(orderID), nil, headers)
	if err != nil {
		return Receipt{}, err
	}
	defer resp.Body.Close()

	if err := ic.c.classify(resp, nil); err != nil {
		return Receipt{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReceiptSize))
	if err != nil {
		return Receipt{}, &domain.ServiceError{Kind: domain.ErrNetwork, Service: ic.c.Name, Message: fmt.Sprintf("read receipt: %v", err)}
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/pdf"
	}
	return Receipt{ContentType: ct, Body: body}, nil
}
