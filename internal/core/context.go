package core

import "context"

type clientKey struct{}

// Client identifies who started an import. It is attached to import log
// lines. CLI runs carry none.
type Client struct {
	IP        string
	UserAgent string
}

// WithClient returns a context carrying c.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFromContext returns the client stored by WithClient.
func ClientFromContext(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(clientKey{}).(Client)
	return c, ok
}

func clientAttrs(ctx context.Context) []any {
	c, ok := ClientFromContext(ctx)
	if !ok {
		return nil
	}
	var attrs []any
	if c.IP != "" {
		attrs = append(attrs, "client_ip", c.IP)
	}
	if c.UserAgent != "" {
		attrs = append(attrs, "user_agent", c.UserAgent)
	}
	return attrs
}
