package authkit

import "context"

type clientContextKey struct{}
type clientIPContextKey struct{}

// Client identifies the browser an operation acts on. ID selects the stored
// session slot; Env is the browser's current fingerprint input.
type Client struct {
	ID  string
	Env Environment
}

// WithClient attaches the calling browser to ctx. Session operations without
// a client use Config.Session.DefaultClientID and a zero Environment.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientContextKey{}, c)
}

// WithClientIP attaches the caller's IP address to ctx for audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientFromContext(ctx context.Context, defaultID string) Client {
	if ctx == nil {
		return Client{ID: defaultID}
	}
	c, _ := ctx.Value(clientContextKey{}).(Client)
	if c.ID == "" {
		c.ID = defaultID
	}
	return c
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
