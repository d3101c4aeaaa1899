package audit

import "context"

// RequestInfo is the client metadata attached to every record of a request.
type RequestInfo struct {
	IP        string
	UserAgent string
	Method    string
	URL       string
}

type requestKey struct{}

func WithRequest(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestKey{}, info)
}

func RequestFrom(ctx context.Context) RequestInfo {
	if ctx == nil {
		return RequestInfo{}
	}
	info, _ := ctx.Value(requestKey{}).(RequestInfo)
	return info
}
