package middleware

import (
	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// HeaderUserID is the header key for the authenticated user ID
	HeaderUserID = "X-User-ID"
	// HeaderDeviceID is the header key for the submitting device ID
	HeaderDeviceID = "X-Device-ID"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			// get request id from header
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			// identity headers are set by the gateway after authentication
			userID := req.Header.Get(HeaderUserID)
			deviceID := req.Header.Get(HeaderDeviceID)

			ctx := req.Context()
			ctx = appcontext.SetRequestID(ctx, requestID)
			ctx = appcontext.SetMethod(ctx, req.Method)
			ctx = appcontext.SetRoute(ctx, req.URL.Path)
			ctx = appcontext.SetRemoteIP(ctx, c.RealIP())
			ctx = appcontext.SetUserID(ctx, userID)
			ctx = appcontext.SetDeviceID(ctx, deviceID)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
